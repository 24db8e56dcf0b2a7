package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeCallArgs_TypedOps(t *testing.T) {
	got, err := DecodeCallArgs(OpDamageNPC, json.RawMessage(`{"npc_id":3,"amount":25.5}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	args, ok := got.(*DamageNPCArgs)
	if !ok {
		t.Fatalf("got %T", got)
	}
	if args.NPCID != 3 || args.Amount != 25.5 {
		t.Fatalf("args: %+v", args)
	}

	got, err = DecodeCallArgs(OpUpdatePosition, json.RawMessage(`{"pos":[1,2,3],"yaw":0.5}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	pos := got.(*UpdatePositionArgs)
	if pos.Pos != [3]float64{1, 2, 3} || pos.Yaw != 0.5 {
		t.Fatalf("args: %+v", pos)
	}
}

func TestDecodeCallArgs_MissingArgsDecodeToZero(t *testing.T) {
	got, err := DecodeCallArgs(OpRegister, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	args := got.(*RegisterArgs)
	if args.Username != "" || args.Password != "" {
		t.Fatalf("args: %+v", args)
	}
}

func TestDecodeCallArgs_RejectsUnknownOp(t *testing.T) {
	_, err := DecodeCallArgs("reboot_server", nil)
	if err == nil || !strings.Contains(err.Error(), `unknown op "reboot_server"`) {
		t.Fatalf("err=%v", err)
	}
}

func TestDecodeCallArgs_RejectsUnknownField(t *testing.T) {
	_, err := DecodeCallArgs(OpSendChat, json.RawMessage(`{"channel":"global","text":"hi","admin":true}`))
	if err == nil || !strings.Contains(err.Error(), "admin") {
		t.Fatalf("err=%v", err)
	}
}

func TestDecodeCallArgs_RejectsTrailingData(t *testing.T) {
	_, err := DecodeCallArgs(OpUseItem, json.RawMessage(`{"item_id":"potion_health"}{"item_id":"sword_iron"}`))
	if err == nil || !strings.Contains(err.Error(), "trailing data") {
		t.Fatalf("err=%v", err)
	}
}

func TestDecodeCallArgs_NoArgOps(t *testing.T) {
	for _, op := range []string{OpLogout, OpHeartbeat, OpLeaveWorld, OpTickNPCs, OpInventory, OpSkills, OpCleanupSessions, OpStats} {
		if _, err := DecodeCallArgs(op, nil); err != nil {
			t.Fatalf("%s with nil args: %v", op, err)
		}
		if _, err := DecodeCallArgs(op, json.RawMessage(`{}`)); err != nil {
			t.Fatalf("%s with empty args: %v", op, err)
		}
		if _, err := DecodeCallArgs(op, json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("%s accepted args", op)
		}
	}
}

func TestSupportedOps_AllDecodable(t *testing.T) {
	seen := map[string]struct{}{}
	for _, op := range SupportedOps {
		if _, dup := seen[op]; dup {
			t.Fatalf("duplicate op %q", op)
		}
		seen[op] = struct{}{}
		if _, err := DecodeCallArgs(op, nil); err != nil {
			t.Fatalf("op %q not decodable: %v", op, err)
		}
	}
}

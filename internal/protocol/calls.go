package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// CALL (client -> server): one operation against the world.
type CallMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ID              string          `json:"id"`
	Op              string          `json:"op"`
	Args            json.RawMessage `json:"args,omitempty"`
}

// Op names. The set is closed: a CALL with any other op is refused before it
// reaches the world, and the engine checks its dispatch table against
// SupportedOps at startup.
const (
	OpRegister            = "register"
	OpLogin               = "login"
	OpLogout              = "logout"
	OpHeartbeat           = "heartbeat"
	OpDisconnect          = "disconnect"
	OpJoinWorld           = "join_world"
	OpUpdatePosition      = "update_position"
	OpChangeZone          = "change_zone"
	OpLeaveWorld          = "leave_world"
	OpPlayersInZone       = "players_in_zone"
	OpSpawnNPC            = "spawn_npc"
	OpTickNPC             = "tick_npc"
	OpTickNPCs            = "tick_npcs"
	OpDamageNPC           = "damage_npc"
	OpGrantItem           = "grant_item"
	OpRemoveItem          = "remove_item"
	OpUseItem             = "use_item"
	OpInventory           = "inventory"
	OpGainSkillExperience = "gain_skill_experience"
	OpSkills              = "skills"
	OpSendChat            = "send_chat"
	OpSendWhisper         = "send_whisper"
	OpRecentChat          = "recent_chat"
	OpWhisperHistory      = "whisper_history"
	OpCleanupSessions     = "cleanup_sessions"
	OpStats               = "stats"
)

var SupportedOps = []string{
	OpRegister,
	OpLogin,
	OpLogout,
	OpHeartbeat,
	OpDisconnect,
	OpJoinWorld,
	OpUpdatePosition,
	OpChangeZone,
	OpLeaveWorld,
	OpPlayersInZone,
	OpSpawnNPC,
	OpTickNPC,
	OpTickNPCs,
	OpDamageNPC,
	OpGrantItem,
	OpRemoveItem,
	OpUseItem,
	OpInventory,
	OpGainSkillExperience,
	OpSkills,
	OpSendChat,
	OpSendWhisper,
	OpRecentChat,
	OpWhisperHistory,
	OpCleanupSessions,
	OpStats,
}

// Arg payloads, one per op. Ops without a struct here take no arguments.

type RegisterArgs struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// LoginArgs carries credentials plus the connection fields the server stamps
// from the live socket before dispatch. Client-sent values for ConnectionID
// and RemoteAddr are overwritten; they appear on the wire so a logged call
// decodes back to the exact call that ran.
type LoginArgs struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	ClientVersion string `json:"client_version,omitempty"`
	ConnectionID  string `json:"connection_id,omitempty"`
	RemoteAddr    string `json:"remote_addr,omitempty"`
}

// DisconnectArgs names the connection the transport saw close. Sessions
// bound to a different connection ignore it.
type DisconnectArgs struct {
	ConnectionID string `json:"connection_id"`
}

type JoinWorldArgs struct {
	Zone string `json:"zone,omitempty"`
}

type UpdatePositionArgs struct {
	Pos [3]float64 `json:"pos"`
	Yaw float64    `json:"yaw"`
}

type ChangeZoneArgs struct {
	Zone  string     `json:"zone"`
	Spawn [3]float64 `json:"spawn"`
}

type PlayersInZoneArgs struct {
	Zone string `json:"zone,omitempty"`
}

type SpawnNPCArgs struct {
	Name string     `json:"name"`
	Kind string     `json:"kind"`
	Pos  [3]float64 `json:"pos"`
	Zone string     `json:"zone,omitempty"`
}

type TickNPCArgs struct {
	NPCID uint64 `json:"npc_id"`
}

type DamageNPCArgs struct {
	NPCID  uint64  `json:"npc_id"`
	Amount float64 `json:"amount"`
}

type GrantItemArgs struct {
	Username string `json:"username"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type RemoveItemArgs struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type UseItemArgs struct {
	ItemID string `json:"item_id"`
}

type GainSkillExperienceArgs struct {
	Skill  string `json:"skill"`
	Amount uint64 `json:"amount"`
}

type SendChatArgs struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type SendWhisperArgs struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type RecentChatArgs struct {
	Channel string `json:"channel"`
	Limit   int    `json:"limit,omitempty"`
}

type WhisperHistoryArgs struct {
	With  string `json:"with"`
	Limit int    `json:"limit,omitempty"`
}

// DecodeCallArgs parses the args payload for op into its typed struct.
// Unknown ops and unknown fields are both refused: a misspelled field fails
// loudly instead of silently zeroing out.
func DecodeCallArgs(op string, args json.RawMessage) (any, error) {
	switch op {
	case OpRegister:
		return decodeArgs[RegisterArgs](op, args)
	case OpLogin:
		return decodeArgs[LoginArgs](op, args)
	case OpDisconnect:
		return decodeArgs[DisconnectArgs](op, args)
	case OpJoinWorld:
		return decodeArgs[JoinWorldArgs](op, args)
	case OpUpdatePosition:
		return decodeArgs[UpdatePositionArgs](op, args)
	case OpChangeZone:
		return decodeArgs[ChangeZoneArgs](op, args)
	case OpPlayersInZone:
		return decodeArgs[PlayersInZoneArgs](op, args)
	case OpSpawnNPC:
		return decodeArgs[SpawnNPCArgs](op, args)
	case OpTickNPC:
		return decodeArgs[TickNPCArgs](op, args)
	case OpDamageNPC:
		return decodeArgs[DamageNPCArgs](op, args)
	case OpGrantItem:
		return decodeArgs[GrantItemArgs](op, args)
	case OpRemoveItem:
		return decodeArgs[RemoveItemArgs](op, args)
	case OpUseItem:
		return decodeArgs[UseItemArgs](op, args)
	case OpGainSkillExperience:
		return decodeArgs[GainSkillExperienceArgs](op, args)
	case OpSendChat:
		return decodeArgs[SendChatArgs](op, args)
	case OpSendWhisper:
		return decodeArgs[SendWhisperArgs](op, args)
	case OpRecentChat:
		return decodeArgs[RecentChatArgs](op, args)
	case OpWhisperHistory:
		return decodeArgs[WhisperHistoryArgs](op, args)
	case OpLogout, OpHeartbeat, OpLeaveWorld, OpTickNPCs, OpInventory, OpSkills, OpCleanupSessions, OpStats:
		if err := ensureNoArgs(op, args); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}
}

func decodeArgs[T any](op string, raw json.RawMessage) (*T, error) {
	v := new(T)
	if len(raw) == 0 {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("op %s: %w", op, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("op %s: trailing data after args", op)
	}
	return v, nil
}

func ensureNoArgs(op string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "{}":
		return nil
	}
	return fmt.Errorf("op %s takes no args", op)
}

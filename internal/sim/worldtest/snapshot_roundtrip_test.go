package worldtest

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	world "everdusk.gg/internal/sim/world"
)

// A snapshot taken mid-story and imported into a fresh world must reproduce
// the digest exactly and keep living state (respawn timers) ticking.
func TestSnapshotRoundTripPreservesDigest(t *testing.T) {
	h := NewHarness(t)
	alice := h.JoinedPlayer("alice")
	bob := h.JoinedPlayer("bob")

	goblin := h.Spawn("goblin", mgl64.Vec3{4, 0, 0})
	if _, err := h.W.DamageNPC(h.Ctx(alice), goblin.ID, 50); err != nil {
		t.Fatalf("kill: %v", err)
	}
	h.Spawn("dragon", mgl64.Vec3{40, 40, 0})

	if err := h.W.GrantItem(h.Ctx(alice), "bob", "ore_iron", 72); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := h.W.GainSkillExperience(h.Ctx(bob), "smithing", 333); err != nil {
		t.Fatalf("skill: %v", err)
	}
	if _, err := h.W.SendChat(h.Ctx(alice), "global", "the keep has fallen"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if _, err := h.W.SendWhisper(h.Ctx(bob), "alice", "meet me at the gate"); err != nil {
		t.Fatalf("whisper: %v", err)
	}
	if err := h.W.LeaveWorld(h.Ctx(bob)); err != nil {
		t.Fatalf("leave: %v", err)
	}

	snap := h.W.ExportSnapshot(41, h.Now())
	if snap.Header.LastOpSeq != 41 {
		t.Fatalf("header seq = %d", snap.Header.LastOpSeq)
	}
	if snap.Header.Digest != h.W.StateDigest() {
		t.Fatalf("header digest does not match live digest")
	}

	w2 := world.New(h.Cats, h.Tun)
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}

	// Sessions are transient. The source world still holds two and the
	// restored one none, yet the durable state hashes identically.
	if got := len(h.W.SessionIdentities()); got != 2 {
		t.Fatalf("source sessions = %d", got)
	}
	if got := len(w2.SessionIdentities()); got != 0 {
		t.Fatalf("restored sessions = %d", got)
	}
	if w2.StateDigest() != h.W.StateDigest() {
		t.Fatalf("digest changed across roundtrip:\n  %s\n  %s", h.W.StateDigest(), w2.StateDigest())
	}

	inv, err := w2.Inventory(world.Ctx{Caller: bob, Now: h.Now()})
	if err != nil {
		t.Fatalf("restored inventory: %v", err)
	}
	if len(inv) != 2 || inv[0].Quantity != 50 || inv[1].Quantity != 22 {
		t.Fatalf("restored stacks: %+v", inv)
	}

	// The imported corpse keeps its death time, so the respawn timer picks
	// up where the source world left off.
	h.Advance(time.Duration(h.Tun.NPC.RespawnSeconds+1) * time.Second)
	w2.TickNPCs(world.Ctx{Caller: world.Identity("system"), Now: h.Now()})
	n, ok := w2.NPCView(goblin.ID)
	if !ok {
		t.Fatalf("goblin missing after import")
	}
	if n.State != world.StateIdle || n.Health != n.MaxHealth {
		t.Fatalf("goblin after restored respawn: %+v", n)
	}
}

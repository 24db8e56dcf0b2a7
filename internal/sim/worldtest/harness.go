// Package worldtest drives a world through its exported operations the way
// the engine does: every call is stamped from a test-owned clock that only
// moves forward. Tests here stay black-box; anything that needs world
// internals belongs in the world package's own tests.
package worldtest

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"everdusk.gg/internal/sim/catalogs"
	"everdusk.gg/internal/sim/tuning"
	world "everdusk.gg/internal/sim/world"
)

type Harness struct {
	T    *testing.T
	Tun  tuning.Tuning
	Cats *catalogs.Catalogs
	W    *world.World

	now time.Time
}

var harnessEpoch = time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)

func NewHarness(t *testing.T) *Harness {
	return NewHarnessWith(t, tuning.Default())
}

func NewHarnessWith(t *testing.T, tun tuning.Tuning) *Harness {
	t.Helper()
	cats := catalogs.Baseline()
	return &Harness{
		T:    t,
		Tun:  tun,
		Cats: cats,
		W:    world.New(cats, tun),
		now:  harnessEpoch,
	}
}

// Ctx stamps a call for id. The clock advances a millisecond per call so no
// two operations share a timestamp.
func (h *Harness) Ctx(id world.Identity) world.Ctx {
	h.now = h.now.Add(time.Millisecond)
	return world.Ctx{Caller: id, Now: h.now}
}

// Advance moves the harness clock, e.g. across a respawn or inactivity
// window.
func (h *Harness) Advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *Harness) Now() time.Time { return h.now }

// Identity derives the identity the named actor connects with.
func Identity(username string) world.Identity {
	return world.DeriveIdentity(username + "-token")
}

// JoinedPlayer registers, logs in, and enters the world as username.
func (h *Harness) JoinedPlayer(username string) world.Identity {
	h.T.Helper()
	id := Identity(username)
	if err := h.W.Register(h.Ctx(id), username, "hunter2secret", ""); err != nil {
		h.T.Fatalf("register %s: %v", username, err)
	}
	h.LoginAs(id, username)
	if _, err := h.W.JoinWorld(h.Ctx(id), ""); err != nil {
		h.T.Fatalf("join %s: %v", username, err)
	}
	return id
}

// LoginAs opens or re-binds the session of an already registered account.
func (h *Harness) LoginAs(id world.Identity, username string) {
	h.T.Helper()
	if err := h.W.Login(h.Ctx(id), username, "hunter2secret", "worldtest/1", "conn-"+username, "127.0.0.1:9"); err != nil {
		h.T.Fatalf("login %s: %v", username, err)
	}
}

// WalkTo moves a player to target through legal steps.
func (h *Harness) WalkTo(id world.Identity, target mgl64.Vec3) {
	h.T.Helper()
	pos := h.Player(id).Position
	stride := h.Tun.Movement.MaxStep * 0.9
	for {
		delta := target.Sub(pos)
		if delta.Len() <= stride {
			pos = target
		} else {
			pos = pos.Add(delta.Normalize().Mul(stride))
		}
		if err := h.W.UpdatePosition(h.Ctx(id), pos, 0); err != nil {
			h.T.Fatalf("walk to %v: %v", target, err)
		}
		if pos == target {
			return
		}
	}
}

// Spawn places an NPC of kind in the starting zone.
func (h *Harness) Spawn(kind string, pos mgl64.Vec3) world.NPC {
	h.T.Helper()
	n, err := h.W.SpawnNPC(h.Ctx(Identity("gm")), kind, kind, pos, world.DefaultStartingZone)
	if err != nil {
		h.T.Fatalf("spawn %s: %v", kind, err)
	}
	return n
}

// TickBehavior advances one behavior interval and steps every NPC.
func (h *Harness) TickBehavior() {
	h.T.Helper()
	h.Advance(time.Duration(h.Tun.BehaviorTickMs) * time.Millisecond)
	h.W.TickNPCs(h.Ctx(world.Identity("system")))
}

// NPC fetches the current view of an NPC that must exist.
func (h *Harness) NPC(id uint64) world.NPC {
	h.T.Helper()
	n, ok := h.W.NPCView(id)
	if !ok {
		h.T.Fatalf("npc %d not found", id)
	}
	return n
}

// Player fetches the current view of a character that must exist.
func (h *Harness) Player(id world.Identity) world.Player {
	h.T.Helper()
	p, ok := h.W.PlayerView(id)
	if !ok {
		h.T.Fatalf("player %s not found", id)
	}
	return p
}

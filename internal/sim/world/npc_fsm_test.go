package world

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

func tick(t *testing.T, w *World, id uint64, offset time.Duration) NPC {
	t.Helper()
	n, err := w.TickNPC(at("gm", offset), id)
	if err != nil {
		t.Fatalf("tick npc %d: %v", id, err)
	}
	return n
}

func TestFSM_IdleAlone_StartsPatrolling(t *testing.T) {
	w := newTestWorld()
	n := spawn(t, w, "goblin", mgl64.Vec3{12, -7, 3})

	got := tick(t, w, n.ID, 0)
	if got.State != StatePatrolling {
		t.Fatalf("state=%v want patrolling", got.State)
	}
	hop := got.Position.Sub(mgl64.Vec3{12, -7, 3})
	if d := math.Hypot(hop[0], hop[1]); math.Abs(d-w.tun.NPC.PatrolRadius) > 1e-9 {
		t.Fatalf("patrol hop length=%v want %v", d, w.tun.NPC.PatrolRadius)
	}
	if hop[2] != 0 {
		t.Fatalf("patrolling must keep height, moved %v", hop[2])
	}
}

func TestFSM_PatrolHopIsDeterministic(t *testing.T) {
	a := newTestWorld()
	b := newTestWorld()
	na := spawn(t, a, "goblin", mgl64.Vec3{12, -7, 3})
	nb := spawn(t, b, "goblin", mgl64.Vec3{12, -7, 3})

	pa := tick(t, a, na.ID, 0).Position
	pb := tick(t, b, nb.ID, 0).Position
	if pa != pb {
		t.Fatalf("same spot must give the same hop: %v vs %v", pa, pb)
	}
}

func TestFSM_IdleSeesPlayer_AggressionDecides(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	place(t, w, "id-1", mgl64.Vec3{6, 0, 0})

	goblin := spawn(t, w, "goblin", mgl64.Vec3{})
	merchant := spawn(t, w, "merchant", mgl64.Vec3{})

	got := tick(t, w, goblin.ID, 0)
	if got.State != StateChasing {
		t.Fatalf("goblin state=%v want chasing", got.State)
	}
	// Chase steps toward the player by the chase speed, holding height.
	want := mgl64.Vec3{w.tun.NPC.ChaseSpeed, 0, 0}
	if got.Position != want {
		t.Fatalf("goblin moved to %v want %v", got.Position, want)
	}

	got = tick(t, w, merchant.ID, 0)
	if got.State != StateIdle {
		t.Fatalf("merchant state=%v want idle", got.State)
	}
	if got.Position != (mgl64.Vec3{}) {
		t.Fatalf("merchant must not move while idle: %v", got.Position)
	}
}

func TestFSM_PatrollingToChasing_OnlyWhenAggressive(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	place(t, w, "id-1", mgl64.Vec3{4, 0, 0})

	goblin := spawn(t, w, "goblin", mgl64.Vec3{})
	merchant := spawn(t, w, "merchant", mgl64.Vec3{})
	w.npcs[goblin.ID].State = StatePatrolling
	w.npcs[merchant.ID].State = StatePatrolling

	if got := tick(t, w, goblin.ID, 0); got.State != StateChasing {
		t.Fatalf("goblin state=%v want chasing", got.State)
	}
	got := tick(t, w, merchant.ID, 0)
	if got.State != StatePatrolling {
		t.Fatalf("merchant state=%v want patrolling", got.State)
	}
	if got.Position != (mgl64.Vec3{}) {
		t.Fatalf("no state change, no movement: %v", got.Position)
	}
}

func TestFSM_ChasingBecomesAttacking(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	place(t, w, "id-1", mgl64.Vec3{8, 0, 0})

	n := spawn(t, w, "goblin", mgl64.Vec3{})
	w.npcs[n.ID].State = StateChasing

	got := tick(t, w, n.ID, 0)
	if got.State != StateAttacking {
		t.Fatalf("state=%v want attacking", got.State)
	}
	if got.Position != (mgl64.Vec3{2, 0, 0}) {
		t.Fatalf("moved to %v want closing step", got.Position)
	}

	// Attacking with the target still around is a steady state: no movement.
	got = tick(t, w, n.ID, time.Second)
	if got.State != StateAttacking {
		t.Fatalf("state=%v want attacking", got.State)
	}
	if got.Position != (mgl64.Vec3{2, 0, 0}) {
		t.Fatalf("steady attacking must not move: %v", got.Position)
	}
}

func TestFSM_ChaseStepClampsToTarget(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	place(t, w, "id-1", mgl64.Vec3{1, 0, 5})

	n := spawn(t, w, "goblin", mgl64.Vec3{})
	got := tick(t, w, n.ID, 0)
	if got.State != StateChasing {
		t.Fatalf("state=%v want chasing", got.State)
	}
	// The player is 1 apart horizontally; the step stops there instead of
	// overshooting, and the height difference is ignored.
	if got.Position != (mgl64.Vec3{1, 0, 0}) {
		t.Fatalf("moved to %v want %v", got.Position, mgl64.Vec3{1, 0, 0})
	}
}

func TestFSM_ChasesNearestPlayer(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-far", "bob")
	place(t, w, "id-far", mgl64.Vec3{0, 8, 0})
	join(t, w, "id-near", "alice")
	place(t, w, "id-near", mgl64.Vec3{6, 0, 0})

	n := spawn(t, w, "goblin", mgl64.Vec3{})
	got := tick(t, w, n.ID, 0)
	if got.Position != (mgl64.Vec3{2, 0, 0}) {
		t.Fatalf("moved to %v, should close on the nearest player", got.Position)
	}
}

func TestFSM_LowHealthFlees(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	place(t, w, "id-1", mgl64.Vec3{3, 0, 0})

	n := spawn(t, w, "goblin", mgl64.Vec3{})
	w.npcs[n.ID].State = StateAttacking
	w.npcs[n.ID].Health = 9 // under the flee fraction of 50

	got := tick(t, w, n.ID, 0)
	if got.State != StateFleeing {
		t.Fatalf("state=%v want fleeing", got.State)
	}
	if got.Position != (mgl64.Vec3{-w.tun.NPC.FleeSpeed, 0, 0}) {
		t.Fatalf("moved to %v want a step away", got.Position)
	}
}

func TestFSM_FleeThresholdIsStrict(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	place(t, w, "id-1", mgl64.Vec3{3, 0, 0})

	n := spawn(t, w, "goblin", mgl64.Vec3{})
	w.npcs[n.ID].State = StateAttacking
	w.npcs[n.ID].Health = 10 // exactly the flee fraction of 50

	if got := tick(t, w, n.ID, 0); got.State != StateAttacking {
		t.Fatalf("state=%v want attacking at exactly the threshold", got.State)
	}
}

func TestFSM_FleeingCalmsDownAlone(t *testing.T) {
	w := newTestWorld()
	n := spawn(t, w, "goblin", mgl64.Vec3{4, 4, 0})
	w.npcs[n.ID].State = StateFleeing
	w.npcs[n.ID].Health = 5

	got := tick(t, w, n.ID, 0)
	if got.State != StateIdle {
		t.Fatalf("state=%v want idle", got.State)
	}
	if got.Position != (mgl64.Vec3{4, 4, 0}) {
		t.Fatalf("calming down must not move: %v", got.Position)
	}
}

func TestFSM_ChasingLosesTarget(t *testing.T) {
	w := newTestWorld()
	n := spawn(t, w, "goblin", mgl64.Vec3{})
	w.npcs[n.ID].State = StateChasing

	if got := tick(t, w, n.ID, 0); got.State != StateIdle {
		t.Fatalf("state=%v want idle with nobody around", got.State)
	}
}

func TestFSM_PerceptionIsThreeDimensional(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")

	// 11 up: out of the 10 radius even though horizontally on top.
	place(t, w, "id-1", mgl64.Vec3{0, 0, 11})
	n := spawn(t, w, "goblin", mgl64.Vec3{})
	if got := tick(t, w, n.ID, 0); got.State != StatePatrolling {
		t.Fatalf("state=%v want patrolling, player out of range", got.State)
	}

	// 6-8-10 triangle: exactly on the perception sphere.
	place(t, w, "id-1", mgl64.Vec3{0, 6, 8})
	m := spawn(t, w, "goblin", mgl64.Vec3{})
	if got := tick(t, w, m.ID, 0); got.State != StateChasing {
		t.Fatalf("state=%v want chasing at the perception edge", got.State)
	}
}

func TestFSM_OfflinePlayersAreInvisible(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	place(t, w, "id-1", mgl64.Vec3{2, 0, 0})
	if err := w.LeaveWorld(at("id-1", 0)); err != nil {
		t.Fatalf("leave: %v", err)
	}

	n := spawn(t, w, "goblin", mgl64.Vec3{})
	if got := tick(t, w, n.ID, 0); got.State != StatePatrolling {
		t.Fatalf("state=%v want patrolling, offline players are invisible", got.State)
	}
}

func TestFSM_ZeroHealthGuardMarksDead(t *testing.T) {
	w := newTestWorld()
	n := spawn(t, w, "goblin", mgl64.Vec3{})
	w.npcs[n.ID].Health = 0

	got := tick(t, w, n.ID, time.Minute)
	if got.State != StateDead {
		t.Fatalf("state=%v want dead", got.State)
	}
	if !got.DiedAt.Equal(testEpoch.Add(time.Minute)) {
		t.Fatalf("died at=%v", got.DiedAt)
	}

	// The guard must not reset an existing death time on later ticks.
	got = tick(t, w, n.ID, time.Minute+time.Second)
	if !got.DiedAt.Equal(testEpoch.Add(time.Minute)) {
		t.Fatalf("died at=%v, must keep the original death time", got.DiedAt)
	}
}

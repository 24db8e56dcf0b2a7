package world

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

func TestSpawnNPC_TakesStatsFromCatalog(t *testing.T) {
	w := newTestWorld()
	cases := []struct {
		kind   string
		wantHP float64
	}{
		{"goblin", 50},
		{"orc", 100},
		{"dragon", 1000},
		{"merchant", 100},
		{"slime", 50}, // not in the catalog, default health
	}
	for _, tc := range cases {
		n := spawn(t, w, tc.kind, mgl64.Vec3{})
		if n.Health != tc.wantHP || n.MaxHealth != tc.wantHP {
			t.Fatalf("%s health=%v/%v want %v", tc.kind, n.Health, n.MaxHealth, tc.wantHP)
		}
		if n.State != StateIdle {
			t.Fatalf("%s spawn state=%v want idle", tc.kind, n.State)
		}
		if !n.DiedAt.IsZero() {
			t.Fatalf("%s spawned with a death time", tc.kind)
		}
	}
	if got := len(w.NPCIDs()); got != len(cases) {
		t.Fatalf("npcs=%d want %d", got, len(cases))
	}
}

func TestSpawnNPC_Validation(t *testing.T) {
	w := newTestWorld()

	_, err := w.SpawnNPC(at("gm", 0), "  ", "goblin", mgl64.Vec3{}, "default")
	wantErr(t, err, KindValidation, "NPC name cannot be empty")

	_, err = w.SpawnNPC(at("gm", 0), "Grik", "", mgl64.Vec3{}, "default")
	wantErr(t, err, KindValidation, "NPC kind cannot be empty")

	_, err = w.SpawnNPC(at("gm", 0), "Grik", "goblin", mgl64.Vec3{}, "")
	wantErr(t, err, KindValidation, "Invalid zone")

	_, err = w.SpawnNPC(at("gm", 0), "Grik", "goblin", mgl64.Vec3{math.NaN(), 0, 0}, "default")
	wantErr(t, err, KindValidation, "Invalid position coordinates")

	_, err = w.SpawnNPC(at("gm", 0), "Grik", "goblin", mgl64.Vec3{0, 0, 20000}, "default")
	wantErr(t, err, KindValidation, "Position outside world bounds")
}

func TestDamageNPC_ErrorOrder(t *testing.T) {
	w := newTestWorld()
	n := spawn(t, w, "orc", mgl64.Vec3{})

	_, err := w.DamageNPC(at("id-1", 0), n.ID, 10)
	wantErr(t, err, KindNotFound, "Player not found")

	join(t, w, "id-1", "alice")
	if err := w.LeaveWorld(at("id-1", 0)); err != nil {
		t.Fatalf("leave: %v", err)
	}
	_, err = w.DamageNPC(at("id-1", 0), n.ID, 10)
	wantErr(t, err, KindPermission, "Must be online to attack")

	if _, err := w.JoinWorld(at("id-1", 0), ""); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	_, err = w.DamageNPC(at("id-1", 0), 999999, 10)
	wantErr(t, err, KindNotFound, "NPC not found")

	_, err = w.DamageNPC(at("id-1", 0), n.ID, 0)
	wantErr(t, err, KindValidation, "Invalid damage amount")
	_, err = w.DamageNPC(at("id-1", 0), n.ID, math.NaN())
	wantErr(t, err, KindValidation, "Invalid damage amount")
	_, err = w.DamageNPC(at("id-1", 0), n.ID, math.Inf(1))
	wantErr(t, err, KindValidation, "Invalid damage amount")

	place(t, w, "id-1", mgl64.Vec3{10, 0, 0})
	_, err = w.DamageNPC(at("id-1", 0), n.ID, 10)
	wantErr(t, err, KindValidation, "Too far away to attack")
}

func TestDamageNPC_AttackRangeIsThreeDimensional(t *testing.T) {
	w := newTestWorld()
	n := spawn(t, w, "orc", mgl64.Vec3{})
	join(t, w, "id-1", "alice")

	place(t, w, "id-1", mgl64.Vec3{3, 0, 5})
	_, err := w.DamageNPC(at("id-1", 0), n.ID, 10)
	wantErr(t, err, KindValidation, "Too far away to attack")

	place(t, w, "id-1", mgl64.Vec3{3, 0, 4})
	if _, err := w.DamageNPC(at("id-1", 0), n.ID, 10); err != nil {
		t.Fatalf("attack at range 5: %v", err)
	}
}

func TestDamageNPC_KillClampsAndRecordsDeath(t *testing.T) {
	w := newTestWorld()
	n := spawn(t, w, "goblin", mgl64.Vec3{1, 0, 0})
	join(t, w, "id-1", "alice")

	got, err := w.DamageNPC(at("id-1", time.Minute), n.ID, 80)
	if err != nil {
		t.Fatalf("damage: %v", err)
	}
	if got.Health != 0 {
		t.Fatalf("health=%v want 0", got.Health)
	}
	if got.State != StateDead {
		t.Fatalf("state=%v want dead", got.State)
	}
	if !got.DiedAt.Equal(testEpoch.Add(time.Minute)) {
		t.Fatalf("died at=%v", got.DiedAt)
	}

	_, err = w.DamageNPC(at("id-1", time.Minute), n.ID, 10)
	wantErr(t, err, KindState, "NPC is already dead")
}

func TestDamageNPC_ProvokesIdleNPC(t *testing.T) {
	w := newTestWorld()
	n := spawn(t, w, "merchant", mgl64.Vec3{1, 0, 0})
	join(t, w, "id-1", "alice")

	got, err := w.DamageNPC(at("id-1", 0), n.ID, 10)
	if err != nil {
		t.Fatalf("damage: %v", err)
	}
	if got.State != StateChasing {
		t.Fatalf("state=%v want chasing after a surviving hit", got.State)
	}

	// A hit on an already-alerted NPC leaves its state alone.
	w.npcs[n.ID].State = StateFleeing
	got, err = w.DamageNPC(at("id-1", 0), n.ID, 10)
	if err != nil {
		t.Fatalf("damage: %v", err)
	}
	if got.State != StateFleeing {
		t.Fatalf("state=%v want fleeing", got.State)
	}
}

func TestNPC_RespawnsAfterTimer(t *testing.T) {
	w := newTestWorld()
	n := spawn(t, w, "goblin", mgl64.Vec3{7, -3, 2})
	join(t, w, "id-1", "alice")
	place(t, w, "id-1", mgl64.Vec3{7, -2, 2})

	if _, err := w.DamageNPC(at("id-1", 0), n.ID, 999); err != nil {
		t.Fatalf("kill: %v", err)
	}

	// Still waiting one second short of the timer.
	got, err := w.TickNPC(at("gm", 29*time.Second), n.ID)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got.State != StateDead {
		t.Fatalf("state=%v want dead before the timer", got.State)
	}

	got, err = w.TickNPC(at("gm", 30*time.Second), n.ID)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got.State != StateIdle {
		t.Fatalf("state=%v want idle on respawn", got.State)
	}
	if got.Health != got.MaxHealth {
		t.Fatalf("health=%v want full on respawn", got.Health)
	}
	if !got.DiedAt.IsZero() {
		t.Fatalf("death time should clear on respawn")
	}
	if got.Position != (mgl64.Vec3{7, -3, 2}) {
		t.Fatalf("respawn must not move the body: %v", got.Position)
	}
}

func TestTickNPC_UnknownID(t *testing.T) {
	w := newTestWorld()
	_, err := w.TickNPC(at("gm", 0), 42)
	wantErr(t, err, KindNotFound, "NPC not found")
}

func TestTickNPCs_AdvancesEveryNPC(t *testing.T) {
	w := newTestWorld()
	spawn(t, w, "goblin", mgl64.Vec3{0, 0, 0})
	spawn(t, w, "orc", mgl64.Vec3{100, 0, 0})
	spawn(t, w, "merchant", mgl64.Vec3{200, 0, 0})

	if got := w.TickNPCs(at("gm", time.Second)); got != 3 {
		t.Fatalf("ticked=%d want 3", got)
	}
	// Nobody is around, so everyone starts patrolling.
	for _, id := range w.NPCIDs() {
		n, _ := w.NPCView(id)
		if n.State != StatePatrolling {
			t.Fatalf("npc %d state=%v want patrolling", id, n.State)
		}
	}
}

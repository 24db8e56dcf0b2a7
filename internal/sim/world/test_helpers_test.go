package world

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"everdusk.gg/internal/sim/catalogs"
	"everdusk.gg/internal/sim/tuning"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestWorld() *World {
	return New(catalogs.Baseline(), tuning.Default())
}

func at(id Identity, offset time.Duration) Ctx {
	return Ctx{Caller: id, Now: testEpoch.Add(offset)}
}

func register(t *testing.T, w *World, id Identity, username string) {
	t.Helper()
	if err := w.Register(at(id, 0), username, "password123", ""); err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
}

func login(t *testing.T, w *World, id Identity, username string) {
	t.Helper()
	if err := w.Login(at(id, 0), username, "password123", "1.0", "conn-"+username, "127.0.0.1:50000"); err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
}

func join(t *testing.T, w *World, id Identity, username string) Player {
	t.Helper()
	register(t, w, id, username)
	login(t, w, id, username)
	p, err := w.JoinWorld(at(id, 0), "")
	if err != nil {
		t.Fatalf("join %s: %v", username, err)
	}
	return p
}

func place(t *testing.T, w *World, id Identity, pos mgl64.Vec3) {
	t.Helper()
	p, ok := w.players[id]
	if !ok {
		t.Fatalf("no player for %s", id)
	}
	p.Position = pos
}

func spawn(t *testing.T, w *World, kind string, pos mgl64.Vec3) NPC {
	t.Helper()
	n, err := w.SpawnNPC(at("gm", 0), kind, kind, pos, DefaultStartingZone)
	if err != nil {
		t.Fatalf("spawn %s: %v", kind, err)
	}
	return n
}

func wantErr(t *testing.T, err error, kind ErrorKind, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", msg)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("error kind=%v want %v (err=%v)", got, kind, err)
	}
	if err.Error() != msg {
		t.Fatalf("error=%q want %q", err.Error(), msg)
	}
}

package worldtest

import (
	"testing"
	"time"

	world "everdusk.gg/internal/sim/world"
)

func TestInactiveSessionSweep(t *testing.T) {
	h := NewHarness(t)
	alice := h.JoinedPlayer("alice")
	bob := h.JoinedPlayer("bob")

	// Alice keeps heartbeating across four windows while bob goes quiet.
	idle := time.Duration(h.Tun.Sessions.InactivitySeconds) * time.Second
	for i := 0; i < 4; i++ {
		h.Advance(idle / 3)
		if err := h.W.Heartbeat(h.Ctx(alice)); err != nil {
			t.Fatalf("heartbeat %d: %v", i, err)
		}
	}

	removed := h.W.CleanupInactiveSessions(h.Ctx(world.Identity("system")))
	if len(removed) != 1 || removed[0] != bob {
		t.Fatalf("swept %v", removed)
	}

	if _, ok := h.W.SessionView(bob); ok {
		t.Fatalf("bob's session survived the sweep")
	}
	if h.Player(bob).Online {
		t.Fatalf("bob still online after sweep")
	}
	if _, ok := h.W.SessionView(alice); !ok {
		t.Fatalf("alice's session was swept")
	}
	if !h.Player(alice).Online {
		t.Fatalf("alice knocked offline by sweep")
	}

	// The swept session is really gone.
	if err := h.W.Heartbeat(h.Ctx(bob)); world.KindOf(err) != world.KindNotFound {
		t.Fatalf("heartbeat after sweep: %v", err)
	}
}

func TestDisconnectClosesOnlyItsOwnSession(t *testing.T) {
	h := NewHarness(t)
	alice := h.JoinedPlayer("alice")

	// A newer login re-binds the session to a new connection; the old
	// connection's teardown must not kill it.
	if err := h.W.Login(h.Ctx(alice), "alice", "hunter2secret", "worldtest/1", "conn-alice-2", "127.0.0.1:9"); err != nil {
		t.Fatalf("relogin: %v", err)
	}
	if err := h.W.Disconnect(h.Ctx(alice), "conn-alice"); err != nil {
		t.Fatalf("stale disconnect: %v", err)
	}
	if _, ok := h.W.SessionView(alice); !ok {
		t.Fatalf("stale disconnect killed the re-bound session")
	}

	// The current connection's teardown ends the session and the character
	// goes offline with it.
	if err := h.W.Disconnect(h.Ctx(alice), "conn-alice-2"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, ok := h.W.SessionView(alice); ok {
		t.Fatalf("session survived its own disconnect")
	}
	if h.Player(alice).Online {
		t.Fatalf("character online after disconnect")
	}
}

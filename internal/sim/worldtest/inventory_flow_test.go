package worldtest

import (
	"testing"

	world "everdusk.gg/internal/sim/world"
)

func grant(t *testing.T, h *Harness, to, item string, qty int) {
	t.Helper()
	if err := h.W.GrantItem(h.Ctx(Identity("gm")), to, item, qty); err != nil {
		t.Fatalf("grant %d %s to %s: %v", qty, item, to, err)
	}
}

func slots(t *testing.T, h *Harness, id world.Identity) []world.InventorySlot {
	t.Helper()
	inv, err := h.W.Inventory(h.Ctx(id))
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	return inv
}

func TestLootStacksAndDrains(t *testing.T) {
	h := NewHarness(t)
	alice := h.JoinedPlayer("alice")

	// 60 ore against a stack size of 50 fills one stack and opens a second.
	grant(t, h, "alice", "ore_iron", 60)
	inv := slots(t, h, alice)
	if len(inv) != 2 || inv[0].Quantity != 50 || inv[1].Quantity != 10 {
		t.Fatalf("after 60 ore: %+v", inv)
	}
	if inv[0].Slot != 0 || inv[1].Slot != 1 {
		t.Fatalf("slot order: %+v", inv)
	}

	// More ore tops up the partial stack before opening a new one.
	grant(t, h, "alice", "ore_iron", 30)
	inv = slots(t, h, alice)
	if len(inv) != 2 || inv[1].Quantity != 40 {
		t.Fatalf("after top-up: %+v", inv)
	}

	// Removal drains the lowest slot first and deletes emptied stacks.
	if err := h.W.RemoveItem(h.Ctx(alice), "ore_iron", 55); err != nil {
		t.Fatalf("remove: %v", err)
	}
	inv = slots(t, h, alice)
	if len(inv) != 1 || inv[0].Slot != 1 || inv[0].Quantity != 35 {
		t.Fatalf("after removing 55: %+v", inv)
	}

	// Asking for more than is held fails whole and leaves the stack alone.
	if err := h.W.RemoveItem(h.Ctx(alice), "ore_iron", 36); world.KindOf(err) != world.KindValidation {
		t.Fatalf("oversized removal: %v", err)
	}
	inv = slots(t, h, alice)
	if len(inv) != 1 || inv[0].Quantity != 35 {
		t.Fatalf("stack after refused removal: %+v", inv)
	}
}

func TestConsumableUseFlow(t *testing.T) {
	h := NewHarness(t)
	alice := h.JoinedPlayer("alice")

	grant(t, h, "alice", "potion_health", 2)
	grant(t, h, "alice", "sword_iron", 1)

	// Healing at full health still consumes the potion but the clamp holds.
	p, err := h.W.UseItem(h.Ctx(alice), "potion_health")
	if err != nil {
		t.Fatalf("use potion: %v", err)
	}
	if p.Health != p.MaxHealth {
		t.Fatalf("health after clamped heal: %v", p.Health)
	}
	inv := slots(t, h, alice)
	if inv[0].ItemID != "potion_health" || inv[0].Quantity != 1 {
		t.Fatalf("potion stack after use: %+v", inv)
	}

	// A weapon is not usable this way.
	if _, err := h.W.UseItem(h.Ctx(alice), "sword_iron"); world.KindOf(err) != world.KindState {
		t.Fatalf("using a weapon: %v", err)
	}

	// Using something not held, and granting to nobody, both miss cleanly.
	if _, err := h.W.UseItem(h.Ctx(alice), "food_bread"); world.KindOf(err) != world.KindNotFound {
		t.Fatalf("using unheld item: %v", err)
	}
	if err := h.W.GrantItem(h.Ctx(Identity("gm")), "nobody", "ore_iron", 1); world.KindOf(err) != world.KindNotFound {
		t.Fatalf("grant to unknown player: %v", err)
	}
	if err := h.W.GrantItem(h.Ctx(Identity("gm")), "alice", "wand_of_wonder", 1); world.KindOf(err) != world.KindNotFound {
		t.Fatalf("grant of unknown item: %v", err)
	}
	if err := h.W.GrantItem(h.Ctx(Identity("gm")), "alice", "ore_iron", 0); world.KindOf(err) != world.KindValidation {
		t.Fatalf("grant of zero: %v", err)
	}
}

package world

import (
	"testing"
	"time"

	"everdusk.gg/internal/sim/catalogs"
	"everdusk.gg/internal/sim/tuning"
)

func grant(t *testing.T, w *World, username, itemID string, qty int) {
	t.Helper()
	if err := w.GrantItem(at("gm", 0), username, itemID, qty); err != nil {
		t.Fatalf("grant %d %s to %s: %v", qty, itemID, username, err)
	}
}

func slotsOf(t *testing.T, w *World, id Identity) []InventorySlot {
	t.Helper()
	inv, err := w.Inventory(at(id, 0))
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	return inv
}

func wantSlots(t *testing.T, got, want []InventorySlot) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("slots=%+v want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot %d=%+v want %+v", i, got[i], want[i])
		}
	}
}

func TestGrantItem_StacksThenOpensLowestSlots(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")

	// potion_health stacks to 10.
	grant(t, w, "alice", "potion_health", 25)
	wantSlots(t, slotsOf(t, w, "id-1"), []InventorySlot{
		{0, "potion_health", 10},
		{1, "potion_health", 10},
		{2, "potion_health", 5},
	})

	// A further grant tops up the partial stack before opening a new one.
	grant(t, w, "alice", "potion_health", 7)
	wantSlots(t, slotsOf(t, w, "id-1"), []InventorySlot{
		{0, "potion_health", 10},
		{1, "potion_health", 10},
		{2, "potion_health", 10},
		{3, "potion_health", 2},
	})
}

func TestGrantItem_OverflowSplitsIntoNewSlot(t *testing.T) {
	cats := catalogs.Baseline()
	cats.Items.Defs["bolt_crude"] = catalogs.ItemDef{
		ID: "bolt_crude", Name: "Crude Bolt", Kind: "material", MaxStack: 5, Value: 1}
	w := New(cats, tuning.Default())
	join(t, w, "id-1", "alice")

	grant(t, w, "alice", "bolt_crude", 7)
	wantSlots(t, slotsOf(t, w, "id-1"), []InventorySlot{
		{0, "bolt_crude", 5},
		{1, "bolt_crude", 2},
	})
}

func TestGrantItem_MergeBelowMaxOpensNoSlot(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")

	grant(t, w, "alice", "potion_health", 4)
	grant(t, w, "alice", "potion_health", 3)
	wantSlots(t, slotsOf(t, w, "id-1"), []InventorySlot{
		{0, "potion_health", 7},
	})
}

func TestGrantItem_FillsFreedSlotFirst(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")

	grant(t, w, "alice", "sword_iron", 3) // max stack 1: slots 0, 1, 2
	delete(w.slots["id-1"], 1)

	grant(t, w, "alice", "sword_iron", 1)
	wantSlots(t, slotsOf(t, w, "id-1"), []InventorySlot{
		{0, "sword_iron", 1},
		{1, "sword_iron", 1},
		{2, "sword_iron", 1},
	})
}

func TestGrantItem_FullInventoryLeavesStateUntouched(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")

	// Slot 0 holds a partial potion stack; swords brick every other slot.
	grant(t, w, "alice", "potion_health", 9)
	grant(t, w, "alice", "sword_iron", maxInventorySlot)

	before := slotsOf(t, w, "id-1")
	if len(before) != maxInventorySlot+1 {
		t.Fatalf("setup: slots=%d want %d", len(before), maxInventorySlot+1)
	}

	// One potion would merge, but the second needs a free slot that does not
	// exist. Nothing may land.
	err := w.GrantItem(at("gm", 0), "alice", "potion_health", 2)
	wantErr(t, err, KindCapacity, "Inventory is full")
	wantSlots(t, slotsOf(t, w, "id-1"), before)
}

func TestGrantItem_Validation(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")

	err := w.GrantItem(at("gm", 0), "alice", "potion_health", 0)
	wantErr(t, err, KindValidation, "Invalid quantity")

	err = w.GrantItem(at("gm", 0), "alice", "no_such_item", 1)
	wantErr(t, err, KindNotFound, "Item not found")

	err = w.GrantItem(at("gm", 0), "nobody", "potion_health", 1)
	wantErr(t, err, KindNotFound, "Player not found")
}

func TestRemoveItem_DrainsLowestSlotsFirst(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	grant(t, w, "alice", "potion_health", 25) // 10, 10, 5

	if err := w.RemoveItem(at("id-1", 0), "potion_health", 12); err != nil {
		t.Fatalf("remove: %v", err)
	}
	wantSlots(t, slotsOf(t, w, "id-1"), []InventorySlot{
		{1, "potion_health", 8},
		{2, "potion_health", 5},
	})
}

func TestRemoveItem_SkipsOtherItems(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	grant(t, w, "alice", "sword_iron", 1)  // slot 0
	grant(t, w, "alice", "ore_iron", 60)   // slots 1 (50) and 2 (10)

	if err := w.RemoveItem(at("id-1", 0), "ore_iron", 55); err != nil {
		t.Fatalf("remove: %v", err)
	}
	wantSlots(t, slotsOf(t, w, "id-1"), []InventorySlot{
		{0, "sword_iron", 1},
		{2, "ore_iron", 5},
	})
}

func TestRemoveItem_Errors(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	grant(t, w, "alice", "potion_health", 5)

	err := w.RemoveItem(at("id-1", 0), "sword_iron", 1)
	wantErr(t, err, KindNotFound, "Item not found in inventory")

	err = w.RemoveItem(at("id-1", 0), "potion_health", 6)
	wantErr(t, err, KindValidation, "Not enough items in inventory")
	wantSlots(t, slotsOf(t, w, "id-1"), []InventorySlot{{0, "potion_health", 5}})

	err = w.RemoveItem(at("id-1", 0), "potion_health", 0)
	wantErr(t, err, KindValidation, "Invalid quantity")

	err = w.RemoveItem(at("id-2", 0), "potion_health", 1)
	wantErr(t, err, KindNotFound, "Player not found")
}

func TestUseItem_HealsAndConsumes(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	grant(t, w, "alice", "potion_health", 2)
	w.players["id-1"].Health = 40

	p, err := w.UseItem(at("id-1", 0), "potion_health")
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if p.Health != 90 {
		t.Fatalf("health=%v want 90", p.Health)
	}

	// Healing clamps at max health.
	p, err = w.UseItem(at("id-1", time.Second), "potion_health")
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if p.Health != 100 {
		t.Fatalf("health=%v want 100", p.Health)
	}
	if got := slotsOf(t, w, "id-1"); len(got) != 0 {
		t.Fatalf("slots=%+v want empty after the last potion", got)
	}

	_, err = w.UseItem(at("id-1", 2*time.Second), "potion_health")
	wantErr(t, err, KindNotFound, "Item not found in inventory")
}

func TestUseItem_RejectsNonConsumables(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	grant(t, w, "alice", "sword_iron", 1)

	_, err := w.UseItem(at("id-1", 0), "sword_iron")
	wantErr(t, err, KindState, "This item cannot be used")

	_, err = w.UseItem(at("id-1", 0), "no_such_item")
	wantErr(t, err, KindNotFound, "Item not found")

	_, err = w.UseItem(at("id-2", 0), "potion_health")
	wantErr(t, err, KindNotFound, "Player not found")
}

func TestInventory_ListsSlotsInOrder(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")
	grant(t, w, "alice", "sword_iron", 2)
	grant(t, w, "alice", "food_bread", 3)

	wantSlots(t, slotsOf(t, w, "id-1"), []InventorySlot{
		{0, "sword_iron", 1},
		{1, "sword_iron", 1},
		{2, "food_bread", 3},
	})

	_, err := w.Inventory(at("id-9", 0))
	wantErr(t, err, KindNotFound, "Player not found")
}

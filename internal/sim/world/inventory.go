package world

import (
	"math"
	"sort"

	"everdusk.gg/internal/sim/catalogs"
)

// maxInventorySlot is the highest usable slot index; slots run 0 through
// maxInventorySlot inclusive.
const maxInventorySlot = 100

func sortedSlots(inv map[int]*InventorySlot) []int {
	out := make([]int, 0, len(inv))
	for s := range inv {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

// GrantItem places quantity of an item into a player's inventory, targeted by
// username. The whole amount lands or nothing changes.
func (w *World) GrantItem(ctx Ctx, targetUsername, itemID string, quantity int) error {
	if quantity < 1 {
		return Validationf("Invalid quantity")
	}
	item, ok := w.cats.Items.Item(itemID)
	if !ok {
		return NotFoundf("Item not found")
	}
	var target *Player
	if id, ok := w.byName[targetUsername]; ok {
		target = w.players[id]
	}
	if target == nil {
		return NotFoundf("Player not found")
	}
	return w.addItem(target.Identity, item, quantity)
}

// addItem merges quantity into existing stacks of the item lowest slot first,
// then opens new stacks in the lowest free slots. The plan is computed in
// full before any stack changes, so a failed grant leaves the inventory
// untouched.
func (w *World) addItem(owner Identity, item catalogs.ItemDef, quantity int) error {
	inv := w.slots[owner]

	type merge struct {
		slot int
		add  int
	}
	var merges []merge
	remaining := quantity
	for _, slot := range sortedSlots(inv) {
		st := inv[slot]
		if st.ItemID != item.ID || st.Quantity >= item.MaxStack {
			continue
		}
		take := min(item.MaxStack-st.Quantity, remaining)
		merges = append(merges, merge{slot, take})
		remaining -= take
		if remaining == 0 {
			break
		}
	}

	var opens []InventorySlot
	if remaining > 0 {
		used := make(map[int]bool, len(inv))
		for s := range inv {
			used[s] = true
		}
		slot := 0
		for remaining > 0 {
			for slot <= maxInventorySlot && used[slot] {
				slot++
			}
			if slot > maxInventorySlot {
				return Capacityf("Inventory is full")
			}
			take := min(item.MaxStack, remaining)
			opens = append(opens, InventorySlot{Slot: slot, ItemID: item.ID, Quantity: take})
			used[slot] = true
			remaining -= take
		}
	}

	if inv == nil {
		inv = map[int]*InventorySlot{}
		w.slots[owner] = inv
	}
	for _, m := range merges {
		inv[m.slot].Quantity += m.add
	}
	for _, o := range opens {
		o := o
		inv[o.Slot] = &o
	}
	return nil
}

// RemoveItem consumes quantity of an item from the caller's inventory,
// draining stacks lowest slot first and deleting stacks that hit zero.
func (w *World) RemoveItem(ctx Ctx, itemID string, quantity int) error {
	if _, ok := w.players[ctx.Caller]; !ok {
		return NotFoundf("Player not found")
	}
	if quantity < 1 {
		return Validationf("Invalid quantity")
	}
	return w.removeItem(ctx.Caller, itemID, quantity)
}

func (w *World) removeItem(owner Identity, itemID string, quantity int) error {
	inv := w.slots[owner]
	have := 0
	var holding []int
	for _, slot := range sortedSlots(inv) {
		if inv[slot].ItemID == itemID {
			holding = append(holding, slot)
			have += inv[slot].Quantity
		}
	}
	if len(holding) == 0 {
		return NotFoundf("Item not found in inventory")
	}
	if have < quantity {
		return Validationf("Not enough items in inventory")
	}

	remaining := quantity
	for _, slot := range holding {
		st := inv[slot]
		take := min(st.Quantity, remaining)
		st.Quantity -= take
		remaining -= take
		if st.Quantity == 0 {
			delete(inv, slot)
		}
		if remaining == 0 {
			break
		}
	}
	return nil
}

// UseItem consumes one unit of a consumable and applies its effect. Healing
// never pushes health past the maximum.
func (w *World) UseItem(ctx Ctx, itemID string) (Player, error) {
	p, ok := w.players[ctx.Caller]
	if !ok {
		return Player{}, NotFoundf("Player not found")
	}
	item, ok := w.cats.Items.Item(itemID)
	if !ok {
		return Player{}, NotFoundf("Item not found")
	}
	if !w.hasItem(ctx.Caller, itemID) {
		return Player{}, NotFoundf("Item not found in inventory")
	}
	if item.Kind != "consumable" {
		return Player{}, Statef("This item cannot be used")
	}
	if err := w.removeItem(ctx.Caller, itemID, 1); err != nil {
		return Player{}, err
	}
	if heal := item.Properties.HealAmount; heal > 0 {
		p.Health = math.Min(p.Health+heal, p.MaxHealth)
	}
	return *p, nil
}

func (w *World) hasItem(owner Identity, itemID string) bool {
	for _, st := range w.slots[owner] {
		if st.ItemID == itemID {
			return true
		}
	}
	return false
}

// Inventory lists the caller's stacks in slot order.
func (w *World) Inventory(ctx Ctx) ([]InventorySlot, error) {
	if _, ok := w.players[ctx.Caller]; !ok {
		return nil, NotFoundf("Player not found")
	}
	inv := w.slots[ctx.Caller]
	out := make([]InventorySlot, 0, len(inv))
	for _, slot := range sortedSlots(inv) {
		out = append(out, *inv[slot])
	}
	return out, nil
}

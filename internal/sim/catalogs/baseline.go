package catalogs

import "encoding/json"

// Baseline returns the stock catalogs without touching the filesystem. It
// mirrors configs/items.json and configs/npcs.json and exists so tests and
// tools can build a world without a config directory.
func Baseline() *Catalogs {
	items := []ItemDef{
		{ID: "sword_iron", Name: "Iron Sword", Kind: "weapon", Description: "A sturdy iron sword",
			MaxStack: 1, Value: 100, Properties: ItemProperties{Damage: 25, Durability: 100}},
		{ID: "potion_health", Name: "Health Potion", Kind: "consumable", Description: "Restores 50 health",
			MaxStack: 10, Value: 25, Properties: ItemProperties{HealAmount: 50}},
		{ID: "armor_leather", Name: "Leather Armor", Kind: "armor", Description: "Basic leather protection",
			MaxStack: 1, Value: 50, Properties: ItemProperties{Defense: 10, Durability: 50}},
		{ID: "ore_iron", Name: "Iron Ore", Kind: "material", Description: "Raw iron ore for crafting",
			MaxStack: 50, Value: 10, Properties: ItemProperties{CraftingMaterial: true}},
		{ID: "food_bread", Name: "Bread", Kind: "consumable", Description: "Restores 20 health and reduces hunger",
			MaxStack: 20, Value: 5, Properties: ItemProperties{HealAmount: 20, HungerReduction: 30}},
	}
	npcs := []NPCDef{
		{Kind: "goblin", MaxHealth: 50, Aggressive: true},
		{Kind: "orc", MaxHealth: 100, Aggressive: true},
		{Kind: "dragon", MaxHealth: 1000, Aggressive: true},
		{Kind: "merchant", MaxHealth: 100, Aggressive: false},
	}

	var c Catalogs
	c.Items.Defs = make(map[string]ItemDef, len(items))
	for _, d := range items {
		c.Items.Defs[d.ID] = d
	}
	c.NPCs.Defs = make(map[string]NPCDef, len(npcs))
	for _, d := range npcs {
		c.NPCs.Defs[d.Kind] = d
	}

	itemsRaw, _ := json.Marshal(items)
	npcsRaw, _ := json.Marshal(npcs)
	c.Items.Digest = sha256Hex(itemsRaw)
	c.NPCs.Digest = sha256Hex(npcsRaw)
	return &c
}

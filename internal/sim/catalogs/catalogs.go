package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/items.schema.json
var itemsSchemaSrc string

//go:embed schema/npcs.schema.json
var npcsSchemaSrc string

type Catalogs struct {
	Items ItemCatalog
	NPCs  NPCCatalog
}

type ItemCatalog struct {
	Defs   map[string]ItemDef
	Digest string
}

type ItemDef struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Kind        string         `json:"kind"` // "weapon","consumable","armor","material"
	Description string         `json:"description,omitempty"`
	MaxStack    int            `json:"max_stack"`
	Value       int            `json:"value"`
	Properties  ItemProperties `json:"properties,omitempty"`
}

type ItemProperties struct {
	Damage           float64 `json:"damage,omitempty"`
	Defense          int     `json:"defense,omitempty"`
	Durability       int     `json:"durability,omitempty"`
	HealAmount       float64 `json:"heal_amount,omitempty"`
	HungerReduction  int     `json:"hunger_reduction,omitempty"`
	CraftingMaterial bool    `json:"crafting_material,omitempty"`
}

type NPCCatalog struct {
	Defs   map[string]NPCDef
	Digest string
}

type NPCDef struct {
	Kind       string  `json:"kind"`
	MaxHealth  float64 `json:"max_health"`
	Aggressive bool    `json:"aggressive"`
}

// DefaultNPCHealth is used for kinds spawned without a catalog entry.
const DefaultNPCHealth = 50.0

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadNPCs(filepath.Join(configDir, "npcs.json"), &c.NPCs); err != nil {
		return nil, err
	}

	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func validateAgainst(name, schemaSrc string, raw []byte) error {
	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(name, strings.NewReader(schemaSrc)); err != nil {
		return fmt.Errorf("%s: schema: %w", name, err)
	}
	sch, err := comp.Compile(name)
	if err != nil {
		return fmt.Errorf("%s: schema: %w", name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	if err := validateAgainst("items.json", itemsSchemaSrc, raw); err != nil {
		return err
	}

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("items.json: duplicate id %q", d.ID)
		}
		if d.MaxStack < 1 {
			return fmt.Errorf("items.json: %s: max_stack must be >= 1", d.ID)
		}
		out.Defs[d.ID] = d
	}
	return nil
}

func loadNPCs(path string, out *NPCCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	if err := validateAgainst("npcs.json", npcsSchemaSrc, raw); err != nil {
		return err
	}

	var defs []NPCDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("npcs.json: %w", err)
	}
	out.Defs = map[string]NPCDef{}
	for _, d := range defs {
		if d.Kind == "" {
			return fmt.Errorf("npcs.json: empty kind")
		}
		if _, dup := out.Defs[d.Kind]; dup {
			return fmt.Errorf("npcs.json: duplicate kind %q", d.Kind)
		}
		if d.MaxHealth <= 0 {
			return fmt.Errorf("npcs.json: %s: max_health must be positive", d.Kind)
		}
		out.Defs[d.Kind] = d
	}
	return nil
}

// Item returns the definition for id.
func (c *ItemCatalog) Item(id string) (ItemDef, bool) {
	d, ok := c.Defs[id]
	return d, ok
}

// MaxHealth returns the spawn health for kind, falling back to
// DefaultNPCHealth for kinds without a catalog entry.
func (c *NPCCatalog) MaxHealth(kind string) float64 {
	if d, ok := c.Defs[kind]; ok {
		return d.MaxHealth
	}
	return DefaultNPCHealth
}

// Aggressive reports whether kind chases players on sight. Unknown kinds are
// passive.
func (c *NPCCatalog) Aggressive(kind string) bool {
	if d, ok := c.Defs[kind]; ok {
		return d.Aggressive
	}
	return false
}

package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Attribute keys used across sheets, weapons and techniques.
const (
	AttrVigor         = "vigor"
	AttrAgility       = "agility"
	AttrDiscipline    = "discipline"
	AttrComprehension = "comprehension"
	AttrPresence      = "presence"
)

// AttributeSet holds the five base ability scores.
type AttributeSet struct {
	Vigor         int `json:"vigor"`
	Agility       int `json:"agility"`
	Discipline    int `json:"discipline"`
	Comprehension int `json:"comprehension"`
	Presence      int `json:"presence"`
}

// Get returns the score for an attribute key, 0 for unknown keys.
func (a AttributeSet) Get(key string) int {
	switch key {
	case AttrVigor:
		return a.Vigor
	case AttrAgility:
		return a.Agility
	case AttrDiscipline:
		return a.Discipline
	case AttrComprehension:
		return a.Comprehension
	case AttrPresence:
		return a.Presence
	}
	return 0
}

// Weapon is the equipped weapon slot.
type Weapon struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"` // leve | media | pesada | alcance | exotica
	Damage    string `json:"damage"`   // dice formula, e.g. "1d8+1"
	Attribute string `json:"attribute"`
}

// Armor is the equipped armor slot.
type Armor struct {
	Type string `json:"type"` // none | medium | heavy
	Name string `json:"name"`
}

// Item is a general inventory item.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

// CharacterInventory is the JSON-encoded inventory column.
type CharacterInventory struct {
	Weapon Weapon `json:"weapon"`
	Armor  Armor  `json:"armor"`
	Items  []Item `json:"items"`
	Money  int    `json:"money"`
}

// Technique types.
const (
	TechniqueAttack  = "Ataque"
	TechniqueSupport = "Suporte"
	TechniqueHeal    = "Cura"
)

// Technique is one learned technique on the sheet.
type Technique struct {
	Name      string `json:"name"`
	Type      string `json:"type"` // Ataque | Suporte | Cura
	Effect    string `json:"effect"`
	Attribute string `json:"attribute"`
	Cost      int    `json:"cost"`
}

// LiveStats carries current pools and the manual overrides that take
// precedence over computed maximums. Current HP/Chi are always the stored
// values; only the maximums and AC are ever derived.
type LiveStats struct {
	CurrentHP        int  `json:"current_hp"`
	CurrentChi       int  `json:"current_chi"`
	ManualMaxHP      *int `json:"manual_max_hp,omitempty"`
	ManualMaxChi     *int `json:"manual_max_chi,omitempty"`
	ManualArmorClass *int `json:"manual_armor_class,omitempty"`
}

// Character is a player character or a GM-owned NPC. A player account owns
// at most one non-NPC character.
type Character struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64  `gorm:"index:idx_char_account;not null" json:"account_id"`
	Name      string `gorm:"size:64;not null" json:"name"`
	ImageURL  string `gorm:"size:255" json:"image_url"`

	ClanID       string `gorm:"size:32" json:"clan_id"`
	InnateBodyID string `gorm:"size:32" json:"innate_body_id"`

	Vigor         int `gorm:"default:0" json:"vigor"`
	Agility       int `gorm:"default:0" json:"agility"`
	Discipline    int `gorm:"default:0" json:"discipline"`
	Comprehension int `gorm:"default:0" json:"comprehension"`
	Presence      int `gorm:"default:0" json:"presence"`

	// At most one proficient attribute, empty when none chosen yet.
	ProficientAttribute string `gorm:"size:16" json:"proficient_attribute"`

	// Progression tier indices, monotonically non-decreasing.
	BodyRefinementLevel int `gorm:"default:0" json:"body_refinement_level"`
	CultivationStage    int `gorm:"default:0" json:"cultivation_stage"`
	MasteryLevel        int `gorm:"default:0" json:"mastery_level"`

	Inventory  datatypes.JSON `json:"inventory"`
	Techniques datatypes.JSON `json:"techniques"`
	Stats      datatypes.JSON `json:"stats"`

	IsNPC   bool `gorm:"default:false" json:"is_npc"`
	InScene bool `gorm:"default:false" json:"in_scene"` // NPC visibility in the roster builder

	ActiveCombatID *string `gorm:"size:36;index:idx_char_combat" json:"active_combat_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Attributes returns the five scores as a set.
func (c *Character) Attributes() AttributeSet {
	return AttributeSet{
		Vigor:         c.Vigor,
		Agility:       c.Agility,
		Discipline:    c.Discipline,
		Comprehension: c.Comprehension,
		Presence:      c.Presence,
	}
}

// DecodeInventory unmarshals the inventory column. A missing or malformed
// column yields the zero inventory with armor type "none".
func (c *Character) DecodeInventory() CharacterInventory {
	inv := CharacterInventory{Armor: Armor{Type: "none"}}
	if len(c.Inventory) > 0 {
		_ = json.Unmarshal(c.Inventory, &inv)
	}
	if inv.Armor.Type == "" {
		inv.Armor.Type = "none"
	}
	return inv
}

// EncodeInventory marshals inv into the inventory column.
func (c *Character) EncodeInventory(inv CharacterInventory) {
	raw, _ := json.Marshal(inv)
	c.Inventory = datatypes.JSON(raw)
}

// DecodeTechniques unmarshals the technique list column.
func (c *Character) DecodeTechniques() []Technique {
	var ts []Technique
	if len(c.Techniques) > 0 {
		_ = json.Unmarshal(c.Techniques, &ts)
	}
	return ts
}

// EncodeTechniques marshals ts into the techniques column.
func (c *Character) EncodeTechniques(ts []Technique) {
	raw, _ := json.Marshal(ts)
	c.Techniques = datatypes.JSON(raw)
}

// DecodeStats unmarshals the live stats column.
func (c *Character) DecodeStats() LiveStats {
	var st LiveStats
	if len(c.Stats) > 0 {
		_ = json.Unmarshal(c.Stats, &st)
	}
	return st
}

// EncodeStats marshals st into the stats column.
func (c *Character) EncodeStats(st LiveStats) {
	raw, _ := json.Marshal(st)
	c.Stats = datatypes.JSON(raw)
}

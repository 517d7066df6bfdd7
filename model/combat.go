package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Combat lifecycle statuses. An ended combat has no row at all.
const (
	CombatPendingInitiative = "pending_initiative"
	CombatActive            = "active"
)

// Participant is one snapshotted roster entry in a combat's turn order.
// Initiative stays nil until the player submits (or the GM forces) a roll.
type Participant struct {
	CharacterID int64        `json:"character_id"`
	UserID      int64        `json:"user_id"`
	Name        string       `json:"name"`
	ImageURL    string       `json:"image_url,omitempty"`
	Attributes  AttributeSet `json:"attributes"`
	IsNPC       bool         `json:"is_npc"`
	Initiative  *int         `json:"initiative"`
}

// LogEntry is one roll/action event. Entries are deduplicated by ID across
// optimistic local appends and realtime echoes.
type LogEntry struct {
	ID          int64  `json:"id"` // unix-milli creation time, monotonic per sender
	CharacterID int64  `json:"character_id,omitempty"`
	Message     string `json:"message"`
	Type        string `json:"type"` // info | crit | fail | damage
	Timestamp   string `json:"timestamp"`
	// Carried so a "roll damage" action can be resolved after the fact.
	DamageFormula string `json:"damage_formula,omitempty"`
	DamageBonus   int    `json:"damage_bonus,omitempty"`
	Category      string `json:"category,omitempty"`
}

// Combat is one encounter. The unique index on GMID enforces the
// at-most-one-active-combat-per-GM invariant at the storage layer.
type Combat struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	GMID             int64          `gorm:"uniqueIndex:idx_combat_gm;not null" json:"gm_id"`
	Status           string         `gorm:"size:24;not null" json:"status"`
	TurnOrder        datatypes.JSON `json:"turn_order"`
	CurrentTurnIndex int            `gorm:"default:0" json:"current_turn_index"`
	LastRoll         datatypes.JSON `json:"last_roll"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// DecodeTurnOrder unmarshals the turn order column.
func (cb *Combat) DecodeTurnOrder() []Participant {
	var order []Participant
	if len(cb.TurnOrder) > 0 {
		_ = json.Unmarshal(cb.TurnOrder, &order)
	}
	return order
}

// EncodeTurnOrder marshals order into the turn order column.
func (cb *Combat) EncodeTurnOrder(order []Participant) {
	raw, _ := json.Marshal(order)
	cb.TurnOrder = datatypes.JSON(raw)
}

// DecodeLastRoll unmarshals the single-slot last roll, nil when empty.
func (cb *Combat) DecodeLastRoll() *LogEntry {
	if len(cb.LastRoll) == 0 || string(cb.LastRoll) == "null" {
		return nil
	}
	var e LogEntry
	if err := json.Unmarshal(cb.LastRoll, &e); err != nil {
		return nil
	}
	return &e
}

// EncodeLastRoll marshals e into the last roll slot.
func (cb *Combat) EncodeLastRoll(e *LogEntry) {
	raw, _ := json.Marshal(e)
	cb.LastRoll = datatypes.JSON(raw)
}

// ParticipantIndex returns the index of characterID in order, -1 if absent.
func ParticipantIndex(order []Participant, characterID int64) int {
	for i, p := range order {
		if p.CharacterID == characterID {
			return i
		}
	}
	return -1
}

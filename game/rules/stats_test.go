package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jianghu-companion/server/model"
)

func TestDeriveBaseline(t *testing.T) {
	// No clan, no innate body, tier 0 everywhere, no armor.
	d := Derive(Input{
		Attributes: model.AttributeSet{Vigor: 2, Agility: 3, Discipline: 1},
	})
	// HP: (5+2)*1.0 = 7. Chi: (5+1)*1.0 + 0 = 6. AC: 10+3 = 13.
	assert.Equal(t, 7, d.MaxHP)
	assert.Equal(t, 6, d.MaxChi)
	assert.Equal(t, 13, d.ArmorClass)
}

func TestDeriveClanAndInnateBody(t *testing.T) {
	d := Derive(Input{
		Attributes:          model.AttributeSet{Vigor: 3},
		ClanID:              "punho_ferro", // base HP 8
		InnateBodyID:        "corpo_jade",  // +2 base HP
		BodyRefinementLevel: 2,             // x1.5
	})
	// HP: floor((8+2+3)*1.5) = floor(19.5) = 19.
	assert.Equal(t, 19, d.MaxHP)
}

func TestDeriveInnateMultiplierBonus(t *testing.T) {
	d := Derive(Input{
		Attributes:          model.AttributeSet{Vigor: 1},
		InnateBodyID:        "osso_dragao", // +0.2 refinement multiplier
		BodyRefinementLevel: 1,             // x1.2 → effective 1.4
	})
	// HP: floor((5+1)*1.4) = floor(8.4) = 8.
	assert.Equal(t, 8, d.MaxHP)
}

func TestDeriveChi(t *testing.T) {
	d := Derive(Input{
		Attributes:       model.AttributeSet{Discipline: 4},
		CultivationStage: 2, // x2.0
		MasteryLevel:     3, // +7
	})
	// Chi: floor((5+4)*2.0) + 7 = 25.
	assert.Equal(t, 25, d.MaxChi)
}

func TestDeriveChiFloorsBeforeMastery(t *testing.T) {
	d := Derive(Input{
		Attributes:       model.AttributeSet{Discipline: 2},
		CultivationStage: 1, // x1.5
		MasteryLevel:     1, // +2
	})
	// Chi: floor((5+2)*1.5) + 2 = floor(10.5) + 2 = 12.
	assert.Equal(t, 12, d.MaxChi)
}

func TestDeriveArmor(t *testing.T) {
	in := Input{Attributes: model.AttributeSet{Agility: 4}}

	in.ArmorType = "none"
	assert.Equal(t, 14, Derive(in).ArmorClass) // 10+4

	in.ArmorType = "medium"
	assert.Equal(t, 16, Derive(in).ArmorClass) // 14+4-2

	in.ArmorType = "heavy"
	assert.Equal(t, 16, Derive(in).ArmorClass) // 16+4-4

	in.ArmorType = "unknown"
	assert.Equal(t, 14, Derive(in).ArmorClass) // falls back to 10+agility
}

func TestDeriveManualOverrides(t *testing.T) {
	hp, chi, ac := 99, 88, 77
	d := Derive(Input{
		Attributes: model.AttributeSet{Vigor: 2, Agility: 2, Discipline: 2},
		Manual: model.LiveStats{
			ManualMaxHP:      &hp,
			ManualMaxChi:     &chi,
			ManualArmorClass: &ac,
		},
	})
	assert.Equal(t, 99, d.MaxHP)
	assert.Equal(t, 88, d.MaxChi)
	assert.Equal(t, 77, d.ArmorClass)
}

func TestDeriveUnknownIDsFallBack(t *testing.T) {
	d := Derive(Input{
		Attributes:   model.AttributeSet{Vigor: 1, Discipline: 1, Agility: 1},
		ClanID:       "no_such_clan",
		InnateBodyID: "no_such_body",
	})
	assert.Equal(t, 6, d.MaxHP)  // (5+1)*1.0
	assert.Equal(t, 6, d.MaxChi) // (5+1)*1.0
	assert.Equal(t, 11, d.ArmorClass)
}

func TestDeriveTierOutOfRangeClamps(t *testing.T) {
	d := Derive(Input{
		Attributes:          model.AttributeSet{Vigor: 1},
		BodyRefinementLevel: 99,
		CultivationStage:    -5,
	})
	// Refinement clamps to the top tier (x2.6), cultivation to tier 0.
	assert.Equal(t, 15, d.MaxHP) // floor(6*2.6)
	assert.Equal(t, 5, d.MaxChi) // floor(5*1.0)
}

func TestDeriveCharacter(t *testing.T) {
	c := &model.Character{
		ClanID:              "rocha_negra", // base 7
		Vigor:               2,
		Agility:             1,
		Discipline:          3,
		BodyRefinementLevel: 1, // x1.2
	}
	c.EncodeInventory(model.CharacterInventory{Armor: model.Armor{Type: "medium"}})

	d := DeriveCharacter(c)
	assert.Equal(t, 10, d.MaxHP) // floor((7+2)*1.2)
	assert.Equal(t, 8, d.MaxChi) // (5+3)*1.0
	assert.Equal(t, 13, d.ArmorClass)
}

func TestAttackBonus(t *testing.T) {
	attrs := model.AttributeSet{Agility: 3, Vigor: 2}

	assert.Equal(t, 3, AttackBonus(attrs, "", "agility", true))
	assert.Equal(t, 6, AttackBonus(attrs, "agility", "agility", true))
	assert.Equal(t, 3, AttackBonus(attrs, "agility", "agility", false))
	assert.Equal(t, 2, AttackBonus(attrs, "agility", "vigor", true))
	assert.Equal(t, 0, AttackBonus(attrs, "", "unknown", true))
}

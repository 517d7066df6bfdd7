package rules

import (
	"math"

	"github.com/jianghu-companion/server/model"
)

// Derived holds the computed combat stats. Current HP/Chi are never part of
// this — they are stored values owned by the character record.
type Derived struct {
	MaxHP      int `json:"max_hp"`
	MaxChi     int `json:"max_chi"`
	ArmorClass int `json:"armor_class"`
}

// Input bundles everything the derivation depends on.
type Input struct {
	Attributes          model.AttributeSet
	ClanID              string
	InnateBodyID        string
	BodyRefinementLevel int
	CultivationStage    int
	MasteryLevel        int
	ArmorType           string
	Manual              model.LiveStats
}

// Derive is the single derivation function shared by the character sheet
// and the combat roster so both always show identical numbers.
//
//   - AC: 10 + agility, unless the armor sets a base AC, then
//     baseAC + agility + agilityPenalty.
//   - MaxHP: floor((clanBaseHP + innateHPBonus + vigor) * refinementMult),
//     where refinementMult includes the innate body's multiplier bonus.
//   - MaxChi: floor((5 + discipline) * cultivationMult) + masteryBonus.
//
// A non-nil manual override wins verbatim over the computed value.
func Derive(in Input) Derived {
	attrs := in.Attributes

	baseHP := DefaultBaseHP
	if clan, ok := Clans[in.ClanID]; ok {
		baseHP = clan.BaseHP
	}
	innate := InnateBodies[in.InnateBodyID] // zero value: no bonuses
	baseHP += innate.BaseHPBonus

	refMult := refinementByID(in.BodyRefinementLevel).Multiplier + innate.RefinementMultiplierBonus
	maxHP := int(math.Floor(float64(baseHP+attrs.Vigor) * refMult))

	cultMult := cultivationByID(in.CultivationStage).Multiplier
	maxChi := int(math.Floor(float64(5+attrs.Discipline)*cultMult)) + masteryByID(in.MasteryLevel).Bonus

	ac := 10 + attrs.Agility
	if armor, ok := ArmorTypes[in.ArmorType]; ok && armor.BaseAC > 0 {
		ac = armor.BaseAC + attrs.Agility + armor.AgilityPenalty
	}

	d := Derived{MaxHP: maxHP, MaxChi: maxChi, ArmorClass: ac}
	if in.Manual.ManualMaxHP != nil {
		d.MaxHP = *in.Manual.ManualMaxHP
	}
	if in.Manual.ManualMaxChi != nil {
		d.MaxChi = *in.Manual.ManualMaxChi
	}
	if in.Manual.ManualArmorClass != nil {
		d.ArmorClass = *in.Manual.ManualArmorClass
	}
	return d
}

// DeriveCharacter derives stats straight from a character record.
func DeriveCharacter(c *model.Character) Derived {
	inv := c.DecodeInventory()
	return Derive(Input{
		Attributes:          c.Attributes(),
		ClanID:              c.ClanID,
		InnateBodyID:        c.InnateBodyID,
		BodyRefinementLevel: c.BodyRefinementLevel,
		CultivationStage:    c.CultivationStage,
		MasteryLevel:        c.MasteryLevel,
		ArmorType:           inv.Armor.Type,
		Manual:              c.DecodeStats(),
	})
}

// AttackBonus resolves the attribute bonus for a test or attack roll.
// Proficiency doubles the attack-side bonus only; damage bonuses are never
// doubled (see DESIGN.md for the policy decision).
func AttackBonus(attrs model.AttributeSet, proficientAttribute, attribute string, proficiencyDoubles bool) int {
	bonus := attrs.Get(attribute)
	if proficiencyDoubles && proficientAttribute != "" && proficientAttribute == attribute {
		bonus *= 2
	}
	return bonus
}

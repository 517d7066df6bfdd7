// Package damage resolves weapon and technique damage rolls, applying the
// weapon-class critical multiplier rule.
package damage

import (
	"math/rand"
	"strings"

	"github.com/jianghu-companion/server/game/dice"
)

// Normalized weapon categories for the critical rule.
const (
	CategoryHeavy  = "pesada"
	CategoryLight  = "leve"
	CategoryNormal = "normal"
)

// NormalizeCategory maps free-form category input onto the three classes
// the critical rule distinguishes. Sheets written in Portuguese and English
// coexist at the same table, so both synonym sets are accepted, plus the
// single-letter abbreviations used in older sheets.
func NormalizeCategory(category string) string {
	cat := strings.ToLower(strings.TrimSpace(category))
	switch {
	case cat == "":
		return CategoryNormal
	case cat == "p" || strings.Contains(cat, "pesada") || strings.Contains(cat, "heavy"):
		return CategoryHeavy
	case cat == "l" || strings.Contains(cat, "leve") || strings.Contains(cat, "light"):
		return CategoryLight
	default:
		return CategoryNormal
	}
}

// Result is a resolved damage roll.
type Result struct {
	Total      int   `json:"total"`
	Rolls      []int `json:"rolls"`
	Bonus      int   `json:"bonus"`
	Multiplier int   `json:"multiplier"`
	IsCritical bool  `json:"is_critical"`
}

// Resolve rolls damage for a formula and weapon category. On a critical hit
// heavy weapons triple the dice count, everything else doubles it; the flat
// modifier is never multiplied. attributeBonus is resolved by the caller
// (the resolver never sees the attack roll — critical classification
// belongs to the d20 test). Unparseable formulas fall back per the dice
// engine contract.
func Resolve(rng *rand.Rand, formula, category string, attributeBonus int, isCritical bool) Result {
	f := dice.ParseFormula(formula)

	multiplier := 1
	if isCritical {
		if NormalizeCategory(category) == CategoryHeavy {
			multiplier = 3
		} else {
			multiplier = 2
		}
	}

	count := f.Count * multiplier
	bonus := f.Modifier + attributeBonus

	rolled := dice.Roll(rng, count, f.Faces)
	return Result{
		Total:      rolled.Total + bonus,
		Rolls:      rolled.Rolls,
		Bonus:      bonus,
		Multiplier: multiplier,
		IsCritical: isCritical,
	}
}

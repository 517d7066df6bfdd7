// Package dice parses dice formulas and produces roll outcomes.
package dice

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

// Formula is a parsed dice expression, e.g. "2d8+2" → {2, 8, 2, true}.
// Invalid input parses to the default test die (1d20) with Valid=false;
// callers treat that as "use default", never as an error.
type Formula struct {
	Count    int
	Faces    int
	Modifier int
	Valid    bool
}

var formulaRe = regexp.MustCompile(`^(\d+)d(\d+)([+-]\d+)?$`)

// DefaultFormula is the fallback for unparseable input.
var DefaultFormula = Formula{Count: 1, Faces: 20, Modifier: 0, Valid: false}

// ParseFormula accepts strings matching XdY, XdY+Z or XdY-Z,
// case- and whitespace-insensitive.
func ParseFormula(s string) Formula {
	clean := strings.ToLower(strings.Join(strings.Fields(s), ""))
	m := formulaRe.FindStringSubmatch(clean)
	if m == nil {
		return DefaultFormula
	}
	count, err1 := strconv.Atoi(m[1])
	faces, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return DefaultFormula
	}
	modifier := 0
	if m[3] != "" {
		modifier, _ = strconv.Atoi(m[3])
	}
	return Formula{Count: count, Faces: faces, Modifier: modifier, Valid: true}
}

// RollResult is the outcome of rolling a pool of identical dice.
type RollResult struct {
	Total int   `json:"total"`
	Rolls []int `json:"rolls"`
}

// Roll draws count independent uniform integers in [1, faces].
// count <= 0 yields an empty result; faces < 1 is treated as 1.
func Roll(rng *rand.Rand, count, faces int) RollResult {
	if faces < 1 {
		faces = 1
	}
	res := RollResult{Rolls: make([]int, 0, max(count, 0))}
	for i := 0; i < count; i++ {
		r := rng.Intn(faces) + 1
		res.Rolls = append(res.Rolls, r)
		res.Total += r
	}
	return res
}

// Roll modes for attribute tests.
const (
	ModeNormal       = "normal"
	ModeAdvantage    = "advantage"
	ModeDisadvantage = "disadvantage"
)

// D20Result is a single d20 test roll. Kept is the die that counts;
// Rolls lists every die thrown (two under advantage/disadvantage).
type D20Result struct {
	Kept  int   `json:"kept"`
	Rolls []int `json:"rolls"`
}

// IsCritical reports a natural 20 on the kept die.
func (r D20Result) IsCritical() bool { return r.Kept == 20 }

// IsFumble reports a natural 1 on the kept die.
func (r D20Result) IsFumble() bool { return r.Kept == 1 }

// RollD20 rolls a d20 under the given mode: advantage keeps the higher of
// two dice, disadvantage the lower, anything else a single die.
func RollD20(rng *rand.Rand, mode string) D20Result {
	r1 := rng.Intn(20) + 1
	switch mode {
	case ModeAdvantage:
		r2 := rng.Intn(20) + 1
		return D20Result{Kept: max(r1, r2), Rolls: []int{r1, r2}}
	case ModeDisadvantage:
		r2 := rng.Intn(20) + 1
		return D20Result{Kept: min(r1, r2), Rolls: []int{r1, r2}}
	default:
		return D20Result{Kept: r1, Rolls: []int{r1}}
	}
}

package damage

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(7))
}

func TestNormalizeCategory(t *testing.T) {
	cases := map[string]string{
		"":             CategoryNormal,
		"pesada":       CategoryHeavy,
		"PESADA":       CategoryHeavy,
		"heavy":        CategoryHeavy,
		"arma pesada":  CategoryHeavy,
		"p":            CategoryHeavy,
		"leve":         CategoryLight,
		"light":        CategoryLight,
		"l":            CategoryLight,
		"media":        CategoryNormal,
		"alcance":      CategoryNormal,
		"exotica":      CategoryNormal,
		"  Pesada  ":   CategoryHeavy,
		"some nonsense": CategoryNormal,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeCategory(in), "input %q", in)
	}
}

func TestResolveNormalHit(t *testing.T) {
	res := Resolve(testRNG(), "1d8+1", "media", 2, false)
	require.Len(t, res.Rolls, 1)
	assert.Equal(t, 1, res.Multiplier)
	assert.False(t, res.IsCritical)
	assert.Equal(t, 3, res.Bonus) // formula +1 plus attribute 2
	assert.Equal(t, res.Rolls[0]+3, res.Total)
}

func TestResolveCriticalDoublesDice(t *testing.T) {
	res := Resolve(testRNG(), "2d6", "leve", 1, true)
	require.Len(t, res.Rolls, 4)
	assert.Equal(t, 2, res.Multiplier)
	assert.True(t, res.IsCritical)
}

func TestResolveHeavyCriticalTriplesDice(t *testing.T) {
	res := Resolve(testRNG(), "1d8+2", "pesada", 3, true)
	require.Len(t, res.Rolls, 3)
	assert.Equal(t, 3, res.Multiplier)

	// The flat modifier and attribute bonus are applied once, never
	// multiplied with the dice.
	assert.Equal(t, 5, res.Bonus)
	sum := 0
	for _, r := range res.Rolls {
		sum += r
	}
	assert.Equal(t, sum+5, res.Total)
}

func TestResolveInvalidFormulaFallsBack(t *testing.T) {
	// Unparseable formulas resolve as 1d20 with no modifier.
	res := Resolve(testRNG(), "garbage", "", 0, false)
	require.Len(t, res.Rolls, 1)
	assert.GreaterOrEqual(t, res.Rolls[0], 1)
	assert.LessOrEqual(t, res.Rolls[0], 20)
	assert.Equal(t, res.Rolls[0], res.Total)
}

func TestResolveNegativeModifier(t *testing.T) {
	res := Resolve(testRNG(), "1d4-1", "", 0, false)
	assert.Equal(t, -1, res.Bonus)
	assert.Equal(t, res.Rolls[0]-1, res.Total)
}

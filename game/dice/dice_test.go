package dice

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

func TestParseFormula(t *testing.T) {
	cases := []struct {
		in   string
		want Formula
	}{
		{"1d8", Formula{Count: 1, Faces: 8, Valid: true}},
		{"2d6+3", Formula{Count: 2, Faces: 6, Modifier: 3, Valid: true}},
		{"1d10-2", Formula{Count: 1, Faces: 10, Modifier: -2, Valid: true}},
		{"3D12", Formula{Count: 3, Faces: 12, Valid: true}},
		{" 1 d 20 ", Formula{Count: 1, Faces: 20, Valid: true}},
		{"10d100+99", Formula{Count: 10, Faces: 100, Modifier: 99, Valid: true}},
	}
	for _, tc := range cases {
		got := ParseFormula(tc.in)
		assert.Equal(t, tc.want, got, "formula %q", tc.in)
	}
}

func TestParseFormulaInvalidFallsBack(t *testing.T) {
	for _, in := range []string{"", "oops", "d8", "1d", "2x6", "1d8+", "-1d8"} {
		got := ParseFormula(in)
		assert.Equal(t, DefaultFormula, got, "input %q", in)
		assert.False(t, got.Valid, "input %q", in)
	}
}

func TestRollBounds(t *testing.T) {
	rng := testRNG()
	for i := 0; i < 200; i++ {
		res := Roll(rng, 3, 6)
		require.Len(t, res.Rolls, 3)
		sum := 0
		for _, r := range res.Rolls {
			assert.GreaterOrEqual(t, r, 1)
			assert.LessOrEqual(t, r, 6)
			sum += r
		}
		assert.Equal(t, sum, res.Total)
	}
}

func TestRollZeroCount(t *testing.T) {
	res := Roll(testRNG(), 0, 6)
	assert.Empty(t, res.Rolls)
	assert.Zero(t, res.Total)
}

func TestRollFacesFloor(t *testing.T) {
	res := Roll(testRNG(), 5, 0)
	for _, r := range res.Rolls {
		assert.Equal(t, 1, r)
	}
	assert.Equal(t, 5, res.Total)
}

func TestRollD20Normal(t *testing.T) {
	rng := testRNG()
	for i := 0; i < 100; i++ {
		res := RollD20(rng, ModeNormal)
		require.Len(t, res.Rolls, 1)
		assert.Equal(t, res.Rolls[0], res.Kept)
		assert.GreaterOrEqual(t, res.Kept, 1)
		assert.LessOrEqual(t, res.Kept, 20)
	}
}

func TestRollD20Advantage(t *testing.T) {
	rng := testRNG()
	for i := 0; i < 100; i++ {
		res := RollD20(rng, ModeAdvantage)
		require.Len(t, res.Rolls, 2)
		assert.Equal(t, max(res.Rolls[0], res.Rolls[1]), res.Kept)
	}
}

func TestRollD20Disadvantage(t *testing.T) {
	rng := testRNG()
	for i := 0; i < 100; i++ {
		res := RollD20(rng, ModeDisadvantage)
		require.Len(t, res.Rolls, 2)
		assert.Equal(t, min(res.Rolls[0], res.Rolls[1]), res.Kept)
	}
}

func TestD20Classification(t *testing.T) {
	assert.True(t, D20Result{Kept: 20}.IsCritical())
	assert.False(t, D20Result{Kept: 19}.IsCritical())
	assert.True(t, D20Result{Kept: 1}.IsFumble())
	assert.False(t, D20Result{Kept: 2}.IsFumble())
}

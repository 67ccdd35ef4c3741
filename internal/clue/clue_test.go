package clue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func repeat(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestEmptyIsInsufficient(t *testing.T) {
	c := NewWilson().Estimate(nil)
	assert.Equal(t, SampleBelow, c.SampleSize)
	assert.Equal(t, 0.5, c.Value)
	assert.Equal(t, 0.0, c.Left)
	assert.Equal(t, 1.0, c.Right)
	assert.Equal(t, ConfidenceBad, c.Confidence)
}

func TestAllCorrectLargeSample(t *testing.T) {
	c := NewWilson().Estimate(repeat(true, 100))
	assert.InDelta(t, 1.0, c.Value, 0.02)
	assert.Less(t, c.Right-c.Left, 0.05)
	assert.InDelta(t, 1.0, c.Right, 1e-9)
	assert.Equal(t, LevelHigh, c.Level)
	assert.Equal(t, ConfidenceGood, c.Confidence)
	assert.Equal(t, SampleAbove, c.SampleSize)
}

func TestOrderIndependent(t *testing.T) {
	w := NewWilson()
	a := w.Estimate([]bool{true, false, false, true, true})
	b := w.Estimate([]bool{false, true, true, true, false})
	assert.Equal(t, a, b)
}

func TestLevels(t *testing.T) {
	w := NewWilson()
	assert.Equal(t, LevelLow, w.Estimate(repeat(false, 20)).Level)

	half := append(repeat(true, 30), repeat(false, 20)...)
	c := w.Estimate(half)
	assert.Equal(t, LevelMedium, c.Level)
	assert.True(t, c.Left < 0.6 && c.Right > 0.6)

	small := w.Estimate([]bool{true, true})
	assert.Equal(t, SampleBelow, small.SampleSize)
	assert.Equal(t, ConfidenceBad, small.Confidence)
}

func TestData(t *testing.T) {
	d := Data(NewWilson().Estimate(repeat(true, 10)), true)
	assert.True(t, d.IsReal)
	assert.LessOrEqual(t, d.Minimum, d.MostLikely)
	assert.LessOrEqual(t, d.MostLikely, d.Maximum)
	assert.Equal(t, LevelHigh, d.Interpretation.Level)
}

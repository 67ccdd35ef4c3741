// Package clue estimates mastery from graded responses.
package clue

import (
	"math"

	"github.com/fentz26/recsync/internal/codec"
)

// Interpretation labels.
const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"

	ConfidenceGood = "good"
	ConfidenceBad  = "bad"

	SampleAbove = "above"
	SampleBelow = "below"
)

// Clue is a mastery estimate over a set of responses.
type Clue struct {
	Value      float64 `json:"value"`
	Left       float64 `json:"left"`
	Right      float64 `json:"right"`
	Level      string  `json:"level"`
	Confidence string  `json:"confidence"`
	SampleSize string  `json:"sample_size"`
	N          int     `json:"n"`
}

// Estimator turns correctness outcomes into a Clue. The result does not
// depend on the order of responses.
type Estimator interface {
	Estimate(responses []bool) Clue
}

// Wilson estimates with the Wilson score interval.
type Wilson struct {
	// Z is the normal quantile of the interval's confidence level.
	Z float64
	// HighAt and MediumAt are the lower bounds of the high and medium levels.
	HighAt   float64
	MediumAt float64
	// MaxGoodWidth is the widest interval still labelled good.
	MaxGoodWidth float64
	// MinSample is the smallest sample labelled sufficient.
	MinSample int
}

// NewWilson returns the 95% Wilson estimator with the default thresholds.
func NewWilson() Wilson {
	return Wilson{Z: 1.96, HighAt: 0.8, MediumAt: 0.5, MaxGoodWidth: 0.5, MinSample: 3}
}

// Estimate returns the Wilson centre and bounds. With no responses it returns
// 0.5 over [0,1].
func (w Wilson) Estimate(responses []bool) Clue {
	n := len(responses)
	c := Clue{N: n, Value: 0.5, Left: 0, Right: 1}
	if n > 0 {
		correct := 0
		for _, r := range responses {
			if r {
				correct++
			}
		}
		nf := float64(n)
		p := float64(correct) / nf
		z2 := w.Z * w.Z
		denom := 1 + z2/nf
		centre := (p + z2/(2*nf)) / denom
		half := w.Z * math.Sqrt(p*(1-p)/nf+z2/(4*nf*nf)) / denom
		c.Value = centre
		c.Left = math.Max(0, centre-half)
		c.Right = math.Min(1, centre+half)
	}

	switch {
	case c.Value >= w.HighAt:
		c.Level = LevelHigh
	case c.Value >= w.MediumAt:
		c.Level = LevelMedium
	default:
		c.Level = LevelLow
	}
	c.Confidence = ConfidenceBad
	if c.Right-c.Left <= w.MaxGoodWidth {
		c.Confidence = ConfidenceGood
	}
	c.SampleSize = SampleBelow
	if n >= w.MinSample {
		c.SampleSize = SampleAbove
	}
	return c
}

// Data renders a locally computed clue in the wire shape.
func Data(c Clue, isReal bool) codec.ClueData {
	return codec.ClueData{
		Minimum:    c.Left,
		MostLikely: c.Value,
		Maximum:    c.Right,
		IsReal:     isReal,
		Interpretation: &codec.ClueInterpretation{
			Level:      c.Level,
			Confidence: c.Confidence,
			SampleSize: c.SampleSize,
		},
	}
}

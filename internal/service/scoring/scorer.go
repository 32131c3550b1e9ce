package scoring

import (
	"math"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

// Confidence multipliers. Changing any value requires a new domain.EngineVersion.
const (
	MultiplierHigh   = 0.90
	MultiplierMedium = 0.65
	MultiplierLow    = 0.35
	MultiplierNone   = 0.00
)

// Multiplier returns the fixed multiplier of a confidence label; anything
// outside the closed set scores as none.
func Multiplier(c domain.Confidence) float64 {
	switch c {
	case domain.ConfidenceHigh:
		return MultiplierHigh
	case domain.ConfidenceMedium:
		return MultiplierMedium
	case domain.ConfidenceLow:
		return MultiplierLow
	default:
		return MultiplierNone
	}
}

// ScoreDimension converts one confidence label into points out of weight.
// Halves round to even.
func ScoreDimension(c domain.Confidence, weight int) int {
	if weight <= 0 {
		return 0
	}
	pts := int(math.RoundToEven(float64(weight) * Multiplier(c)))
	if pts > weight {
		return weight
	}
	return pts
}

// ScoreBreakdown scores every weighted dimension. Dimensions without a
// confidence label count as none; labels for unweighted dimensions are ignored.
func ScoreBreakdown(confidences map[domain.DimensionID]domain.Confidence, weights domain.Weights) domain.Breakdown {
	out := make(domain.Breakdown, len(weights))
	for id, w := range weights {
		c, ok := confidences[id]
		if !ok {
			c = domain.ConfidenceNone
		}
		out[id] = ScoreDimension(c, w)
	}
	return out
}

// Total sums a breakdown and clamps it to [0, 100].
func Total(b domain.Breakdown) int {
	total := 0
	for _, v := range b {
		total += v
	}
	return clamp(total, 0, 100)
}

// Score is ScoreBreakdown followed by Total.
func Score(confidences map[domain.DimensionID]domain.Confidence, weights domain.Weights) (domain.Breakdown, int) {
	b := ScoreBreakdown(confidences, weights)
	return b, Total(b)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package winprob implements the sport-specific in-play win-probability
// models of spec.md §4.1. Every model is a pure function of game state
// clamped to [0.03, 0.97] and side-symmetric by construction.
package winprob

import "math"

const (
	probMin = 0.03
	probMax = 0.97
	logitEps = 1e-6
)

// sigmoid computes 1/(1+e^-x), branching on the sign of x to avoid
// overflow on large |x|.
func sigmoid(x float64) float64 {
	if x >= 0 {
		z := math.Exp(-x)
		return 1 / (1 + z)
	}
	z := math.Exp(x)
	return z / (1 + z)
}

// logit is the inverse sigmoid, with its input clamped away from {0,1}.
func logit(p float64) float64 {
	p = clamp(p, logitEps, 1-logitEps)
	return math.Log(p / (1 - p))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampProb clamps a win probability into the spec's [0.03, 0.97] band.
func clampProb(p float64) float64 {
	return clamp(p, probMin, probMax)
}

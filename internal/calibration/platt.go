// Package calibration implements the online Platt-scaling calibrator of
// spec.md §4.2: a per-sport two-parameter logistic post-fit over closed
// trade outcomes, applied at decision time to the raw win-probability
// models in internal/winprob.
package calibration

import (
	"fmt"
	"math"
	"sync"

	"github.com/tradecore/inplay/internal/model"
)

const (
	calibEps    = 1e-6
	minSamples  = 8
)

// Sample is one resolved trade: the raw model probability at entry and
// the realized binary outcome.
type Sample struct {
	PRaw    float64
	Outcome bool
}

// FitResult is the outcome of one calibration attempt for a sport,
// including the before/after scores used for the promotion decision.
type FitResult struct {
	Model      model.CalibrationModel
	Promoted   bool
	Reason     string
}

// sigmoid and logit mirror internal/winprob's helpers; duplicated rather
// than imported so this package has no compile-time dependency on the
// win-probability models it calibrates.
func sigmoid(x float64) float64 {
	if x >= 0 {
		z := math.Exp(-x)
		return 1 / (1 + z)
	}
	z := math.Exp(x)
	return z / (1 + z)
}

func logit(p float64) float64 {
	p = clamp(p, calibEps, 1-calibEps)
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

// Registry holds the currently-promoted calibration model per sport and
// serves Apply calls from the hot decision path under a read lock.
type Registry struct {
	mu     sync.RWMutex
	models map[model.Sport]model.CalibrationModel
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[model.Sport]model.CalibrationModel)}
}

// Apply returns calibrated(sport, p) per spec.md §4.2: sigma(a*logit(p)+b)
// if a model is promoted for sport, else identity with clamp.
func (r *Registry) Apply(sport model.Sport, p float64) float64 {
	r.mu.RLock()
	cm, ok := r.models[sport]
	r.mu.RUnlock()
	if !ok {
		return clamp(p, calibEps, 1-calibEps)
	}
	return sigmoid(cm.A*logit(p) + cm.B)
}

// Promote installs a newly-fit model for sport, replacing any prior one.
func (r *Registry) Promote(cm model.CalibrationModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[cm.Sport] = cm
}

// Get returns the currently-promoted model for sport, if any.
func (r *Registry) Get(sport model.Sport) (model.CalibrationModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cm, ok := r.models[sport]
	return cm, ok
}

// Fit runs batch gradient descent over samples to find (a,b) minimizing
// regularized logloss, per spec.md §4.2. It rejects fewer than 8 samples
// or a single-class label set, and only promotes the fit if logloss or
// Brier improves by at least minRelativeImprove relative to the raw
// (uncalibrated) baseline.
func Fit(sport model.Sport, samples []Sample, maxIters int, learningRate, l2, minRelativeImprove float64) (FitResult, error) {
	if len(samples) < minSamples {
		return FitResult{}, fmt.Errorf("calibration: %s has %d samples, need >= %d", sport, len(samples), minSamples)
	}
	if singleClass(samples) {
		return FitResult{}, fmt.Errorf("calibration: %s samples are single-class", sport)
	}

	logLossBefore, brierBefore := score(samples, func(p float64) float64 { return clamp(p, calibEps, 1-calibEps) })

	a, b := gradientDescent(samples, maxIters, learningRate, l2)

	logLossAfter, brierAfter := score(samples, func(p float64) float64 {
		return sigmoid(a*logit(p) + b)
	})

	logLossImprove := relativeImprovement(logLossBefore, logLossAfter)
	brierImprove := relativeImprovement(brierBefore, brierAfter)

	cm := model.CalibrationModel{
		Sport:         sport,
		A:             a,
		B:             b,
		Samples:       len(samples),
		LogLossBefore: logLossBefore,
		LogLossAfter:  logLossAfter,
		BrierBefore:   brierBefore,
		BrierAfter:    brierAfter,
	}

	promoted := logLossImprove >= minRelativeImprove || brierImprove >= minRelativeImprove
	reason := "no promotion: relative improvement below threshold"
	if promoted {
		reason = "promoted"
	}

	return FitResult{Model: cm, Promoted: promoted, Reason: reason}, nil
}

func singleClass(samples []Sample) bool {
	first := samples[0].Outcome
	for _, s := range samples[1:] {
		if s.Outcome != first {
			return false
		}
	}
	return true
}

// gradientDescent fits a,b by batch gradient descent on the logistic
// logloss with L2 regularization on a only, schedule lr/(1+0.01*i).
func gradientDescent(samples []Sample, maxIters int, lr, l2 float64) (a, b float64) {
	a, b = 1.0, 0.0
	n := float64(len(samples))

	for i := 0; i < maxIters; i++ {
		stepLR := lr / (1 + 0.01*float64(i))
		var gradA, gradB float64
		for _, s := range samples {
			x := logit(s.PRaw)
			p := sigmoid(a*x + b)
			y := 0.0
			if s.Outcome {
				y = 1.0
			}
			err := p - y
			gradA += err * x
			gradB += err
		}
		gradA = gradA/n + l2*a
		gradB = gradB / n
		a -= stepLR * gradA
		b -= stepLR * gradB
	}
	return a, b
}

// score computes mean logloss and Brier score for samples under apply.
func score(samples []Sample, apply func(float64) float64) (logloss, brier float64) {
	n := float64(len(samples))
	for _, s := range samples {
		p := clamp(apply(s.PRaw), calibEps, 1-calibEps)
		y := 0.0
		if s.Outcome {
			y = 1.0
		}
		logloss += -(y*math.Log(p) + (1-y)*math.Log(1-p))
		brier += (p - y) * (p - y)
	}
	return logloss / n, brier / n
}

// relativeImprovement returns the fractional decrease from before to
// after, 0 if before is already 0 or the metric worsened.
func relativeImprovement(before, after float64) float64 {
	if before <= 0 {
		return 0
	}
	improve := (before - after) / before
	if improve < 0 {
		return 0
	}
	return improve
}

// Package latency implements LatencyGate (spec.md §4.8): per-sport EWMA
// tracking of processing time, priced-in ratio, and residual move, with
// adaptive bounds that tighten or loosen entry gating as feed quality
// drifts.
package latency

import (
	"sync"

	"github.com/tradecore/inplay/internal/model"
)

const ewmaAlpha = 0.2

// Config is the static latency-gate configuration (spec.md §6).
type Config struct {
	MaxScoreAgeMs    int64
	MinExpectedMove  float64
	MinResidualMove  float64
	MaxPricedInRatio float64
}

type sportState struct {
	samples int

	ewmaProcessingMs   float64
	ewmaPricedInRatio  float64
	ewmaResidualMove   float64

	prevYesPrice map[string]float64 // event id -> last observed yes price
}

func newSportState() *sportState {
	return &sportState{prevYesPrice: make(map[string]float64)}
}

// Gate tracks per-sport EWMA latency signals and decides entry
// eligibility per spec.md §4.8.
type Gate struct {
	mu     sync.Mutex
	cfg    Config
	sports map[model.Sport]*sportState
}

func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg, sports: make(map[model.Sport]*sportState)}
}

func (g *Gate) stateFor(sport model.Sport) *sportState {
	s, ok := g.sports[sport]
	if !ok {
		s = newSportState()
		g.sports[sport] = s
	}
	return s
}

// Decision is the outcome of one latency-gate evaluation, including the
// intermediate values so callers can log/attribute a rejection.
type Decision struct {
	Accepted        bool
	Reason          string
	Expected        float64
	Observed        float64
	PricedInRatio   float64
	ResidualMove    float64
	AdaptiveMaxAge  int64
	AdaptiveMinResidual float64
	AdaptiveMaxPricedIn float64
}

// Evaluate runs the latency gate for one score event on one market.
// processingMs is the wall-clock time from score detection to this
// decision; pYesNow/pYesPrev are calibrated YES probabilities;
// yesPrice/prevYesPrice are observed market prices for the event.
func (g *Gate) Evaluate(sport model.Sport, eventID string, processingMs int64, pYesNow, pYesPrev, yesPrice float64) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.stateFor(sport)
	prevPrice, hasPrev := s.prevYesPrice[eventID]
	s.prevYesPrice[eventID] = yesPrice

	if !hasPrev {
		g.updateEWMA(s, float64(processingMs), 1.0, 0.0)
		return Decision{Accepted: false, Reason: "warm-up: no previous price"}
	}

	expected := absF(pYesNow - pYesPrev)
	observed := absF(yesPrice - prevPrice)

	pricedInRatio := 1.0
	if expected > 1e-6 {
		pricedInRatio = clamp(observed/expected, 0, 5)
	}
	residualMove := maxF(0, expected-observed)

	g.updateEWMA(s, float64(processingMs), pricedInRatio, residualMove)

	maxAge, minResidual, maxPricedIn := g.adaptiveBounds(s)

	d := Decision{
		Expected: expected, Observed: observed,
		PricedInRatio: pricedInRatio, ResidualMove: residualMove,
		AdaptiveMaxAge: maxAge, AdaptiveMinResidual: minResidual, AdaptiveMaxPricedIn: maxPricedIn,
	}

	switch {
	case processingMs > maxAge:
		d.Reason = "processing_ms exceeds adaptive max age"
	case expected < g.cfg.MinExpectedMove:
		d.Reason = "expected move below latency_min_expected_move"
	case residualMove < minResidual:
		d.Reason = "residual move below adaptive min residual"
	case pricedInRatio > maxPricedIn:
		d.Reason = "priced-in ratio exceeds adaptive max"
	default:
		d.Accepted = true
	}
	return d
}

func (g *Gate) updateEWMA(s *sportState, processingMs, pricedInRatio, residualMove float64) {
	s.samples++
	if s.samples == 1 {
		s.ewmaProcessingMs = processingMs
		s.ewmaPricedInRatio = pricedInRatio
		s.ewmaResidualMove = residualMove
		return
	}
	s.ewmaProcessingMs = ewmaAlpha*processingMs + (1-ewmaAlpha)*s.ewmaProcessingMs
	s.ewmaPricedInRatio = ewmaAlpha*pricedInRatio + (1-ewmaAlpha)*s.ewmaPricedInRatio
	s.ewmaResidualMove = ewmaAlpha*residualMove + (1-ewmaAlpha)*s.ewmaResidualMove
}

// adaptiveBounds implements the per-sport adaptation rule of spec.md
// §4.8, active only after >= 20 samples.
func (g *Gate) adaptiveBounds(s *sportState) (maxAge int64, minResidual, maxPricedIn float64) {
	maxAge = g.cfg.MaxScoreAgeMs
	minResidual = g.cfg.MinResidualMove
	maxPricedIn = g.cfg.MaxPricedInRatio

	if s.samples < 20 {
		return maxAge, minResidual, maxPricedIn
	}

	floorResidual := g.cfg.MinResidualMove

	if s.ewmaPricedInRatio > 0.90 {
		maxAge = int64(float64(maxAge) * 0.8)
		minResidual += 0.005
		maxPricedIn = maxF(maxPricedIn-0.10, 0.35)
	} else if s.ewmaPricedInRatio < 0.50 && s.ewmaResidualMove > 1.3*floorResidual {
		maxAge = int64(float64(maxAge) * 1.10)
		maxPricedIn = minF(maxPricedIn+0.05, 1.20)
	}

	if s.ewmaProcessingMs > float64(g.cfg.MaxScoreAgeMs) {
		maxAge = int64(float64(maxAge) * 0.9)
	}

	return maxAge, minResidual, maxPricedIn
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
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

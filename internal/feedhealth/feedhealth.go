// Package feedhealth implements FeedHealth and DailyBreaker (spec.md
// §4.9): circuit breakers over WS feed quality and daily drawdown. The
// entry-blocking trip/cooldown state machine is the sony/gobreaker
// circuit breaker itself (its State() drives BlockEntries and its
// Timeout drives the cooldown); the separate force-flatten threshold is
// plain stdlib time-tracking since it measures a degradation duration,
// not a breaker state.
package feedhealth

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

const ewmaAlpha = 0.2

// Config is FeedHealth's static configuration (spec.md §6).
type Config struct {
	MaxRestFallbackRate float64
	MaxWSAgeMs          int64
	MinSamples          int
	CooldownSecs        int
	FlattenAfterSecs    int
}

// FeedHealth tracks the EWMA fallback rate and average WS age across
// PositionManager sweeps and trips a breaker when either degrades.
type FeedHealth struct {
	mu  sync.Mutex
	cfg Config

	samples       int
	ewmaFallback  float64
	ewmaWSAgeMs   float64
	degradedSince time.Time

	breaker *gobreaker.CircuitBreaker
}

func New(cfg Config) *FeedHealth {
	fh := &FeedHealth{cfg: cfg}
	fh.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "feed-health",
		Timeout: time.Duration(cfg.CooldownSecs) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 0
		},
	})
	return fh
}

// RecordSweep updates the EWMA signals from one PositionManager sweep's
// mark results: wsMarks and restMarks are counts of each source used,
// and avgWSAgeMs is the average age of the WS-sourced marks.
func (fh *FeedHealth) RecordSweep(wsMarks, restMarks int, avgWSAgeMs float64, now time.Time) {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	total := wsMarks + restMarks
	if total == 0 {
		return
	}
	fallbackRate := float64(restMarks) / float64(total)

	fh.samples++
	if fh.samples == 1 {
		fh.ewmaFallback = fallbackRate
		fh.ewmaWSAgeMs = avgWSAgeMs
	} else {
		fh.ewmaFallback = ewmaAlpha*fallbackRate + (1-ewmaAlpha)*fh.ewmaFallback
		fh.ewmaWSAgeMs = ewmaAlpha*avgWSAgeMs + (1-ewmaAlpha)*fh.ewmaWSAgeMs
	}

	if fh.samples < fh.cfg.MinSamples {
		return
	}

	degraded := fh.ewmaFallback > fh.cfg.MaxRestFallbackRate || fh.ewmaWSAgeMs > float64(fh.cfg.MaxWSAgeMs)
	if degraded {
		if fh.degradedSince.IsZero() {
			fh.degradedSince = now
		}
		_, _ = fh.breaker.Execute(func() (any, error) { return nil, errTripped })
	} else {
		fh.degradedSince = time.Time{}
		_, _ = fh.breaker.Execute(func() (any, error) { return nil, nil })
	}
}

var errTripped = tripError{}

type tripError struct{}

func (tripError) Error() string { return "feed health degraded" }

// BlockEntries reports whether new entries are currently blocked: true
// while the breaker is open, false once its cooldown Timeout has
// elapsed and it has moved to half-open (entries resume on trial).
func (fh *FeedHealth) BlockEntries(now time.Time) bool {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return fh.breaker.State() == gobreaker.StateOpen
}

// ShouldForceFlatten reports whether degradation has persisted past
// flatten_after_secs, per spec.md §4.9.
func (fh *FeedHealth) ShouldForceFlatten(now time.Time) bool {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	if fh.degradedSince.IsZero() {
		return false
	}
	return now.Sub(fh.degradedSince) >= time.Duration(fh.cfg.FlattenAfterSecs)*time.Second
}

// Signals snapshots the current EWMA state for the adaptive add-on
// formulas below.
func (fh *FeedHealth) Signals() (fallbackRate, wsAgeMs float64) {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return fh.ewmaFallback, fh.ewmaWSAgeMs
}

// EdgeAddon implements the adaptive edge add-on of spec.md §4.9:
// edge_addon = min(cap, max(0, 0.02*(priced_in-0.70)) +
// max(0, 0.50*(floor_residual-residual)) + 0.02*fallback_rate +
// (ws_age > ws_max ? 0.01 : 0)).
func EdgeAddon(pricedIn, floorResidual, residual, fallbackRate float64, wsAgeMs float64, wsMaxMs int64, cap float64) float64 {
	addon := maxF(0, 0.02*(pricedIn-0.70))
	addon += maxF(0, 0.50*(floorResidual-residual))
	addon += 0.02 * fallbackRate
	if wsAgeMs > float64(wsMaxMs) {
		addon += 0.01
	}
	return minF(addon, cap)
}

// DivergenceLimit implements the adaptive divergence limit of spec.md
// §4.9: max(0.01, base*(1-tightening*fallback)*(1-0.5*tightening*max(0,priced_in-0.7))).
func DivergenceLimit(base, tightening, fallbackRate, pricedIn float64) float64 {
	limit := base * (1 - tightening*fallbackRate) * (1 - 0.5*tightening*maxF(0, pricedIn-0.7))
	return maxF(0.01, limit)
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

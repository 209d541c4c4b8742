package feedhealth

import (
	"testing"
	"time"
)

func TestFeedHealthTripsAfterMinSamples(t *testing.T) {
	fh := New(Config{MaxRestFallbackRate: 0.70, MaxWSAgeMs: 4000, MinSamples: 3, CooldownSecs: 60, FlattenAfterSecs: 120})
	now := time.Now()

	for i := 0; i < 3; i++ {
		fh.RecordSweep(0, 10, 100, now) // 100% fallback rate
	}

	if !fh.BlockEntries(now) {
		t.Error("expected entries blocked after sustained high fallback rate")
	}
}

func TestFeedHealthDoesNotTripBelowMinSamples(t *testing.T) {
	fh := New(Config{MaxRestFallbackRate: 0.70, MaxWSAgeMs: 4000, MinSamples: 6, CooldownSecs: 60, FlattenAfterSecs: 120})
	now := time.Now()
	fh.RecordSweep(0, 10, 100, now)

	if fh.BlockEntries(now) {
		t.Error("expected no block before min_samples is reached")
	}
}

func TestShouldForceFlattenAfterSustainedDegradation(t *testing.T) {
	fh := New(Config{MaxRestFallbackRate: 0.70, MaxWSAgeMs: 4000, MinSamples: 2, CooldownSecs: 60, FlattenAfterSecs: 100})
	t0 := time.Now()

	fh.RecordSweep(0, 10, 100, t0)
	fh.RecordSweep(0, 10, 100, t0)

	if fh.ShouldForceFlatten(t0.Add(10 * time.Second)) {
		t.Error("should not force-flatten before flatten_after_secs elapses")
	}
	if !fh.ShouldForceFlatten(t0.Add(150 * time.Second)) {
		t.Error("should force-flatten after flatten_after_secs elapses")
	}
}

func TestDailyBreakerRefusesOnDrawdown(t *testing.T) {
	b := NewDailyBreaker(0.10, 200)
	b.RollDay(time.Now(), 1000)

	if !b.Allow(950) {
		t.Error("5% drawdown should still be allowed under a 10% cap")
	}
	if b.Allow(880) {
		t.Error("12% drawdown should be refused under a 10% cap")
	}
}

func TestDailyBreakerRefusesOnTradeCount(t *testing.T) {
	b := NewDailyBreaker(0.50, 2)
	b.RollDay(time.Now(), 1000)
	b.RecordTrade()
	b.RecordTrade()

	if b.Allow(1000) {
		t.Error("expected trades_today >= max_trades_per_day to refuse")
	}
}

func TestDailyBreakerRollsOverToNewDay(t *testing.T) {
	b := NewDailyBreaker(0.10, 1)
	day1 := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	b.RollDay(day1, 1000)
	b.RecordTrade()

	day2 := time.Date(2026, 7, 31, 0, 5, 0, 0, time.UTC)
	b.RollDay(day2, 1000)

	if !b.Allow(1000) {
		t.Error("expected trade counter to reset on a new UTC day")
	}
}

func TestEdgeAddonCappedAtConfiguredMax(t *testing.T) {
	addon := EdgeAddon(2.0, 0.05, 0.0, 1.0, 10000, 4000, 0.05)
	if addon != 0.05 {
		t.Errorf("expected addon capped at 0.05, got %v", addon)
	}
}

func TestDivergenceLimitNeverBelowFloor(t *testing.T) {
	limit := DivergenceLimit(0.08, 1.0, 1.0, 1.0)
	if limit < 0.01 {
		t.Errorf("divergence limit should never fall below the 0.01 floor, got %v", limit)
	}
}

package feedhealth

import (
	"sync"
	"time"
)

// DailyBreaker resets at UTC midnight and refuses entries once the
// day's drawdown or trade count reaches the configured limits, per
// spec.md §4.9.
type DailyBreaker struct {
	mu sync.Mutex

	maxDrawdownFraction float64
	maxTradesPerDay     int

	dayStart        time.Time
	dayStartEquity  float64
	tradesToday     int
}

func NewDailyBreaker(maxDrawdownFraction float64, maxTradesPerDay int) *DailyBreaker {
	return &DailyBreaker{maxDrawdownFraction: maxDrawdownFraction, maxTradesPerDay: maxTradesPerDay}
}

func utcDayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RollDay resets day-start equity and the trade counter if now has
// crossed into a new UTC day since the last roll. currentEquity is used
// as the day-start equity when no earlier balance snapshot is supplied.
func (b *DailyBreaker) RollDay(now time.Time, currentEquity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	today := utcDayStart(now)
	if !today.Equal(b.dayStart) {
		b.dayStart = today
		b.dayStartEquity = currentEquity
		b.tradesToday = 0
	}
}

// SetDayStartEquity overrides the day-start equity with the first
// balance snapshot at or after the day boundary, when one is available.
func (b *DailyBreaker) SetDayStartEquity(equity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dayStartEquity = equity
}

// RecordTrade increments today's trade counter.
func (b *DailyBreaker) RecordTrade() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tradesToday++
}

// Allow reports whether a new entry is permitted given currentEquity.
func (b *DailyBreaker) Allow(currentEquity float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tradesToday >= b.maxTradesPerDay {
		return false
	}
	if b.dayStartEquity <= 0 {
		return true
	}
	drawdown := (b.dayStartEquity - currentEquity) / b.dayStartEquity
	return drawdown < b.maxDrawdownFraction
}

// Package lanes implements the idempotency-lanes supplement documented
// in SPEC_FULL.md: a per-(sport, league) guard combining duplicate-order
// idempotency, a minimum inter-order throttle, and a lane-local open-
// order/spend cap, adapted from the teacher's execution/lanes package.
// These sit in front of PortfolioRisk/DailyBreaker as a cheap, local
// first line of defense before the portfolio-wide checks run.
package lanes

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// IdempotencyGuard prevents duplicate orders for the same
// (event_id, home_score, away_score) tuple within a lane.
type IdempotencyGuard struct {
	mu   sync.RWMutex
	seen map[string]bool
}

func NewIdempotencyGuard() *IdempotencyGuard {
	return &IdempotencyGuard{seen: make(map[string]bool)}
}

func (g *IdempotencyGuard) Key(eventID string, homeScore, awayScore int) string {
	return fmt.Sprintf("%s:%d-%d", eventID, homeScore, awayScore)
}

func (g *IdempotencyGuard) HasSeen(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.seen[key]
}

func (g *IdempotencyGuard) Record(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[key] = true
}

// Clear resets all dedup state — called when overturn.Tracker confirms
// a score-drop, so a legitimate re-score doesn't get silently deduped
// against the overturned state.
func (g *IdempotencyGuard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = make(map[string]bool)
}

// Throttle enforces a minimum interval between order placements in a lane.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	lastSend time.Time
}

func NewThrottle(intervalMs int64) *Throttle {
	return &Throttle{interval: time.Duration(intervalMs) * time.Millisecond}
}

func (t *Throttle) Allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.lastSend) >= t.interval
}

func (t *Throttle) Touch(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSend = now
}

// RiskGuard tracks open-order count for a lane.
type RiskGuard struct {
	maxOpenOrders int
	openCount     atomic.Int32
}

func NewRiskGuard(maxOpenOrders int) *RiskGuard {
	return &RiskGuard{maxOpenOrders: maxOpenOrders}
}

func (r *RiskGuard) CanPlace() bool { return int(r.openCount.Load()) < r.maxOpenOrders }
func (r *RiskGuard) RecordPlacement() { r.openCount.Add(1) }
func (r *RiskGuard) RecordClose()     { r.openCount.Add(-1) }

// SpendGuard tracks total cents spent in a lane against a cap.
type SpendGuard struct {
	maxCents   int64
	spentCents atomic.Int64
}

func NewSpendGuard(maxCents int64) *SpendGuard {
	return &SpendGuard{maxCents: maxCents}
}

func (s *SpendGuard) CanSpend(cents int64) bool {
	if s.maxCents <= 0 {
		return true
	}
	return s.spentCents.Load()+cents <= s.maxCents
}

func (s *SpendGuard) Record(cents int64) { s.spentCents.Add(cents) }

// Lane bundles idempotency, throttle, risk, and spend guards for one
// (sport, league) execution path.
type Lane struct {
	idempotent *IdempotencyGuard
	throttle   *Throttle
	risk       *RiskGuard
	spend      *SpendGuard
}

func NewLane(maxOpenOrders int, maxSpendCents int64, throttleMs int64) *Lane {
	return &Lane{
		idempotent: NewIdempotencyGuard(),
		throttle:   NewThrottle(throttleMs),
		risk:       NewRiskGuard(maxOpenOrders),
		spend:      NewSpendGuard(maxSpendCents),
	}
}

// Allow reports whether an order for (eventID, homeScore, awayScore) of
// the given cost in cents may proceed through this lane.
func (l *Lane) Allow(now time.Time, eventID string, homeScore, awayScore int, costCents int64) bool {
	key := l.idempotent.Key(eventID, homeScore, awayScore)
	if l.idempotent.HasSeen(key) {
		return false
	}
	if !l.risk.CanPlace() {
		return false
	}
	if !l.throttle.Allow(now) {
		return false
	}
	if !l.spend.CanSpend(costCents) {
		return false
	}
	return true
}

// RecordOrder marks an order as placed for (eventID, homeScore,
// awayScore), updating all four guards.
func (l *Lane) RecordOrder(now time.Time, eventID string, homeScore, awayScore int, costCents int64) {
	key := l.idempotent.Key(eventID, homeScore, awayScore)
	l.idempotent.Record(key)
	l.risk.RecordPlacement()
	l.throttle.Touch(now)
	l.spend.Record(costCents)
}

func (l *Lane) ClearIdempotency() { l.idempotent.Clear() }

// Manager holds one Lane per (sport, league) key, created lazily.
type Manager struct {
	mu    sync.Mutex
	lanes map[string]*Lane

	maxOpenOrders int
	maxSpendCents int64
	throttleMs    int64
}

func NewManager(maxOpenOrders int, maxSpendCents int64, throttleMs int64) *Manager {
	return &Manager{
		lanes:         make(map[string]*Lane),
		maxOpenOrders: maxOpenOrders,
		maxSpendCents: maxSpendCents,
		throttleMs:    throttleMs,
	}
}

func laneKey(sport, league string) string { return sport + "|" + league }

// Lane returns the Lane for (sport, league), creating one with the
// manager's default limits if it doesn't exist yet.
func (m *Manager) Lane(sport, league string) *Lane {
	key := laneKey(sport, league)
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lanes[key]
	if !ok {
		l = NewLane(m.maxOpenOrders, m.maxSpendCents, m.throttleMs)
		m.lanes[key] = l
	}
	return l
}

package lanes

import (
	"testing"
	"time"
)

func TestIdempotencyGuardDedupesSameScoreTuple(t *testing.T) {
	g := NewIdempotencyGuard()
	key := g.Key("evt1", 1, 0)
	if g.HasSeen(key) {
		t.Fatal("fresh guard should not have seen any key")
	}
	g.Record(key)
	if !g.HasSeen(key) {
		t.Error("expected key to be seen after Record")
	}
	if g.HasSeen(g.Key("evt1", 2, 0)) {
		t.Error("a different score tuple must not be deduped")
	}
}

func TestIdempotencyGuardClearResetsState(t *testing.T) {
	g := NewIdempotencyGuard()
	key := g.Key("evt1", 1, 0)
	g.Record(key)
	g.Clear()
	if g.HasSeen(key) {
		t.Error("expected Clear to wipe dedup state")
	}
}

func TestThrottleEnforcesMinimumInterval(t *testing.T) {
	tr := NewThrottle(100)
	now := time.Now()
	if !tr.Allow(now) {
		t.Fatal("expected first send to be allowed")
	}
	tr.Touch(now)
	if tr.Allow(now.Add(50 * time.Millisecond)) {
		t.Error("expected send within throttle interval to be rejected")
	}
	if !tr.Allow(now.Add(150 * time.Millisecond)) {
		t.Error("expected send after throttle interval to be allowed")
	}
}

func TestRiskGuardCapsOpenOrders(t *testing.T) {
	r := NewRiskGuard(2)
	if !r.CanPlace() {
		t.Fatal("expected fresh guard to allow placement")
	}
	r.RecordPlacement()
	r.RecordPlacement()
	if r.CanPlace() {
		t.Error("expected guard to reject a third order at the cap")
	}
	r.RecordClose()
	if !r.CanPlace() {
		t.Error("expected guard to allow placement after a close frees a slot")
	}
}

func TestSpendGuardCapsTotalSpend(t *testing.T) {
	s := NewSpendGuard(1000)
	if !s.CanSpend(600) {
		t.Fatal("expected spend within cap to be allowed")
	}
	s.Record(600)
	if s.CanSpend(500) {
		t.Error("expected spend exceeding the remaining cap to be rejected")
	}
	if !s.CanSpend(400) {
		t.Error("expected spend exactly filling the remaining cap to be allowed")
	}
}

func TestLaneAllowsThenDedupesSameOrder(t *testing.T) {
	l := NewLane(5, 10_000, 0)
	now := time.Now()
	if !l.Allow(now, "evt1", 1, 0, 500) {
		t.Fatal("expected first order for a new score tuple to be allowed")
	}
	l.RecordOrder(now, "evt1", 1, 0, 500)
	if l.Allow(now, "evt1", 1, 0, 500) {
		t.Error("expected a repeat order at the same score tuple to be rejected")
	}
	if !l.Allow(now, "evt1", 2, 0, 500) {
		t.Error("expected a new score tuple to be allowed through the same lane")
	}
}

func TestManagerReturnsDistinctLanesPerSportLeague(t *testing.T) {
	m := NewManager(5, 10_000, 0)
	soccerEPL := m.Lane("soccer", "epl")
	soccerLaLiga := m.Lane("soccer", "la_liga")
	if soccerEPL == soccerLaLiga {
		t.Fatal("expected distinct leagues to get distinct lanes")
	}
	if m.Lane("soccer", "epl") != soccerEPL {
		t.Error("expected repeated lookup of the same key to return the same lane")
	}

	now := time.Now()
	soccerEPL.RecordOrder(now, "evt1", 1, 0, 100)
	if !soccerLaLiga.Allow(now, "evt1", 1, 0, 100) {
		t.Error("expected idempotency state to be isolated per lane")
	}
}

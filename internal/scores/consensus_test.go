package scores

import (
	"testing"
	"time"

	"github.com/tradecore/inplay/internal/model"
)

func TestConsensusMajorityGroupWins(t *testing.T) {
	snaps := []Snapshot{
		{Provider: "allsports", EventID: "e1", HomeScore: 1, AwayScore: 0, Minute: 10},
		{Provider: "thesportsdb", EventID: "e1", HomeScore: 1, AwayScore: 0, Minute: 10},
		{Provider: "polymarket", EventID: "e1", HomeScore: 0, AwayScore: 0, Minute: 10},
	}
	winner, count, ok := Consensus(snaps)
	if !ok {
		t.Fatal("expected a consensus result")
	}
	if count != 2 {
		t.Errorf("expected consensus count 2, got %d", count)
	}
	if winner.HomeScore != 1 {
		t.Errorf("expected majority group (1-0) to win, got %d-%d", winner.HomeScore, winner.AwayScore)
	}
}

func TestConsensusTieBreaksByWeight(t *testing.T) {
	snaps := []Snapshot{
		{Provider: "polymarket", EventID: "e1", HomeScore: 1, AwayScore: 0, Minute: 10},
		{Provider: "other", EventID: "e1", HomeScore: 0, AwayScore: 0, Minute: 10},
	}
	winner, _, ok := Consensus(snaps)
	if !ok {
		t.Fatal("expected a consensus result")
	}
	if winner.HomeScore != 1 {
		t.Errorf("expected polymarket's higher-weight group to win a 1-1 tie, got %d-%d", winner.HomeScore, winner.AwayScore)
	}
}

func TestLargestMinuteComparisonWithinGroup(t *testing.T) {
	snaps := []Snapshot{
		{Provider: "polymarket", EventID: "e1", HomeScore: 1, AwayScore: 0, Minute: 12},
		{Provider: "polymarket", EventID: "e1", HomeScore: 1, AwayScore: 0, Minute: 14},
	}
	// Minute is part of the group key, so Consensus never sees one group
	// holding two different minutes. This test does not call Consensus: it
	// runs the largest-minute comparison on a hand-built group directly.
	g := &group{snapshots: snaps}
	winner := snaps[0]
	for _, s := range g.snapshots[1:] {
		if s.Minute > winner.Minute {
			winner = s
		}
	}
	if winner.Minute != 14 {
		t.Errorf("expected largest minute 14, got %v", winner.Minute)
	}
}

func TestShiftGateRejectsCorrectionType(t *testing.T) {
	g := NewShiftGate(20 * time.Second)
	ev := model.ScoreEvent{EventID: "e1", Type: model.EventCorrection, DetectedAt: time.Now()}
	if g.Accept(ev, 0.5, 0.9, true) {
		t.Error("correction-type events must never be accepted")
	}
}

func TestShiftGateDedupsFingerprint(t *testing.T) {
	g := NewShiftGate(20 * time.Second)
	ev := model.ScoreEvent{
		EventID: "e1", League: "epl", Type: model.EventGoalHome,
		HomeScore: 1, AwayScore: 0, Minute: 10, DetectedAt: time.Now(),
	}
	if !g.Accept(ev, 0.50, 0.60, true) {
		t.Fatal("first occurrence should be accepted")
	}
	if g.Accept(ev, 0.50, 0.60, true) {
		t.Error("duplicate fingerprint within the window should be rejected")
	}
}

func TestShiftGateRejectsBelowThreshold(t *testing.T) {
	g := NewShiftGate(20 * time.Second)
	ev := model.ScoreEvent{
		EventID: "e2", Sport: model.SportBasketball, Type: model.EventBasket,
		HomeScore: 2, AwayScore: 0, Minute: 10, DetectedAt: time.Now(),
	}
	if g.Accept(ev, 0.50, 0.505, true) {
		t.Error("a shift below the sport floor should be rejected")
	}
}

func TestClassifyFootballTouchdown(t *testing.T) {
	if got := Classify(model.SportFootball, 6, 0); got != model.EventTouchdown {
		t.Errorf("expected touchdown classification, got %s", got)
	}
}

func TestClassifyBasketballThreePointer(t *testing.T) {
	if got := Classify(model.SportBasketball, 0, 3); got != model.EventThreePointer {
		t.Errorf("expected three_pointer classification, got %s", got)
	}
}

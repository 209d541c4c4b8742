package risk

import (
	"testing"

	"github.com/tradecore/inplay/internal/model"
)

func defaultLimits() Limits {
	return Limits{
		MaxEventExposureFraction:     0.20,
		MaxSportExposureFraction:     0.50,
		MaxLeagueExposureFraction:    0.35,
		MaxTeamExposureFraction:      0.25,
		MaxPositionsPerEvent:         2,
		MaxEffectiveExposureFraction: 0.30,
		CorrelationSameEvent:         1.0,
		CorrelationSameTeam:          0.70,
		CorrelationSameLeague:        0.35,
		CorrelationSameSport:         0.20,
	}
}

func TestEvaluateAllowsWithinCaps(t *testing.T) {
	v := Evaluate(nil, Candidate{SizeUSD: 10, EventID: "e1", Sport: model.SportSoccer, League: "epl"}, 1000, 1000, defaultLimits())
	if !v.Allowed {
		t.Errorf("expected a small fresh stake to be allowed, got reason: %s", v.Reason)
	}
}

func TestEvaluateRejectsBelowDollarMinimum(t *testing.T) {
	v := Evaluate(nil, Candidate{SizeUSD: 0.5}, 1000, 1000, defaultLimits())
	if v.Allowed {
		t.Error("expected a sub-$1 stake to be rejected")
	}
}

func TestEvaluateRejectsExceedingCash(t *testing.T) {
	v := Evaluate(nil, Candidate{SizeUSD: 2000}, 1000, 1000, defaultLimits())
	if v.Allowed {
		t.Error("expected a stake larger than cash to be rejected")
	}
}

func TestEvaluateRejectsPerEventExposureCap(t *testing.T) {
	open := []OpenExposure{{SizeUSD: 190, EventID: "e1", Sport: model.SportSoccer, League: "epl"}}
	v := Evaluate(open, Candidate{SizeUSD: 20, EventID: "e1", Sport: model.SportSoccer, League: "epl"}, 1000, 1000, defaultLimits())
	if v.Allowed {
		t.Error("expected per-event exposure cap to reject")
	}
}

func TestEvaluateRejectsMaxPositionsPerEvent(t *testing.T) {
	lim := defaultLimits()
	lim.MaxPositionsPerEvent = 1
	open := []OpenExposure{{SizeUSD: 10, EventID: "e1"}}
	v := Evaluate(open, Candidate{SizeUSD: 10, EventID: "e1"}, 1000, 1000, lim)
	if v.Allowed {
		t.Error("expected max_positions_per_event to reject a second position in the same event")
	}
}

func TestEvaluateRejectsPerTeamExposureViaContainment(t *testing.T) {
	open := []OpenExposure{{SizeUSD: 240, EventID: "e1", EventName: "Arsenal vs Chelsea"}}
	v := Evaluate(open, Candidate{SizeUSD: 20, EventID: "e2", EventName: "Arsenal vs Liverpool"}, 1000, 1000, defaultLimits())
	if v.Allowed {
		t.Error("expected shared team 'Arsenal' across events to trip the per-team exposure cap")
	}
}

func TestEffectiveExposureSelfCorrelationIsOne(t *testing.T) {
	cand := Candidate{SizeUSD: 100, EventID: "e1"}
	eff := EffectiveExposure(nil, cand, 1000, defaultLimits())
	want := 0.1 // sqrt(w^2 * 1) = w = 0.1
	if diff := eff - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected effective exposure %v with no open positions, got %v", want, eff)
	}
}

func TestEvaluateRejectsEffectiveExposureFromCorrelatedBook(t *testing.T) {
	lim := defaultLimits()
	lim.MaxEffectiveExposureFraction = 0.05
	open := []OpenExposure{
		{SizeUSD: 100, EventID: "e1", Sport: model.SportSoccer, League: "epl"},
		{SizeUSD: 100, EventID: "e2", Sport: model.SportSoccer, League: "epl"},
	}
	v := Evaluate(open, Candidate{SizeUSD: 100, EventID: "e3", Sport: model.SportSoccer, League: "epl"}, 1000, 1000, lim)
	if v.Allowed {
		t.Error("expected a tight effective-exposure cap to reject a heavily correlated book")
	}
}

package winprob

import (
	"math"
	"testing"

	"github.com/tradecore/inplay/internal/model"
)

func game(sport model.Sport, home, away int, minute float64) model.LiveGame {
	return model.LiveGame{Sport: sport, HomeScore: home, AwayScore: away, Minute: minute}
}

func TestSideSymmetryAllSports(t *testing.T) {
	sports := []model.Sport{
		model.SportSoccer, model.SportBasketball, model.SportFootball,
		model.SportBaseball, model.SportHockey, model.SportTennis,
		model.OtherSport("rugby"),
	}
	for _, sport := range sports {
		g := game(sport, 2, 1, 30)
		home := PHome(g, true)
		away := PHome(g, false)
		if math.Abs((home+away)-1.0) > 1e-12 {
			t.Errorf("%s: P_home(true)+P_home(false) = %v, want exactly 1", sport, home+away)
		}
	}
}

func TestSoccerMinuteMonotonicity(t *testing.T) {
	p10 := PHome(game(model.SportSoccer, 1, 0, 10), true)
	p30 := PHome(game(model.SportSoccer, 1, 0, 30), true)
	if !(p30 > p10) {
		t.Errorf("P(1-0, min30)=%v should exceed P(1-0, min10)=%v", p30, p10)
	}
	if !(p30 > 0.65) {
		t.Errorf("P(1-0, min30)=%v should exceed 0.65", p30)
	}
}

func TestSoccerBigLeadAtHalftime(t *testing.T) {
	p := PHome(game(model.SportSoccer, 3, 0, 45), true)
	if !(p > 0.95) {
		t.Errorf("P(3-0, halftime)=%v should exceed 0.95", p)
	}
}

func TestSoccerBilinearCornerExactness(t *testing.T) {
	for di, d := range soccerDiffs {
		for mi, m := range soccerMinutes {
			got := bilinearSoccer(d, m)
			want := soccerTable[di][mi]
			if got != want {
				t.Errorf("bilinearSoccer(%d, %v) = %v, want exact table value %v", d, m, got, want)
			}
		}
	}
}

func TestSoccerBaselineHomeAdvantage(t *testing.T) {
	p := PHome(game(model.SportSoccer, 0, 0, 0), true)
	if math.Abs(p-0.45) > 1e-9 {
		t.Errorf("0-0 minute 0 baseline = %v, want 0.45", p)
	}
}

func TestBasketballMarginMonotonicity(t *testing.T) {
	small := PHome(game(model.SportBasketball, 60, 58, 40), true)
	big := PHome(game(model.SportBasketball, 80, 58, 40), true)
	if !(big > small) {
		t.Errorf("larger margin should yield higher home win prob: %v vs %v", big, small)
	}
}

func TestBasketballLateCloseGameNearHalf(t *testing.T) {
	p := PHome(game(model.SportBasketball, 100, 100, 47.9), true)
	if math.Abs(p-0.5) > 0.1 {
		t.Errorf("tied game in final seconds should be near 0.5, got %v", p)
	}
}

func TestHockeyLeadCloseToEndVsMidGame(t *testing.T) {
	mid := PHome(game(model.SportHockey, 3, 2, 30), true)
	late := PHome(game(model.SportHockey, 3, 2, 55), true)
	if !(late > mid) {
		t.Errorf("a held one-goal lead should be more certain later: mid=%v late=%v", mid, late)
	}
}

func TestHockeyEmptyNetBoost(t *testing.T) {
	undamped := sigmoid(hockeyK*1*math.Sqrt(hockeyGameMinutes/1)) + hockeyHomeAdvantage
	damped := hockeyRawHomeWin(3, 2, 59)
	if !(damped < undamped) {
		t.Errorf("empty-net window should boost the trailing side, lowering the leader's raw probability: damped=%v undamped=%v", damped, undamped)
	}
}

func TestProbabilityClampBounds(t *testing.T) {
	blowout := PHome(game(model.SportSoccer, 10, 0, 90), true)
	if blowout > probMax {
		t.Errorf("blowout probability %v exceeds clamp max %v", blowout, probMax)
	}
	reverse := PHome(game(model.SportSoccer, 0, 10, 90), true)
	if reverse < probMin {
		t.Errorf("reverse blowout probability %v below clamp min %v", reverse, probMin)
	}
}

func TestTennisSetDiffTable(t *testing.T) {
	cases := []struct {
		homeSets, awaySets int
		want               float64
	}{
		{0, 0, 0.50},
		{1, 0, 0.72},
		{0, 1, 0.28},
		{2, 0, 0.97},
	}
	for _, c := range cases {
		got := PHome(game(model.SportTennis, c.homeSets, c.awaySets, 0), true)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("tennis %d-%d: got %v, want %v", c.homeSets, c.awaySets, got, c.want)
		}
	}
}

func TestFallbackUsedForUnknownSport(t *testing.T) {
	g := game(model.OtherSport("cricket"), 1, 0, 30)
	p := PHome(g, true)
	if p <= 0.5 {
		t.Errorf("home lead under fallback model should exceed 0.5, got %v", p)
	}
}

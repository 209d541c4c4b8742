package winprob

import (
	"math"

	"github.com/tradecore/inplay/internal/model"
)

const (
	hockeyGameMinutes    = 60.0
	hockeyK              = 0.50
	hockeyHomeAdvantage  = 0.02
	hockeyEmptyNetWindow = 2.0
)

// hockeyRawHomeWin implements σ(0.50·diff·√(60/remaining)), with an
// empty-net adjustment: a one-goal game inside the last two minutes sees
// the trailing side pull its goalie, boosting its comeback odds by
// 0.03·(1−remaining/2); home advantage is added last.
func hockeyRawHomeWin(homeScore, awayScore int, minute float64) float64 {
	diff := float64(homeScore - awayScore)
	remaining := math.Max(hockeyGameMinutes-minute, 0.25)

	x := hockeyK * diff * math.Sqrt(hockeyGameMinutes/remaining)
	raw := sigmoid(x)

	if math.Abs(diff) == 1 && remaining <= hockeyEmptyNetWindow {
		boost := 0.03 * (1 - remaining/2)
		raw = raw - math.Copysign(boost, diff)
	}

	return raw + hockeyHomeAdvantage
}

func hockeyWinProb(g model.LiveGame, forHome bool) float64 {
	raw := hockeyRawHomeWin(g.HomeScore, g.AwayScore, g.Minute)
	if forHome {
		return clampProb(raw)
	}
	return clampProb(1 - raw)
}

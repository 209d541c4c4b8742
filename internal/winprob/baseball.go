package winprob

import (
	"math"

	"github.com/tradecore/inplay/internal/model"
)

const (
	baseballTotalInnings   = 9.0
	baseballK              = 1.20
	baseballHomeAdvantage  = 0.03
)

// baseballRawHomeWin implements σ(1.20·diff/√(9−inning)) + home advantage.
// The game's Minute field is overloaded to carry the current inning here
// (see the doc comment on model.LiveGame); innings beyond 9 (extras) are
// floored to a single inning remaining rather than a negative radicand.
func baseballRawHomeWin(homeScore, awayScore int, inning float64) float64 {
	diff := float64(homeScore - awayScore)
	remaining := math.Max(baseballTotalInnings-inning, 1.0)
	x := baseballK * diff / math.Sqrt(remaining)
	return sigmoid(x) + baseballHomeAdvantage
}

func baseballWinProb(g model.LiveGame, forHome bool) float64 {
	raw := baseballRawHomeWin(g.HomeScore, g.AwayScore, g.Minute)
	if forHome {
		return clampProb(raw)
	}
	return clampProb(1 - raw)
}

package winprob

import (
	"math"

	"github.com/tradecore/inplay/internal/model"
)

const (
	fallbackGameMinutes   = 90.0
	fallbackK             = 0.20
	fallbackHomeAdvantage = 0.02
)

// fallbackRawHomeWin implements σ(0.20·diff·√(90/remaining)) + home
// advantage, used for any sport without a dedicated model.
func fallbackRawHomeWin(homeScore, awayScore int, minute float64) float64 {
	diff := float64(homeScore - awayScore)
	remaining := math.Max(fallbackGameMinutes-minute, 0.5)
	x := fallbackK * diff * math.Sqrt(fallbackGameMinutes/remaining)
	return sigmoid(x) + fallbackHomeAdvantage
}

func fallbackWinProb(g model.LiveGame, forHome bool) float64 {
	raw := fallbackRawHomeWin(g.HomeScore, g.AwayScore, g.Minute)
	if forHome {
		return clampProb(raw)
	}
	return clampProb(1 - raw)
}

package winprob

import (
	"math"

	"github.com/tradecore/inplay/internal/model"
)

const (
	basketballGameMinutes  = 48.0
	basketballK            = 0.50
	basketballHomeAdvantage = 0.035
)

// basketballRawHomeWin implements σ(k·margin/√remaining) + home advantage,
// where margin is the home lead and remaining is the clock left in the
// full 48-minute game.
func basketballRawHomeWin(homeScore, awayScore int, minute float64) float64 {
	remaining := math.Max(basketballGameMinutes-minute, 0.5)
	margin := float64(homeScore - awayScore)
	x := basketballK * margin / math.Sqrt(remaining)
	return sigmoid(x) + basketballHomeAdvantage
}

func basketballWinProb(g model.LiveGame, forHome bool) float64 {
	raw := basketballRawHomeWin(g.HomeScore, g.AwayScore, g.Minute)
	if forHome {
		return clampProb(raw)
	}
	return clampProb(1 - raw)
}

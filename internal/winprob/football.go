package winprob

import (
	"math"

	"github.com/tradecore/inplay/internal/model"
)

const (
	footballGameMinutes      = 60.0
	footballMinutesPerPoss   = 5.0
	footballK                = 0.26
	footballHomeAdvantage    = 0.03
)

// footballPossessionsRemaining estimates the number of offensive
// possessions left in the game from the clock, floored at 0.5 so the
// model never divides by zero in the closing seconds.
func footballPossessionsRemaining(minute float64) float64 {
	remainingMinutes := math.Max(footballGameMinutes-minute, 0)
	poss := remainingMinutes / footballMinutesPerPoss
	return math.Max(poss, 0.5)
}

// footballRawHomeWin implements σ(0.26·diff/√possessions) + home advantage.
func footballRawHomeWin(homeScore, awayScore int, minute float64) float64 {
	diff := float64(homeScore - awayScore)
	poss := footballPossessionsRemaining(minute)
	x := footballK * diff / math.Sqrt(poss)
	return sigmoid(x) + footballHomeAdvantage
}

func footballWinProb(g model.LiveGame, forHome bool) float64 {
	raw := footballRawHomeWin(g.HomeScore, g.AwayScore, g.Minute)
	if forHome {
		return clampProb(raw)
	}
	return clampProb(1 - raw)
}

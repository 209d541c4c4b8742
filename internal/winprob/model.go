package winprob

import "github.com/tradecore/inplay/internal/model"

// PHome returns the in-play win probability for one side of a game,
// dispatching to the sport-specific model. forHome=true asks for the
// home side's probability, forHome=false for the away side's; because
// the away value is always clampProb(1-raw), the two calls sum to
// exactly 1 regardless of which sport's model produced the raw value.
func PHome(g model.LiveGame, forHome bool) float64 {
	switch g.Sport {
	case model.SportSoccer:
		return soccerWinProb(g, forHome)
	case model.SportBasketball:
		return basketballWinProb(g, forHome)
	case model.SportFootball:
		return footballWinProb(g, forHome)
	case model.SportBaseball:
		return baseballWinProb(g, forHome)
	case model.SportHockey:
		return hockeyWinProb(g, forHome)
	case model.SportTennis:
		return tennisWinProb(g, forHome)
	default:
		return fallbackWinProb(g, forHome)
	}
}

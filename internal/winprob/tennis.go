package winprob

import "github.com/tradecore/inplay/internal/model"

// tennisSetDiffTable is the discrete set-difference lookup. HomeScore/
// AwayScore carry sets won for tennis, the same overload pattern baseball
// applies to Minute.
var tennisSetDiffTable = map[int]float64{
	-1: 0.28,
	0:  0.50,
	1:  0.72,
}

func tennisRawHomeWin(homeSets, awaySets int) float64 {
	diff := homeSets - awaySets
	if diff >= 2 {
		return 0.97
	}
	if diff <= -2 {
		return 0.03
	}
	return tennisSetDiffTable[diff]
}

func tennisWinProb(g model.LiveGame, forHome bool) float64 {
	raw := tennisRawHomeWin(g.HomeScore, g.AwayScore)
	if forHome {
		return clampProb(raw)
	}
	return clampProb(1 - raw)
}

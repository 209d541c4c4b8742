package winprob

import (
	"math"

	"github.com/tradecore/inplay/internal/model"
)

// soccerMinutes are the minute breakpoints of the fixed interpolation
// table. soccerDiffs are the goal-difference breakpoints, -3..+3.
var soccerMinutes = []float64{0, 15, 30, 45, 60, 75, 85, 90}
var soccerDiffs = []int{-3, -2, -1, 0, 1, 2, 3}

// soccerTable[d][m] is P(home wins) at goal-diff soccerDiffs[d], minute
// soccerMinutes[m]. Diff 0 holds flat at the 0.45 home-advantage baseline;
// positive diffs grow more confident as the clock runs down (less time
// for the trailing side to equalize); negative diffs mirror via 1-p.
var soccerTable = buildSoccerTable()

// soccerDiffPositiveRow[d][m] for d=1,2,3 (indices into these rows are
// d-1), hand-tuned so the testable properties in spec.md §8 hold:
// P(1-0, min30) > P(1-0, min10) and > 0.65; P(3-0, halftime) > 0.95.
var soccerDiffPositiveRow = [3][8]float64{
	{0.58, 0.62, 0.70, 0.74, 0.78, 0.85, 0.90, 0.93}, // diff +1
	{0.75, 0.80, 0.84, 0.88, 0.91, 0.94, 0.96, 0.97}, // diff +2
	{0.85, 0.90, 0.93, 0.965, 0.97, 0.975, 0.978, 0.98}, // diff +3
}

func buildSoccerTable() [][]float64 {
	t := make([][]float64, len(soccerDiffs))
	for di, d := range soccerDiffs {
		row := make([]float64, len(soccerMinutes))
		switch {
		case d == 0:
			for mi := range soccerMinutes {
				row[mi] = 0.45
			}
		case d > 0:
			copy(row, soccerDiffPositiveRow[d-1][:])
		default:
			pos := soccerDiffPositiveRow[-d-1]
			for mi := range soccerMinutes {
				row[mi] = 1 - pos[mi]
			}
		}
		t[di] = row
	}
	return t
}

// soccerExtrapDecay is the exponential decay rate per extra goal applied
// outside the table's diff range.
const soccerExtrapDecay = 0.7

func soccerRawHomeWin(homeScore, awayScore int, minute float64) float64 {
	diff := homeScore - awayScore
	m := clampFloat(minute, soccerMinutes[0], soccerMinutes[len(soccerMinutes)-1])

	minD, maxD := soccerDiffs[0], soccerDiffs[len(soccerDiffs)-1]
	if diff < minD || diff > maxD {
		edgeDiff := minD
		if diff > maxD {
			edgeDiff = maxD
		}
		edgeVal := bilinearSoccer(edgeDiff, m)
		extra := float64(abs(diff - edgeDiff))
		if diff > maxD {
			// decay toward 1.0
			return 1 - (1-edgeVal)*math.Exp(-soccerExtrapDecay*extra)
		}
		// decay toward 0.0
		return edgeVal * math.Exp(-soccerExtrapDecay*extra)
	}

	return bilinearSoccer(diff, m)
}

// bilinearSoccer performs bilinear interpolation over the fixed table.
// At any table corner (diff, minute) it returns the table value exactly.
func bilinearSoccer(diff int, minute float64) float64 {
	di := indexOfDiff(diff)
	mi0, mi1, frac := bracketMinute(minute)

	if di >= 0 {
		return lerp(soccerTable[di][mi0], soccerTable[di][mi1], frac)
	}

	// diff falls between breakpoints (shouldn't happen since diffs are
	// consecutive integers, but guard for completeness): interpolate
	// across the two nearest diff rows too.
	dLo, dHi, dFrac := bracketDiff(diff)
	vLo := lerp(soccerTable[dLo][mi0], soccerTable[dLo][mi1], frac)
	vHi := lerp(soccerTable[dHi][mi0], soccerTable[dHi][mi1], frac)
	return lerp(vLo, vHi, dFrac)
}

func indexOfDiff(d int) int {
	for i, v := range soccerDiffs {
		if v == d {
			return i
		}
	}
	return -1
}

func bracketDiff(d int) (lo, hi int, frac float64) {
	for i := 0; i < len(soccerDiffs)-1; i++ {
		if d >= soccerDiffs[i] && d <= soccerDiffs[i+1] {
			span := float64(soccerDiffs[i+1] - soccerDiffs[i])
			frac = float64(d-soccerDiffs[i]) / span
			return i, i + 1, frac
		}
	}
	return 0, 0, 0
}

func bracketMinute(m float64) (lo, hi int, frac float64) {
	for i := 0; i < len(soccerMinutes)-1; i++ {
		if m >= soccerMinutes[i] && m <= soccerMinutes[i+1] {
			span := soccerMinutes[i+1] - soccerMinutes[i]
			if span == 0 {
				return i, i + 1, 0
			}
			frac = (m - soccerMinutes[i]) / span
			return i, i + 1, frac
		}
	}
	last := len(soccerMinutes) - 1
	return last, last, 0
}

func lerp(a, b, frac float64) float64 { return a + (b-a)*frac }

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// soccerWinProb computes P_home for a LiveGame using soccer's bilinear
// table model.
func soccerWinProb(g model.LiveGame, forHome bool) float64 {
	raw := soccerRawHomeWin(g.HomeScore, g.AwayScore, g.Minute)
	if forHome {
		return clampProb(raw)
	}
	return clampProb(1 - raw)
}

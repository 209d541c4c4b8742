// Package risk implements PortfolioRisk (spec.md §4.11): exposure caps
// across event/sport/league/team dimensions plus an effective-exposure
// correlation check, evaluated against the currently open positions
// before any new entry is accepted.
package risk

import (
	"math"
	"strings"

	"github.com/tradecore/inplay/internal/model"
)

// OpenExposure is the subset of an open Position's fields PortfolioRisk
// needs to evaluate a new candidate against.
type OpenExposure struct {
	SizeUSD   float64
	EventID   string
	EventName string
	Sport     model.Sport
	League    string
	MarketID  string
}

// Candidate is a prospective new position being sized against the
// current book.
type Candidate struct {
	SizeUSD   float64
	EventID   string
	EventName string
	Sport     model.Sport
	League    string
	MarketID  string
}

// Limits is PortfolioRisk's static configuration (spec.md §6).
type Limits struct {
	MaxEventExposureFraction     float64
	MaxSportExposureFraction     float64
	MaxLeagueExposureFraction    float64
	MaxTeamExposureFraction      float64
	MaxPositionsPerEvent         int
	MaxEffectiveExposureFraction float64

	CorrelationSameEvent  float64
	CorrelationSameTeam   float64
	CorrelationSameLeague float64
	CorrelationSameSport  float64
}

// Verdict is the result of one risk evaluation.
type Verdict struct {
	Allowed bool
	Reason  string
}

// normalizedTeamOverlap reports whether a and b share a team name,
// tested by normalized substring containment of whole words per
// spec.md §4.11 — not a containment check of the full event-name
// strings, which would almost never match across two different events.
func normalizedTeamOverlap(a, b string) bool {
	an, bn := strings.ToLower(a), strings.ToLower(b)
	if an == "" || bn == "" {
		return false
	}
	for _, tokA := range strings.Fields(an) {
		if len(tokA) < 4 {
			continue
		}
		if strings.Contains(bn, tokA) {
			return true
		}
	}
	return false
}

func correlation(open OpenExposure, cand Candidate, lim Limits) float64 {
	if open.MarketID != "" && open.MarketID == cand.MarketID {
		return lim.CorrelationSameEvent
	}
	if open.EventID == cand.EventID && open.EventID != "" {
		return lim.CorrelationSameEvent
	}
	if normalizedTeamOverlap(open.EventName, cand.EventName) {
		return lim.CorrelationSameTeam
	}
	if open.League == cand.League && open.League != "" {
		return lim.CorrelationSameLeague
	}
	if open.Sport == cand.Sport {
		return lim.CorrelationSameSport
	}
	return 0
}

// Evaluate checks a Candidate of size S against the open book and
// current equity, rejecting on the first exposure cap it violates per
// spec.md §4.11.
func Evaluate(open []OpenExposure, cand Candidate, cash, equity float64, lim Limits) Verdict {
	if cand.SizeUSD < 1 {
		return Verdict{Reason: "stake below $1 minimum"}
	}
	if cand.SizeUSD > cash {
		return Verdict{Reason: "stake exceeds available cash"}
	}
	if equity <= 0 {
		return Verdict{Reason: "equity must be positive to evaluate exposure fractions"}
	}

	var eventSum, sportSum, leagueSum, teamSum float64
	eventPositions := 0

	for _, o := range open {
		if o.EventID == cand.EventID {
			eventSum += o.SizeUSD
			eventPositions++
		}
		if o.Sport == cand.Sport {
			sportSum += o.SizeUSD
		}
		if o.League == cand.League {
			leagueSum += o.SizeUSD
		}
		if normalizedTeamOverlap(o.EventName, cand.EventName) {
			teamSum += o.SizeUSD
		}
	}

	if (eventSum+cand.SizeUSD)/equity > lim.MaxEventExposureFraction {
		return Verdict{Reason: "per-event exposure fraction exceeded"}
	}
	if (sportSum+cand.SizeUSD)/equity > lim.MaxSportExposureFraction {
		return Verdict{Reason: "per-sport exposure fraction exceeded"}
	}
	if (leagueSum+cand.SizeUSD)/equity > lim.MaxLeagueExposureFraction {
		return Verdict{Reason: "per-league exposure fraction exceeded"}
	}
	if (teamSum+cand.SizeUSD)/equity > lim.MaxTeamExposureFraction {
		return Verdict{Reason: "per-team exposure fraction exceeded"}
	}
	if eventPositions+1 > lim.MaxPositionsPerEvent {
		return Verdict{Reason: "max positions per event exceeded"}
	}

	if eff := EffectiveExposure(open, cand, equity, lim); eff > lim.MaxEffectiveExposureFraction {
		return Verdict{Reason: "effective (correlation-weighted) exposure fraction exceeded"}
	}

	return Verdict{Allowed: true}
}

// EffectiveExposure computes √(Σᵢ Σⱼ wᵢ wⱼ ρᵢⱼ) over the open book plus
// the candidate, per spec.md §4.11.
func EffectiveExposure(open []OpenExposure, cand Candidate, equity float64, lim Limits) float64 {
	type weighted struct {
		w    float64
		name string // used to test self-correlation via position identity
		open OpenExposure
		isCandidate bool
	}

	positions := make([]weighted, 0, len(open)+1)
	for _, o := range open {
		positions = append(positions, weighted{w: o.SizeUSD / equity, open: o})
	}
	positions = append(positions, weighted{w: cand.SizeUSD / equity, isCandidate: true})

	var sum float64
	for i := range positions {
		for j := range positions {
			var rho float64
			switch {
			case i == j:
				rho = 1
			case positions[i].isCandidate && !positions[j].isCandidate:
				rho = correlation(positions[j].open, cand, lim)
			case positions[j].isCandidate && !positions[i].isCandidate:
				rho = correlation(positions[i].open, cand, lim)
			case positions[i].isCandidate && positions[j].isCandidate:
				rho = 1
			default:
				rho = sameBucketCorrelation(positions[i].open, positions[j].open, lim)
			}
			sum += positions[i].w * positions[j].w * rho
		}
	}
	if sum < 0 {
		sum = 0
	}
	return math.Sqrt(sum)
}

func sameBucketCorrelation(a, b OpenExposure, lim Limits) float64 {
	if a.EventID == b.EventID && a.EventID != "" {
		return lim.CorrelationSameEvent
	}
	if normalizedTeamOverlap(a.EventName, b.EventName) {
		return lim.CorrelationSameTeam
	}
	if a.League == b.League && a.League != "" {
		return lim.CorrelationSameLeague
	}
	if a.Sport == b.Sport {
		return lim.CorrelationSameSport
	}
	return 0
}

// Package scores implements multi-provider score consensus (spec.md
// §4.3), the shift-gate/dedup filter (§4.4), and the score-drop/overturn
// confirmation supplement built on top of them.
package scores

import (
	"time"

	"github.com/tradecore/inplay/internal/model"
)

// ProviderWeight is the fixed per-provider trust weight used to break
// consensus ties.
var ProviderWeight = map[string]float64{
	"polymarket":  1.00,
	"allsports":   0.95,
	"thesportsdb": 0.90,
}

const defaultProviderWeight = 0.85

func weightOf(provider string) float64 {
	if w, ok := ProviderWeight[provider]; ok {
		return w
	}
	return defaultProviderWeight
}

// Snapshot is one provider's view of a game at poll time.
type Snapshot struct {
	Provider  string
	EventID   string
	Sport     model.Sport
	League    string
	HomeTeam  string
	AwayTeam  string
	HomeScore int
	AwayScore int
	Minute    float64
	Status    model.GameStatus
	PolledAt  time.Time
}

type groupKey struct {
	homeScore int
	awayScore int
	minute    float64
	status    model.GameStatus
}

type group struct {
	key       groupKey
	snapshots []Snapshot
	weight    float64
}

// Consensus selects the winning snapshot for one event's provider poll
// round, per spec.md §4.3: group by (home_score, away_score, minute,
// status), pick the largest group, break ties by summed provider
// weight, then within the winning group choose the snapshot from the
// highest-weight provider with the largest minute.
func Consensus(snapshots []Snapshot) (Snapshot, int, bool) {
	if len(snapshots) == 0 {
		return Snapshot{}, 0, false
	}

	groups := make(map[groupKey]*group)
	order := make([]groupKey, 0, len(snapshots))
	for _, s := range snapshots {
		k := groupKey{s.HomeScore, s.AwayScore, s.Minute, s.Status}
		g, ok := groups[k]
		if !ok {
			g = &group{key: k}
			groups[k] = g
			order = append(order, k)
		}
		g.snapshots = append(g.snapshots, s)
		g.weight += weightOf(s.Provider)
	}

	var best *group
	for _, k := range order {
		g := groups[k]
		switch {
		case best == nil:
			best = g
		case len(g.snapshots) > len(best.snapshots):
			best = g
		case len(g.snapshots) == len(best.snapshots) && g.weight > best.weight:
			best = g
		}
	}

	winner := best.snapshots[0]
	for _, s := range best.snapshots[1:] {
		if weightOf(s.Provider) > weightOf(winner.Provider) {
			winner = s
			continue
		}
		if weightOf(s.Provider) == weightOf(winner.Provider) && s.Minute > winner.Minute {
			winner = s
		}
	}

	return winner, len(best.snapshots), true
}

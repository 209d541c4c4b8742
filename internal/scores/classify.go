package scores

import "github.com/tradecore/inplay/internal/model"

// Classify derives a ScoreEvent's EventType from the score delta
// relative to prev, using sport-specific rules per spec.md §4.3. homeDelta
// and awayDelta are the change in each side's score; Classify assumes
// exactly one side scored (the caller is responsible for emitting one
// event per scoring side if both changed in the same poll).
func Classify(sport model.Sport, homeDelta, awayDelta int) model.EventType {
	switch sport {
	case model.SportFootball:
		delta := homeDelta + awayDelta
		switch delta {
		case 6:
			return model.EventTouchdown
		case 3:
			return model.EventFieldGoal
		case 2:
			return model.EventSafety
		case 1:
			return model.EventExtraPoint
		default:
			return model.EventGoalGeneric
		}
	case model.SportBasketball:
		delta := homeDelta + awayDelta
		switch delta {
		case 3:
			return model.EventThreePointer
		case 2:
			return model.EventBasket
		case 1:
			return model.EventFreeThrow
		default:
			return model.EventPoint
		}
	case model.SportSoccer:
		if homeDelta > 0 {
			return model.EventGoalHome
		}
		return model.EventGoalAway
	case model.SportBaseball:
		return model.EventRun
	default:
		if homeDelta > 0 || awayDelta > 0 {
			return model.EventGoalGeneric
		}
		return model.EventPoint
	}
}

// Changed reports whether cur differs from prev in any score component,
// the trigger condition for emitting a ScoreEvent per spec.md §4.3.
func Changed(prev, cur model.LiveGame) bool {
	return prev.HomeScore != cur.HomeScore || prev.AwayScore != cur.AwayScore
}

// BuildEvent constructs the ScoreEvent emitted for a consensus snapshot
// against the previous known game state.
func BuildEvent(prev model.LiveGame, snap Snapshot, consensusCount int) model.ScoreEvent {
	homeDelta := snap.HomeScore - prev.HomeScore
	awayDelta := snap.AwayScore - prev.AwayScore

	eventType := Classify(snap.Sport, homeDelta, awayDelta)
	if homeDelta < 0 || awayDelta < 0 {
		eventType = model.EventCorrection
	}

	return model.ScoreEvent{
		EventID:        snap.EventID,
		Sport:          snap.Sport,
		League:         snap.League,
		HomeTeam:       snap.HomeTeam,
		AwayTeam:       snap.AwayTeam,
		PrevHomeScore:  prev.HomeScore,
		PrevAwayScore:  prev.AwayScore,
		HomeScore:      snap.HomeScore,
		AwayScore:      snap.AwayScore,
		Minute:         snap.Minute,
		Type:           eventType,
		Provider:       snap.Provider,
		ConsensusCount: consensusCount,
		DetectedAt:     snap.PolledAt,
	}
}

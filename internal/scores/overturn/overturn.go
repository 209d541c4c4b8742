// Package overturn implements the score-drop/overturn confirmation
// supplement described in SPEC_FULL.md: when a provider correction
// lowers a score that was already acted on, the engine needs to confirm
// whether the drop is itself correct before clearing downstream dedup
// state, rather than trusting every correction blindly.
package overturn

import (
	"time"

	"github.com/tradecore/inplay/internal/model"
)

// Record is a detected score-drop awaiting confirmation.
type Record struct {
	EventID        string
	League         string
	DroppedFrom    [2]int // home, away before the drop
	DroppedTo      [2]int // home, away after the drop
	FirstObserved  time.Time
	Confirmations  int
	Confirmed      bool
}

// Tracker holds one in-flight Record per event id and confirms a drop
// once it has been repeated confirmSamples times within confirmWindow.
type Tracker struct {
	confirmSamples int
	confirmWindow  time.Duration
	records        map[string]*Record
}

func NewTracker(confirmSamples int, confirmWindow time.Duration) *Tracker {
	return &Tracker{
		confirmSamples: confirmSamples,
		confirmWindow:  confirmWindow,
		records:        make(map[string]*Record),
	}
}

// Observe records a correction-type ScoreEvent (a score that moved
// backward relative to the prior snapshot) and reports whether the drop
// is now confirmed. On a confirmed drop the engine clears the idempotency
// guard of the event's (sport, league) lane; the shift gate's fingerprints
// are not cleared and expire on their own TTL.
func (t *Tracker) Observe(ev model.ScoreEvent, now time.Time) (confirmed bool) {
	if ev.Type != model.EventCorrection {
		return false
	}

	r, ok := t.records[ev.EventID]
	if !ok || now.Sub(r.FirstObserved) > t.confirmWindow {
		r = &Record{
			EventID:       ev.EventID,
			League:        ev.League,
			DroppedFrom:   [2]int{ev.PrevHomeScore, ev.PrevAwayScore},
			DroppedTo:     [2]int{ev.HomeScore, ev.AwayScore},
			FirstObserved: now,
		}
		t.records[ev.EventID] = r
	}

	if r.DroppedTo != [2]int{ev.HomeScore, ev.AwayScore} {
		// a different correction arrived before confirmation; restart.
		r.DroppedTo = [2]int{ev.HomeScore, ev.AwayScore}
		r.Confirmations = 0
	}

	r.Confirmations++
	if r.Confirmations >= t.confirmSamples {
		r.Confirmed = true
		delete(t.records, ev.EventID)
		return true
	}
	return false
}

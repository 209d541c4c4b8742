package model

import (
	"fmt"
	"time"
)

// LiveGame is the current state of one game as merged from score
// providers. For baseball, Minute is overloaded to carry the current
// inning (1..12) rather than an elapsed-time clock — see the baseball
// model in internal/winprob for the one call site that interprets it
// that way.
type LiveGame struct {
	EventID  string
	Sport    Sport
	League   string
	HomeTeam string
	AwayTeam string

	HomeScore int
	AwayScore int
	Minute    float64
	Status    GameStatus

	ScheduledStart time.Time
	UpdatedAt      time.Time
}

// EventType labels a ScoreEvent by the kind of scoring play that produced
// it, classified per-sport from the score delta.
type EventType string

const (
	EventGoalHome     EventType = "goal_home"
	EventGoalAway     EventType = "goal_away"
	EventTouchdown    EventType = "touchdown"
	EventFieldGoal    EventType = "field_goal"
	EventSafety       EventType = "safety"
	EventExtraPoint   EventType = "extra_point"
	EventThreePointer EventType = "three_pointer"
	EventBasket       EventType = "basket"
	EventFreeThrow    EventType = "free_throw"
	EventRun          EventType = "run"
	EventGoalGeneric  EventType = "goal"
	EventPoint        EventType = "point"
	EventCorrection   EventType = "correction"
)

// ScoreEvent is a detected change relative to the previous LiveGame
// snapshot for one event id.
type ScoreEvent struct {
	EventID  string
	Sport    Sport
	League   string
	HomeTeam string
	AwayTeam string

	PrevHomeScore int
	PrevAwayScore int
	HomeScore     int
	AwayScore     int
	Minute        float64

	Type EventType

	Provider         string
	ConsensusCount   int
	DetectedAt       time.Time
}

// Fingerprint returns the shift-gate dedup key per spec.md §4.4:
// (event_id, home, away, minute, type, league).
func (e ScoreEvent) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%d-%d|%d", e.EventID, e.League, e.Type, e.HomeScore, e.AwayScore, int(e.Minute))
}

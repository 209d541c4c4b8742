package scores

import (
	"github.com/tradecore/inplay/internal/model"
	"github.com/tradecore/inplay/internal/telemetry"
)

const channelCapacity = 1024

// Hub carries ScoreEvents from the consensus layer to the engine's
// decision loop (where the shift gate runs) over a bounded channel; overflow is a logged
// drop rather than a fatal condition, per spec.md §4.3.
type Hub struct {
	events chan model.ScoreEvent
}

func NewHub() *Hub {
	return &Hub{events: make(chan model.ScoreEvent, channelCapacity)}
}

// Events returns the read side of the bounded channel for the engine's
// decision loop to range over.
func (h *Hub) Events() <-chan model.ScoreEvent {
	return h.events
}

// Publish attempts a non-blocking send, logging and counting a drop on
// overflow instead of blocking the poll loop.
func (h *Hub) Publish(ev model.ScoreEvent) {
	select {
	case h.events <- ev:
		telemetry.Metrics.ScoreEventsAccepted.Inc()
	default:
		telemetry.Metrics.ScoreEventsDropped.Inc()
		telemetry.Warnf("score event channel full, dropping event for %s", ev.EventID)
	}
}

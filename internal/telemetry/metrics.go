package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the global Prometheus registry for the engine. Counters and
// gauges are grouped by the pipeline stage that updates them, mirroring
// spec.md §2's control-flow stages.
var Metrics = struct {
	ScoreEventsReceived  prometheus.Counter
	ScoreEventsAccepted  prometheus.Counter
	ScoreEventsDropped   prometheus.Counter
	GateRejections       *prometheus.CounterVec
	OrdersPlaced         prometheus.Counter
	OrderErrors          prometheus.Counter
	PositionsOpen        prometheus.Gauge
	PositionsClosed      *prometheus.CounterVec
	QuoteMarksWS         prometheus.Counter
	QuoteMarksREST       prometheus.Counter
	FeedHealthTripped    prometheus.Gauge
	DecisionLatency      prometheus.Histogram
	RealizedPnL          prometheus.Gauge
}{
	ScoreEventsReceived: promauto.NewCounter(prometheus.CounterOpts{
		Name: "inplay_score_events_received_total",
		Help: "Score events received from the consensus layer.",
	}),
	ScoreEventsAccepted: promauto.NewCounter(prometheus.CounterOpts{
		Name: "inplay_score_events_accepted_total",
		Help: "Score events enqueued onto the decision channel.",
	}),
	ScoreEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
		Name: "inplay_score_events_dropped_total",
		Help: "Score events dropped because the bounded channel was full.",
	}),
	GateRejections: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inplay_gate_rejections_total",
		Help: "Entry decisions rejected, labeled by gate.",
	}, []string{"gate"}),
	OrdersPlaced: promauto.NewCounter(prometheus.CounterOpts{
		Name: "inplay_orders_placed_total",
		Help: "Entry orders successfully placed.",
	}),
	OrderErrors: promauto.NewCounter(prometheus.CounterOpts{
		Name: "inplay_order_errors_total",
		Help: "Entry order placements that failed at the exchange adapter.",
	}),
	PositionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inplay_positions_open",
		Help: "Currently open positions.",
	}),
	PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inplay_positions_closed_total",
		Help: "Closed positions, labeled by close status.",
	}, []string{"status"}),
	QuoteMarksWS: promauto.NewCounter(prometheus.CounterOpts{
		Name: "inplay_quote_marks_ws_total",
		Help: "Position marks served from the WS price table.",
	}),
	QuoteMarksREST: promauto.NewCounter(prometheus.CounterOpts{
		Name: "inplay_quote_marks_rest_total",
		Help: "Position marks that fell back to REST.",
	}),
	FeedHealthTripped: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inplay_feed_health_tripped",
		Help: "1 when the feed-health breaker is currently tripped.",
	}),
	DecisionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inplay_decision_latency_seconds",
		Help:    "Wall-clock time from score event detection to entry decision.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}),
	RealizedPnL: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inplay_realized_pnl_usd_cumulative",
		Help: "Cumulative realized PnL in USD across all closed positions.",
	}),
}

// Handler returns the /metrics HTTP handler for the Prometheus scraper.
func Handler() http.Handler {
	return promhttp.Handler()
}

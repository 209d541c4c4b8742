// Package config loads the engine's configuration surface (spec.md §6)
// from environment variables (optionally backed by a .env file) layered
// with a YAML risk-limits file, and validates every documented range.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full configuration surface enumerated in spec.md §6.
type Config struct {
	DryRun         bool
	InitialBalance float64

	KellyFraction       float64
	StopLossFraction    float64
	TakeProfitFraction  float64
	MinEdge             float64
	ExpectedFeeBps      float64
	ExpectedSlippageBps float64

	LatencyMaxScoreAgeMs    int64
	LatencyMinExpectedMove  float64
	LatencyMinResidualMove  float64
	LatencyMaxPricedInRatio float64

	WSPriceMaxAgeMs         int64
	MaxEntryQuoteDivergence float64

	AdaptiveMinEdgeMaxAddon      float64
	AdaptiveDivergenceTightening float64

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

	MaxDailyDrawdownFraction float64
	MaxTradesPerDay          int

	FeedHealthMaxRestFallbackRate float64
	FeedHealthMaxWSAgeMs          int64
	FeedHealthMinSamples          int
	FeedHealthCooldownSecs        int
	FeedHealthFlattenAfterSecs    int

	MaxPositionAgeSecs int64

	CalibrationEnabled              bool
	CalibrationIntervalSecs         int
	CalibrationMinSamplesPerSport   int
	CalibrationMinRelativeImprove   float64
	CalibrationMaxIters             int
	CalibrationLearningRate         float64
	CalibrationL2                   float64

	ScoreEventDedupWindowSecs int
	PollIntervalSecs         int

	ScoreDropConfirmSecs    int
	LaneMaxOpenOrders       int
	LaneMaxSpendCents       int64
	LaneThrottleMs          int64

	ScoreEventsRetentionDays   int
	BalanceHistoryRetentionDays int

	SweepIntervalSecs int

	RiskLimitsPath string
	StorePath      string
	LogLevel       string
	MetricsAddr    string

	ExchangeKeyID   string
	ExchangeKeyFile string
	ExchangeBaseURL string
	ExchangeWSURL   string

	ScoreProviderName    string
	ScoreProviderBaseURL string
}

// Load reads the environment (optionally from a .env file) into a Config
// with the teacher's documented defaults, then validates every range.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{
		DryRun:         envBool("DRY_RUN", true),
		InitialBalance: envFloat("INITIAL_BALANCE", 1000),

		KellyFraction:       envFloat("KELLY_FRACTION", 0.25),
		StopLossFraction:    envFloat("STOP_LOSS_FRACTION", 0.50),
		TakeProfitFraction:  envFloat("TAKE_PROFIT_FRACTION", 0.30),
		MinEdge:             envFloat("MIN_EDGE", 0.05),
		ExpectedFeeBps:      envFloat("EXPECTED_FEE_BPS", 100),
		ExpectedSlippageBps: envFloat("EXPECTED_SLIPPAGE_BPS", 50),

		LatencyMaxScoreAgeMs:    envInt64("LATENCY_MAX_SCORE_AGE_MS", 800),
		LatencyMinExpectedMove:  envFloat("LATENCY_MIN_EXPECTED_MOVE", 0.02),
		LatencyMinResidualMove:  envFloat("LATENCY_MIN_RESIDUAL_MOVE", 0.01),
		LatencyMaxPricedInRatio: envFloat("LATENCY_MAX_PRICED_IN_RATIO", 0.70),

		WSPriceMaxAgeMs:         envInt64("WS_PRICE_MAX_AGE_MS", 2000),
		MaxEntryQuoteDivergence: envFloat("MAX_ENTRY_QUOTE_DIVERGENCE", 0.08),

		AdaptiveMinEdgeMaxAddon:      envFloat("ADAPTIVE_MIN_EDGE_MAX_ADDON", 0.05),
		AdaptiveDivergenceTightening: envFloat("ADAPTIVE_DIVERGENCE_TIGHTENING", 0.5),

		MaxEventExposureFraction:     envFloat("MAX_EVENT_EXPOSURE_FRACTION", 0.20),
		MaxSportExposureFraction:     envFloat("MAX_SPORT_EXPOSURE_FRACTION", 0.50),
		MaxLeagueExposureFraction:    envFloat("MAX_LEAGUE_EXPOSURE_FRACTION", 0.35),
		MaxTeamExposureFraction:      envFloat("MAX_TEAM_EXPOSURE_FRACTION", 0.25),
		MaxPositionsPerEvent:         envInt("MAX_POSITIONS_PER_EVENT", 2),
		MaxEffectiveExposureFraction: envFloat("MAX_EFFECTIVE_EXPOSURE_FRACTION", 0.30),

		CorrelationSameEvent:  envFloat("CORRELATION_SAME_EVENT", 1.0),
		CorrelationSameTeam:   envFloat("CORRELATION_SAME_TEAM", 0.70),
		CorrelationSameLeague: envFloat("CORRELATION_SAME_LEAGUE", 0.35),
		CorrelationSameSport:  envFloat("CORRELATION_SAME_SPORT", 0.20),

		MaxDailyDrawdownFraction: envFloat("MAX_DAILY_DRAWDOWN_FRACTION", 0.10),
		MaxTradesPerDay:          envInt("MAX_TRADES_PER_DAY", 200),

		FeedHealthMaxRestFallbackRate: envFloat("FEED_HEALTH_MAX_REST_FALLBACK_RATE", 0.70),
		FeedHealthMaxWSAgeMs:          envInt64("FEED_HEALTH_MAX_WS_AGE_MS", 4000),
		FeedHealthMinSamples:          envInt("FEED_HEALTH_MIN_SAMPLES", 6),
		FeedHealthCooldownSecs:        envInt("FEED_HEALTH_COOLDOWN_SECS", 60),
		FeedHealthFlattenAfterSecs:    envInt("FEED_HEALTH_FLATTEN_AFTER_SECS", 120),

		MaxPositionAgeSecs: envInt64("MAX_POSITION_AGE_SECS", 6*3600),

		CalibrationEnabled:            envBool("CALIBRATION_ENABLED", true),
		CalibrationIntervalSecs:       envInt("CALIBRATION_INTERVAL_SECS", 3600),
		CalibrationMinSamplesPerSport: envInt("CALIBRATION_MIN_SAMPLES_PER_SPORT", 8),
		CalibrationMinRelativeImprove: envFloat("CALIBRATION_MIN_RELATIVE_IMPROVEMENT", 0.02),
		CalibrationMaxIters:           envInt("CALIBRATION_MAX_ITERS", 500),
		CalibrationLearningRate:       envFloat("CALIBRATION_LEARNING_RATE", 0.1),
		CalibrationL2:                 envFloat("CALIBRATION_L2", 0.001),

		ScoreEventDedupWindowSecs: envInt("SCORE_EVENT_DEDUP_WINDOW_SECS", 20),
		PollIntervalSecs:          envInt("POLL_INTERVAL_SECS", 2),

		ScoreDropConfirmSecs: envInt("SCORE_DROP_CONFIRM_SECS", 30),
		LaneMaxOpenOrders:    envInt("LANE_MAX_OPEN_ORDERS", 3),
		LaneMaxSpendCents:    envInt64("LANE_MAX_SPEND_CENTS", 50000),
		LaneThrottleMs:       envInt64("LANE_THROTTLE_MS", 2000),

		ScoreEventsRetentionDays:    envInt("SCORE_EVENTS_RETENTION_DAYS", 30),
		BalanceHistoryRetentionDays: envInt("BALANCE_HISTORY_RETENTION_DAYS", 90),

		SweepIntervalSecs: envInt("SWEEP_INTERVAL_SECS", 5),

		RiskLimitsPath: envStr("RISK_LIMITS_PATH", "internal/config/risk_limits.yaml"),
		StorePath:      envStr("STORE_PATH", "data/inplay.db"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		MetricsAddr:    envStr("METRICS_ADDR", ":9400"),

		ExchangeKeyID:   envStr("EXCHANGE_KEYID", ""),
		ExchangeKeyFile: envStr("EXCHANGE_KEYFILE", ""),
		ExchangeBaseURL: envStr("EXCHANGE_BASE_URL", "https://api.elections.kalshi.com/trade-api/v2"),
		ExchangeWSURL:   envStr("EXCHANGE_WS_URL", "wss://api.elections.kalshi.com/trade-api/ws/v2"),

		ScoreProviderName:    envStr("SCORE_PROVIDER_NAME", "goalserve"),
		ScoreProviderBaseURL: envStr("SCORE_PROVIDER_BASE_URL", ""),
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate enforces every range in spec.md §6. A violation is fatal at
// startup per §7's error-handling table.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		ok   bool
	}{
		{"kelly_fraction", inRange(c.KellyFraction, 0, 1)},
		{"stop_loss_fraction", inRange(c.StopLossFraction, 0, 1)},
		{"take_profit_fraction", inRange(c.TakeProfitFraction, 0, 10)},
		{"min_edge", inRange(c.MinEdge, 0, 1)},
		{"expected_fee_bps", inRange(c.ExpectedFeeBps, 0, 1000)},
		{"expected_slippage_bps", inRange(c.ExpectedSlippageBps, 0, 1000)},
		{"ws_price_max_age_ms", inRangeInt64(c.WSPriceMaxAgeMs, 1, 60000)},
		{"max_entry_quote_divergence", inRange(c.MaxEntryQuoteDivergence, 0, 0.5)},
		{"adaptive_min_edge_max_addon", inRange(c.AdaptiveMinEdgeMaxAddon, 0, 1)},
		{"adaptive_divergence_tightening", inRange(c.AdaptiveDivergenceTightening, 0, 1)},
		{"max_event_exposure_fraction", inRange(c.MaxEventExposureFraction, 0, 1)},
		{"max_sport_exposure_fraction", inRange(c.MaxSportExposureFraction, 0, 1)},
		{"max_league_exposure_fraction", inRange(c.MaxLeagueExposureFraction, 0, 1)},
		{"max_team_exposure_fraction", inRange(c.MaxTeamExposureFraction, 0, 1)},
		{"max_positions_per_event", c.MaxPositionsPerEvent >= 1},
		{"max_effective_exposure_fraction", inRange(c.MaxEffectiveExposureFraction, 0, 1)},
		{"correlation_same_event", inRange(c.CorrelationSameEvent, 0, 1)},
		{"correlation_same_team", inRange(c.CorrelationSameTeam, 0, 1)},
		{"correlation_same_league", inRange(c.CorrelationSameLeague, 0, 1)},
		{"correlation_same_sport", inRange(c.CorrelationSameSport, 0, 1)},
		{"max_daily_drawdown_fraction", inRange(c.MaxDailyDrawdownFraction, 0, 1)},
		{"max_trades_per_day", c.MaxTradesPerDay >= 1},
		{"feed_health_max_rest_fallback_rate", inRange(c.FeedHealthMaxRestFallbackRate, 0, 1)},
		{"max_position_age_secs", inRangeInt64(c.MaxPositionAgeSecs, 1, 7*24*3600)},
		{"score_event_dedup_window_secs", inRangeInt(c.ScoreEventDedupWindowSecs, 1, 600)},
		{"score_drop_confirm_secs", inRangeInt(c.ScoreDropConfirmSecs, 1, 600)},
		{"lane_max_open_orders", c.LaneMaxOpenOrders >= 1},
		{"lane_max_spend_cents", c.LaneMaxSpendCents >= 1},
		{"lane_throttle_ms", c.LaneThrottleMs >= 0},
		{"score_events_retention_days", c.ScoreEventsRetentionDays > 0},
		{"balance_history_retention_days", c.BalanceHistoryRetentionDays > 0},
	}

	for _, check := range checks {
		if !check.ok {
			return fmt.Errorf("config: %s out of range", check.name)
		}
	}
	return nil
}

func inRange(v, lo, hi float64) bool     { return v >= lo && v <= hi }
func inRangeInt(v, lo, hi int) bool      { return v >= lo && v <= hi }
func inRangeInt64(v, lo, hi int64) bool  { return v >= lo && v <= hi }

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return fallback
}

// SweepInterval returns the position-manager sweep cadence as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

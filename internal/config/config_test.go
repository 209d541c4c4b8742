package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		KellyFraction:                 0.25,
		StopLossFraction:              0.5,
		TakeProfitFraction:            0.3,
		MinEdge:                       0.05,
		ExpectedFeeBps:                100,
		ExpectedSlippageBps:           50,
		WSPriceMaxAgeMs:               2000,
		MaxEntryQuoteDivergence:       0.08,
		AdaptiveMinEdgeMaxAddon:       0.05,
		AdaptiveDivergenceTightening:  0.5,
		MaxEventExposureFraction:      0.20,
		MaxSportExposureFraction:      0.50,
		MaxLeagueExposureFraction:     0.35,
		MaxTeamExposureFraction:       0.25,
		MaxPositionsPerEvent:          2,
		MaxEffectiveExposureFraction:  0.30,
		CorrelationSameEvent:          1.0,
		CorrelationSameTeam:           0.70,
		CorrelationSameLeague:         0.35,
		CorrelationSameSport:          0.20,
		MaxDailyDrawdownFraction:      0.10,
		MaxTradesPerDay:               200,
		FeedHealthMaxRestFallbackRate: 0.70,
		MaxPositionAgeSecs:            6 * 3600,
		ScoreEventDedupWindowSecs:     20,
		ScoreDropConfirmSecs:          30,
		LaneMaxOpenOrders:             3,
		LaneMaxSpendCents:             50000,
		LaneThrottleMs:                0,
		ScoreEventsRetentionDays:      30,
		BalanceHistoryRetentionDays:   90,
	}
}

func TestValidateAcceptsBaseline(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected baseline config to validate, got: %v", err)
	}
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"kelly_fraction", func(c *Config) { c.KellyFraction = 1.5 }},
		{"stop_loss_fraction", func(c *Config) { c.StopLossFraction = -0.1 }},
		{"min_edge", func(c *Config) { c.MinEdge = -0.01 }},
		{"ws_price_max_age_ms", func(c *Config) { c.WSPriceMaxAgeMs = 0 }},
		{"max_entry_quote_divergence", func(c *Config) { c.MaxEntryQuoteDivergence = 0.9 }},
		{"max_positions_per_event", func(c *Config) { c.MaxPositionsPerEvent = 0 }},
		{"correlation_same_event", func(c *Config) { c.CorrelationSameEvent = 1.2 }},
		{"max_daily_drawdown_fraction", func(c *Config) { c.MaxDailyDrawdownFraction = 1.1 }},
		{"max_trades_per_day", func(c *Config) { c.MaxTradesPerDay = 0 }},
		{"max_position_age_secs", func(c *Config) { c.MaxPositionAgeSecs = 0 }},
		{"score_event_dedup_window_secs", func(c *Config) { c.ScoreEventDedupWindowSecs = 0 }},
		{"lane_max_open_orders", func(c *Config) { c.LaneMaxOpenOrders = 0 }},
		{"lane_max_spend_cents", func(c *Config) { c.LaneMaxSpendCents = 0 }},
		{"lane_throttle_ms", func(c *Config) { c.LaneThrottleMs = -1 }},
		{"score_events_retention_days", func(c *Config) { c.ScoreEventsRetentionDays = 0 }},
		{"balance_history_retention_days", func(c *Config) { c.BalanceHistoryRetentionDays = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected %s out of range to be rejected", tc.name)
			}
		})
	}
}

func TestLoadPopulatesDefaultsFromEnvironment(t *testing.T) {
	t.Setenv("KELLY_FRACTION", "0.1")
	t.Setenv("STORE_PATH", filepath.Join(t.TempDir(), "inplay.db"))
	t.Setenv("RISK_LIMITS_PATH", filepath.Join(t.TempDir(), "missing-risk-limits.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.KellyFraction != 0.1 {
		t.Errorf("expected KELLY_FRACTION override to apply, got %v", cfg.KellyFraction)
	}
	if cfg.ExpectedFeeBps != 100 {
		t.Errorf("expected EXPECTED_FEE_BPS default to apply, got %v", cfg.ExpectedFeeBps)
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("KELLY_FRACTION", "2.0")
	t.Setenv("STORE_PATH", filepath.Join(t.TempDir(), "inplay.db"))

	if _, err := Load(); err == nil {
		t.Fatal("expected Load to reject an out-of-range KELLY_FRACTION")
	}
}

func TestLoadRiskLimitsMissingFileReturnsEmpty(t *testing.T) {
	limits, err := LoadRiskLimits(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected no error for a missing risk limits file, got: %v", err)
	}
	if len(limits) != 0 {
		t.Errorf("expected empty RiskLimits, got %+v", limits)
	}
}

func TestLoadRiskLimitsParsesSportAndLeagueOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk_limits.yaml")
	yamlBody := `
soccer:
  max_sport_exposure_fraction: 0.40
  leagues:
    epl:
      max_event_exposure_fraction: 0.15
      throttle_ms: 3000
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write risk limits fixture: %v", err)
	}

	limits, err := LoadRiskLimits(path)
	if err != nil {
		t.Fatalf("LoadRiskLimits: %v", err)
	}

	sport, ok := limits.SportLimit("soccer")
	if !ok {
		t.Fatal("expected a soccer sport limit entry")
	}
	if sport.MaxSportExposureFraction == nil || *sport.MaxSportExposureFraction != 0.40 {
		t.Errorf("unexpected soccer max_sport_exposure_fraction: %+v", sport.MaxSportExposureFraction)
	}

	league, ok := limits.LeagueOverride("soccer", "epl")
	if !ok {
		t.Fatal("expected an epl league override")
	}
	if league.MaxEventExposureFraction == nil || *league.MaxEventExposureFraction != 0.15 {
		t.Errorf("unexpected epl max_event_exposure_fraction: %+v", league.MaxEventExposureFraction)
	}
	if league.ThrottleMs != 3000 {
		t.Errorf("expected throttle_ms 3000, got %d", league.ThrottleMs)
	}

	if _, ok := limits.LeagueOverride("soccer", "la_liga"); ok {
		t.Error("expected no override for an unconfigured league")
	}
	if _, ok := limits.SportLimit("basketball"); ok {
		t.Error("expected no limit entry for an unconfigured sport")
	}
}

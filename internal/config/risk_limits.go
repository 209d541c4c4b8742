package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LeagueOverride lets one league tighten the sport-level exposure
// defaults — e.g. a thinner league gets a smaller per-event cap.
// ThrottleMs is parsed but not applied: the engine's idempotency lanes
// all use the config-wide LANE_THROTTLE_MS interval.
type LeagueOverride struct {
	MaxEventExposureFraction *float64 `yaml:"max_event_exposure_fraction"`
	ThrottleMs               int64    `yaml:"throttle_ms"`
}

// SportLimits is one sport's section of the risk-limits file.
type SportLimits struct {
	MaxSportExposureFraction *float64                  `yaml:"max_sport_exposure_fraction"`
	Leagues                  map[string]LeagueOverride `yaml:"leagues"`
}

// RiskLimits is the full parsed risk-limits YAML, keyed by sport.
type RiskLimits map[string]SportLimits

// LoadRiskLimits reads and parses the risk-limits YAML file. A missing
// file is not an error — callers fall back to Config's scalar defaults.
func LoadRiskLimits(path string) (RiskLimits, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return RiskLimits{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read risk limits: %w", err)
	}

	var limits RiskLimits
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return nil, fmt.Errorf("parse risk limits: %w", err)
	}
	return limits, nil
}

func (rl RiskLimits) SportLimit(sport string) (SportLimits, bool) {
	sl, ok := rl[sport]
	return sl, ok
}

func (rl RiskLimits) LeagueOverride(sport, league string) (LeagueOverride, bool) {
	sl, ok := rl[sport]
	if !ok {
		return LeagueOverride{}, false
	}
	lo, ok := sl.Leagues[league]
	return lo, ok
}

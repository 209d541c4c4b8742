package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tradecore/inplay/internal/calibration"
	"github.com/tradecore/inplay/internal/config"
	"github.com/tradecore/inplay/internal/model"
	"github.com/tradecore/inplay/internal/store"
	"github.com/tradecore/inplay/internal/telemetry"
	"github.com/tradecore/inplay/internal/winprob"
)

// leagueCSVs mirrors football-data.co.uk's per-season result files,
// used to seed a soccer calibration model before enough live closed
// trades have accumulated for OnlineCalibration to fit one on its own.
var leagueCSVs = map[string][]string{
	"epl": {
		"https://www.football-data.co.uk/mmz4281/2425/E0.csv",
		"https://www.football-data.co.uk/mmz4281/2324/E0.csv",
	},
	"la_liga": {
		"https://www.football-data.co.uk/mmz4281/2425/SP1.csv",
		"https://www.football-data.co.uk/mmz4281/2324/SP1.csv",
	},
	"bundesliga": {
		"https://www.football-data.co.uk/mmz4281/2425/D1.csv",
		"https://www.football-data.co.uk/mmz4281/2324/D1.csv",
	},
}

func backfillOddsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-odds",
		Short: "Seed the soccer calibration model from historical half-time/full-time results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			telemetry.Init(parseLogLevel(cfg.LogLevel))

			st, err := store.Open(cfg.StorePath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			var samples []calibration.Sample
			for league, urls := range leagueCSVs {
				for _, url := range urls {
					matches, err := downloadMatches(url)
					if err != nil {
						telemetry.Warnf("backfill-odds: %s/%s: %v", league, url, err)
						continue
					}
					samples = append(samples, toSamples(matches)...)
				}
			}
			if len(samples) == 0 {
				return fmt.Errorf("backfill-odds: no usable historical rows downloaded")
			}

			result, err := calibration.Fit(model.SportSoccer, samples, cfg.CalibrationMaxIters, cfg.CalibrationLearningRate, cfg.CalibrationL2, cfg.CalibrationMinRelativeImprove)
			if err != nil {
				return fmt.Errorf("fit soccer calibration: %w", err)
			}
			if !result.Promoted {
				telemetry.Infof("backfill-odds: fit not promoted: %s", result.Reason)
				return nil
			}

			ctx := context.Background()
			if err := st.SaveCalibrationModel(ctx, result.Model); err != nil {
				return fmt.Errorf("save calibration model: %w", err)
			}
			telemetry.Infof("backfill-odds: seeded soccer calibration a=%.4f b=%.4f samples=%d", result.Model.A, result.Model.B, result.Model.Samples)
			return nil
		},
	}
}

type historicalMatch struct {
	htHomeGoals, htAwayGoals int
	ftHomeGoals, ftAwayGoals int
}

func downloadMatches(url string) ([]historicalMatch, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	required := []string{"FTHG", "FTAG", "HTHG", "HTAG"}
	for _, r := range required {
		if _, ok := col[r]; !ok {
			return nil, fmt.Errorf("missing column: %s", r)
		}
	}

	var out []historicalMatch
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		m := historicalMatch{
			htHomeGoals: colInt(row, col, "HTHG"),
			htAwayGoals: colInt(row, col, "HTAG"),
			ftHomeGoals: colInt(row, col, "FTHG"),
			ftAwayGoals: colInt(row, col, "FTAG"),
		}
		out = append(out, m)
	}
	return out, nil
}

func colInt(row []string, col map[string]int, name string) int {
	idx, ok := col[name]
	if !ok || idx >= len(row) {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(row[idx]))
	return n
}

// toSamples turns each historical match's half-time state into a raw
// win-probability prediction, checked against the actual full-time
// winner, per spec.md §4.2's calibration-sample shape.
func toSamples(matches []historicalMatch) []calibration.Sample {
	samples := make([]calibration.Sample, 0, len(matches))
	for _, m := range matches {
		if m.ftHomeGoals == m.ftAwayGoals {
			continue // draws have no home/away outcome to calibrate against
		}
		g := model.LiveGame{
			Sport:     model.SportSoccer,
			HomeScore: m.htHomeGoals,
			AwayScore: m.htAwayGoals,
			Minute:    45,
			Status:    model.GameInProgress,
		}
		samples = append(samples, calibration.Sample{
			PRaw:    winprob.PHome(g, true),
			Outcome: m.ftHomeGoals > m.ftAwayGoals,
		})
	}
	return samples
}

// Command trader is the single-process entrypoint: it wires config,
// store, exchange, and score providers into an internal/engine.Engine
// and runs it until SIGINT/SIGTERM, alongside offline calibration and
// odds-backfill utility subcommands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradecore/inplay/internal/adapters/exchange"
	"github.com/tradecore/inplay/internal/adapters/scoreprovider"
	"github.com/tradecore/inplay/internal/config"
	"github.com/tradecore/inplay/internal/engine"
	"github.com/tradecore/inplay/internal/store"
	"github.com/tradecore/inplay/internal/telemetry"
)

func main() {
	root := &cobra.Command{
		Use:   "trader",
		Short: "In-play sports prediction-market trading engine",
	}
	root.AddCommand(runCmd(), calibrateCmd(), backfillOddsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the live decision engine until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			telemetry.Init(parseLogLevel(cfg.LogLevel))
			telemetry.Infof("trader: starting, dry_run=%v store=%s", cfg.DryRun, cfg.StorePath)

			st, err := store.Open(cfg.StorePath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			signer, err := exchange.NewSignerFromFile(cfg.ExchangeKeyID, cfg.ExchangeKeyFile)
			if err != nil {
				telemetry.Warnf("trader: exchange signer unavailable, running unauthenticated: %v", err)
			}

			exch := exchange.New(cfg.ExchangeBaseURL, cfg.ExchangeWSURL, signer, nil)

			providers := []scoreprovider.Provider{
				scoreprovider.NewRESTProvider(cfg.ScoreProviderName, cfg.ScoreProviderBaseURL, time.Duration(cfg.PollIntervalSecs)*time.Second),
			}

			eng, err := engine.New(cfg, st, exch, providers)
			if err != nil {
				return fmt.Errorf("construct engine: %w", err)
			}

			if addr := cfg.MetricsAddr; addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", telemetry.Handler())
				go func() {
					if err := http.ListenAndServe(addr, mux); err != nil {
						telemetry.Warnf("trader: metrics server stopped: %v", err)
					}
				}()
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				telemetry.Infof("trader: shutdown signal received")
				cancel()
			}()

			if err := eng.Run(ctx); err != nil {
				return fmt.Errorf("engine run: %w", err)
			}
			telemetry.Infof("trader: shutdown complete")
			return nil
		},
	}
}

func calibrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate",
		Short: "Run one offline OnlineCalibration pass over closed positions and exit",
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

			signer, err := exchange.NewSignerFromFile(cfg.ExchangeKeyID, cfg.ExchangeKeyFile)
			if err != nil {
				telemetry.Warnf("trader: exchange signer unavailable, running unauthenticated: %v", err)
			}
			exch := exchange.New(cfg.ExchangeBaseURL, cfg.ExchangeWSURL, signer, nil)

			eng, err := engine.New(cfg, st, exch, nil)
			if err != nil {
				return fmt.Errorf("construct engine: %w", err)
			}

			eng.RunCalibrationOnce(context.Background())
			telemetry.Infof("trader: calibration pass complete")
			return nil
		},
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

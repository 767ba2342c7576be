// Polymarket PnL — a position ledger and PnL reconciliation engine for
// Polymarket conditional-token accounts.
//
// Architecture:
//
//	main.go              — entry point: loads config, runs a batch, optionally serves results
//	runner/runner.go     — orchestrator: resolutions → per-account pipeline, bounded concurrency
//	normalize/           — raw activity rows → canonical events, paired-leg consolidation
//	ledger/ledger.go     — signed-quantity average-cost fold, settlement, dust clamping
//	oracle/              — resolution payout snapshot + mark-price fallback chain
//	pnl/                 — wallet-style classifier, the two PnL formulas, metric aggregation
//	dataapi/client.go    — REST clients for the public data and CLOB APIs (rate-limited, retried)
//	store/               — JSON report persistence, resolution cache, Postgres activity source
//	api/                 — read-only HTTP/WebSocket results server
//
// What it computes:
//
//	For each configured account the engine replays the complete activity
//	history into per-(market, outcome) positions, settles resolved markets
//	against their payout vectors, marks what is still open, classifies the
//	account's trading style, and reports PnL under both the position-based
//	and maker-spread formulas along with win-rate and risk-adjusted ratios.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"polymarket-pnl/internal/api"
	"polymarket-pnl/internal/config"
	"polymarket-pnl/internal/dataapi"
	"polymarket-pnl/internal/runner"
	"polymarket-pnl/internal/store"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("PNL_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	run, cleanup, err := buildRunner(ctx, cfg, st, logger)
	if err != nil {
		logger.Error("failed to build runner", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// One-shot mode: run a single batch and exit with its status.
	if !cfg.Server.Enabled {
		if err := run.Run(ctx); err != nil {
			logger.Error("batch run had failures", "error", err)
			os.Exit(1)
		}
		return
	}

	// Server mode: serve results and recompute on an interval.
	apiServer := api.NewServer(cfg.Server.Port, run, logger)
	run.SetRefreshHook(apiServer.NotifyRefresh)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("results server failed", "error", err)
			cancel()
		}
	}()
	logger.Info("results server started", "url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port))

	if err := run.Run(ctx); err != nil {
		logger.Error("batch run had failures", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Server.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := run.Run(ctx); err != nil {
				logger.Error("batch run had failures", "error", err)
			}
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig.String())
			if err := apiServer.Stop(); err != nil {
				logger.Error("failed to stop results server", "error", err)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// buildRunner wires the configured activity source into a runner. The CLOB
// client serves resolutions and quotes in both modes; in postgres mode
// activity and resolutions come from the database instead and the CLOB only
// supplies quotes.
func buildRunner(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*runner.Runner, func(), error) {
	client := dataapi.NewClient(cfg.Source, logger)
	cleanup := func() {}

	var (
		activity    runner.ActivitySource
		resolutions runner.ResolutionSource
	)
	switch cfg.Source.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Source.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := store.NewPostgresSource(pool)
		activity, resolutions = pg, pg
		cleanup = pool.Close
	default:
		activity, resolutions = client, client
	}

	return runner.New(cfg, activity, resolutions, client, st, logger), cleanup, nil
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

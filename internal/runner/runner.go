// Package runner orchestrates batch reconciliation runs.
//
// One run loads the shared resolution snapshot, then computes every
// configured account through the full pipeline: fetch, normalize,
// consolidate, fold, settle, mark, aggregate, persist. Accounts are
// independent, so they run concurrently up to the configured bound; the
// bound exists to respect upstream rate limits, not correctness. A failed
// account never blocks the others.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"polymarket-pnl/internal/config"
	"polymarket-pnl/internal/ledger"
	"polymarket-pnl/internal/normalize"
	"polymarket-pnl/internal/oracle"
	"polymarket-pnl/internal/pnl"
	"polymarket-pnl/internal/store"
	"polymarket-pnl/pkg/types"
)

// ActivitySource supplies the raw activity history for one account.
// Implemented by dataapi.Client and store.PostgresSource.
type ActivitySource interface {
	Activity(ctx context.Context, account string) ([]types.RawActivity, error)
}

// ResolutionSource supplies the bulk resolution snapshot.
type ResolutionSource interface {
	Resolutions(ctx context.Context) ([]types.MarketResolution, error)
}

// QuoteSource supplies live midpoint quotes for the mark-price chain.
type QuoteSource interface {
	Midpoint(ctx context.Context, marketID string, outcomeIndex int) (float64, error)
}

// Runner executes reconciliation batches and holds the latest metrics per
// account in memory for the API server.
type Runner struct {
	cfg         *config.Config
	source      ActivitySource
	resolutions ResolutionSource
	quotes      QuoteSource // nil when no live quote source is configured
	store       *store.Store
	normalizer  *normalize.Normalizer
	logger      *slog.Logger

	mu     sync.RWMutex
	latest map[string]types.AccountMetrics

	onRefresh func(runID string)
}

// New creates a runner. quotes may be nil.
func New(cfg *config.Config, source ActivitySource, resolutions ResolutionSource,
	quotes QuoteSource, st *store.Store, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:         cfg,
		source:      source,
		resolutions: resolutions,
		quotes:      quotes,
		store:       st,
		normalizer:  normalize.NewNormalizer(logger),
		logger:      logger.With("component", "runner"),
		latest:      make(map[string]types.AccountMetrics),
	}
}

// SetRefreshHook registers a callback invoked after every completed batch
// with its run ID. Used by the API server to push refresh notifications.
func (r *Runner) SetRefreshHook(fn func(runID string)) {
	r.onRefresh = fn
}

// Run executes one full batch over all configured accounts. Per-account
// failures are collected and returned joined after every account has been
// attempted; a partial batch still persists everything that succeeded.
func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.NewString()
	start := time.Now()
	r.logger.Info("batch run starting", "run_id", runID, "accounts", len(r.cfg.Accounts))

	res, err := r.loadResolutions(ctx)
	if err != nil {
		return fmt.Errorf("load resolutions: %w", err)
	}

	var (
		wg    sync.WaitGroup
		sem   = make(chan struct{}, r.cfg.Engine.Concurrency)
		errMu sync.Mutex
		errs  []error
	)
	for _, account := range r.cfg.Accounts {
		wg.Add(1)
		sem <- struct{}{}
		go func(account string) {
			defer wg.Done()
			defer func() { <-sem }()

			metrics, err := r.computeAccount(ctx, runID, account, res)
			if err != nil {
				r.logger.Error("account failed", "account", account, "error", err)
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", account, err))
				errMu.Unlock()
				return
			}

			if err := r.store.SaveReport(metrics); err != nil {
				r.logger.Error("report save failed", "account", account, "error", err)
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: save report: %w", account, err))
				errMu.Unlock()
			}

			r.mu.Lock()
			r.latest[metrics.Account] = metrics
			r.mu.Unlock()

			r.logger.Info("account reconciled",
				"account", account,
				"style", metrics.Style,
				"headline_pnl", metrics.HeadlinePnL,
				"positions", len(metrics.Positions))
		}(account)
	}
	wg.Wait()

	r.logger.Info("batch run finished",
		"run_id", runID,
		"duration", time.Since(start),
		"failed", len(errs))
	if r.onRefresh != nil {
		r.onRefresh(runID)
	}
	return errors.Join(errs...)
}

// computeAccount runs the full pipeline for one account.
func (r *Runner) computeAccount(ctx context.Context, runID, account string, res *oracle.ResolutionSet) (types.AccountMetrics, error) {
	rows, err := r.source.Activity(ctx, account)
	if err != nil {
		return types.AccountMetrics{}, fmt.Errorf("fetch activity: %w", err)
	}

	events, diags := r.normalizer.Normalize(rows)
	events, pairs := normalize.Consolidate(events, r.cfg.Engine.PairDecimals)
	diags.PairsConsolidated = pairs
	diags.MalformedResolution = res.Malformed()

	led := ledger.New(r.cfg.Engine.Epsilon)
	for _, ev := range events {
		led.Apply(ev)
	}
	led.Settle(res, r.cfg.ResolutionFeeRate())
	marks := led.MarkUnresolved(oracle.NewChain(res, r.quoteFunc(ctx)))
	diags.Merge(led.Diagnostics())

	metrics := pnl.Aggregate(pnl.Input{
		Account:       account,
		RunID:         runID,
		ComputedAt:    time.Now().UTC(),
		FormulaChoice: r.cfg.Engine.Formula,
		Positions:     led.Positions(),
		Marks:         marks,
		Returns:       led.Returns(),
		Profile:       pnl.Profile(events),
		Diagnostics:   diags,
	})
	return metrics, nil
}

// quoteFunc adapts the context-bound quote source to the mark-price chain.
// Quote failures degrade to the next rung of the chain, never fail the run.
func (r *Runner) quoteFunc(ctx context.Context) oracle.QuoteFunc {
	if r.quotes == nil {
		return nil
	}
	return func(marketID string, outcomeIndex int) (float64, bool) {
		mid, err := r.quotes.Midpoint(ctx, marketID, outcomeIndex)
		if err != nil {
			r.logger.Debug("midpoint unavailable", "market", marketID, "error", err)
			return 0, false
		}
		return mid, true
	}
}

// loadResolutions returns the shared resolution set for one run, from the
// disk cache when fresh enough, otherwise fetched and re-cached.
func (r *Runner) loadResolutions(ctx context.Context) (*oracle.ResolutionSet, error) {
	if cached, err := r.store.LoadResolutions(r.cfg.Store.ResolutionMaxAge); err != nil {
		return nil, err
	} else if cached != nil {
		r.logger.Debug("resolution snapshot loaded from cache", "markets", len(cached))
		return oracle.NewResolutionSet(cached), nil
	}

	raws, err := r.resolutions.Resolutions(ctx)
	if err != nil {
		return nil, err
	}
	res := oracle.ParseResolutions(raws, r.logger)
	if err := r.store.SaveResolutions(res.Snapshot()); err != nil {
		r.logger.Warn("resolution cache save failed", "error", err)
	}
	r.logger.Info("resolution snapshot fetched", "markets", res.Len(), "malformed", res.Malformed())
	return res, nil
}

// Latest returns the most recent metrics for one account, if any run has
// produced them.
func (r *Runner) Latest(account string) (types.AccountMetrics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.latest[account]
	return m, ok
}

// Reports returns the most recent metrics for every account, sorted by
// account address for stable output.
func (r *Runner) Reports() []types.AccountMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.AccountMetrics, 0, len(r.latest))
	for _, m := range r.latest {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"polymarket-pnl/pkg/types"
)

// PostgresSource reads activity rows from an analytics database instead of
// the public data API. The pnl_activity table mirrors the API's row shape;
// NUMERIC columns are selected as TEXT so the normalizer receives exact
// decimal strings, never lossy driver floats.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a Postgres-backed activity source.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Activity returns every activity row for one account, ordered by timestamp
// with the row ID as the stable tie-break.
func (s *PostgresSource) Activity(ctx context.Context, account string) ([]types.RawActivity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, ts, condition_id, outcome_index, activity_type,
		        side, size::TEXT, usdc_size::TEXT, price::TEXT,
		        is_maker, event_category
		 FROM pnl_activity
		 WHERE lower(account) = lower($1)
		 ORDER BY ts, id`, account)
	if err != nil {
		return nil, fmt.Errorf("query activity for %s: %w", account, err)
	}
	defer rows.Close()

	var out []types.RawActivity
	for rows.Next() {
		var r types.RawActivity
		if err := rows.Scan(&r.ID, &r.Account, &r.Timestamp, &r.ConditionID,
			&r.OutcomeIndex, &r.Type,
			&r.Side, &r.Size, &r.UsdcSize, &r.Price,
			&r.IsMaker, &r.Category); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Resolutions returns the payout vectors of every resolved market recorded
// in the analytics database. Payout vectors are stored as TEXT arrays in
// outcome-index order.
func (s *PostgresSource) Resolutions(ctx context.Context) ([]types.MarketResolution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT condition_id, payouts
		 FROM market_resolutions`)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	var out []types.MarketResolution
	for rows.Next() {
		var r types.MarketResolution
		if err := rows.Scan(&r.ConditionID, &r.Payouts); err != nil {
			return nil, fmt.Errorf("scan resolution row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

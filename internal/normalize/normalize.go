// Package normalize converts source-specific activity rows into canonical
// ledger events and collapses paired hedge legs.
//
// All parsing and fixed-point scaling lives here, at the ingestion boundary;
// everything downstream works in plain float64 shares and [0,1] prices.
package normalize

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-pnl/pkg/types"
)

// Raw integer amounts arrive in two fixed-point scales depending on which
// upstream table produced the row: 6-decimal (collateral-token units) or
// 18-decimal (on-chain wei-style units). The scale is not flagged on the
// row, so it is inferred from magnitude: an integer at or above 1e15 can
// only be an 18-decimal amount (it would mean a billion-share 6-decimal
// position, far beyond any real market). Strings carrying a decimal point
// are already in human units. This heuristic lives here and nowhere else.
var rawScaleCutoff = decimal.New(1, 15)

// Splits and merges convert between collateral and a full outcome set; each
// leg is booked at the midpoint of a binary market.
const completeSetLegPrice = 0.5

// Normalizer maps raw activity rows to canonical LedgerEvents.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a normalizer.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger.With("component", "normalizer")}
}

// Normalize converts rows into canonical events sorted by (timestamp,
// ingestion order). Rows that cannot be resolved to a market, carry
// unparsable numerics, or duplicate an already-seen event ID are excluded
// and counted; they never abort the batch.
func (n *Normalizer) Normalize(rows []types.RawActivity) ([]types.LedgerEvent, types.Diagnostics) {
	var diags types.Diagnostics
	events := make([]types.LedgerEvent, 0, len(rows))
	seen := make(map[string]bool, len(rows))

	for i, row := range rows {
		if row.ID != "" {
			if seen[row.ID] {
				continue
			}
			seen[row.ID] = true
		}
		if row.ConditionID == "" {
			diags.MissingMapping++
			continue
		}

		qty, ok := parseAmount(row.Size)
		if !ok || qty <= 0 {
			diags.MalformedNumeric++
			continue
		}
		usdc, usdcOK := parseAmount(row.UsdcSize)

		ts := time.Unix(row.Timestamp, 0).UTC()

		switch row.Type {
		case types.ActivityTrade:
			if row.OutcomeIndex < 0 {
				diags.MissingMapping++
				continue
			}
			ev, ok := n.tradeEvent(row, i, ts, qty, usdc, usdcOK)
			if !ok {
				diags.PriceOutOfRange++
				continue
			}
			events = append(events, ev)

		case types.ActivitySplit:
			events = append(events, completeSetLegs(row, i, ts, qty, types.BUY, types.SourceSplit)...)

		case types.ActivityMerge:
			events = append(events, completeSetLegs(row, i, ts, qty, types.SELL, types.SourceMerge)...)

		case types.ActivityRedeem:
			if row.OutcomeIndex < 0 {
				diags.MissingMapping++
				continue
			}
			// The row's own cash amount over its size is the actual payout
			// received, which already reflects the resolution price.
			price := 0.0
			if usdcOK && qty > 0 {
				price = usdc / qty
			}
			events = append(events, types.LedgerEvent{
				EventID:      row.ID,
				MarketID:     row.ConditionID,
				OutcomeIndex: row.OutcomeIndex,
				Timestamp:    ts,
				Seq:          i,
				Source:       types.SourceRedemption,
				Side:         types.SELL,
				Quantity:     qty,
				Price:        price,
				UsdcAmount:   usdc,
				Category:     row.Category,
			})

		case types.ActivityTransferIn, types.ActivityTransferOut:
			if row.OutcomeIndex < 0 {
				diags.MissingMapping++
				continue
			}
			side := types.BUY
			source := types.SourceTransferIn
			if row.Type == types.ActivityTransferOut {
				side = types.SELL
				source = types.SourceTransferOut
			}
			// Transfers move inventory without an order; when the source
			// supplies no valuation, book at the maximum-uncertainty prior.
			price, ok := parsePrice(row.Price)
			if !ok {
				price = completeSetLegPrice
			}
			events = append(events, types.LedgerEvent{
				EventID:      row.ID,
				MarketID:     row.ConditionID,
				OutcomeIndex: row.OutcomeIndex,
				Timestamp:    ts,
				Seq:          i,
				Source:       source,
				Side:         side,
				Quantity:     qty,
				Price:        price,
				UsdcAmount:   qty * price,
				Category:     row.Category,
			})

		default:
			n.logger.Warn("unknown activity type, row excluded", "type", row.Type, "id", row.ID)
			diags.MissingMapping++
		}
	}

	sortEvents(events)
	return events, diags
}

// tradeEvent maps one CLOB fill. The currency leg is carried from the row
// when present rather than re-derived, to avoid rounding drift against the
// venue's own accounting.
func (n *Normalizer) tradeEvent(row types.RawActivity, seq int, ts time.Time, qty, usdc float64, usdcOK bool) (types.LedgerEvent, bool) {
	price, ok := parsePrice(row.Price)
	if !ok || price < 0 || price > 1 {
		return types.LedgerEvent{}, false
	}
	side := types.Side(strings.ToUpper(row.Side))
	if side != types.BUY && side != types.SELL {
		return types.LedgerEvent{}, false
	}
	if !usdcOK {
		usdc = qty * price
	}
	return types.LedgerEvent{
		EventID:      row.ID,
		MarketID:     row.ConditionID,
		OutcomeIndex: row.OutcomeIndex,
		Timestamp:    ts,
		Seq:          seq,
		Source:       types.SourceCLOB,
		Side:         side,
		Quantity:     qty,
		Price:        price,
		UsdcAmount:   usdc,
		Maker:        row.IsMaker,
		Category:     row.Category,
	}, true
}

// completeSetLegs expands a split or merge into one leg per outcome of a
// binary market: a split is a simultaneous buy of both outcomes at 0.5, a
// merge the matching sell.
func completeSetLegs(row types.RawActivity, seq int, ts time.Time, qty float64, side types.Side, source types.EventSource) []types.LedgerEvent {
	legs := make([]types.LedgerEvent, 0, 2)
	for outcome := 0; outcome < 2; outcome++ {
		legs = append(legs, types.LedgerEvent{
			EventID:      fmt.Sprintf("%s:%d", row.ID, outcome),
			MarketID:     row.ConditionID,
			OutcomeIndex: outcome,
			Timestamp:    ts,
			Seq:          seq,
			Source:       source,
			Side:         side,
			Quantity:     qty,
			Price:        completeSetLegPrice,
			UsdcAmount:   qty * completeSetLegPrice,
			Category:     row.Category,
		})
	}
	return legs
}

// sortEvents orders events by timestamp with ingestion order as the stable
// tie-break, making the fold deterministic and repeatable.
func sortEvents(events []types.LedgerEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].Seq < events[j].Seq
	})
}

// parseAmount converts a size or currency string into human units, applying
// the fixed-point scale heuristic documented at the top of this file.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	if strings.ContainsRune(s, '.') {
		return d.InexactFloat64(), true
	}
	if d.Abs().GreaterThanOrEqual(rawScaleCutoff) {
		return d.Shift(-18).InexactFloat64(), true
	}
	return d.Shift(-6).InexactFloat64(), true
}

// parsePrice parses a price string; prices are never fixed-point scaled.
func parsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

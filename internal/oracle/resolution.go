// Package oracle supplies settlement and valuation prices to the ledger.
//
// ResolutionSet is the immutable payout snapshot for resolved markets,
// loaded once per batch run and shared read-only across concurrently
// processed accounts. Chain is the priority-ordered mark-price fallback used
// to value unresolved positions.
package oracle

import (
	"log/slog"
	"strconv"

	"polymarket-pnl/pkg/types"
)

// ResolutionSet maps marketID to its payout vector: one fraction in [0,1]
// per outcome index. Immutable once built; safe for concurrent readers
// without locking.
type ResolutionSet struct {
	payouts   map[string][]float64
	malformed int
}

// ParseResolutions builds a ResolutionSet from raw snapshot entries. A
// market whose payout vector fails to parse is treated as unresolved for all
// positions referencing it, and logged once per market rather than once per
// position.
func ParseResolutions(raws []types.MarketResolution, logger *slog.Logger) *ResolutionSet {
	set := &ResolutionSet{payouts: make(map[string][]float64, len(raws))}
	for _, raw := range raws {
		if raw.ConditionID == "" {
			set.malformed++
			logger.Warn("resolution entry missing market id, skipping")
			continue
		}
		vector, ok := parsePayoutVector(raw.Payouts)
		if !ok {
			set.malformed++
			logger.Warn("malformed payout vector, market treated as unresolved",
				"market", raw.ConditionID)
			continue
		}
		set.payouts[raw.ConditionID] = vector
	}
	return set
}

// NewResolutionSet wraps already-parsed payout vectors (cache restore path).
func NewResolutionSet(payouts map[string][]float64) *ResolutionSet {
	if payouts == nil {
		payouts = make(map[string][]float64)
	}
	return &ResolutionSet{payouts: payouts}
}

// Resolved reports whether the market has a usable payout vector.
func (r *ResolutionSet) Resolved(marketID string) bool {
	_, ok := r.payouts[marketID]
	return ok
}

// Payout returns the settlement fraction for one outcome of a resolved
// market. The second return is false when the market is unresolved or the
// outcome index is out of range for its vector.
func (r *ResolutionSet) Payout(marketID string, outcomeIndex int) (float64, bool) {
	vector, ok := r.payouts[marketID]
	if !ok {
		return 0, false
	}
	if outcomeIndex < 0 || outcomeIndex >= len(vector) {
		return 0, false
	}
	return vector[outcomeIndex], true
}

// Snapshot returns a copy of the underlying vectors for persistence.
func (r *ResolutionSet) Snapshot() map[string][]float64 {
	out := make(map[string][]float64, len(r.payouts))
	for id, vector := range r.payouts {
		cp := make([]float64, len(vector))
		copy(cp, vector)
		out[id] = cp
	}
	return out
}

// Malformed returns how many snapshot entries were rejected during parsing.
func (r *ResolutionSet) Malformed() int {
	return r.malformed
}

// Len returns the number of resolved markets in the set.
func (r *ResolutionSet) Len() int {
	return len(r.payouts)
}

// parsePayoutVector validates one raw vector: every entry must parse to a
// fraction in [0,1]. Fractional payouts are legitimate (multi-way or
// partially-resolved markets), so no sum check beyond per-entry range.
func parsePayoutVector(raw []string) ([]float64, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	vector := make([]float64, len(raw))
	for i, s := range raw {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 || f > 1 {
			return nil, false
		}
		vector[i] = f
	}
	return vector, true
}

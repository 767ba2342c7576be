// Package ledger implements the per-account position state machine.
//
// A Ledger folds one account's chronologically sorted event list into one
// inventory record per (market, outcome) key: signed quantity plus a
// weighted-average cost basis. Selling while long and buying while short
// realize PnL against the average entry price; settlement realizes the
// remainder once a market's payout vector is known; whatever is still open
// afterwards is valued at a mark price and reported as unrealized.
//
// The fold is synchronous and single-threaded: each account owns exactly one
// Ledger for the duration of its computation, so no locking is needed.
package ledger

import (
	"math"

	"polymarket-pnl/internal/oracle"
	"polymarket-pnl/pkg/types"
)

// Key identifies one position within an account.
type Key struct {
	MarketID     string
	OutcomeIndex int
}

// Ledger is the event-sourced inventory state for one account.
type Ledger struct {
	epsilon   float64
	positions map[Key]*types.Position
	order     []Key // creation order, for stable iteration
	returns   []types.TradeReturn
	diags     types.Diagnostics
}

// New creates an empty ledger. epsilon is the share-quantity magnitude below
// which a position is clamped to exactly zero.
func New(epsilon float64) *Ledger {
	return &Ledger{
		epsilon:   epsilon,
		positions: make(map[Key]*types.Position),
	}
}

// Apply folds one canonical event into the ledger.
//
// A buy that exceeds an existing short, or a sell that exceeds an existing
// long, flips the position's sign: that is legitimate short-selling (or
// re-longing) and is never rejected. A price outside [0,1] indicates
// corrupted upstream data; the event is skipped and counted, never clamped.
func (l *Ledger) Apply(ev types.LedgerEvent) {
	if ev.Price < 0 || ev.Price > 1 || math.IsNaN(ev.Price) {
		l.diags.PriceOutOfRange++
		return
	}
	if ev.Quantity <= 0 {
		return
	}

	pos := l.get(Key{ev.MarketID, ev.OutcomeIndex}, ev.Category)
	if pos.Resolved {
		// A settled position never trades again.
		return
	}

	switch ev.Side {
	case types.BUY:
		l.applyBuy(pos, ev)
	case types.SELL:
		l.applySell(pos, ev)
	default:
		return
	}

	pos.TradeCount++
	pos.LastTradePrice = ev.Price
	pos.LastTradeAt = ev.Timestamp
	l.clamp(pos)
	pos.CostBasis = pos.Quantity * pos.AvgPrice
}

// applyBuy closes short inventory first, then opens or extends a long with
// whatever quantity remains, recomputing the weighted-average entry price.
func (l *Ledger) applyBuy(pos *types.Position, ev types.LedgerEvent) {
	qty := ev.Quantity
	if pos.Quantity < 0 {
		closeQty := math.Min(qty, -pos.Quantity)
		// A short profits when the repurchase price is below the entry.
		pnl := closeQty * (pos.AvgPrice - ev.Price)
		pos.RealizedPnL += pnl
		l.recordReturn(pos, closeQty, pnl)
		pos.Quantity += closeQty
		qty -= closeQty
		if pos.Quantity == 0 {
			// Exact full cover. Sub-epsilon residue is left for clamp so it
			// is counted in the diagnostics.
			pos.AvgPrice = 0
		}
	}
	if qty > 0 {
		total := pos.AvgPrice*pos.Quantity + ev.Price*qty
		pos.Quantity += qty
		pos.AvgPrice = total / pos.Quantity
	}

	switch ev.Source {
	case types.SourceRedemption:
		pos.RedeemUsd += ev.UsdcAmount
	case types.SourceTransferIn, types.SourceTransferOut:
		// Transfers move inventory, not cash; their UsdcAmount is a
		// synthetic valuation and must not inflate traded volume.
	default:
		pos.BuyUsd += ev.UsdcAmount
	}
}

// applySell closes long inventory first, then opens or extends a short with
// whatever quantity remains.
func (l *Ledger) applySell(pos *types.Position, ev types.LedgerEvent) {
	qty := ev.Quantity
	if pos.Quantity > 0 {
		closeQty := math.Min(qty, pos.Quantity)
		pnl := closeQty * (ev.Price - pos.AvgPrice)
		pos.RealizedPnL += pnl
		l.recordReturn(pos, closeQty, pnl)
		pos.Quantity -= closeQty
		qty -= closeQty
		if pos.Quantity == 0 {
			pos.AvgPrice = 0
		}
	}
	if qty > 0 {
		// Short entries are averaged the same way long entries are, over the
		// absolute quantity sold short.
		total := pos.AvgPrice*(-pos.Quantity) + ev.Price*qty
		pos.Quantity -= qty
		pos.AvgPrice = total / (-pos.Quantity)
	}

	switch ev.Source {
	case types.SourceRedemption:
		pos.RedeemUsd += ev.UsdcAmount
	case types.SourceTransferIn, types.SourceTransferOut:
		// Same as the buy side: no cash changed hands.
	default:
		pos.SellUsd += ev.UsdcAmount
	}
}

// Settle realizes every open position in a resolved market against its
// payout fraction, then freezes the position. feeRate is the flat resolution
// fee charged on positive payout proceeds (shorts cover their liability in
// full; no fee applies to an obligation).
func (l *Ledger) Settle(res *oracle.ResolutionSet, feeRate float64) {
	for _, key := range l.order {
		pos := l.positions[key]
		if pos.Resolved {
			continue
		}
		if !res.Resolved(key.MarketID) {
			continue
		}
		payout, ok := res.Payout(key.MarketID, key.OutcomeIndex)
		if !ok {
			continue
		}

		if pos.Quantity > l.epsilon {
			proceeds := pos.Quantity * payout * (1 - feeRate)
			pnl := proceeds - pos.Quantity*pos.AvgPrice
			pos.RealizedPnL += pnl
			pos.RedeemUsd += proceeds
			l.recordReturn(pos, pos.Quantity, pnl)
		} else if pos.Quantity < -l.epsilon {
			short := -pos.Quantity
			pnl := short * (pos.AvgPrice - payout)
			pos.RealizedPnL += pnl
			l.recordReturn(pos, short, pnl)
		}

		pos.Quantity = 0
		pos.AvgPrice = 0
		pos.CostBasis = 0
		pos.Resolved = true
	}
}

// MarkUnresolved values every still-open position via the mark-price chain
// and returns the per-key mark prices. Marks feed unrealized PnL only.
func (l *Ledger) MarkUnresolved(chain *oracle.Chain) map[Key]float64 {
	marks := make(map[Key]float64)
	for _, key := range l.order {
		pos := l.positions[key]
		if pos.Resolved || pos.Quantity == 0 {
			continue
		}
		hasLast := pos.TradeCount > 0
		marks[key] = chain.Price(key.MarketID, key.OutcomeIndex, pos.LastTradePrice, hasLast)
	}
	return marks
}

// Positions returns all positions in creation order.
func (l *Ledger) Positions() []*types.Position {
	out := make([]*types.Position, 0, len(l.order))
	for _, key := range l.order {
		out = append(out, l.positions[key])
	}
	return out
}

// Position returns the record for one key, or nil if the key was never
// touched.
func (l *Ledger) Position(key Key) *types.Position {
	return l.positions[key]
}

// Returns lists every realization recorded so far, in fold order.
func (l *Ledger) Returns() []types.TradeReturn {
	return l.returns
}

// Diagnostics returns the counters accumulated during the fold.
func (l *Ledger) Diagnostics() types.Diagnostics {
	return l.diags
}

// RealizedPnL sums realized PnL across all positions.
func (l *Ledger) RealizedPnL() float64 {
	var total float64
	for _, pos := range l.positions {
		total += pos.RealizedPnL
	}
	return total
}

func (l *Ledger) get(key Key, category string) *types.Position {
	if pos, ok := l.positions[key]; ok {
		return pos
	}
	pos := &types.Position{
		MarketID:     key.MarketID,
		OutcomeIndex: key.OutcomeIndex,
		Category:     category,
	}
	l.positions[key] = pos
	l.order = append(l.order, key)
	return pos
}

// clamp zeroes quantities within epsilon of flat so floating-point residue
// never leaves a phantom open position (positions are zeroed, not left with
// residual basis).
func (l *Ledger) clamp(pos *types.Position) {
	if pos.Quantity != 0 && math.Abs(pos.Quantity) < l.epsilon {
		pos.Quantity = 0
		pos.AvgPrice = 0
		l.diags.DustClamped++
	}
}

// recordReturn appends one trade-return record. Realizations against a zero
// average entry carry no meaningful percentage and are excluded from ratio
// metrics.
func (l *Ledger) recordReturn(pos *types.Position, closedQty, pnl float64) {
	if pos.AvgPrice == 0 || closedQty == 0 {
		return
	}
	l.returns = append(l.returns, types.TradeReturn{
		MarketID:     pos.MarketID,
		OutcomeIndex: pos.OutcomeIndex,
		Amount:       pnl,
		Pct:          pnl / (closedQty * pos.AvgPrice),
	})
}

// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the PnL engine: raw activity
// rows, canonical ledger events, per-position inventory records, and the
// aggregated account metrics. It has no dependencies on internal packages,
// so it can be imported by any layer.
package types

import (
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of a trade leg: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// EventSource identifies where a canonical ledger event originated.
type EventSource string

const (
	SourceCLOB        EventSource = "clob"         // order-book fill
	SourceSplit       EventSource = "split"        // complete-set mint (collateral -> all outcomes)
	SourceMerge       EventSource = "merge"        // complete-set burn (all outcomes -> collateral)
	SourceRedemption  EventSource = "redemption"   // payout claim after resolution
	SourceTransferIn  EventSource = "transfer_in"  // inventory received without a matching order
	SourceTransferOut EventSource = "transfer_out" // inventory sent without a matching order
)

// WalletStyle classifies how an account trades, which selects the headline
// PnL formula. Maker-dominant accounts profit primarily from bid/ask spread;
// taker-dominant accounts from directional positions held to exit or
// resolution.
type WalletStyle string

const (
	StyleMakerDominant WalletStyle = "maker-dominant"
	StyleTakerDominant WalletStyle = "taker-dominant"
)

// Formula names for AccountMetrics.Formula.
const (
	FormulaPositionBased = "position-based"
	FormulaMakerSpread   = "maker-spread"
)

// Raw activity row types as delivered by the data API / analytics table.
const (
	ActivityTrade       = "TRADE"
	ActivitySplit       = "SPLIT"
	ActivityMerge       = "MERGE"
	ActivityRedeem      = "REDEEM"
	ActivityTransferIn  = "TRANSFER_IN"
	ActivityTransferOut = "TRANSFER_OUT"
)

// ————————————————————————————————————————————————————————————————————————
// Source rows
// ————————————————————————————————————————————————————————————————————————

// RawActivity is one row of account activity exactly as the upstream source
// delivers it. Size, UsdcSize and Price are strings because both the data
// API and the analytics store return fixed-point values as strings to
// preserve precision; the normalizer owns all parsing and scaling.
//
// A row whose ConditionID is empty or whose OutcomeIndex is negative could
// not be resolved to a market; such rows are excluded and counted in the
// missingMapping diagnostic, never silently dropped.
type RawActivity struct {
	ID           string `json:"id"`           // stable event ID for deduplication
	Account      string `json:"proxyWallet"`  // account address the row belongs to
	Timestamp    int64  `json:"timestamp"`    // unix seconds
	ConditionID  string `json:"conditionId"`  // market identifier ("" = unmapped)
	OutcomeIndex int    `json:"outcomeIndex"` // outcome slot within the market (-1 = unmapped)
	Type         string `json:"type"`         // TRADE, SPLIT, MERGE, REDEEM, TRANSFER_IN, TRANSFER_OUT
	Side         string `json:"side"`         // "BUY" or "SELL" (trades only)
	Size         string `json:"size"`         // share quantity, possibly raw fixed-point
	UsdcSize     string `json:"usdcSize"`     // currency amount, possibly raw fixed-point
	Price        string `json:"price"`        // price per share in [0,1] ("" on non-trades)
	IsMaker      bool   `json:"maker"`        // true if the account supplied liquidity on this fill
	Category     string `json:"eventCategory"`
}

// MarketResolution is one entry of the bulk resolution snapshot: the payout
// fraction per outcome index, as strings from the source.
type MarketResolution struct {
	ConditionID string   `json:"conditionId"`
	Payouts     []string `json:"payouts"` // one value in [0,1] per outcome index
}

// ————————————————————————————————————————————————————————————————————————
// Canonical events
// ————————————————————————————————————————————————————————————————————————

// LedgerEvent is the canonical event shape after normalization. Every source
// row maps to one or more LedgerEvents (splits and merges expand into one
// leg per outcome at price 0.5).
//
// Events for one account are processed in non-decreasing Timestamp order
// with Seq (ingestion order) as the tie-break, so the fold is deterministic
// and repeatable.
type LedgerEvent struct {
	EventID      string
	MarketID     string
	OutcomeIndex int
	Timestamp    time.Time
	Seq          int // ingestion order, stable tie-break within a timestamp
	Source       EventSource
	Side         Side
	Quantity     float64 // shares, always >= 0; Side carries the direction
	Price        float64 // per-share price in [0,1]
	UsdcAmount   float64 // currency leg, carried from the source row (not re-derived)
	Maker        bool
	Category     string
}

// ————————————————————————————————————————————————————————————————————————
// Positions
// ————————————————————————————————————————————————————————————————————————

// Position is the inventory record for one (market, outcome) key within a
// single account. Quantity is signed: positive = long, negative = short.
// CostBasis is sign-consistent with Quantity (a short carries the negative
// basis owed). Positions are created on first touch and never deleted; a
// fully-closed position stays in the ledger with Quantity 0 and its final
// RealizedPnL.
type Position struct {
	MarketID     string  `json:"market_id"`
	OutcomeIndex int     `json:"outcome_index"`
	Quantity     float64 `json:"quantity"`
	AvgPrice     float64 `json:"avg_price"`
	CostBasis    float64 `json:"cost_basis"`
	RealizedPnL  float64 `json:"realized_pnl"`

	// Cash flow per position, used for the conservation identity and for
	// volume rollups. RedeemUsd is tracked apart from SellUsd so the
	// maker-spread formula does not double-count redemption payouts.
	BuyUsd    float64 `json:"buy_usd"`
	SellUsd   float64 `json:"sell_usd"`
	RedeemUsd float64 `json:"redeem_usd"`

	TradeCount     int       `json:"trade_count"`
	Category       string    `json:"category"`
	Resolved       bool      `json:"resolved"`
	LastTradePrice float64   `json:"last_trade_price"`
	LastTradeAt    time.Time `json:"last_trade_at"`
}

// PositionSummary is the per-position slice of AccountMetrics: the final
// Position state plus its valuation at evaluation time.
type PositionSummary struct {
	Position
	MarkPrice     float64 `json:"mark_price"`     // 0 for resolved/flat positions
	UnrealizedPnL float64 `json:"unrealized_pnl"` // Quantity * (MarkPrice - AvgPrice), unresolved only
}

// TradeReturn records one realization event (sell, buy-to-cover, or
// settlement) for ratio metrics. Pct is the return relative to the average
// entry price; realizations with a zero entry price are excluded upstream.
type TradeReturn struct {
	MarketID     string  `json:"market_id"`
	OutcomeIndex int     `json:"outcome_index"`
	Amount       float64 `json:"amount"` // realized PnL in currency
	Pct          float64 `json:"pct"`    // realized PnL / (closed qty * avg entry price)
}

// ————————————————————————————————————————————————————————————————————————
// Diagnostics
// ————————————————————————————————————————————————————————————————————————

// Diagnostics accumulates per-event and per-position data problems. These
// attach to the final result instead of aborting the batch: a single
// malformed event must never sink an entire account's reconciliation.
type Diagnostics struct {
	MissingMapping      int `json:"missing_mapping"`      // rows without a resolvable market/outcome
	MalformedNumeric    int `json:"malformed_numeric"`    // rows whose size failed to parse or was nonpositive
	PriceOutOfRange     int `json:"price_out_of_range"`   // rejected events with price outside [0,1]
	MalformedResolution int `json:"malformed_resolution"` // markets whose payout vector failed to parse
	PairsConsolidated   int `json:"pairs_consolidated"`   // hedge legs collapsed by the consolidator
	DustClamped         int `json:"dust_clamped"`         // positions clamped to zero for |qty| < epsilon
}

// Merge adds other's counters into d.
func (d *Diagnostics) Merge(other Diagnostics) {
	d.MissingMapping += other.MissingMapping
	d.MalformedNumeric += other.MalformedNumeric
	d.PriceOutOfRange += other.PriceOutOfRange
	d.MalformedResolution += other.MalformedResolution
	d.PairsConsolidated += other.PairsConsolidated
	d.DustClamped += other.DustClamped
}

// ————————————————————————————————————————————————————————————————————————
// Aggregated output
// ————————————————————————————————————————————————————————————————————————

// CategoryStats is a per-category rollup across positions.
type CategoryStats struct {
	Positions   int     `json:"positions"`
	RealizedPnL float64 `json:"realized_pnl"`
	VolumeUsd   float64 `json:"volume_usd"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
}

// AccountMetrics is the aggregated result for one account. The schema is
// stable across formula choices: HeadlinePnL carries whichever formula the
// classifier (or config override) selected, AltPnL carries the other, and
// everything else is formula-independent.
//
// AccountMetrics is derived, never authoritative: it is recomputable at any
// time from the event log plus the resolution snapshot.
type AccountMetrics struct {
	Account    string      `json:"account"`
	RunID      string      `json:"run_id"`
	ComputedAt time.Time   `json:"computed_at"`
	Style      WalletStyle `json:"style"`
	Formula    string      `json:"formula"` // formula behind HeadlinePnL

	HeadlinePnL float64 `json:"headline_pnl"`
	AltPnL      float64 `json:"alt_pnl"` // the non-selected formula, for calibration

	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalGain     float64 `json:"total_gain"` // sum of positive per-position realized PnL
	TotalLoss     float64 `json:"total_loss"` // sum of negative per-position realized PnL (<= 0)

	BuyVolumeUsd      float64 `json:"buy_volume_usd"`  // order-book buys only
	SellVolumeUsd     float64 `json:"sell_volume_usd"` // order-book sells only
	RedemptionUsd     float64 `json:"redemption_usd"`
	MakerBuyVolumeUsd float64 `json:"maker_buy_volume_usd"`
	MakerSellVolume   float64 `json:"maker_sell_volume_usd"`
	TakerSellVolume   float64 `json:"taker_sell_volume_usd"`
	TakerSellRatio    float64 `json:"taker_sell_ratio"`

	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	PayoffRatio float64 `json:"payoff_ratio"`
	Omega       float64 `json:"omega"`
	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"`

	Positions  []PositionSummary        `json:"positions"`
	Categories map[string]CategoryStats `json:"categories"`

	Diagnostics Diagnostics `json:"diagnostics"`
}

package pnl

import (
	"math"
	"time"

	"polymarket-pnl/internal/ledger"
	"polymarket-pnl/pkg/types"
)

// winThreshold separates wins from losses from break-even noise when
// counting per-position outcomes.
const winThreshold = 1e-9

// Input carries everything the aggregator needs for one account: final
// ledger state, the mark prices chosen for open positions, the realization
// stream, and the volume profile built from the event list.
type Input struct {
	Account       string
	RunID         string
	ComputedAt    time.Time
	FormulaChoice string // "auto", "position" or "maker-spread"
	Positions     []*types.Position
	Marks         map[ledger.Key]float64
	Returns       []types.TradeReturn
	Profile       VolumeProfile
	Diagnostics   types.Diagnostics
}

// Aggregate rolls final ledger state up into one AccountMetrics. Every
// field is recomputed from scratch on every run; nothing here is
// incremental or stateful.
func Aggregate(in Input) types.AccountMetrics {
	style := Classify(in.Profile)
	headline, alt := Select(in.FormulaChoice, style)

	m := types.AccountMetrics{
		Account:    in.Account,
		RunID:      in.RunID,
		ComputedAt: in.ComputedAt,
		Style:      style,
		Formula:    headline.Name(),

		HeadlinePnL: headline.Compute(in.Positions),
		AltPnL:      alt.Compute(in.Positions),

		BuyVolumeUsd:      in.Profile.BuyUsd,
		SellVolumeUsd:     in.Profile.SellUsd,
		RedemptionUsd:     in.Profile.RedeemUsd,
		MakerBuyVolumeUsd: in.Profile.MakerBuyUsd,
		MakerSellVolume:   in.Profile.MakerSellUsd,
		TakerSellVolume:   in.Profile.TakerSellUsd,
		TakerSellRatio:    in.Profile.TakerSellRatio(),

		Categories:  make(map[string]types.CategoryStats),
		Diagnostics: in.Diagnostics,
	}

	m.Positions = make([]types.PositionSummary, 0, len(in.Positions))
	for _, pos := range in.Positions {
		summary := types.PositionSummary{Position: *pos}
		if !pos.Resolved && pos.Quantity != 0 {
			mark, ok := in.Marks[ledger.Key{MarketID: pos.MarketID, OutcomeIndex: pos.OutcomeIndex}]
			if ok {
				summary.MarkPrice = mark
				summary.UnrealizedPnL = pos.Quantity * (mark - pos.AvgPrice)
			}
		}
		m.Positions = append(m.Positions, summary)

		m.RealizedPnL += pos.RealizedPnL
		m.UnrealizedPnL += summary.UnrealizedPnL
		m.Trades += pos.TradeCount

		switch {
		case pos.RealizedPnL > winThreshold:
			m.TotalGain += pos.RealizedPnL
			m.Wins++
		case pos.RealizedPnL < -winThreshold:
			m.TotalLoss += pos.RealizedPnL
			m.Losses++
		}

		rollupCategory(m.Categories, pos)
	}

	if decided := m.Wins + m.Losses; decided > 0 {
		m.WinRate = float64(m.Wins) / float64(decided)
	}
	if m.Wins > 0 && m.Losses > 0 {
		avgWin := m.TotalGain / float64(m.Wins)
		avgLoss := -m.TotalLoss / float64(m.Losses)
		if avgLoss > 0 {
			m.PayoffRatio = avgWin / avgLoss
		}
	}
	m.Omega = omega(in.Returns)
	m.Sharpe, m.Sortino = riskAdjusted(in.Returns)

	return m
}

func rollupCategory(categories map[string]types.CategoryStats, pos *types.Position) {
	key := pos.Category
	if key == "" {
		key = "uncategorized"
	}
	stats := categories[key]
	stats.Positions++
	stats.RealizedPnL += pos.RealizedPnL
	stats.VolumeUsd += pos.BuyUsd + pos.SellUsd
	switch {
	case pos.RealizedPnL > winThreshold:
		stats.Wins++
	case pos.RealizedPnL < -winThreshold:
		stats.Losses++
	}
	categories[key] = stats
}

// omega is the ratio of summed gains to summed losses across individual
// realizations. Zero losses with positive gains reports +Inf replaced by 0
// to keep the JSON encodable; callers read Omega 0 together with Losses 0
// as "no losing realizations".
func omega(returns []types.TradeReturn) float64 {
	var gains, losses float64
	for _, r := range returns {
		if r.Amount > 0 {
			gains += r.Amount
		} else {
			losses -= r.Amount
		}
	}
	if losses == 0 {
		return 0
	}
	return gains / losses
}

// riskAdjusted computes Sharpe and Sortino over per-realization percentage
// returns, with a zero risk-free rate. Both need at least two observations
// and nonzero dispersion; otherwise they report 0.
func riskAdjusted(returns []types.TradeReturn) (sharpe, sortino float64) {
	if len(returns) < 2 {
		return 0, 0
	}
	var sum float64
	for _, r := range returns {
		sum += r.Pct
	}
	mean := sum / float64(len(returns))

	var variance, downside float64
	for _, r := range returns {
		d := r.Pct - mean
		variance += d * d
		if r.Pct < 0 {
			downside += r.Pct * r.Pct
		}
	}
	variance /= float64(len(returns) - 1)
	downside /= float64(len(returns))

	if variance > 0 {
		sharpe = mean / math.Sqrt(variance)
	}
	if downside > 0 {
		sortino = mean / math.Sqrt(downside)
	}
	return sharpe, sortino
}

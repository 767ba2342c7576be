// Package pnl turns final ledger state into account-level metrics: wallet
// style classification, the two PnL formulas, and the aggregated report.
package pnl

import (
	"polymarket-pnl/pkg/types"
)

// takerSellThreshold splits the two wallet styles. An account whose
// taker-side selling exceeds its entire order-book buying cannot be running
// a directional book; that inventory was minted via splits and is being
// unloaded into the order book, the signature of a market maker.
const takerSellThreshold = 1.0

// ratioGuard keeps the taker-sell ratio finite for accounts that never
// bought on the order book.
const ratioGuard = 1e-9

// VolumeProfile tallies the order-book cash flow of one account, split by
// liquidity role. Only CLOB fills count; splits, merges, transfers and
// redemptions move inventory or claim payouts without expressing a trading
// style.
type VolumeProfile struct {
	BuyUsd       float64
	SellUsd      float64
	MakerBuyUsd  float64
	MakerSellUsd float64
	TakerBuyUsd  float64
	TakerSellUsd float64
	RedeemUsd    float64
}

// Profile tallies the volume profile from a canonical event list.
func Profile(events []types.LedgerEvent) VolumeProfile {
	var p VolumeProfile
	for _, ev := range events {
		switch ev.Source {
		case types.SourceCLOB:
			switch ev.Side {
			case types.BUY:
				p.BuyUsd += ev.UsdcAmount
				if ev.Maker {
					p.MakerBuyUsd += ev.UsdcAmount
				} else {
					p.TakerBuyUsd += ev.UsdcAmount
				}
			case types.SELL:
				p.SellUsd += ev.UsdcAmount
				if ev.Maker {
					p.MakerSellUsd += ev.UsdcAmount
				} else {
					p.TakerSellUsd += ev.UsdcAmount
				}
			}
		case types.SourceRedemption:
			p.RedeemUsd += ev.UsdcAmount
		}
	}
	return p
}

// TakerSellRatio is taker-side sell volume over total order-book buy
// volume. A ratio above 1 means the account sells more aggressively than it
// ever buys.
func (p VolumeProfile) TakerSellRatio() float64 {
	return p.TakerSellUsd / (p.BuyUsd + ratioGuard)
}

// Classify picks the wallet style from the volume profile. An account with
// zero order-book buy volume has no meaningful ratio, however large its
// selling; it defaults to taker-dominant, the conservative choice (position
// accounting never fabricates spread profit).
func Classify(p VolumeProfile) types.WalletStyle {
	if p.BuyUsd <= 0 {
		return types.StyleTakerDominant
	}
	if p.TakerSellRatio() > takerSellThreshold {
		return types.StyleMakerDominant
	}
	return types.StyleTakerDominant
}

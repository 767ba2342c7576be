package pnl

import (
	"polymarket-pnl/pkg/types"
)

// Formula computes one account-level PnL number from final position state.
// Both implementations run on every account; one becomes the headline, the
// other is reported alongside it so the two can be compared over time.
type Formula interface {
	Name() string
	Compute(positions []*types.Position) float64
}

// PositionBased sums realized PnL across positions: every sell, cover and
// settlement measured against the weighted-average entry price. This is the
// right lens for directional accounts that hold inventory for a view.
type PositionBased struct{}

func (PositionBased) Name() string { return types.FormulaPositionBased }

func (PositionBased) Compute(positions []*types.Position) float64 {
	var total float64
	for _, pos := range positions {
		total += pos.RealizedPnL
	}
	return total
}

// MakerSpread is total cash extracted: everything received from sells and
// redemptions minus everything paid for buys. For an account that
// continuously mints complete sets and unloads both legs, average-cost
// attribution per outcome is meaningless; the spread income is the cash
// delta itself.
type MakerSpread struct{}

func (MakerSpread) Name() string { return types.FormulaMakerSpread }

func (MakerSpread) Compute(positions []*types.Position) float64 {
	var total float64
	for _, pos := range positions {
		total += pos.SellUsd + pos.RedeemUsd - pos.BuyUsd
	}
	return total
}

// Select maps a config formula choice and a classified style to the
// headline formula and its alternate. choice "auto" defers to the style;
// anything else forces one formula regardless of classification.
func Select(choice string, style types.WalletStyle) (headline, alt Formula) {
	switch choice {
	case "position":
		return PositionBased{}, MakerSpread{}
	case "maker-spread":
		return MakerSpread{}, PositionBased{}
	default:
		if style == types.StyleMakerDominant {
			return MakerSpread{}, PositionBased{}
		}
		return PositionBased{}, MakerSpread{}
	}
}

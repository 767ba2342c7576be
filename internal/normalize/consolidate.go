package normalize

import (
	"math"

	"polymarket-pnl/pkg/types"
)

// pairKey identifies one side of a candidate hedge pair: same market, same
// second, same rounded quantity.
type pairKey struct {
	marketID string
	unix     int64
	qty      int64
}

// Consolidate collapses paired hedge legs in a sorted event list.
//
// Some venues report a single net order against a binary market as two
// CLOB fills in the same second: a buy of one outcome and a matching-size
// sell of the other. Folding both legs would book a phantom short on the
// sold outcome. The consolidator drops the sell leg of each such pair and
// keeps the buy, which carries the account's actual exposure. Each buy leg
// pairs at most once; a second matching sell in the same second stands on
// its own. Quantities are compared after rounding to a fixed number of
// decimal places, absorbing scaling noise between data sources.
//
// Only CLOB fills participate. The input order is preserved; the second
// return value is the number of pairs collapsed.
func Consolidate(events []types.LedgerEvent, decimals int) ([]types.LedgerEvent, int) {
	scale := math.Pow(10, float64(decimals))

	// Index buy legs by (market, second, rounded qty). Values are indices
	// into events, in order, so the earliest unpaired buy absorbs each sell.
	buys := make(map[pairKey][]int)
	for i, ev := range events {
		if ev.Source == types.SourceCLOB && ev.Side == types.BUY {
			k := pairKey{ev.MarketID, ev.Timestamp.Unix(), int64(math.Round(ev.Quantity * scale))}
			buys[k] = append(buys[k], i)
		}
	}

	drop := make(map[int]bool)
	paired := make(map[int]bool)
	for i, ev := range events {
		if ev.Source != types.SourceCLOB || ev.Side != types.SELL {
			continue
		}
		k := pairKey{ev.MarketID, ev.Timestamp.Unix(), int64(math.Round(ev.Quantity * scale))}
		for _, buyIdx := range buys[k] {
			if paired[buyIdx] {
				continue
			}
			// A buy and sell of the same outcome is a genuine round-trip,
			// not a hedge pair.
			if events[buyIdx].OutcomeIndex == ev.OutcomeIndex {
				continue
			}
			paired[buyIdx] = true
			drop[i] = true
			break
		}
	}

	if len(drop) == 0 {
		return events, 0
	}
	out := make([]types.LedgerEvent, 0, len(events)-len(drop))
	for i, ev := range events {
		if drop[i] {
			continue
		}
		out = append(out, ev)
	}
	return out, len(drop)
}

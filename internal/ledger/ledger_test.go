package ledger

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"polymarket-pnl/internal/oracle"
	"polymarket-pnl/pkg/types"
)

const (
	mktID   = "0xcondition1"
	epsilon = 1e-4
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func trade(side types.Side, qty, price float64) types.LedgerEvent {
	return types.LedgerEvent{
		EventID:      "ev",
		MarketID:     mktID,
		OutcomeIndex: 0,
		Timestamp:    baseTime,
		Source:       types.SourceCLOB,
		Side:         side,
		Quantity:     qty,
		Price:        price,
		UsdcAmount:   qty * price,
	}
}

func resolved(payouts ...string) *oracle.ResolutionSet {
	return oracle.ParseResolutions([]types.MarketResolution{
		{ConditionID: mktID, Payouts: payouts},
	}, slog.Default())
}

func TestBuyThenWinningSettlement(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.BUY, 100, 0.40))
	l.Settle(resolved("1", "0"), 0)

	pos := l.Position(Key{mktID, 0})
	// pnl = 100*1.0 - 100*0.40 = 60
	if math.Abs(pos.RealizedPnL-60) > 1e-10 {
		t.Errorf("RealizedPnL = %v, want 60", pos.RealizedPnL)
	}
	if pos.Quantity != 0 {
		t.Errorf("Quantity = %v, want 0 after settlement", pos.Quantity)
	}
	if !pos.Resolved {
		t.Error("position not marked resolved")
	}
}

func TestBuyThenLosingSettlement(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.BUY, 100, 0.40))
	l.Settle(resolved("0", "1"), 0)

	pos := l.Position(Key{mktID, 0})
	// pnl = 100*0 - 100*0.40 = -40
	if math.Abs(pos.RealizedPnL-(-40)) > 1e-10 {
		t.Errorf("RealizedPnL = %v, want -40", pos.RealizedPnL)
	}
}

func TestSellWhileFlatOpensShort(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.SELL, 50, 0.60))

	pos := l.Position(Key{mktID, 0})
	if pos.Quantity != -50 {
		t.Errorf("Quantity = %v, want -50", pos.Quantity)
	}
	if math.Abs(pos.AvgPrice-0.60) > 1e-10 {
		t.Errorf("AvgPrice = %v, want 0.60", pos.AvgPrice)
	}
	if pos.RealizedPnL != 0 {
		t.Errorf("RealizedPnL = %v, want 0 on open", pos.RealizedPnL)
	}
}

func TestShortSettlesAgainstWinningOutcome(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.SELL, 50, 0.60))
	l.Settle(resolved("1", "0"), 0)

	pos := l.Position(Key{mktID, 0})
	// short pnl = 50 * (0.60 - 1.0) = -20
	if math.Abs(pos.RealizedPnL-(-20)) > 1e-10 {
		t.Errorf("RealizedPnL = %v, want -20", pos.RealizedPnL)
	}
	if pos.Quantity != 0 || !pos.Resolved {
		t.Errorf("position not flattened: qty=%v resolved=%v", pos.Quantity, pos.Resolved)
	}
}

func TestShortSettlesAgainstLosingOutcome(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.SELL, 50, 0.60))
	l.Settle(resolved("0", "1"), 0)

	pos := l.Position(Key{mktID, 0})
	// short pnl = 50 * (0.60 - 0) = 30
	if math.Abs(pos.RealizedPnL-30) > 1e-10 {
		t.Errorf("RealizedPnL = %v, want 30", pos.RealizedPnL)
	}
}

func TestRoundTripNeutrality(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.BUY, 100, 0.45))
	l.Apply(trade(types.SELL, 100, 0.45))

	pos := l.Position(Key{mktID, 0})
	if pos.Quantity != 0 {
		t.Errorf("Quantity = %v, want 0", pos.Quantity)
	}
	if math.Abs(pos.RealizedPnL) > 1e-10 {
		t.Errorf("RealizedPnL = %v, want 0 for a flat round trip", pos.RealizedPnL)
	}
	if pos.AvgPrice != 0 {
		t.Errorf("AvgPrice = %v, want 0 after full close", pos.AvgPrice)
	}
}

func TestWeightedAverageEntry(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.BUY, 10, 0.50))
	l.Apply(trade(types.BUY, 10, 0.60))

	pos := l.Position(Key{mktID, 0})
	// avg = (0.50*10 + 0.60*10) / 20 = 0.55
	if math.Abs(pos.AvgPrice-0.55) > 1e-10 {
		t.Errorf("AvgPrice = %v, want 0.55", pos.AvgPrice)
	}
	if math.Abs(pos.CostBasis-11.0) > 1e-10 {
		t.Errorf("CostBasis = %v, want 11.0", pos.CostBasis)
	}
}

func TestSellCrossesThroughFlatIntoShort(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.BUY, 10, 0.40))
	l.Apply(trade(types.SELL, 25, 0.50))

	pos := l.Position(Key{mktID, 0})
	if pos.Quantity != -15 {
		t.Errorf("Quantity = %v, want -15", pos.Quantity)
	}
	// closing the long: 10 * (0.50 - 0.40) = 1.0
	if math.Abs(pos.RealizedPnL-1.0) > 1e-10 {
		t.Errorf("RealizedPnL = %v, want 1.0", pos.RealizedPnL)
	}
	// the short remainder enters at the sell price
	if math.Abs(pos.AvgPrice-0.50) > 1e-10 {
		t.Errorf("AvgPrice = %v, want 0.50", pos.AvgPrice)
	}
}

func TestBuyCoversShortAndExtendsLong(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.SELL, 20, 0.70))
	l.Apply(trade(types.BUY, 30, 0.55))

	pos := l.Position(Key{mktID, 0})
	if pos.Quantity != 10 {
		t.Errorf("Quantity = %v, want 10", pos.Quantity)
	}
	// cover pnl = 20 * (0.70 - 0.55) = 3.0
	if math.Abs(pos.RealizedPnL-3.0) > 1e-10 {
		t.Errorf("RealizedPnL = %v, want 3.0", pos.RealizedPnL)
	}
	if math.Abs(pos.AvgPrice-0.55) > 1e-10 {
		t.Errorf("AvgPrice = %v, want 0.55", pos.AvgPrice)
	}
}

func TestPriceOutOfRangeRejected(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.BUY, 10, 1.5))
	l.Apply(trade(types.BUY, 10, -0.1))
	l.Apply(trade(types.BUY, 10, math.NaN()))

	if pos := l.Position(Key{mktID, 0}); pos != nil {
		t.Errorf("position created from rejected events: %+v", pos)
	}
	if got := l.Diagnostics().PriceOutOfRange; got != 3 {
		t.Errorf("PriceOutOfRange = %d, want 3", got)
	}
}

func TestDustClampedToFlat(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.BUY, 100, 0.40))
	l.Apply(trade(types.SELL, 100-1e-6, 0.40))

	pos := l.Position(Key{mktID, 0})
	if pos.Quantity != 0 {
		t.Errorf("Quantity = %v, want exactly 0 after dust clamp", pos.Quantity)
	}
	if pos.AvgPrice != 0 {
		t.Errorf("AvgPrice = %v, want 0 after dust clamp", pos.AvgPrice)
	}
	if got := l.Diagnostics().DustClamped; got != 1 {
		t.Errorf("DustClamped = %d, want 1", got)
	}
}

func TestDustClampedOnShortCover(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.SELL, 100, 0.60))
	l.Apply(trade(types.BUY, 100-1e-6, 0.60))

	pos := l.Position(Key{mktID, 0})
	if pos.Quantity != 0 {
		t.Errorf("Quantity = %v, want exactly 0 after dust clamp", pos.Quantity)
	}
	if pos.AvgPrice != 0 {
		t.Errorf("AvgPrice = %v, want 0 after dust clamp", pos.AvgPrice)
	}
	if got := l.Diagnostics().DustClamped; got != 1 {
		t.Errorf("DustClamped = %d, want 1", got)
	}
}

func TestResolvedPositionIgnoresLaterTrades(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.BUY, 100, 0.40))
	l.Settle(resolved("1", "0"), 0)
	l.Apply(trade(types.BUY, 50, 0.90))

	pos := l.Position(Key{mktID, 0})
	if pos.Quantity != 0 {
		t.Errorf("Quantity = %v, want 0; resolved positions never trade again", pos.Quantity)
	}
	if math.Abs(pos.RealizedPnL-60) > 1e-10 {
		t.Errorf("RealizedPnL = %v, want 60 unchanged", pos.RealizedPnL)
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.BUY, 100, 0.40))
	res := resolved("1", "0")
	l.Settle(res, 0)
	l.Settle(res, 0)

	pos := l.Position(Key{mktID, 0})
	if math.Abs(pos.RealizedPnL-60) > 1e-10 {
		t.Errorf("RealizedPnL = %v, want 60 after repeated settle", pos.RealizedPnL)
	}
}

func TestSettlementFeeOnProceeds(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.BUY, 100, 0.40))
	l.Settle(resolved("1", "0"), 0.02)

	pos := l.Position(Key{mktID, 0})
	// proceeds = 100 * 1.0 * 0.98 = 98; pnl = 98 - 40 = 58
	if math.Abs(pos.RealizedPnL-58) > 1e-10 {
		t.Errorf("RealizedPnL = %v, want 58", pos.RealizedPnL)
	}
	if math.Abs(pos.RedeemUsd-98) > 1e-10 {
		t.Errorf("RedeemUsd = %v, want 98", pos.RedeemUsd)
	}
}

func TestOutcomeOutsidePayoutVectorStaysOpen(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	ev := trade(types.BUY, 5, 0.30)
	ev.OutcomeIndex = 1
	l.Apply(ev)
	l.Settle(resolved("1"), 0) // vector only covers outcome 0

	pos := l.Position(Key{mktID, 1})
	if pos.Resolved {
		t.Error("outcome outside the payout vector must stay unresolved")
	}
	if pos.Quantity != 5 {
		t.Errorf("Quantity = %v, want 5 still open", pos.Quantity)
	}
}

func TestMarkUnresolvedUsesChain(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.BUY, 100, 0.40))

	quote := func(marketID string, outcomeIndex int) (float64, bool) {
		return 0.65, true
	}
	marks := l.MarkUnresolved(oracle.NewChain(oracle.NewResolutionSet(nil), quote))

	mark, ok := marks[Key{mktID, 0}]
	if !ok {
		t.Fatal("open position not marked")
	}
	if math.Abs(mark-0.65) > 1e-10 {
		t.Errorf("mark = %v, want 0.65 from quote", mark)
	}
}

func TestCashFlowTallies(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	l.Apply(trade(types.BUY, 100, 0.40))
	l.Apply(trade(types.SELL, 40, 0.50))

	pos := l.Position(Key{mktID, 0})
	if math.Abs(pos.BuyUsd-40) > 1e-10 {
		t.Errorf("BuyUsd = %v, want 40", pos.BuyUsd)
	}
	if math.Abs(pos.SellUsd-20) > 1e-10 {
		t.Errorf("SellUsd = %v, want 20", pos.SellUsd)
	}
}

func TestTransfersCarryNoCashVolume(t *testing.T) {
	t.Parallel()
	l := New(epsilon)

	in := trade(types.BUY, 100, 0.50)
	in.Source = types.SourceTransferIn
	out := trade(types.SELL, 40, 0.50)
	out.Source = types.SourceTransferOut
	l.Apply(in)
	l.Apply(out)

	pos := l.Position(Key{mktID, 0})
	if pos.Quantity != 60 {
		t.Errorf("Quantity = %v, want 60", pos.Quantity)
	}
	// inventory moved but no USDC did: the spread formula over this
	// position must read zero, not the synthetic valuations
	if pos.BuyUsd != 0 || pos.SellUsd != 0 || pos.RedeemUsd != 0 {
		t.Errorf("cash tallies = buy %v / sell %v / redeem %v, want all 0",
			pos.BuyUsd, pos.SellUsd, pos.RedeemUsd)
	}
}

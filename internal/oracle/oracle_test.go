package oracle

import (
	"log/slog"
	"math"
	"testing"

	"polymarket-pnl/pkg/types"
)

func TestParseResolutions(t *testing.T) {
	t.Parallel()

	res := ParseResolutions([]types.MarketResolution{
		{ConditionID: "0xa", Payouts: []string{"1", "0"}},
		{ConditionID: "0xb", Payouts: []string{"0.5", "0.5"}},
	}, slog.Default())

	if res.Len() != 2 {
		t.Fatalf("Len = %d, want 2", res.Len())
	}
	p, ok := res.Payout("0xa", 0)
	if !ok || p != 1 {
		t.Errorf("Payout(0xa, 0) = %v/%v, want 1/true", p, ok)
	}
	p, ok = res.Payout("0xb", 1)
	if !ok || math.Abs(p-0.5) > 1e-10 {
		t.Errorf("Payout(0xb, 1) = %v/%v, want 0.5/true", p, ok)
	}
}

func TestParseResolutionsSkipsMalformed(t *testing.T) {
	t.Parallel()

	res := ParseResolutions([]types.MarketResolution{
		{ConditionID: "0xa", Payouts: []string{"1", "0"}},
		{ConditionID: "0xbad1", Payouts: []string{"not-a-number", "0"}},
		{ConditionID: "0xbad2", Payouts: []string{"1.5", "0"}}, // out of range
		{ConditionID: "0xbad3", Payouts: nil},                  // empty vector
		{ConditionID: "", Payouts: []string{"1"}},              // no market id
	}, slog.Default())

	if res.Len() != 1 {
		t.Errorf("Len = %d, want 1", res.Len())
	}
	if res.Malformed() != 4 {
		t.Errorf("Malformed = %d, want 4", res.Malformed())
	}
	if res.Resolved("0xbad1") {
		t.Error("malformed market must read as unresolved")
	}
}

func TestPayoutOutOfRangeIndex(t *testing.T) {
	t.Parallel()

	res := ParseResolutions([]types.MarketResolution{
		{ConditionID: "0xa", Payouts: []string{"1"}},
	}, slog.Default())

	if _, ok := res.Payout("0xa", 1); ok {
		t.Error("index beyond the payout vector must report unresolved")
	}
	if _, ok := res.Payout("0xa", -1); ok {
		t.Error("negative index must report unresolved")
	}
}

func TestChainPrefersResolution(t *testing.T) {
	t.Parallel()

	res := ParseResolutions([]types.MarketResolution{
		{ConditionID: "0xa", Payouts: []string{"1", "0"}},
	}, slog.Default())
	quote := func(string, int) (float64, bool) { return 0.7, true }
	chain := NewChain(res, quote)

	if got := chain.Price("0xa", 0, 0.3, true); got != 1 {
		t.Errorf("Price = %v, want resolution payout 1", got)
	}
}

func TestChainFallsBackToQuote(t *testing.T) {
	t.Parallel()

	chain := NewChain(NewResolutionSet(nil), func(string, int) (float64, bool) { return 0.7, true })

	if got := chain.Price("0xa", 0, 0.3, true); math.Abs(got-0.7) > 1e-10 {
		t.Errorf("Price = %v, want quote 0.7", got)
	}
}

func TestChainFallsBackToLastTrade(t *testing.T) {
	t.Parallel()

	chain := NewChain(NewResolutionSet(nil), func(string, int) (float64, bool) { return 0, false })

	if got := chain.Price("0xa", 0, 0.3, true); math.Abs(got-0.3) > 1e-10 {
		t.Errorf("Price = %v, want last trade 0.3", got)
	}
}

func TestChainFallsBackToDefault(t *testing.T) {
	t.Parallel()

	chain := NewChain(NewResolutionSet(nil), nil)

	if got := chain.Price("0xa", 0, 0, false); got != DefaultMark {
		t.Errorf("Price = %v, want default %v", got, DefaultMark)
	}
}

func TestChainRejectsOutOfRangeQuote(t *testing.T) {
	t.Parallel()

	chain := NewChain(NewResolutionSet(nil), func(string, int) (float64, bool) { return 1.7, true })

	if got := chain.Price("0xa", 0, 0.3, true); math.Abs(got-0.3) > 1e-10 {
		t.Errorf("Price = %v, want fall-through to last trade 0.3", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	res := ParseResolutions([]types.MarketResolution{
		{ConditionID: "0xa", Payouts: []string{"1", "0"}},
	}, slog.Default())

	snap := res.Snapshot()
	snap["0xa"][0] = 0.123

	if p, _ := res.Payout("0xa", 0); p != 1 {
		t.Errorf("Payout mutated through snapshot: %v", p)
	}
}

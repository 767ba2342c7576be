package normalize

import (
	"log/slog"
	"math"
	"testing"

	"polymarket-pnl/pkg/types"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(slog.Default())
}

func tradeRow(id string, ts int64, side, size, price string) types.RawActivity {
	return types.RawActivity{
		ID:           id,
		Timestamp:    ts,
		ConditionID:  "0xc1",
		OutcomeIndex: 0,
		Type:         types.ActivityTrade,
		Side:         side,
		Size:         size,
		UsdcSize:     "",
		Price:        price,
	}
}

func TestParseAmountScaleHeuristic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"human units with decimal point", "123.45", 123.45},
		{"six-decimal raw integer", "2500000", 2.5},
		{"eighteen-decimal raw integer", "2500000000000000000", 2.5},
		{"exactly at the cutoff", "1000000000000000", 0.001},
		{"small raw integer", "500", 0.0005},
		{"human integer-looking with point", "100.0", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseAmount(tt.in)
			if !ok {
				t.Fatalf("parseAmount(%q) failed", tt.in)
			}
			if math.Abs(got-tt.want) > 1e-10 {
				t.Errorf("parseAmount(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "  ", "abc", "12,5"} {
		if _, ok := parseAmount(in); ok {
			t.Errorf("parseAmount(%q) = ok, want rejection", in)
		}
	}
}

func TestNormalizeTrade(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	events, diags := n.Normalize([]types.RawActivity{
		tradeRow("t1", 1000, "BUY", "100.0", "0.42"),
	})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Source != types.SourceCLOB || ev.Side != types.BUY {
		t.Errorf("event = %v/%v, want clob/BUY", ev.Source, ev.Side)
	}
	if ev.Quantity != 100 || ev.Price != 0.42 {
		t.Errorf("qty=%v price=%v, want 100/0.42", ev.Quantity, ev.Price)
	}
	// no usdcSize on the row: derived as qty*price
	if math.Abs(ev.UsdcAmount-42.0) > 1e-10 {
		t.Errorf("UsdcAmount = %v, want 42", ev.UsdcAmount)
	}
	if diags != (types.Diagnostics{}) {
		t.Errorf("unexpected diagnostics: %+v", diags)
	}
}

func TestNormalizeSplitExpandsToBothOutcomes(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	events, _ := n.Normalize([]types.RawActivity{{
		ID: "s1", Timestamp: 1000, ConditionID: "0xc1", OutcomeIndex: -1,
		Type: types.ActivitySplit, Size: "40.0",
	}})

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 legs", len(events))
	}
	for i, ev := range events {
		if ev.Side != types.BUY || ev.Source != types.SourceSplit {
			t.Errorf("leg %d = %v/%v, want split/BUY", i, ev.Source, ev.Side)
		}
		if ev.OutcomeIndex != i {
			t.Errorf("leg %d outcome = %d", i, ev.OutcomeIndex)
		}
		if ev.Price != 0.5 || math.Abs(ev.UsdcAmount-20.0) > 1e-10 {
			t.Errorf("leg %d price=%v usdc=%v, want 0.5/20", i, ev.Price, ev.UsdcAmount)
		}
	}
	if events[0].EventID == events[1].EventID {
		t.Error("split legs must have distinct event IDs")
	}
}

func TestNormalizeMergeExpandsToSells(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	events, _ := n.Normalize([]types.RawActivity{{
		ID: "m1", Timestamp: 1000, ConditionID: "0xc1", OutcomeIndex: -1,
		Type: types.ActivityMerge, Size: "40.0",
	}})

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 legs", len(events))
	}
	for i, ev := range events {
		if ev.Side != types.SELL || ev.Source != types.SourceMerge {
			t.Errorf("leg %d = %v/%v, want merge/SELL", i, ev.Source, ev.Side)
		}
	}
}

func TestNormalizeRedemptionPriceFromCash(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	events, _ := n.Normalize([]types.RawActivity{{
		ID: "r1", Timestamp: 1000, ConditionID: "0xc1", OutcomeIndex: 0,
		Type: types.ActivityRedeem, Size: "50.0", UsdcSize: "50.0",
	}})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Source != types.SourceRedemption || ev.Side != types.SELL {
		t.Errorf("event = %v/%v, want redemption/SELL", ev.Source, ev.Side)
	}
	// winning-side redemption: 50 usdc for 50 shares
	if math.Abs(ev.Price-1.0) > 1e-10 {
		t.Errorf("Price = %v, want 1.0", ev.Price)
	}
}

func TestNormalizeLosingRedemptionPricesAtZero(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	events, _ := n.Normalize([]types.RawActivity{{
		ID: "r2", Timestamp: 1000, ConditionID: "0xc1", OutcomeIndex: 1,
		Type: types.ActivityRedeem, Size: "50.0", UsdcSize: "",
	}})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Price != 0 {
		t.Errorf("Price = %v, want 0 for a losing-side redemption", events[0].Price)
	}
}

func TestNormalizeMissingMappingCounted(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	rows := []types.RawActivity{
		{ID: "x1", Timestamp: 1, Type: types.ActivityTrade, Side: "BUY", Size: "1.0", Price: "0.5"}, // no condition
		{ID: "x2", Timestamp: 2, ConditionID: "0xc1", OutcomeIndex: -1,
			Type: types.ActivityTrade, Side: "BUY", Size: "1.0", Price: "0.5"}, // no outcome
		tradeRow("x3", 3, "BUY", "1.0", "0.5"),
	}

	events, diags := n.Normalize(rows)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if diags.MissingMapping != 2 {
		t.Errorf("MissingMapping = %d, want 2", diags.MissingMapping)
	}
	if diags.PriceOutOfRange != 0 {
		t.Errorf("PriceOutOfRange = %d, want 0", diags.PriceOutOfRange)
	}
}

func TestNormalizeMalformedSizeCountedSeparately(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	// numeric garbage is not a mapping problem: it gets its own counter so
	// the diagnostics distinguish bad data from unresolvable references
	events, diags := n.Normalize([]types.RawActivity{
		tradeRow("g1", 1, "BUY", "not-a-number", "0.5"),
		tradeRow("g2", 2, "BUY", "0", "0.5"),
		tradeRow("g3", 3, "BUY", "1.0", "0.5"),
	})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if diags.MalformedNumeric != 2 {
		t.Errorf("MalformedNumeric = %d, want 2", diags.MalformedNumeric)
	}
	if diags.MissingMapping != 0 {
		t.Errorf("MissingMapping = %d, want 0", diags.MissingMapping)
	}
}

func TestNormalizePriceOutOfRangeRejected(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	events, diags := n.Normalize([]types.RawActivity{
		tradeRow("p1", 1, "BUY", "1.0", "1.2"),
		tradeRow("p2", 2, "SELL", "1.0", "-0.3"),
	})

	if len(events) != 0 {
		t.Fatalf("got %d events, want 0", len(events))
	}
	if diags.PriceOutOfRange != 2 {
		t.Errorf("PriceOutOfRange = %d, want 2", diags.PriceOutOfRange)
	}
}

func TestNormalizeDeduplicatesByID(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	row := tradeRow("dup", 1000, "BUY", "10.0", "0.40")
	events, _ := n.Normalize([]types.RawActivity{row, row, row})

	if len(events) != 1 {
		t.Errorf("got %d events, want 1 after dedup", len(events))
	}
}

func TestNormalizeSortsByTimestampThenIngestion(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	events, _ := n.Normalize([]types.RawActivity{
		tradeRow("a", 2000, "SELL", "1.0", "0.5"),
		tradeRow("b", 1000, "BUY", "1.0", "0.5"),
		tradeRow("c", 2000, "BUY", "1.0", "0.5"),
	})

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	want := []string{"b", "a", "c"}
	for i, id := range want {
		if events[i].EventID != id {
			t.Errorf("events[%d] = %s, want %s", i, events[i].EventID, id)
		}
	}
}

func TestNormalizeTransferWithoutPriceBooksAtMidpoint(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	events, _ := n.Normalize([]types.RawActivity{{
		ID: "tr1", Timestamp: 1000, ConditionID: "0xc1", OutcomeIndex: 0,
		Type: types.ActivityTransferIn, Size: "10.0",
	}})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Side != types.BUY || ev.Source != types.SourceTransferIn {
		t.Errorf("event = %v/%v, want transfer_in/BUY", ev.Source, ev.Side)
	}
	if ev.Price != 0.5 {
		t.Errorf("Price = %v, want 0.5 fallback", ev.Price)
	}
}

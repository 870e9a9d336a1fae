package execution

import (
	"testing"

	"daytrader/internal/model"
)

func seqIDs(start int64) func() int64 {
	n := start
	return func() int64 {
		n++
		return n
	}
}

func TestBuildBracket_Basic(t *testing.T) {
	set, err := BuildBracket(BracketBasic, seqIDs(10), "SPY", true, 2, BracketPrices{Entry: 100, TakeProfit: 101, StopLoss: 99})
	if err != nil {
		t.Fatalf("BuildBracket: %v", err)
	}
	if ids := set.IDs(); ids[0] != 11 || ids[1] != 12 || ids[2] != 13 {
		t.Fatalf("ids = %v, want [11 12 13]", ids)
	}
	if set.Entry.Type != model.OrderLimit || set.Entry.LimitPrice != 100 || set.Entry.Action != model.ActionBuy {
		t.Errorf("entry = %+v", set.Entry)
	}
	if set.TakeProfit.Type != model.OrderLimit || set.TakeProfit.LimitPrice != 101 || set.TakeProfit.Action != model.ActionSell {
		t.Errorf("take-profit = %+v", set.TakeProfit)
	}
	if set.StopLoss.Type != model.OrderStop || set.StopLoss.StopPrice != 99 {
		t.Errorf("stop-loss = %+v", set.StopLoss)
	}
	for _, o := range set.Orders()[1:] {
		if o.ParentID != set.Entry.ID {
			t.Errorf("order %d parent = %d, want %d", o.ID, o.ParentID, set.Entry.ID)
		}
	}
	if set.Entry.Transmit || set.TakeProfit.Transmit || !set.StopLoss.Transmit {
		t.Error("only the stop-loss should transmit")
	}
}

func TestBuildBracket_MarketShort(t *testing.T) {
	set, err := BuildBracket(BracketMarket, seqIDs(0), "SPY", false, 1, BracketPrices{TakeProfit: 95, StopLoss: 105})
	if err != nil {
		t.Fatalf("BuildBracket: %v", err)
	}
	if set.Entry.Type != model.OrderMarket || set.Entry.Action != model.ActionSell {
		t.Errorf("entry = %+v", set.Entry)
	}
	c := set.TakeProfit.Condition
	if set.TakeProfit.Type != model.OrderMarket || c == nil || c.Price != 95 || c.IsMore {
		t.Errorf("take-profit = %+v cond=%+v", set.TakeProfit, c)
	}
}

func TestBuildBracket_MarketEntry(t *testing.T) {
	set, err := BuildBracket(BracketMarketEntry, seqIDs(0), "SPY", true, 1, BracketPrices{TakeProfit: 105, StopLoss: 95})
	if err != nil {
		t.Fatalf("BuildBracket: %v", err)
	}
	if set.Entry.Type != model.OrderMarket || set.TakeProfit.Type != model.OrderLimit {
		t.Errorf("types = %s/%s", set.Entry.Type, set.TakeProfit.Type)
	}
}

func TestBuildBracket_Invalid(t *testing.T) {
	cases := []struct {
		name string
		typ  BracketType
		long bool
		qty  float64
		p    BracketPrices
	}{
		{"zero qty", BracketBasic, true, 0, BracketPrices{Entry: 100, TakeProfit: 101, StopLoss: 99}},
		{"inverted long", BracketBasic, true, 1, BracketPrices{Entry: 100, TakeProfit: 99, StopLoss: 101}},
		{"inverted short", BracketMarket, false, 1, BracketPrices{TakeProfit: 101, StopLoss: 99}},
		{"basic without entry", BracketBasic, true, 1, BracketPrices{TakeProfit: 101, StopLoss: 99}},
		{"unknown type", "trailing", true, 1, BracketPrices{Entry: 100, TakeProfit: 101, StopLoss: 99}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := BuildBracket(tc.typ, seqIDs(0), "SPY", tc.long, tc.qty, tc.p); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseBracketType(t *testing.T) {
	if typ, err := ParseBracketType(""); err != nil || typ != BracketBasic {
		t.Errorf("empty -> %q, %v", typ, err)
	}
	if typ, err := ParseBracketType("marketEntry"); err != nil || typ != BracketMarketEntry {
		t.Errorf("marketEntry -> %q, %v", typ, err)
	}
	if _, err := ParseBracketType("oco"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestRoundToIncrement(t *testing.T) {
	cases := []struct {
		x, inc float64
		up     bool
		want   float64
	}{
		{100.126, 0.01, true, 100.13},
		{100.125, 0.01, true, 100.13},
		{100.125, 0.01, false, 100.12},
		{100.13, 0.25, true, 100.25},
		{100.375, 0.25, true, 100.5},
		{100.375, 0.25, false, 100.25},
		{-1.5, 1, true, -2},
		{-1.5, 1, false, -1},
		{42.4242, 0, true, 42.4242},
	}
	for _, tc := range cases {
		if got := RoundToIncrement(tc.x, tc.inc, tc.up); got != tc.want {
			t.Errorf("RoundToIncrement(%v, %v, %v) = %v, want %v", tc.x, tc.inc, tc.up, got, tc.want)
		}
	}
}

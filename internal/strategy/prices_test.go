package strategy

import (
	"math"
	"testing"

	"daytrader/internal/execution"
	"daytrader/internal/model"
)

func assertClose(t *testing.T, label string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: got %.6f, want %.6f", label, got, want)
	}
}

func priced(class string) *Strategy {
	return &Strategy{Settings: Settings{
		Class:         class,
		Contract:      model.Contract{Symbol: "SPY", TickIncrement: 0.01},
		TickScale:     1,
		ProfitBuffer:  2,
		LossBuffer:    2,
		TargetBuffer:  1,
		FailureBuffer: 1,
	}}
}

func TestPrices(t *testing.T) {
	bar := model.Candle{Open: 100.1, High: 100.5, Low: 99.8, Close: 100.3}
	cases := []struct {
		name    string
		class   string
		v       Verdict
		want    execution.BracketPrices
		failure float64
	}{
		{
			name:    "scalping long",
			class:   ClassScalping,
			v:       Verdict{Enter: true, Long: true, Bar: bar},
			want:    execution.BracketPrices{Entry: 100.51, TakeProfit: 100.53, StopLoss: 100.49},
			failure: 100.29,
		},
		{
			name:    "scalping short",
			class:   ClassTrendScalping,
			v:       Verdict{Enter: true, Long: false, Bar: model.Candle{High: 100.5, Low: 99.8, Close: 99.9}},
			want:    execution.BracketPrices{Entry: 99.79, TakeProfit: 99.77, StopLoss: 99.81},
			failure: 99.91,
		},
		{
			name:    "half range stop",
			class:   ClassScalpingV2,
			v:       Verdict{Enter: true, Long: true, Bar: model.Candle{High: 100.5, Low: 99.71, Close: 100.3}},
			want:    execution.BracketPrices{Entry: 100.51, TakeProfit: 100.53, StopLoss: 100.11},
			failure: 100.29,
		},
		{
			name:  "market entry",
			class: ClassSpiking,
			v:     Verdict{Enter: true, Long: true, Price: 50},
			want:  execution.BracketPrices{Entry: 50, TakeProfit: 50.02, StopLoss: 49.98},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, failure := priced(tc.class).prices(tc.v)
			assertClose(t, "entry", p.Entry, tc.want.Entry)
			assertClose(t, "take profit", p.TakeProfit, tc.want.TakeProfit)
			assertClose(t, "stop loss", p.StopLoss, tc.want.StopLoss)
			assertClose(t, "failure", failure, tc.failure)
		})
	}
}

func TestEntryFailed(t *testing.T) {
	if !entryFailed(99, 99.5, true) || entryFailed(100, 99.5, true) {
		t.Error("long failure point")
	}
	if !entryFailed(101, 100.5, false) || entryFailed(100, 100.5, false) {
		t.Error("short failure point")
	}
}

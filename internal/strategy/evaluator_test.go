package strategy

import (
	"testing"
	"time"

	"daytrader/internal/indicator"
	"daytrader/internal/marketdata/agg"
	"daytrader/internal/model"
)

func feed(stream *agg.TickAggregator, prices ...float64) {
	for i, px := range prices {
		stream.OnTick(px, baseTime.Add(time.Duration(i)*time.Second))
	}
}

func TestSignalBarEvaluator(t *testing.T) {
	var kinds []string
	record := func(kind, _ string) { kinds = append(kinds, kind) }

	stream := agg.NewTickAggregator("SPY", 1, indicator.NewRegistry())
	e := NewSignalBarEvaluator(stream, 2, false, record)
	feed(stream, 100, 101, 102)
	if v := e.Evaluate(102); v.Enter {
		t.Fatal("green continuation is not a signal bar")
	}
	feed(stream, 101)
	v := e.Evaluate(101)
	if !v.Enter || v.Long {
		t.Fatalf("verdict = %+v, want short entry", v)
	}
	if v.Bar.Close != 101 {
		t.Errorf("signal bar close = %g", v.Bar.Close)
	}
	if len(kinds) != 1 || kinds[0] != model.RecordSignal {
		t.Errorf("records = %v", kinds)
	}

	flipped := NewSignalBarEvaluator(stream, 2, true, record)
	if v := flipped.Evaluate(101); !v.Enter || !v.Long {
		t.Errorf("flipped verdict = %+v, want long entry", v)
	}

	strict := NewSignalBarEvaluator(stream, 3, false, record)
	if v := strict.Evaluate(101); v.Enter {
		t.Error("two-bar move must not satisfy a threshold of 3")
	}
}

func TestADXTrendEvaluator_WarmUp(t *testing.T) {
	reg := indicator.NewRegistry()
	stream := agg.NewTickAggregator("SPY", 1, reg)
	e := NewADXTrendEvaluator(stream, reg.ADX(stream, 3), 1, 20, nil, false, true, func(string, string) {})
	feed(stream, 100, 101)
	v := e.Evaluate(101)
	if v.Enter {
		t.Errorf("entered without ADX history: %+v", v)
	}
	if !v.Exit {
		t.Error("a flat ADX slope should request an exit")
	}
}

func TestADXTrendEvaluator_Trend(t *testing.T) {
	reg := indicator.NewRegistry()
	stream := agg.NewTickAggregator("SPY", 1, reg)
	e := NewADXTrendEvaluator(stream, reg.ADX(stream, 2), 1, 20, nil, false, false, func(string, string) {})

	// a steady climb with an accelerating final leg keeps +DI dominant
	// and ADX rising
	feed(stream, 100, 99, 100, 101, 102, 104, 107)
	v := e.Evaluate(107)
	if !v.Enter || !v.Long {
		t.Errorf("verdict = %+v, slope = %g, want long entry", v, e.Slope())
	}
	if v.Exit {
		t.Error("exit requested with exits disabled")
	}
}

func TestFormingATREvaluator_NeedsMove(t *testing.T) {
	reg := indicator.NewRegistry()
	stream := agg.NewTickAggregator("SPY", 2, reg)
	e := NewFormingATREvaluator(stream, reg.ATR(stream, 3), 0, -100, 5, false, func(string, string) {})
	if !e.TickDriven() {
		t.Fatal("forming ATR evaluator runs on ticks")
	}
	feed(stream, 100, 101, 102, 103, 104)
	if v := e.Evaluate(104); v.Enter {
		t.Errorf("entered on a move shorter than the threshold: %+v", v)
	}
}

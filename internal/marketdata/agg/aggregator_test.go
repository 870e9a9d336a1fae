package agg

import (
	"testing"
	"time"

	"daytrader/internal/candle"
	"daytrader/internal/model"
)

type call struct {
	formed bool
	bar    model.Candle
	closed int // history length at call time
}

type recordingEngine struct {
	calls []call
}

func (e *recordingEngine) UpdateForming(h *candle.History, bar model.Candle) {
	e.calls = append(e.calls, call{bar: bar, closed: h.Len()})
}

func (e *recordingEngine) UpdateFormed(h *candle.History, bar model.Candle) {
	e.calls = append(e.calls, call{formed: true, bar: bar, closed: h.Len()})
}

var t0 = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func feed(ta *TickAggregator, prices ...float64) {
	for i, p := range prices {
		ta.OnTick(p, t0.Add(time.Duration(i)*time.Second))
	}
}

func TestTickAggregator_EndToEndBars(t *testing.T) {
	ta := NewTickAggregator("ES", 3, nil)
	feed(ta, 100, 101, 99, 99, 102, 101)

	h := ta.History()
	if h.Len() != 2 {
		t.Fatalf("closed bars = %d, want 2", h.Len())
	}
	want := []model.Candle{
		{Open: 100, High: 101, Low: 99, Close: 99},
		{Open: 99, High: 102, Low: 99, Close: 101},
	}
	for i, w := range want {
		got := h.Raw()[i]
		if got.Open != w.Open || got.High != w.High || got.Low != w.Low || got.Close != w.Close {
			t.Errorf("bar %d = %+v, want OHLC %+v", i, got, w)
		}
		if got.Ticks != 3 || got.Forming {
			t.Errorf("bar %d ticks=%d forming=%v", i, got.Ticks, got.Forming)
		}
	}
	if tr := candle.TrueRange(h.Raw(), 1); tr != 3 {
		t.Errorf("TR(bar2) = %v, want 3", tr)
	}
	if len(h.Smooth()) != h.Len() {
		t.Error("smoothed history must match raw length")
	}
}

func TestTickAggregator_NextTickOpensNewBar(t *testing.T) {
	ta := NewTickAggregator("ES", 2, nil)
	feed(ta, 10, 11)
	cur, _ := ta.Current()
	if cur.Ticks != 2 || cur.Forming {
		t.Fatalf("closed bar still current until next tick: %+v", cur)
	}
	ta.OnTick(15, t0.Add(time.Minute))
	cur, ok := ta.Current()
	if !ok || cur.Ticks != 1 || cur.Open != 15 || cur.High != 15 || cur.Low != 15 || !cur.Forming {
		t.Errorf("new bar = %+v", cur)
	}
	sm, _ := ta.CurrentSmoothed()
	prev := ta.History().Smooth()[0]
	if sm.Open != (prev.Open+prev.Close)/2 {
		t.Errorf("forming smoothed open = %v", sm.Open)
	}
}

func TestTickAggregator_UpdateOrdering(t *testing.T) {
	eng := &recordingEngine{}
	ta := NewTickAggregator("ES", 2, eng)
	var closedAt []int
	ta.OnBarClosed = func(bar, smooth model.Candle) {
		closedAt = append(closedAt, len(eng.calls))
	}
	feed(ta, 10, 11, 12)

	// tick1 forming, tick2 forming(closing) + formed, tick3 forming
	if len(eng.calls) != 4 {
		t.Fatalf("engine calls = %d, want 4", len(eng.calls))
	}
	if eng.calls[0].formed || eng.calls[0].closed != 0 {
		t.Errorf("call 0 = %+v", eng.calls[0])
	}
	// closing tick: bar already in history for both updates
	if eng.calls[1].formed || eng.calls[1].closed != 1 || eng.calls[1].bar.Ticks != 2 {
		t.Errorf("call 1 = %+v", eng.calls[1])
	}
	if !eng.calls[2].formed || eng.calls[2].closed != 1 {
		t.Errorf("call 2 = %+v", eng.calls[2])
	}
	// notification after all updates of the closing tick, before the next tick
	if len(closedAt) != 1 || closedAt[0] != 3 {
		t.Errorf("bar-closed fired at %v, want [3]", closedAt)
	}
}

func TestTickAggregator_MoveAtClose(t *testing.T) {
	ta := NewTickAggregator("ES", 1, nil)
	if ta.Move().Color != candle.None {
		t.Fatal("no move before the first bar")
	}
	feed(ta, 100, 101, 102, 103)
	m := ta.Move()
	if m.Color != candle.Green || m.Size != 3 {
		t.Errorf("move = %+v, want green run", m)
	}
}

func TestAggregator_RoutesBySymbol(t *testing.T) {
	a := New(nil)
	es1 := a.Subscribe("ES", 1)
	es2 := a.Subscribe("ES", 2)
	if a.Subscribe("ES", 1) != es1 {
		t.Fatal("subscribe must be idempotent")
	}

	dropped := 0
	var bars []model.Candle
	a.OnDroppedTick = func(model.Tick) { dropped++ }
	a.OnBarClosed = func(bar, _ model.Candle) { bars = append(bars, bar) }

	a.ProcessTick(model.Tick{Symbol: "ES", Price: 10, TS: t0})
	a.ProcessTick(model.Tick{Symbol: "NQ", Price: 10, TS: t0})
	a.ProcessTick(model.Tick{Symbol: "ES", Price: 0, TS: t0})
	a.ProcessTick(model.Tick{Symbol: "ES", Price: 11, TS: t0.Add(time.Second)})

	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if es1.History().Len() != 2 || es2.History().Len() != 1 {
		t.Errorf("history lengths = %d/%d", es1.History().Len(), es2.History().Len())
	}
	if len(bars) != 3 {
		t.Errorf("bar-closed notifications = %d, want 3", len(bars))
	}
	if _, ok := a.Get("NQ", 1); ok {
		t.Error("NQ must not be subscribed")
	}
}

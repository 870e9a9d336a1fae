package indicator

import (
	"math"
	"testing"
	"time"

	"daytrader/internal/candle"
	"daytrader/internal/model"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s: got %.9f, want %.9f (tol=%.9f)", label, got, want, tol)
	}
}

// feeder reproduces the aggregator's tick folding so indicator tests do not
// depend on the agg package.
type feeder struct {
	symbol  string
	barSize int
	hist    *candle.History
	reg     *Registry
	bar     model.Candle
	ts      time.Time
}

func newFeeder(barSize int) *feeder {
	return &feeder{
		symbol:  "ES",
		barSize: barSize,
		hist:    candle.NewHistory(64),
		reg:     NewRegistry(),
		ts:      time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC),
	}
}

func (f *feeder) Symbol() string           { return f.symbol }
func (f *feeder) BarSize() int             { return f.barSize }
func (f *feeder) History() *candle.History { return f.hist }

// tick folds one price and reports whether it closed a bar.
func (f *feeder) tick(price float64) bool {
	f.ts = f.ts.Add(time.Second)
	if f.bar.Ticks == 0 || f.bar.Ticks == f.barSize {
		f.bar = model.Candle{Symbol: f.symbol, BarSize: f.barSize, Open: price, High: price, Low: price, Ticks: 0}
	}
	f.bar.High = math.Max(f.bar.High, price)
	f.bar.Low = math.Min(f.bar.Low, price)
	f.bar.Close = price
	f.bar.Ticks++
	f.bar.TS = f.ts
	closed := f.bar.Ticks == f.barSize
	if closed {
		f.hist.Append(f.bar)
	}
	f.reg.UpdateForming(f.hist, f.bar)
	if closed {
		f.reg.UpdateFormed(f.hist, f.bar)
	}
	return closed
}

func (f *feeder) ticks(prices ...float64) {
	for _, p := range prices {
		f.tick(p)
	}
}

// bars builds closed candles from (o, h, l, c) quadruples.
func bars(ohlc ...[4]float64) []model.Candle {
	out := make([]model.Candle, len(ohlc))
	ts := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	for i, q := range ohlc {
		out[i] = model.Candle{Symbol: "ES", BarSize: 1, Open: q[0], High: q[1], Low: q[2], Close: q[3], Ticks: 1, TS: ts.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func historyOf(cs []model.Candle) *candle.History {
	h := candle.NewHistory(len(cs))
	for _, c := range cs {
		h.Append(c)
	}
	return h
}

package agg

import (
	"log/slog"
	"time"

	"daytrader/internal/candle"
	"daytrader/internal/model"
)

// IndicatorEngine receives bar updates from a TickAggregator.
type IndicatorEngine interface {
	// UpdateForming runs after every tick with the in-progress bar.
	UpdateForming(h *candle.History, bar model.Candle)
	// UpdateFormed runs once per closed bar.
	UpdateFormed(h *candle.History, bar model.Candle)
}

// TickAggregator builds tick-count bars for one (symbol, barSize) stream.
// A bar closes on the tick that brings its count to barSize; the next tick
// opens a new bar. It is not safe for concurrent use.
type TickAggregator struct {
	symbol  string
	barSize int

	cur       model.Candle // Ticks == 0 before the first tick
	curSmooth model.Candle
	hist      *candle.History
	move      candle.Move // current Heikin-Ashi move as of the last close

	engine IndicatorEngine

	// OnBarClosed is called after the closing tick's indicator updates.
	OnBarClosed func(bar, smooth model.Candle)
}

// NewTickAggregator creates an aggregator. engine may be nil.
func NewTickAggregator(symbol string, barSize int, engine IndicatorEngine) *TickAggregator {
	if barSize < 1 {
		barSize = 1
	}
	return &TickAggregator{
		symbol:  symbol,
		barSize: barSize,
		hist:    candle.NewHistory(256),
		engine:  engine,
		move:    candle.Move{Color: candle.None},
	}
}

func (a *TickAggregator) Symbol() string           { return a.symbol }
func (a *TickAggregator) BarSize() int             { return a.barSize }
func (a *TickAggregator) History() *candle.History { return a.hist }

// OnTick folds one price into the current bar and reports whether the
// tick closed it.
func (a *TickAggregator) OnTick(price float64, ts time.Time) bool {
	c := &a.cur
	if c.Ticks == 0 || c.Ticks == a.barSize {
		*c = model.Candle{
			Symbol:  a.symbol,
			BarSize: a.barSize,
			TS:      ts,
			Open:    price,
			High:    price,
			Low:     price,
			Close:   price,
			Ticks:   1,
			Forming: true,
		}
	} else {
		if price > c.High {
			c.High = price
		}
		if price < c.Low {
			c.Low = price
		}
		c.Close = price
		c.TS = ts
		c.Ticks++
	}

	closed := c.Ticks == a.barSize
	var smooth model.Candle
	if closed {
		c.Forming = false
		smooth = a.hist.Append(*c)
		a.curSmooth = smooth
	} else {
		a.curSmooth = a.hist.Smoothed(*c)
	}

	if a.engine != nil {
		a.engine.UpdateForming(a.hist, *c)
	}
	if !closed {
		return false
	}

	if a.engine != nil {
		a.engine.UpdateFormed(a.hist, *c)
	}
	a.move = candle.CurrentMove(a.hist.Smooth())
	if a.OnBarClosed != nil {
		a.OnBarClosed(*c, smooth)
	}
	return true
}

// Current returns the in-progress bar. ok is false before the first tick.
// Right after a close it returns the closed bar until the next tick.
func (a *TickAggregator) Current() (model.Candle, bool) {
	return a.cur, a.cur.Ticks > 0
}

// CurrentSmoothed returns the Heikin-Ashi version of Current.
func (a *TickAggregator) CurrentSmoothed() (model.Candle, bool) {
	return a.curSmooth, a.cur.Ticks > 0
}

// Move returns the Heikin-Ashi move classified at the last bar close.
func (a *TickAggregator) Move() candle.Move { return a.move }

type streamKey struct {
	symbol  string
	barSize int
}

// Aggregator routes ticks to every TickAggregator subscribed to the tick's
// symbol. Like TickAggregator it is driven from a single goroutine.
type Aggregator struct {
	engine   IndicatorEngine
	bySymbol map[string][]*TickAggregator
	byKey    map[streamKey]*TickAggregator

	// Optional hooks, set externally.
	OnDroppedTick func(t model.Tick)
	OnBarClosed   func(bar, smooth model.Candle)
	OnTick        func(t model.Tick)
}

// New creates an Aggregator whose streams feed engine.
func New(engine IndicatorEngine) *Aggregator {
	return &Aggregator{
		engine:   engine,
		bySymbol: make(map[string][]*TickAggregator),
		byKey:    make(map[streamKey]*TickAggregator),
	}
}

// Subscribe returns the stream for (symbol, barSize), creating it if needed.
func (a *Aggregator) Subscribe(symbol string, barSize int) *TickAggregator {
	k := streamKey{symbol, barSize}
	if ta, ok := a.byKey[k]; ok {
		return ta
	}
	ta := NewTickAggregator(symbol, barSize, a.engine)
	ta.OnBarClosed = func(bar, smooth model.Candle) {
		if a.OnBarClosed != nil {
			a.OnBarClosed(bar, smooth)
		}
	}
	a.byKey[k] = ta
	a.bySymbol[symbol] = append(a.bySymbol[symbol], ta)
	slog.Info("bar stream subscribed", "symbol", symbol, "bar_size", barSize)
	return ta
}

// Get returns an existing stream.
func (a *Aggregator) Get(symbol string, barSize int) (*TickAggregator, bool) {
	ta, ok := a.byKey[streamKey{symbol, barSize}]
	return ta, ok
}

// Symbols returns every subscribed symbol.
func (a *Aggregator) Symbols() []string {
	out := make([]string, 0, len(a.bySymbol))
	for s := range a.bySymbol {
		out = append(out, s)
	}
	return out
}

// ProcessTick feeds t to every stream of its symbol. Ticks for symbols
// with no subscription, or with a non-positive price, are dropped.
func (a *Aggregator) ProcessTick(t model.Tick) {
	streams := a.bySymbol[t.Symbol]
	if len(streams) == 0 || t.Price <= 0 {
		if a.OnDroppedTick != nil {
			a.OnDroppedTick(t)
		}
		return
	}
	if a.OnTick != nil {
		a.OnTick(t)
	}
	for _, ta := range streams {
		ta.OnTick(t.Price, t.TS)
	}
}

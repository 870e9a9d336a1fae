// Package strategy composes signal evaluators, entry filters and an order
// lifecycle into strategy instances, and manages their run from start to
// a flat shutdown.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"daytrader/internal/candle"
	"daytrader/internal/events"
	"daytrader/internal/execution"
	"daytrader/internal/indicator"
	"daytrader/internal/logger"
	"daytrader/internal/marketdata/agg"
	"daytrader/internal/model"
)

// Strategy is one configured instance trading one contract.
type Strategy struct {
	Settings

	stream  *agg.TickAggregator
	lc      *execution.Lifecycle
	eval    Evaluator
	filters []Filter
	sink    model.EventSink
	log     *slog.Logger
	now     func() time.Time

	active       bool
	entryBlocked bool
	waitStart    time.Time
	handles      []*events.Handle

	// watch on a signal-bar entry that has not filled yet
	watching bool
	failure  float64
	long     bool
}

// New builds a strategy on the (symbol, barSize) stream of aggr, taking
// its indicators from reg.
func New(set Settings, aggr *agg.Aggregator, reg *indicator.Registry, broker execution.Broker, sink model.EventSink) (*Strategy, error) {
	if sink == nil {
		sink = execution.SinkFunc(func(model.EventRecord) {})
	}
	s := &Strategy{
		Settings: set,
		sink:     sink,
		log:      slog.Default().With("component", "strategy", "strategy", set.Name),
		now:      time.Now,
	}
	s.stream = aggr.Subscribe(set.Contract.Symbol, set.BarSize)
	s.lc = execution.NewLifecycle(execution.LifecycleConfig{
		Strategy: set.Name,
		Class:    set.Class,
		Symbol:   set.Contract.Symbol,
		Qty:      set.Quantity,
		Bracket:  set.Bracket,
		Policy:   set.Policy,
	}, broker, sink)

	switch set.Class {
	case ClassScalping, ClassScalpingV2:
		s.eval = NewSignalBarEvaluator(s.stream, set.SignalThresh, set.Flip, s.record)
		s.filters = buildFilters(s.stream, reg, set.Filters)
	case ClassTrendScalping, ClassTrending:
		s.eval = NewADXTrendEvaluator(s.stream, reg.ADX(s.stream, set.Window), set.SlopeWindow,
			set.ADXThreshold, set.SlopeKernel, set.Flip, set.Class == ClassTrending, s.record)
	case ClassSpiking:
		s.eval = NewFormingATREvaluator(s.stream, reg.ATR(s.stream, set.Window), set.ATRThresh,
			set.ATRSlopeThresh, set.MoveThresh, set.Flip, s.record)
	default:
		return nil, fmt.Errorf("strategy %s: unknown class %q", set.Name, set.Class)
	}
	return s, nil
}

// Lifecycle returns the strategy's order lifecycle.
func (s *Strategy) Lifecycle() *execution.Lifecycle { return s.lc }

// Active reports whether the strategy is receiving events.
func (s *Strategy) Active() bool { return s.active }

// EntryBlocked reports whether new entries are suppressed.
func (s *Strategy) EntryBlocked() bool { return s.entryBlocked }

// Start registers the strategy's handlers and activates it. ctx is used
// for broker calls made from handlers.
func (s *Strategy) Start(ctx context.Context, d *events.Dispatcher) {
	if s.active {
		return
	}
	s.handles = append(s.handles,
		d.Register(events.KindBarClosed, func(ev events.Event) { s.onBarClosed(ctx, ev.Bar) }),
		d.Register(events.KindTick, func(ev events.Event) { s.onTick(ctx, ev.Tick) }),
		d.Register(events.KindOrder, func(ev events.Event) { s.lc.OnOrderEvent(ctx, ev.Order) }),
	)
	s.active = true
	s.record(model.RecordStrategyStart, "Activating")
}

// Stop releases the handlers. The strategy should be flat.
func (s *Strategy) Stop() {
	if !s.active {
		return
	}
	for _, h := range s.handles {
		h.Cancel()
	}
	s.handles = nil
	s.active = false
	moves := candle.NewMoveHistogram()
	moves.AddBars(s.stream.History().Smooth())
	if sum := moves.Summary(); sum != "" {
		s.record(model.RecordMoveStats, "Moves "+sum)
	}
	s.record(model.RecordStrategyStop, "Deactivating")
}

// StopEntry blocks new entries and starts the wait-time clock.
func (s *Strategy) StopEntry() {
	if s.entryBlocked {
		return
	}
	s.entryBlocked = true
	s.waitStart = s.now()
}

// CloseIfTime flattens the strategy once its wait time since StopEntry
// has elapsed.
func (s *Strategy) CloseIfTime(ctx context.Context) {
	if !s.entryBlocked || s.WaitTime < 0 {
		return
	}
	if s.now().Before(s.waitStart.Add(s.WaitTime)) {
		return
	}
	s.lc.SubmitExit(ctx, "wait time elapsed")
}

func (s *Strategy) mine(bar model.Candle) bool {
	return bar.Symbol == s.Contract.Symbol && bar.BarSize == s.BarSize
}

func (s *Strategy) onBarClosed(ctx context.Context, bar model.Candle) {
	if !s.mine(bar) {
		return
	}
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(s.Name, bar.TS))
	s.log.DebugContext(ctx, "bar closed", "close", bar.Close, "state", s.lc.State().String())
	if smooth, ok := s.stream.CurrentSmoothed(); ok {
		s.record(model.RecordNewBar, fmt.Sprintf("New Bar open=%g high=%g low=%g close=%g ha_open=%g ha_high=%g ha_low=%g ha_close=%g",
			bar.Open, bar.High, bar.Low, bar.Close, smooth.Open, smooth.High, smooth.Low, smooth.Close))
	}

	s.lc.CalibrateStatus(ctx)
	if s.watching && s.lc.State() == execution.PendingOpen {
		// the signal bar has passed without a fill
		s.watching = false
		s.lc.SubmitExit(ctx, "entry not filled within a bar")
		return
	}
	if s.eval.TickDriven() {
		return
	}
	s.decide(ctx, s.eval.Evaluate(bar.Close))
}

func (s *Strategy) onTick(ctx context.Context, t model.Tick) {
	if t.Symbol != s.Contract.Symbol {
		return
	}
	if s.watching {
		s.checkEntry(ctx, t.Price)
	}
	if !s.eval.TickDriven() {
		return
	}
	s.lc.CalibrateStatus(ctx)
	s.decide(ctx, s.eval.Evaluate(t.Price))
}

// decide acts on a verdict: exits an open position when asked to, enters
// when closed and nothing blocks it.
func (s *Strategy) decide(ctx context.Context, v Verdict) {
	if s.lc.IsOpen() {
		if v.Exit && s.lc.State() == execution.Open {
			s.lc.SubmitExit(ctx, "exit signal")
		}
		return
	}
	if !v.Enter || s.entryBlocked || s.lc.Repairing() {
		return
	}
	if s.flagsTriggered(v.Long) {
		return
	}
	prices, failure := s.prices(v)
	if s.lc.SubmitEntry(ctx, v.Long, prices) && failure != 0 {
		s.watching, s.failure, s.long = true, failure, v.Long
	}
}

// flagsTriggered runs every filter, recording each check.
func (s *Strategy) flagsTriggered(long bool) bool {
	triggered := false
	for _, f := range s.filters {
		hit, desc := f.Triggered(long)
		s.record(model.RecordFlagCheck, fmt.Sprintf("%s FlagCheck triggered=%v %s", f.Name(), hit, desc))
		triggered = triggered || hit
	}
	return triggered
}

// checkEntry abandons a working entry when price breaks the failure point
// or a filter turns against it.
func (s *Strategy) checkEntry(ctx context.Context, price float64) {
	if s.lc.State() != execution.PendingOpen {
		s.watching = false
		return
	}
	failed := entryFailed(price, s.failure, s.long)
	s.record(model.RecordFlagCheck, fmt.Sprintf("Entry Failure Check triggered=%v price=%g fail_point=%g long=%v",
		failed, price, s.failure, s.long))
	if failed || s.flagsTriggered(s.long) {
		s.watching = false
		s.lc.SubmitExit(ctx, "entry failure")
	}
}

func (s *Strategy) record(kind, msg string) {
	s.sink.Record(model.EventRecord{
		TS:       s.now(),
		Kind:     kind,
		Strategy: s.Name,
		Class:    s.Class,
		Message:  msg,
	})
}

package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"daytrader/config"
	"daytrader/internal/events"
	"daytrader/internal/execution"
	"daytrader/internal/indicator"
	"daytrader/internal/marketdata/agg"
	"daytrader/internal/model"
	"daytrader/internal/session"
)

// ManagerConfig holds the Manager's run parameters.
type ManagerConfig struct {
	// ShutdownPoll is the interval between broker checks while exiting.
	ShutdownPoll time.Duration
	// ShutdownTimeout bounds Shutdown when called from Run.
	ShutdownTimeout time.Duration
	// Clock, when set, ends Run at the session close.
	Clock *session.Clock
}

// Manager runs a set of strategies on one dispatcher. Everything that
// touches strategy state is executed on the dispatcher's loop.
type Manager struct {
	cfg    ManagerConfig
	disp   *events.Dispatcher
	aggr   *agg.Aggregator
	reg    *indicator.Registry
	broker execution.Broker
	sink   model.EventSink
	log    *slog.Logger
	now    func() time.Time

	strategies []*Strategy
	handles    []*events.Handle
}

// NewManager wires the aggregator into disp: ticks are aggregated before
// any strategy sees them and closed bars are dispatched as
// KindBarClosed events on the same loop iteration.
func NewManager(cfg ManagerConfig, disp *events.Dispatcher, aggr *agg.Aggregator, reg *indicator.Registry,
	broker execution.Broker, sink model.EventSink) *Manager {
	if cfg.ShutdownPoll <= 0 {
		cfg.ShutdownPoll = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Minute
	}
	if sink == nil {
		sink = execution.SinkFunc(func(model.EventRecord) {})
	}
	m := &Manager{
		cfg:    cfg,
		disp:   disp,
		aggr:   aggr,
		reg:    reg,
		broker: broker,
		sink:   sink,
		log:    slog.Default().With("component", "manager"),
		now:    time.Now,
	}

	prev := aggr.OnBarClosed
	aggr.OnBarClosed = func(bar, smooth model.Candle) {
		if prev != nil {
			prev(bar, smooth)
		}
		disp.Dispatch(events.Event{Kind: events.KindBarClosed, Bar: bar, Smooth: smooth})
	}
	m.handles = append(m.handles,
		disp.Register(events.KindTick, func(ev events.Event) { aggr.ProcessTick(ev.Tick) }),
		disp.Register(events.KindOrder, func(ev events.Event) { m.onOrder(ev.Order) }),
		disp.Register(events.KindConnection, func(ev events.Event) { m.onConnection(ev.Connected) }),
	)
	return m
}

// Load builds one strategy per parameter file. The file's base name,
// without extension, names the instance.
func (m *Manager) Load(paths ...string) error {
	for _, path := range paths {
		p, err := config.LoadParams(path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		set, err := NewSettings(name, p)
		if err != nil {
			return err
		}
		if err := m.Add(set); err != nil {
			return err
		}
	}
	return nil
}

// Add builds and registers a strategy. It must be called before Start.
func (m *Manager) Add(set Settings) error {
	for _, s := range m.strategies {
		if s.Name == set.Name {
			return fmt.Errorf("strategy %s: duplicate name", set.Name)
		}
	}
	s, err := New(set, m.aggr, m.reg, m.broker, m.sink)
	if err != nil {
		return err
	}
	m.strategies = append(m.strategies, s)
	m.log.Info("strategy loaded", "strategy", set.Name, "class", set.Class,
		"symbol", set.Contract.Symbol, "bar_size", set.BarSize, "bracket", set.Bracket)
	return nil
}

// Strategies returns the loaded strategies.
func (m *Manager) Strategies() []*Strategy { return m.strategies }

// Active returns the number of strategies still receiving events. It must
// run on the loop.
func (m *Manager) Active() int {
	n := 0
	for _, s := range m.strategies {
		if s.Active() {
			n++
		}
	}
	return n
}

// Start activates every strategy. The dispatcher loop must be running.
// Handlers use a context detached from ctx's cancellation so that exits
// can still be placed after the caller's context ends.
func (m *Manager) Start(ctx context.Context) error {
	hctx := context.WithoutCancel(ctx)
	return m.disp.Do(ctx, func() {
		for _, s := range m.strategies {
			s.Start(hctx, m.disp)
			s.Lifecycle().CalibrateStatus(hctx)
		}
	})
}

// StopEntry blocks new entries on every strategy.
func (m *Manager) StopEntry(ctx context.Context) error {
	return m.disp.Do(ctx, func() {
		for _, s := range m.strategies {
			s.StopEntry()
		}
	})
}

// Shutdown stops entries and then polls the broker until every strategy
// is flat and deactivated. Strategies whose wait time has run out are
// flattened. It returns ctx's error if ctx ends first.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.log.Info("shutdown started", "strategies", len(m.strategies))
	if err := m.StopEntry(ctx); err != nil {
		return fmt.Errorf("manager: stop entry: %w", err)
	}
	ticker := time.NewTicker(m.cfg.ShutdownPoll)
	defer ticker.Stop()
	for {
		remaining, err := events.Call(ctx, m.disp, func() int { return m.pollExit(ctx) })
		if err != nil {
			return fmt.Errorf("manager: shutdown: %w", err)
		}
		if remaining == 0 {
			m.log.Info("shutdown complete")
			return nil
		}
		m.log.Info("waiting for strategies to exit", "remaining", remaining)
		select {
		case <-ctx.Done():
			return fmt.Errorf("manager: shutdown: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// pollExit runs one shutdown round and returns how many strategies are
// still active.
func (m *Manager) pollExit(ctx context.Context) int {
	if ctx.Err() != nil {
		// Shutdown has already given up on this round
		return m.Active()
	}
	for _, s := range m.strategies {
		if !s.Active() {
			continue
		}
		s.Lifecycle().CalibrateStatus(ctx)
		if s.Lifecycle().Flat() {
			s.Stop()
			continue
		}
		s.CloseIfTime(ctx)
	}
	return m.Active()
}

// Run starts the strategies and shuts them down after runtime, at the
// session close or when ctx ends, whichever comes first. The dispatcher
// must keep running until Run returns.
func (m *Manager) Run(ctx context.Context, runtime time.Duration) error {
	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("manager: start: %w", err)
	}

	var runC, closeC <-chan time.Time
	if runtime > 0 {
		t := time.NewTimer(runtime)
		defer t.Stop()
		runC = t.C
	}
	if m.cfg.Clock != nil {
		now := m.now()
		m.log.Info("session", "status", m.cfg.Clock.Status(now))
		if d := m.cfg.Clock.UntilClose(now); d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			closeC = t.C
		}
	}

	select {
	case <-ctx.Done():
		m.log.Info("context done, shutting down")
	case <-runC:
		m.log.Info("runtime elapsed, shutting down", "runtime", runtime)
	case <-closeC:
		m.log.Info("session closing, shutting down")
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()
	return m.Shutdown(sctx)
}

// Close releases the manager's own handlers.
func (m *Manager) Close() {
	for _, h := range m.handles {
		h.Cancel()
	}
	m.handles = nil
}

func (m *Manager) onOrder(ev model.OrderEvent) {
	for _, s := range m.strategies {
		if s.Lifecycle().Owns(ev.OrderID) {
			return
		}
	}
	m.log.Warn("order event for an order no strategy placed",
		"order_id", ev.OrderID, "kind", ev.Kind, "symbol", ev.Symbol)
	m.sink.Record(model.EventRecord{
		TS:      m.now(),
		Kind:    model.RecordWarning,
		OrderID: ev.OrderID,
		Message: fmt.Sprintf("unknown order event %s on %s", ev.Kind, ev.Symbol),
	})
}

func (m *Manager) onConnection(up bool) {
	if !up {
		m.log.Warn("broker connection lost")
		return
	}
	m.log.Info("broker connection restored, recalibrating")
	ctx := context.Background()
	for _, s := range m.strategies {
		if s.Active() {
			s.Lifecycle().CalibrateStatus(ctx)
		}
	}
}

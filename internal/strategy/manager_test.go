package strategy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"daytrader/config"
	"daytrader/internal/events"
	"daytrader/internal/execution"
	"daytrader/internal/indicator"
	"daytrader/internal/marketdata/agg"
	"daytrader/internal/model"
)

var baseTime = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	recs []model.EventRecord
}

func (r *recorder) Record(rec model.EventRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
}

func (r *recorder) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.recs {
		if rec.Kind == kind {
			n++
		}
	}
	return n
}

// rig runs one strategy on a live dispatcher against the paper broker.
// Order events are pumped by hand until deliverAsync is called.
type rig struct {
	t     *testing.T
	ctx   context.Context
	disp  *events.Dispatcher
	paper *execution.PaperBroker
	rec   *recorder
	m     *Manager
	n     int
}

func scalpParams(extra ...string) config.Params {
	kv := append([]string{
		"strategy", "Scalping",
		"contract", "SPY",
		"ticksperbar", "1",
		"quantity", "1",
		"signal_thresh", "2",
		"wait_time", "0",
	}, extra...)
	return params(kv...)
}

func newRig(t *testing.T, p config.Params) *rig {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	disp := events.New(256)
	go disp.Run(ctx)
	reg := indicator.NewRegistry()
	aggr := agg.New(reg)
	paper := execution.NewPaperBroker(0, 0, 0)
	rec := &recorder{}
	m := NewManager(ManagerConfig{ShutdownPoll: 5 * time.Millisecond}, disp, aggr, reg, paper, rec)

	set, err := NewSettings("spy-1", p)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Add(set); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	return &rig{t: t, ctx: ctx, disp: disp, paper: paper, rec: rec, m: m}
}

func (r *rig) do(fn func()) {
	r.t.Helper()
	if err := r.disp.Do(r.ctx, fn); err != nil {
		r.t.Fatal(err)
	}
}

func (r *rig) pump() {
	for _, ev := range r.paper.TakeEvents() {
		ev := ev
		r.do(func() { r.disp.Dispatch(events.Event{Kind: events.KindOrder, Order: ev}) })
	}
}

func (r *rig) tick(prices ...float64) {
	for _, px := range prices {
		r.n++
		t := model.Tick{Symbol: "SPY", Price: px, TS: baseTime.Add(time.Duration(r.n) * time.Second)}
		r.paper.OnTick(t)
		r.pump()
		r.do(func() { r.disp.Dispatch(events.Event{Kind: events.KindTick, Tick: t}) })
		r.pump()
	}
}

func (r *rig) deliverAsync() {
	go r.paper.Run(r.ctx, func(ctx context.Context, ev model.OrderEvent) error {
		return r.disp.Post(ctx, events.Event{Kind: events.KindOrder, Order: ev})
	})
}

func (r *rig) state() (st execution.State, pos float64) {
	lc := r.m.Strategies()[0].Lifecycle()
	r.do(func() { st, pos = lc.State(), lc.Position() })
	return st, pos
}

// Heikin-Ashi of one-tick bars 100, 101, 102, 101: black, green, green,
// red. The red bar ends a two-bar move and signals a short.
var shortSignal = []float64{100, 101, 102, 101}

func TestManager_SignalBarRoundTrip(t *testing.T) {
	r := newRig(t, scalpParams())
	r.tick(shortSignal...)

	st, pos := r.state()
	if st != execution.Open || pos != -1 {
		t.Fatalf("after signal: state %s position %g, want Open -1", st, pos)
	}
	fills := r.paper.GetFills()
	if len(fills) != 1 || fills[0].Action != model.ActionSell {
		t.Fatalf("fills = %+v", fills)
	}
	assertClose(t, "entry", fills[0].FillPrice, 100.99)
	if n := r.rec.count(model.RecordSignal); n != 1 {
		t.Errorf("signal records = %d, want 1", n)
	}
	if n := r.rec.count(model.RecordFlagCheck); n != 7 {
		t.Errorf("flag checks = %d, want 7", n)
	}

	// take profit at 100.97
	r.tick(100.95)
	st, pos = r.state()
	if st != execution.Closed || pos != 0 {
		t.Fatalf("after target: state %s position %g, want Closed 0", st, pos)
	}
	fills = r.paper.GetFills()
	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(fills))
	}
	assertClose(t, "take profit", fills[1].FillPrice, 100.97)
	if p, _ := r.paper.Position(r.ctx, "SPY"); p != 0 {
		t.Errorf("broker position = %g", p)
	}
	if n := r.rec.count(model.RecordLogicError); n != 0 {
		t.Errorf("logic errors = %d", n)
	}
}

func TestManager_StopEntryBlocksSignals(t *testing.T) {
	r := newRig(t, scalpParams())
	if err := r.m.StopEntry(r.ctx); err != nil {
		t.Fatal(err)
	}
	r.tick(shortSignal...)

	if st, _ := r.state(); st != execution.Closed {
		t.Errorf("state = %s, want Closed", st)
	}
	if len(r.paper.GetFills()) != 0 {
		t.Error("entry placed after StopEntry")
	}
	if r.rec.count(model.RecordSignal) != 1 {
		t.Error("signal should still be evaluated and logged")
	}
}

func TestManager_ShutdownFlattensAfterWaitTime(t *testing.T) {
	r := newRig(t, scalpParams())
	r.tick(shortSignal...)
	if st, _ := r.state(); st != execution.Open {
		t.Fatalf("state = %s, want Open", st)
	}

	r.deliverAsync()
	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()
	if err := r.m.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	var active int
	r.do(func() { active = r.m.Active() })
	if active != 0 {
		t.Errorf("active strategies = %d", active)
	}
	if p, _ := r.paper.Position(r.ctx, "SPY"); p != 0 {
		t.Errorf("broker position = %g, want 0", p)
	}
	fills := r.paper.GetFills()
	if len(fills) != 2 || fills[1].Action != model.ActionBuy {
		t.Errorf("fills = %+v", fills)
	}
	if r.rec.count(model.RecordRepair) == 0 {
		t.Error("exit not recorded")
	}
	if r.rec.count(model.RecordStrategyStop) != 1 {
		t.Error("strategy not deactivated")
	}
	if r.rec.count(model.RecordMoveStats) != 1 {
		t.Error("move statistics not recorded at stop")
	}
}

func TestManager_PollAfterDeadlineDoesNothing(t *testing.T) {
	r := newRig(t, scalpParams())
	r.tick(shortSignal...)
	if st, _ := r.state(); st != execution.Open {
		t.Fatalf("state = %s, want Open", st)
	}
	if err := r.m.StopEntry(r.ctx); err != nil {
		t.Fatal(err)
	}

	expired, cancel := context.WithCancel(r.ctx)
	cancel()
	var remaining int
	r.do(func() { remaining = r.m.pollExit(expired) })
	if remaining != 1 {
		t.Errorf("remaining = %d, want 1", remaining)
	}
	if r.rec.count(model.RecordRepair) != 0 || len(r.paper.GetFills()) != 1 {
		t.Error("a late shutdown round acted on the broker")
	}
}

func TestManager_ShutdownWaitsForExits(t *testing.T) {
	r := newRig(t, scalpParams("wait_time", "-1"))
	r.tick(shortSignal...)
	r.deliverAsync()

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
		defer cancel()
		done <- r.m.Shutdown(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("shutdown returned before exit filled: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	r.paper.OnTick(model.Tick{Symbol: "SPY", Price: 100.9, TS: baseTime.Add(time.Minute)})
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	fills := r.paper.GetFills()
	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(fills))
	}
	assertClose(t, "take profit", fills[1].FillPrice, 100.97)
	if r.rec.count(model.RecordRepair) != 0 {
		t.Error("negative wait time must not flatten")
	}
}

func TestManager_UnknownOrderEventWarns(t *testing.T) {
	r := newRig(t, scalpParams())
	r.do(func() {
		r.disp.Dispatch(events.Event{Kind: events.KindOrder, Order: model.OrderEvent{
			Kind: model.EventFill, OrderID: 999, Symbol: "SPY",
		}})
	})
	if n := r.rec.count(model.RecordWarning); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
	if n := r.rec.count(model.RecordLogicError); n != 0 {
		t.Errorf("logic errors = %d", n)
	}
}

func TestManager_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "es-scalp.env")
	body := "STRATEGY=TrendScalping\nCONTRACT=ES\nINCREMENT=0.25\nQUANTITY=1\nTICKSPERBAR=500\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := indicator.NewRegistry()
	aggr := agg.New(reg)
	m := NewManager(ManagerConfig{}, events.New(8), aggr, reg, execution.NewPaperBroker(0, 0, 0), nil)
	if err := m.Load(path); err != nil {
		t.Fatal(err)
	}
	s := m.Strategies()
	if len(s) != 1 || s[0].Name != "es-scalp" || s[0].Class != ClassTrendScalping {
		t.Fatalf("strategies = %+v", s)
	}
	if _, ok := aggr.Get("ES", 500); !ok {
		t.Error("bar stream not subscribed")
	}
	if err := m.Load(path); err == nil {
		t.Error("duplicate strategy name accepted")
	}
	if err := m.Load(filepath.Join(dir, "missing.env")); err == nil {
		t.Error("missing file accepted")
	}
}

// cmd/replay runs the strategies over a recorded tick file against the
// paper broker, journaling every event, to dry-run parameter files
// without live market data.
//
// Usage:
//
//	go run ./cmd/replay --ticks=data/spy.csv --strategies=strategies/default.env
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"daytrader/internal/events"
	"daytrader/internal/execution"
	"daytrader/internal/indicator"
	"daytrader/internal/logger"
	"daytrader/internal/marketdata/agg"
	"daytrader/internal/marketdata/feed"
	"daytrader/internal/model"
	"daytrader/internal/strategy"
)

// simPoster feeds the loop one tick at a time: the paper broker sees the
// tick first, then its order events and the tick itself are dispatched
// and any orders placed in response are settled before the next tick.
type simPoster struct {
	disp  *events.Dispatcher
	paper *execution.PaperBroker
}

func (s *simPoster) Post(ctx context.Context, ev events.Event) error {
	if ev.Kind == events.KindTick {
		s.paper.OnTick(ev.Tick)
	}
	if err := s.pump(ctx); err != nil {
		return err
	}
	if err := s.disp.Do(ctx, func() { s.disp.Dispatch(ev) }); err != nil {
		return err
	}
	return s.pump(ctx)
}

func (s *simPoster) TryPost(ev events.Event) bool {
	return s.Post(context.Background(), ev) == nil
}

func (s *simPoster) pump(ctx context.Context) error {
	for {
		evs := s.paper.TakeEvents()
		if len(evs) == 0 {
			return nil
		}
		for _, ev := range evs {
			ev := ev
			if err := s.disp.Do(ctx, func() {
				s.disp.Dispatch(events.Event{Kind: events.KindOrder, Order: ev})
			}); err != nil {
				return err
			}
		}
	}
}

// tally counts event records per kind and sums realized P&L per strategy.
type tally struct {
	mu    sync.Mutex
	kinds map[string]int
	pnl   map[string]float64
}

func (t *tally) Record(rec model.EventRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kinds[rec.Kind]++
	if rec.RealizedPnL != 0 {
		t.pnl[rec.Strategy] += rec.RealizedPnL
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	ticksPath := flag.String("ticks", "data/ticks.csv", "Tick file (ts,symbol,price[,qty])")
	strategies := flag.String("strategies", "strategies/default.env", "Comma-separated strategy parameter files")
	dbPath := flag.String("db", "data/replay.db", "Journal database (empty disables)")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	slippage := flag.Float64("slippage-bps", 0, "Paper slippage on market and stop fills")
	commission := flag.Float64("commission", 0, "Paper commission per unit")
	shutdownTimeout := flag.Duration("shutdown-timeout", 2*time.Minute, "Maximum wait for strategies to exit after the last tick")
	level := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	logger.Init("replay", logger.ParseLevel(*level))

	ticks, err := feed.LoadTicks(*ticksPath)
	if err != nil {
		log.Fatalf("[replay] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	counts := &tally{kinds: map[string]int{}, pnl: map[string]float64{}}
	sinks := execution.MultiSink{counts, execution.LogSink{}}
	if *dbPath != "" {
		journal, err := execution.NewJournal(*dbPath)
		if err != nil {
			log.Fatalf("[replay] journal: %v", err)
		}
		defer journal.Close()
		sinks = append(sinks, journal)
	}

	disp := events.New(1024)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go disp.Run(loopCtx)

	reg := indicator.NewRegistry()
	aggr := agg.New(reg)
	paper := execution.NewPaperBroker(0, *slippage, *commission)
	m := strategy.NewManager(strategy.ManagerConfig{
		ShutdownPoll:    100 * time.Millisecond,
		ShutdownTimeout: *shutdownTimeout,
	}, disp, aggr, reg, paper, sinks)
	defer m.Close()

	paths := strings.Split(*strategies, ",")
	if err := m.Load(paths...); err != nil {
		log.Fatalf("[replay] %v", err)
	}
	if err := m.Start(ctx); err != nil {
		log.Fatalf("[replay] start: %v", err)
	}

	started := time.Now()
	sim := &simPoster{disp: disp, paper: paper}
	n, err := feed.NewReplayer(ticks, *speed).Run(ctx, sim)
	if err != nil {
		log.Printf("[replay] replay stopped after %d ticks: %v", n, err)
	}

	// Order events after the last tick arrive through the broker's own
	// delivery loop.
	go paper.Run(loopCtx, func(ctx context.Context, ev model.OrderEvent) error {
		return disp.Post(ctx, events.Event{Kind: events.KindOrder, Order: ev})
	})
	sctx, scancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	if err := m.Shutdown(sctx); err != nil {
		log.Printf("[replay] %v", err)
	}
	scancel()

	counts.mu.Lock()
	defer counts.mu.Unlock()
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║          REPLAY COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Ticks replayed:   %-17d ║\n", n)
	fmt.Printf("║  Bars seen:        %-17d ║\n", counts.kinds[model.RecordNewBar])
	fmt.Printf("║  Orders placed:    %-17d ║\n", counts.kinds[model.RecordOrderPlaced])
	fmt.Printf("║  Fills:            %-17d ║\n", len(paper.GetFills()))
	fmt.Printf("║  Repairs:          %-17d ║\n", counts.kinds[model.RecordRepair])
	fmt.Printf("║  Elapsed:          %-17s ║\n", time.Since(started).Round(time.Millisecond))
	fmt.Println("╠══════════════════════════════════════╣")
	names := make([]string, 0, len(counts.pnl))
	for name := range counts.pnl {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("║  %-16s P&L %13.2f ║\n", name, counts.pnl[name])
	}
	fmt.Println("╚══════════════════════════════════════╝")
}

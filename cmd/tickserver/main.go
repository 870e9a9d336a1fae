// cmd/tickserver serves simulated ticks over WebSocket so the trader can
// run without a live market data connection.
//
// Each message is a JSON model.Tick:
//
//	{"symbol":"SPY","price":512.34,"qty":37,"ts":"..."}
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  listen address (default ":9001")
//	TICK_SYMBOLS      comma-separated SYMBOL:START_PRICE pairs (default "SPY:500")
//	TICK_INCREMENT    price increment ticks are rounded to (default 0.01)
//	TICK_INTERVAL     time between rounds of ticks (default 100ms)
//	TICK_SEED         random walk seed, 0 picks one from the clock
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"

	"daytrader/internal/model"
)

type serverConfig struct {
	Addr      string        `envconfig:"TICK_SERVER_ADDR" default:":9001"`
	Symbols   string        `envconfig:"TICK_SYMBOLS" default:"SPY:500"`
	Increment float64       `envconfig:"TICK_INCREMENT" default:"0.01"`
	Interval  time.Duration `envconfig:"TICK_INTERVAL" default:"100ms"`
	Seed      int64         `envconfig:"TICK_SEED" default:"0"`
}

// generator random-walks each symbol and pushes ticks to every listener.
type generator struct {
	symbols   []string
	prices    []float64
	increment float64
	rng       *rand.Rand

	mu        sync.Mutex
	listeners map[chan model.Tick]struct{}
}

func newGenerator(start map[string]float64, order []string, increment float64, seed int64) *generator {
	g := &generator{
		increment: increment,
		rng:       rand.New(rand.NewSource(seed)),
		listeners: make(map[chan model.Tick]struct{}),
	}
	for _, sym := range order {
		g.symbols = append(g.symbols, sym)
		g.prices = append(g.prices, start[sym])
	}
	return g
}

func (g *generator) listen() chan model.Tick {
	ch := make(chan model.Tick, 512)
	g.mu.Lock()
	g.listeners[ch] = struct{}{}
	g.mu.Unlock()
	return ch
}

func (g *generator) forget(ch chan model.Tick) {
	g.mu.Lock()
	delete(g.listeners, ch)
	g.mu.Unlock()
}

// step moves price by at most three increments either way and keeps it
// at or above one increment.
func (g *generator) step(price float64) float64 {
	n := g.rng.Intn(7) - 3
	next := math.Round((price+float64(n)*g.increment)/g.increment) * g.increment
	return math.Max(next, g.increment)
}

// round produces one tick per symbol.
func (g *generator) round(now time.Time) []model.Tick {
	out := make([]model.Tick, len(g.symbols))
	for i, sym := range g.symbols {
		g.prices[i] = g.step(g.prices[i])
		out[i] = model.Tick{Symbol: sym, Price: g.prices[i], Qty: int64(g.rng.Intn(100) + 1), TS: now}
	}
	return out
}

func (g *generator) run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			ticks := g.round(now.UTC())
			g.mu.Lock()
			for ch := range g.listeners {
				for _, tk := range ticks {
					select {
					case ch <- tk:
					default:
					}
				}
			}
			g.mu.Unlock()
		}
	}
}

func serveTicks(ctx context.Context, g *generator) http.HandlerFunc {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade %s: %v", r.RemoteAddr, err)
			return
		}
		defer conn.Close()

		ch := g.listen()
		defer g.forget(ch)
		log.Printf("[tickserver] %s subscribed", r.RemoteAddr)

		for {
			select {
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				return
			case tk := <-ch:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(tk); err != nil {
					log.Printf("[tickserver] %s gone: %v", r.RemoteAddr, err)
					return
				}
			}
		}
	}
}

// parseSymbols reads SYMBOL:PRICE pairs. A bare symbol starts at 100.
func parseSymbols(s string) (map[string]float64, []string, error) {
	start := make(map[string]float64)
	var order []string
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		sym, px, hasPrice := strings.Cut(field, ":")
		sym = strings.TrimSpace(sym)
		price := 100.0
		if hasPrice {
			v, err := strconv.ParseFloat(strings.TrimSpace(px), 64)
			if err != nil || v <= 0 {
				return nil, nil, fmt.Errorf("bad start price in %q", field)
			}
			price = v
		}
		if _, dup := start[sym]; !dup {
			order = append(order, sym)
		}
		start[sym] = price
	}
	if len(order) == 0 {
		return nil, nil, errors.New("no symbols")
	}
	return start, order, nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var cfg serverConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("[tickserver] config: %v", err)
	}
	if cfg.Increment <= 0 || cfg.Interval <= 0 {
		log.Fatalf("[tickserver] TICK_INCREMENT and TICK_INTERVAL must be positive")
	}
	start, order, err := parseSymbols(cfg.Symbols)
	if err != nil {
		log.Fatalf("[tickserver] TICK_SYMBOLS: %v", err)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := newGenerator(start, order, cfg.Increment, cfg.Seed)
	go g.run(ctx, cfg.Interval)

	mux := http.NewServeMux()
	mux.Handle("/ws", serveTicks(ctx, g))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","symbols":%d}`+"\n", len(order))
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[tickserver] %v every %s on %s/ws (seed %d)", order, cfg.Interval, cfg.Addr, cfg.Seed)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[tickserver] %v", err)
	}
	log.Printf("[tickserver] stopped")
}

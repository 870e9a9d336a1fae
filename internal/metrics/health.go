package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check is a dependency probe. A failing Required check degrades health.
type Check struct {
	Name     string
	Required bool
	Ping     func(ctx context.Context) error
}

// RedisCheck probes a Redis client with PING.
func RedisCheck(rdb *goredis.Client, required bool) Check {
	return Check{Name: "redis", Required: required, Ping: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
}

// SQLCheck probes a database handle. The event store is always required.
func SQLCheck(name string, db *sql.DB) Check {
	return Check{Name: name, Required: true, Ping: db.PingContext}
}

// CheckResult is the last outcome of one Check.
type CheckResult struct {
	OK        bool      `json:"ok"`
	Required  bool      `json:"required"`
	LatencyMs float64   `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Report is the /healthz body.
type Report struct {
	Status     string                 `json:"status"`
	Uptime     string                 `json:"uptime"`
	Feed       bool                   `json:"feed_connected"`
	LastTick   *time.Time             `json:"last_tick,omitempty"`
	TickAge    string                 `json:"tick_age,omitempty"`
	MarketOpen bool                   `json:"market_open"`
	Stale      bool                   `json:"stale"`
	Strategies int                    `json:"active_strategies"`
	Checks     map[string]CheckResult `json:"checks"`
}

// Health tracks feed, session and dependency state for the trader.
type Health struct {
	staleAfter time.Duration
	checks     []Check
	now        func() time.Time

	mu         sync.Mutex
	started    time.Time
	feedUp     bool
	lastTick   time.Time
	marketOpen bool
	strategies int
	results    map[string]CheckResult
}

// NewHealth builds a Health. While the market is open and the feed is
// up, a last tick older than staleAfter marks the process stale; zero
// disables that rule.
func NewHealth(staleAfter time.Duration, checks ...Check) *Health {
	return &Health{
		staleAfter: staleAfter,
		checks:     checks,
		now:        time.Now,
		started:    time.Now(),
		results:    make(map[string]CheckResult, len(checks)),
	}
}

func (h *Health) SetFeedConnected(up bool) {
	h.mu.Lock()
	h.feedUp = up
	h.mu.Unlock()
}

func (h *Health) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.lastTick = t
	h.mu.Unlock()
}

func (h *Health) SetMarketOpen(open bool) {
	h.mu.Lock()
	h.marketOpen = open
	h.mu.Unlock()
}

func (h *Health) SetActiveStrategies(n int) {
	h.mu.Lock()
	h.strategies = n
	h.mu.Unlock()
}

// AddCheck registers a probe after construction.
func (h *Health) AddCheck(c Check) {
	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// Probe runs every check once, each bounded by timeout.
func (h *Health) Probe(ctx context.Context, timeout time.Duration) {
	h.mu.Lock()
	checks := append([]Check(nil), h.checks...)
	h.mu.Unlock()
	for _, c := range checks {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		start := h.now()
		err := c.Ping(pctx)
		cancel()

		res := CheckResult{
			OK:        err == nil,
			Required:  c.Required,
			LatencyMs: float64(h.now().Sub(start).Microseconds()) / 1000,
			CheckedAt: h.now(),
		}
		if err != nil {
			res.Error = err.Error()
		}
		h.mu.Lock()
		prev, seen := h.results[c.Name]
		h.results[c.Name] = res
		h.mu.Unlock()
		if seen && prev.OK != res.OK {
			log.Printf("[health] %s ok=%v (%v)", c.Name, res.OK, err)
		}
	}
}

// Watch probes immediately and then every interval until ctx is done.
func (h *Health) Watch(ctx context.Context, interval time.Duration) {
	h.Probe(ctx, 3*time.Second)
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				h.Probe(ctx, 3*time.Second)
			}
		}
	}()
}

// Report snapshots the current state.
func (h *Health) Report() Report {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	r := Report{
		Status:     "healthy",
		Uptime:     now.Sub(h.started).Round(time.Second).String(),
		Feed:       h.feedUp,
		MarketOpen: h.marketOpen,
		Strategies: h.strategies,
		Checks:     make(map[string]CheckResult, len(h.checks)),
	}
	if !h.lastTick.IsZero() {
		lt := h.lastTick
		r.LastTick = &lt
		r.TickAge = now.Sub(lt).Round(time.Millisecond).String()
		r.Stale = h.staleAfter > 0 && h.feedUp && h.marketOpen && now.Sub(lt) > h.staleAfter
	}

	degraded := !h.feedUp || r.Stale
	for _, c := range h.checks {
		res, ok := h.results[c.Name]
		if !ok {
			res = CheckResult{Required: c.Required, Error: "not checked"}
		}
		r.Checks[c.Name] = res
		if c.Required && !res.OK {
			degraded = true
		}
	}
	if degraded {
		r.Status = "degraded"
	}
	return r
}

// ServeHTTP answers 200 when healthy and 503 otherwise.
func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	r := h.Report()
	w.Header().Set("Content-Type", "application/json")
	if r.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(r)
}

// Server exposes /metrics and /healthz plus any handlers mounted with Handle.
type Server struct {
	mux *http.ServeMux
	srv *http.Server
}

// NewServer serves gatherer on /metrics (nil means the default registry)
// and health on /healthz.
func NewServer(addr string, health http.Handler, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)
	return &Server{
		mux: mux,
		srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
}

func (s *Server) Handler() http.Handler { return s.mux }

// Handle mounts an extra handler. Call it before Start.
func (s *Server) Handle(pattern string, h http.Handler) { s.mux.Handle(pattern, h) }

func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[metrics] %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error { return s.srv.Shutdown(ctx) }

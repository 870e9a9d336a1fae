// Package metrics exposes the trader's Prometheus metrics and the /healthz
// endpoint.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"daytrader/internal/model"
)

// Metrics holds all Prometheus metrics for the trader.
type Metrics struct {
	TicksTotal   prometheus.Counter
	DroppedTicks prometheus.Counter
	BarsClosed   *prometheus.CounterVec // labels: symbol

	IndicatorComputeDur prometheus.Histogram

	// Order flow
	OrdersPlaced *prometheus.CounterVec // labels: strategy
	OrderEvents  *prometheus.CounterVec // labels: kind
	Faults       *prometheus.CounterVec // labels: kind
	Repairs      *prometheus.CounterVec // labels: strategy
	StrategyOpen *prometheus.GaugeVec   // labels: strategy; 1 while exposed

	// Feed
	FeedConnected  prometheus.Gauge
	FeedReconnects prometheus.Counter
	QueueDrops     *prometheus.CounterVec // labels: kind

	// Sinks
	RedisWriteDur            prometheus.Histogram
	SQLiteCommitDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	EventsPublished          *prometheus.CounterVec // labels: result

	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	fast := []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001}
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daytrader_ticks_total",
			Help: "Total ticks received from the feed",
		}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daytrader_dropped_ticks_total",
			Help: "Ticks dropped (unsubscribed symbol or invalid price)",
		}),
		BarsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daytrader_bars_closed_total",
			Help: "Tick bars closed",
		}, []string{"symbol"}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "daytrader_indicator_compute_duration_seconds",
			Help:    "Indicator update latency per tick",
			Buckets: fast,
		}),
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daytrader_orders_placed_total",
			Help: "Orders accepted by the broker",
		}, []string{"strategy"}),
		OrderEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daytrader_order_events_total",
			Help: "Broker order events received",
		}, []string{"kind"}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daytrader_faults_total",
			Help: "Faults recorded by strategies (LOGIC_ERROR, ORDER_FAILURE, WARNING, FATAL)",
		}, []string{"kind"}),
		Repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daytrader_repairs_total",
			Help: "Exposure resets started",
		}, []string{"strategy"}),
		StrategyOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "daytrader_strategy_open",
			Help: "1 while a strategy believes it has exposure",
		}, []string{"strategy"}),
		FeedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "daytrader_feed_connected",
			Help: "Tick feed connection state (0=down, 1=up)",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daytrader_feed_reconnects_total",
			Help: "Tick feed reconnection attempts",
		}),
		QueueDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daytrader_event_queue_drops_total",
			Help: "Events dropped because the event queue was full",
		}, []string{"kind"}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "daytrader_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "daytrader_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "daytrader_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daytrader_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daytrader_events_published_total",
			Help: "Event-log records published to the broker exchange",
		}, []string{"result"}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "daytrader_market_state",
			Help: "Trading session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.DroppedTicks,
		m.BarsClosed,
		m.IndicatorComputeDur,
		m.OrdersPlaced,
		m.OrderEvents,
		m.Faults,
		m.Repairs,
		m.StrategyOpen,
		m.FeedConnected,
		m.FeedReconnects,
		m.QueueDrops,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.EventsPublished,
		m.MarketState,
	)
	return m
}

// Record implements model.EventSink by counting event-log records.
func (m *Metrics) Record(rec model.EventRecord) {
	switch rec.Kind {
	case model.RecordLogicError, model.RecordOrderFailure, model.RecordWarning, model.RecordFatal:
		m.Faults.WithLabelValues(rec.Kind).Inc()
	case model.RecordRepair:
		m.Repairs.WithLabelValues(rec.Strategy).Inc()
	case model.RecordOrderPlaced:
		m.OrdersPlaced.WithLabelValues(rec.Strategy).Inc()
	case model.RecordStateChange:
		// message is "prev -> next"
		if i := strings.LastIndex(rec.Message, "-> "); i >= 0 {
			open := 0.0
			if !strings.EqualFold(strings.TrimSpace(rec.Message[i+3:]), "closed") {
				open = 1
			}
			m.StrategyOpen.WithLabelValues(rec.Strategy).Set(open)
		}
	}
}

// ObserveIndicator records one indicator update duration.
func (m *Metrics) ObserveIndicator(d time.Duration) {
	m.IndicatorComputeDur.Observe(d.Seconds())
}

// SetFeedConnected updates the feed gauge.
func (m *Metrics) SetFeedConnected(up bool) {
	if up {
		m.FeedConnected.Set(1)
		return
	}
	m.FeedConnected.Set(0)
}

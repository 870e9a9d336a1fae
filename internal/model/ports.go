package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the trading core from concrete sinks
// (Redis, SQLite, RabbitMQ).

// CandleWriter persists closed bars.
type CandleWriter interface {
	// Run reads candles from candleCh and writes them.
	// Blocks until ctx is cancelled or candleCh is closed.
	Run(ctx context.Context, candleCh <-chan Candle)

	// Close releases underlying resources.
	Close() error
}

// IndicatorWriter persists indicator points.
type IndicatorWriter interface {
	// WriteIndicatorBatch writes multiple indicator results in a single batch.
	WriteIndicatorBatch(ctx context.Context, results []IndicatorResult)

	// Close releases underlying resources.
	Close() error
}

// EventSink receives strategy event-log records. Record must not block
// the caller for long; implementations buffer or drop.
type EventSink interface {
	Record(rec EventRecord)
}

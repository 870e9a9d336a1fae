// Package redis publishes closed bars and indicator values to Redis
// streams and pub/sub channels for dashboards and downstream consumers.
package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"daytrader/internal/model"
)

const (
	// stream length kept per key, approximate
	barStreamMaxLen = 5000
	indStreamMaxLen = 5000
	latestTTL       = 30 * time.Minute
	// bars held while the breaker is open
	maxPendingBars = 10000
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes closed bars and indicator points to Redis. Calls go
// through a circuit breaker; closed bars that fail are kept and replayed
// after the next successful write, forming values are dropped.
type Writer struct {
	client  *goredis.Client
	cb      *CircuitBreaker
	pending []model.Candle

	// OnWrite observes each pipeline round trip.
	OnWrite func(d time.Duration)
}

// New creates a Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, NewCircuitBreaker(5, 10*time.Second)), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, cb *CircuitBreaker) *Writer {
	return &Writer{client: client, cb: cb}
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Breaker returns the writer's circuit breaker.
func (w *Writer) Breaker() *CircuitBreaker { return w.cb }

// Pending returns the number of bars waiting to be replayed.
func (w *Writer) Pending() int { return len(w.pending) }

// Run writes closed bars from candleCh until ctx is cancelled or the
// channel is closed. It implements model.CandleWriter.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			w.WriteBar(ctx, c)
		}
	}
}

// RunIndicators writes indicator batches until ctx is cancelled or the
// channel is closed.
func (w *Writer) RunIndicators(ctx context.Context, ch <-chan []model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-ch:
			if !ok {
				return
			}
			w.WriteIndicatorBatch(ctx, batch)
		}
	}
}

// WriteBar appends c to its bar stream, sets the latest-bar key and
// publishes it. Bars that cannot be written are queued for replay.
func (w *Writer) WriteBar(ctx context.Context, c model.Candle) {
	bars := append(w.pending, c)
	err := w.exec(ctx, func(pipe goredis.Pipeliner) {
		for i := range bars {
			addBar(ctx, pipe, &bars[i])
		}
	})
	if err == nil {
		w.pending = w.pending[:0]
		return
	}
	if len(bars) > maxPendingBars {
		bars = bars[len(bars)-maxPendingBars:]
	}
	w.pending = bars
	if err != ErrCircuitOpen {
		log.Printf("[redis] bar pipeline error for %s (%d pending): %v", c.Key(), len(w.pending), err)
	}
}

func addBar(ctx context.Context, pipe goredis.Pipeliner, c *model.Candle) {
	data := string(c.JSON())
	key := c.StreamKey()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: key,
		MaxLen: barStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	})
	pipe.Set(ctx, LatestKey(key), data, latestTTL)
	pipe.Publish(ctx, Channel(key), data)
}

// WriteIndicatorBatch writes a batch in one pipeline. Formed points are
// appended to their stream, stored as latest and published; forming
// points are only published. It implements model.IndicatorWriter.
func (w *Writer) WriteIndicatorBatch(ctx context.Context, results []model.IndicatorResult) {
	if len(results) == 0 {
		return
	}
	err := w.exec(ctx, func(pipe goredis.Pipeliner) {
		for i := range results {
			r := &results[i]
			data := string(r.JSON())
			key := r.StreamKey()
			if r.Formed {
				pipe.XAdd(ctx, &goredis.XAddArgs{
					Stream: key,
					MaxLen: indStreamMaxLen,
					Approx: true,
					Values: map[string]interface{}{"data": data},
				})
				pipe.Set(ctx, LatestKey(key), data, latestTTL)
			}
			pipe.Publish(ctx, Channel(key), data)
		}
	})
	if err != nil && err != ErrCircuitOpen {
		log.Printf("[redis] indicator batch pipeline error (%d results): %v", len(results), err)
	}
}

func (w *Writer) exec(ctx context.Context, build func(goredis.Pipeliner)) error {
	return w.cb.Do(func() error {
		start := time.Now()
		pipe := w.client.Pipeline()
		build(pipe)
		_, err := pipe.Exec(ctx)
		if w.OnWrite != nil {
			w.OnWrite(time.Since(start))
		}
		return err
	})
}

// LatestKey is the key holding the last value written to stream.
func LatestKey(stream string) string { return stream + ":latest" }

// Channel is the pub/sub channel mirroring stream.
func Channel(stream string) string { return "pub:" + stream }

// BarStream is the stream key of (symbol, barSize).
func BarStream(symbol string, barSize int) string {
	return "bar:" + strconv.Itoa(barSize) + "t:" + symbol
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"daytrader/internal/events"
	"daytrader/internal/model"
)

// ReadTicks parses a tick file with the header "ts,symbol,price[,qty]".
// ts is RFC 3339 or Unix milliseconds. Rows must be in time order.
func ReadTicks(r io.Reader) ([]model.Tick, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("feed: read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"ts", "symbol", "price"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("feed: tick file has no %q column", need)
		}
	}

	var ticks []model.Tick
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return ticks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("feed: line %d: %w", line, err)
		}
		t, err := parseTick(rec, col)
		if err != nil {
			return nil, fmt.Errorf("feed: line %d: %w", line, err)
		}
		if n := len(ticks); n > 0 && t.TS.Before(ticks[n-1].TS) {
			return nil, fmt.Errorf("feed: line %d: tick out of order", line)
		}
		ticks = append(ticks, t)
	}
}

func parseTick(rec []string, col map[string]int) (model.Tick, error) {
	get := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	var t model.Tick
	var err error
	if t.TS, err = parseTS(get("ts")); err != nil {
		return t, err
	}
	t.Symbol = get("symbol")
	if t.Price, err = strconv.ParseFloat(get("price"), 64); err != nil {
		return t, fmt.Errorf("price: %w", err)
	}
	if q := get("qty"); q != "" {
		if t.Qty, err = strconv.ParseInt(q, 10, 64); err != nil {
			return t, fmt.Errorf("qty: %w", err)
		}
	}
	return t, nil
}

func parseTS(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return t, fmt.Errorf("ts: %w", err)
	}
	return t, nil
}

// LoadTicks reads a tick file from disk.
func LoadTicks(path string) ([]model.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	defer f.Close()
	return ReadTicks(f)
}

// Replayer posts recorded ticks to the event loop.
type Replayer struct {
	ticks []model.Tick

	// Speed scales the gaps between ticks: 1 is real time, 10 ten times
	// faster, 0 as fast as the loop accepts them.
	Speed float64
	// MaxGap caps a single scaled wait.
	MaxGap time.Duration
}

// NewReplayer creates a replayer over ticks.
func NewReplayer(ticks []model.Tick, speed float64) *Replayer {
	return &Replayer{ticks: ticks, Speed: speed, MaxGap: 5 * time.Second}
}

// Run posts every tick, blocking on a full queue, and returns the number
// posted. A connection-up event is posted first.
func (r *Replayer) Run(ctx context.Context, out Poster) (int, error) {
	if err := out.Post(ctx, events.Event{Kind: events.KindConnection, Connected: true}); err != nil {
		return 0, err
	}
	log.Printf("[replay] %d ticks, speed=%.1fx", len(r.ticks), r.Speed)

	var prev time.Time
	for i, t := range r.ticks {
		if r.Speed > 0 && !prev.IsZero() {
			if gap := time.Duration(float64(t.TS.Sub(prev)) / r.Speed); gap > 0 {
				if gap > r.MaxGap {
					gap = r.MaxGap
				}
				select {
				case <-ctx.Done():
					return i, ctx.Err()
				case <-time.After(gap):
				}
			}
		}
		prev = t.TS
		if err := out.Post(ctx, events.Event{Kind: events.KindTick, Tick: t}); err != nil {
			return i, err
		}
	}
	log.Printf("[replay] completed: %d ticks", len(r.ticks))
	return len(r.ticks), nil
}

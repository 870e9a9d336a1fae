// Package sqlite exports closed tick bars and formed indicator points to a
// SQLite database for offline analysis.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"daytrader/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db *sql.DB

	// OnCommit observes each batch commit.
	OnCommit func(d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol   TEXT    NOT NULL,
			bar_size INTEGER NOT NULL,
			seq      INTEGER NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   INTEGER,
			PRIMARY KEY (symbol, bar_size, seq)
		);

		CREATE TABLE IF NOT EXISTS indicators (
			name     TEXT    NOT NULL,
			symbol   TEXT    NOT NULL,
			bar_size INTEGER NOT NULL,
			ts       INTEGER NOT NULL,
			value    REAL    NOT NULL,
			slope    REAL    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_indicators_stream ON indicators(symbol, bar_size, name, ts);
	`)
	return err
}

// Run reads closed bars from candleCh and inserts them in batched
// transactions, flushing every defaultBatchSize bars or defaultFlushDelay.
// Blocks until ctx is cancelled or candleCh is closed. It implements
// model.CandleWriter.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.InsertBars(batch); err != nil {
			log.Printf("[sqlite] bar batch insert error: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case c, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// RunIndicators writes indicator batches until ctx is cancelled or ch is
// closed.
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

// InsertBars inserts bars in one transaction. Each bar's sequence number
// continues from the last stored bar of its stream.
func (w *Writer) InsertBars(bars []model.Candle) error {
	start := time.Now()
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO bars (symbol, bar_size, seq, ts, open, high, low, close, volume)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?, ?
		FROM bars WHERE symbol = ? AND bar_size = ?
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range bars {
		if _, err := stmt.Exec(c.Symbol, c.BarSize, c.TS.UnixNano(), c.Open, c.High, c.Low, c.Close, c.Volume,
			c.Symbol, c.BarSize); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if w.OnCommit != nil {
		w.OnCommit(time.Since(start))
	}
	return nil
}

// WriteIndicatorBatch stores the formed points of results. Forming points
// are skipped. It implements model.IndicatorWriter.
func (w *Writer) WriteIndicatorBatch(ctx context.Context, results []model.IndicatorResult) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("[sqlite] indicator batch: %v", err)
		return
	}
	defer tx.Rollback()

	n := 0
	for _, r := range results {
		if !r.Formed {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO indicators (name, symbol, bar_size, ts, value, slope) VALUES (?, ?, ?, ?, ?, ?)`,
			r.Name, r.Symbol, r.BarSize, r.TS.UnixNano(), r.Value, r.Slope); err != nil {
			log.Printf("[sqlite] indicator insert %s: %v", r.Name, err)
			return
		}
		n++
	}
	if n == 0 {
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("[sqlite] indicator commit: %v", err)
	}
}

// Bars returns up to limit of the most recent bars of a stream, oldest
// first.
func (w *Writer) Bars(symbol string, barSize, limit int) ([]model.Candle, error) {
	rows, err := w.db.Query(`
		SELECT ts, open, high, low, close, volume FROM (
			SELECT seq, ts, open, high, low, close, volume FROM bars
			WHERE symbol = ? AND bar_size = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, symbol, barSize, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		c := model.Candle{Symbol: symbol, BarSize: barSize, Ticks: barSize}
		var ts int64
		var vol sql.NullInt64
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		c.TS = time.Unix(0, ts).UTC()
		c.Volume = vol.Int64
		out = append(out, c)
	}
	return out, rows.Err()
}

// Indicator returns the formed points of one indicator series, oldest
// first.
func (w *Writer) Indicator(name, symbol string, barSize int) ([]model.IndicatorResult, error) {
	rows, err := w.db.Query(`
		SELECT ts, value, slope FROM indicators
		WHERE name = ? AND symbol = ? AND bar_size = ?
		ORDER BY ts ASC, rowid ASC
	`, name, symbol, barSize)
	if err != nil {
		return nil, fmt.Errorf("sqlite query indicators: %w", err)
	}
	defer rows.Close()

	var out []model.IndicatorResult
	for rows.Next() {
		r := model.IndicatorResult{Name: name, Symbol: symbol, BarSize: barSize, Formed: true}
		var ts int64
		if err := rows.Scan(&ts, &r.Value, &r.Slope); err != nil {
			return nil, fmt.Errorf("sqlite scan indicators: %w", err)
		}
		r.TS = time.Unix(0, ts).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

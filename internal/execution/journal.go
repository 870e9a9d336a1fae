package execution

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"daytrader/internal/model"
)

// Journal persists strategy event records to SQLite for audit.
type Journal struct {
	mu  sync.Mutex
	db  *sql.DB
	log *slog.Logger
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		ts           TEXT NOT NULL,
		event        TEXT NOT NULL,
		strategy     TEXT NOT NULL,
		class        TEXT NOT NULL,
		order_id     INTEGER DEFAULT 0,
		action       TEXT,
		order_type   TEXT,
		price        REAL DEFAULT 0,
		qty          REAL DEFAULT 0,
		commission   REAL DEFAULT 0,
		realized_pnl REAL DEFAULT 0,
		message      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_strategy ON events(strategy);
	CREATE INDEX IF NOT EXISTS idx_events_event ON events(event);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	l := slog.Default().With("component", "journal")
	l.Info("opened event journal", "path", dbPath)
	return &Journal{db: db, log: l}, nil
}

// Record implements model.EventSink. Write failures are logged, not returned.
func (j *Journal) Record(rec model.EventRecord) {
	if err := j.RecordEvent(rec); err != nil {
		j.log.Error("journal write failed", "event", rec.Kind, "strategy", rec.Strategy, "error", err)
	}
}

// RecordEvent persists one record.
func (j *Journal) RecordEvent(rec model.EventRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO events (ts, event, strategy, class, order_id, action, order_type, price, qty, commission, realized_pnl, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TS.UTC().Format(time.RFC3339Nano),
		rec.Kind,
		rec.Strategy,
		rec.Class,
		rec.OrderID,
		rec.Action,
		rec.OrderType,
		rec.Price,
		rec.Qty,
		rec.Commission,
		rec.RealizedPnL,
		rec.Message,
	)
	return err
}

// Run writes records from ch until ctx is cancelled or ch is closed.
func (j *Journal) Run(ctx context.Context, ch <-chan model.EventRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			j.Record(rec)
		}
	}
}

// Events returns the last limit records for strategy (all strategies when
// empty), newest first.
func (j *Journal) Events(strategy string, limit int) ([]model.EventRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	q := `SELECT ts, event, strategy, class, order_id, action, order_type, price, qty, commission, realized_pnl, message
		 FROM events`
	args := []any{}
	if strategy != "" {
		q += ` WHERE strategy = ?`
		args = append(args, strategy)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EventRecord
	for rows.Next() {
		var (
			r  model.EventRecord
			ts string
		)
		if err := rows.Scan(&ts, &r.Kind, &r.Strategy, &r.Class, &r.OrderID, &r.Action,
			&r.OrderType, &r.Price, &r.Qty, &r.Commission, &r.RealizedPnL, &r.Message); err != nil {
			return nil, err
		}
		r.TS, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

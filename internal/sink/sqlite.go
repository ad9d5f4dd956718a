package sink

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tickwatch/pkg/model"
)

// Recorder persists signals to a SQLite database and serves recent-signal
// queries for the HTTP API.
type Recorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRecorder opens (or creates) the SQLite database and runs migrations.
func NewRecorder(dbPath string) (*Recorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so API reads do not block the write path.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &Recorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *Recorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id        TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			symbol    TEXT NOT NULL,
			kind      TEXT NOT NULL,
			price     REAL NOT NULL,
			reason    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// Record inserts one signal row.
func (r *Recorder) Record(ctx context.Context, sig model.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO signals
		(id, timestamp, symbol, kind, price, reason)
		VALUES (?,?,?,?,?,?)`,
		uuid.NewString(), sig.Time.Unix(), sig.Symbol,
		string(sig.Kind), sig.Price, sig.Reason,
	)
	return err
}

// Recent returns up to limit signals, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]model.Signal, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `SELECT timestamp, symbol, kind, price, reason
		FROM signals ORDER BY timestamp DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var (
			ts     int64
			sig    model.Signal
			kind   string
			reason sql.NullString
		)
		if err := rows.Scan(&ts, &sig.Symbol, &kind, &sig.Price, &reason); err != nil {
			return nil, err
		}
		sig.Time = time.Unix(ts, 0).UTC()
		sig.Kind = model.SignalKind(kind)
		sig.Reason = reason.String
		out = append(out, sig)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

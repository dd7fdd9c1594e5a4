package exclusion

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/KyungWonPark/FirstLevel/internal/io"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS exclusions (
	batch_id    TEXT NOT NULL,
	subid_task  TEXT NOT NULL,
	indicator   TEXT NOT NULL,
	value       TEXT NOT NULL,
	source      TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS exclusions_key ON exclusions (subid_task);
`

// Entry is one indicator of one excluded key.
type Entry struct {
	Batch     string
	Key       string
	Indicator string
	Value     string
	Source    string
}

// Ledger stores exclusion tables in long format, one row per indicator,
// grouped by import batch.
type Ledger struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenLedger opens or creates a SQLite ledger at path.
func OpenLedger(path string, log *zap.Logger) (*Ledger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("[OpenLedger] opening %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("[OpenLedger] setting busy timeout: %w", err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("[OpenLedger] applying schema: %w", err)
	}
	return &Ledger{db: db, log: log}, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// Import records every failing indicator of t under a new batch id and
// returns the id. source names where the table came from.
func (l *Ledger) Import(ctx context.Context, source string, t *io.Table) (string, error) {
	key := -1
	for i, h := range t.Header {
		if h == KeyColumn {
			key = i
		}
	}
	if key < 0 {
		return "", fmt.Errorf("[Import] %s has no %s column", source, KeyColumn)
	}

	batch := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("[Import] begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO exclusions (batch_id, subid_task, indicator, value, source, recorded_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return "", fmt.Errorf("[Import] prepare: %w", err)
	}
	defer stmt.Close()

	var n int
	for _, row := range t.Rows {
		for j, h := range t.Header {
			if j == key || j >= len(row) || row[j] == Pass || row[j] == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, batch, row[key], h, row[j], source, now); err != nil {
				return "", fmt.Errorf("[Import] insert %s/%s: %w", row[key], h, err)
			}
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("[Import] commit: %w", err)
	}

	l.log.Info("ledger import", zap.String("batch", batch), zap.String("source", source), zap.Int("entries", n))
	return batch, nil
}

// Entries returns the entries of a batch, or of every batch when batch is empty.
func (l *Ledger) Entries(ctx context.Context, batch string) ([]Entry, error) {
	q := "SELECT batch_id, subid_task, indicator, value, source FROM exclusions"
	var args []interface{}
	if batch != "" {
		q += " WHERE batch_id = ?"
		args = append(args, batch)
	}
	q += " ORDER BY rowid"

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("[Entries] query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Batch, &e.Key, &e.Indicator, &e.Value, &e.Source); err != nil {
			return nil, fmt.Errorf("[Entries] scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Keys returns the distinct excluded keys across all batches.
func (l *Ledger) Keys(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT DISTINCT subid_task FROM exclusions ORDER BY subid_task")
	if err != nil {
		return nil, fmt.Errorf("[Keys] query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("[Keys] scan: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

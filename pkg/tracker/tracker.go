package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/glimpse/pkg/models"
)

// Tracker records and queries per-call backend usage.
type Tracker interface {
	// Record stores a usage record.
	Record(ctx context.Context, rec models.UsageRecord) error
	// Since returns usage records created at or after since, newest first.
	Since(ctx context.Context, since time.Time) ([]models.UsageRecord, error)
	// SpendSince returns the total cost recorded at or after since.
	SpendSince(ctx context.Context, since time.Time) (float64, error)
	// Summary returns usage aggregated by backend and model, optionally
	// filtered by backend.
	Summary(ctx context.Context, backend models.Backend) ([]models.UsageSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL DEFAULT '',
	backend TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	cost REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_time ON usage_records(created_at);
CREATE INDEX IF NOT EXISTS idx_usage_backend ON usage_records(backend, model);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores a usage record. A zero CreatedAt is stamped with the
// current time.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO usage_records (request_id, backend, model, prompt_tokens, completion_tokens, total_tokens, cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, string(rec.Backend), rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.Cost, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Since returns usage records created at or after since.
func (t *SQLiteTracker) Since(ctx context.Context, since time.Time) ([]models.UsageRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, request_id, backend, model, prompt_tokens, completion_tokens, total_tokens, cost, created_at
		 FROM usage_records WHERE created_at >= ? ORDER BY created_at DESC, id DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var backend string
		if err := rows.Scan(&r.ID, &r.RequestID, &backend, &r.Model, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.Cost, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		r.Backend = models.Backend(backend)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SpendSince returns the total cost recorded at or after since.
func (t *SQLiteTracker) SpendSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM usage_records WHERE created_at >= ?`,
		since.UTC(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total spend: %w", err)
	}
	return total, nil
}

// Summary returns aggregated usage grouped by backend and model.
func (t *SQLiteTracker) Summary(ctx context.Context, backend models.Backend) ([]models.UsageSummary, error) {
	query := `SELECT backend, model, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens), SUM(cost)
		 FROM usage_records`
	var args []any
	if backend != "" {
		query += ` WHERE backend = ?`
		args = append(args, string(backend))
	}
	query += ` GROUP BY backend, model ORDER BY backend, model`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		var b string
		if err := rows.Scan(&b, &s.Model, &s.RequestCount, &s.TotalPrompt, &s.TotalCompletion, &s.TotalTokens, &s.TotalCost); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Backend = models.Backend(b)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}

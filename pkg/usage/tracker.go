// Package usage records per-question token usage and latency in
// SQLite. Totals feed budget enforcement; summaries feed the CLI.
package usage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/models"
)

// Tracker records and queries ask usage.
type Tracker interface {
	// Record stores a usage record.
	Record(ctx context.Context, rec models.UsageRecord) error
	// Recent returns records since a given time, newest first.
	Recent(ctx context.Context, since time.Time, limit int) ([]models.UsageRecord, error)
	// TotalSince returns total tokens across all models since a given time.
	TotalSince(ctx context.Context, since time.Time) (int64, error)
	// TotalByModelSince returns total tokens for one model since a given time.
	TotalByModelSince(ctx context.Context, model string, since time.Time) (int64, error)
	// Summary returns per-day, per-model aggregates, newest day first.
	Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error)
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
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	question_hash TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	cache_hit INTEGER NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_time ON usage_records(created_at);
CREATE INDEX IF NOT EXISTS idx_usage_model_time ON usage_records(model, created_at);
`

// New creates a SQLiteTracker and runs auto-migration. The time format
// parameter keeps created_at readable by strftime in Summary.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, "usage.open", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fault.Wrap(fault.KindStorage, "usage.migrate", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record implements Tracker.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO usage_records
		 (provider, model, question_hash, prompt_tokens, completion_tokens, total_tokens, latency_ms, cache_hit, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Provider, rec.Model, rec.QuestionHash, rec.PromptTokens, rec.CompletionTokens,
		rec.TotalTokens, rec.LatencyMs, boolToInt(rec.CacheHit), rec.Outcome, rec.CreatedAt,
	)
	if err != nil {
		return fault.Wrap(fault.KindStorage, "usage.record", err)
	}
	return nil
}

// Recent implements Tracker.
func (t *SQLiteTracker) Recent(ctx context.Context, since time.Time, limit int) ([]models.UsageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, provider, model, question_hash, prompt_tokens, completion_tokens, total_tokens, latency_ms, cache_hit, outcome, created_at
		 FROM usage_records WHERE created_at >= ? ORDER BY created_at DESC LIMIT ?`,
		since, limit,
	)
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, "usage.recent", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var cacheHit int
		if err := rows.Scan(&r.ID, &r.Provider, &r.Model, &r.QuestionHash, &r.PromptTokens,
			&r.CompletionTokens, &r.TotalTokens, &r.LatencyMs, &cacheHit, &r.Outcome, &r.CreatedAt); err != nil {
			return nil, fault.Wrap(fault.KindStorage, "usage.recent", err)
		}
		r.CacheHit = cacheHit != 0
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalSince implements Tracker.
func (t *SQLiteTracker) TotalSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM usage_records WHERE created_at >= ?`,
		since,
	).Scan(&total)
	if err != nil {
		return 0, fault.Wrap(fault.KindStorage, "usage.total", err)
	}
	return total, nil
}

// TotalByModelSince implements Tracker.
func (t *SQLiteTracker) TotalByModelSince(ctx context.Context, model string, since time.Time) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM usage_records WHERE model = ? AND created_at >= ?`,
		model, since,
	).Scan(&total)
	if err != nil {
		return 0, fault.Wrap(fault.KindStorage, "usage.total", err)
	}
	return total, nil
}

// Summary implements Tracker, grouping by calendar day and model.
func (t *SQLiteTracker) Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT strftime('%Y-%m-%d', created_at) AS day, model, COUNT(*), SUM(cache_hit),
		        SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens)
		 FROM usage_records WHERE created_at >= ?
		 GROUP BY day, model ORDER BY day DESC, model`,
		since,
	)
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, "usage.summary", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.Day, &s.Model, &s.RequestCount, &s.CacheHits,
			&s.TotalPrompt, &s.TotalCompletion, &s.TotalTokens); err != nil {
			return nil, fault.Wrap(fault.KindStorage, "usage.summary", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

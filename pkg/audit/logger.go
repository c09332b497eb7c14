// Package audit persists question/answer exchanges to a dedicated SQLite
// database for operational review. What gets stored is controlled by
// AuditConfig: question and answer text are only written when the
// corresponding include flag is set, and bodies are truncated to the
// configured maximum size. Entries older than the retention period are
// swept hourly.
package audit

import (
	"context"
	"database/sql"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/models"
	_ "modernc.org/sqlite"
)

// Logger writes and queries audit entries in a dedicated SQLite database.
type Logger struct {
	db      *sql.DB
	cfg     models.AuditConfig
	done    chan struct{}
	wg      sync.WaitGroup
	include map[string]bool
}

// New opens the audit SQLite database and creates the schema.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, "audit.open", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fault.Wrap(fault.KindStorage, "audit.open", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fault.Wrap(fault.KindStorage, "audit.migrate", err)
	}

	inc := make(map[string]bool)
	for _, v := range cfg.Include {
		inc[v] = true
	}

	l := &Logger{
		db:      db,
		cfg:     cfg,
		done:    make(chan struct{}),
		include: inc,
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		request_id        TEXT PRIMARY KEY,
		provider          TEXT NOT NULL,
		model             TEXT NOT NULL,
		question          TEXT,
		answer            TEXT,
		outcome           TEXT NOT NULL,
		prompt_tokens     INTEGER,
		completion_tokens INTEGER,
		total_tokens      INTEGER,
		latency_ms        INTEGER,
		created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_model ON audit_log(model)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_outcome ON audit_log(outcome)`)
	return err
}

// Log inserts an audit entry, respecting the include configuration.
// A nil Logger is a no-op so callers can skip the enabled check.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}

	question := entry.Question
	answer := entry.Answer
	if !l.include["questions"] {
		question = ""
	}
	if !l.include["answers"] {
		answer = ""
	}
	if l.cfg.MaxBodySize > 0 {
		question = truncate(question, l.cfg.MaxBodySize)
		answer = truncate(answer, l.cfg.MaxBodySize)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO audit_log
		(request_id, provider, model, question, answer, outcome,
		 prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.Provider, entry.Model, question, answer,
		entry.Outcome, entry.PromptTokens, entry.CompletionTokens,
		entry.TotalTokens, entry.LatencyMs, createdAt,
	)
	return fault.Wrap(fault.KindStorage, "audit.log", err)
}

// Query returns audit entries matching the given options, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT request_id, provider, model, question, answer, outcome,
		prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at
		FROM audit_log WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Model != "" {
		q += " AND model = ?"
		args = append(args, opts.Model)
	}
	if opts.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, opts.Outcome)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, "audit.query", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var question, answer sql.NullString
		if err := rows.Scan(
			&e.RequestID, &e.Provider, &e.Model, &question, &answer,
			&e.Outcome, &e.PromptTokens, &e.CompletionTokens,
			&e.TotalTokens, &e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fault.Wrap(fault.KindStorage, "audit.scan", err)
		}
		e.Question = question.String
		e.Answer = answer.String
		entries = append(entries, e)
	}
	return entries, fault.Wrap(fault.KindStorage, "audit.query", rows.Err())
}

// Stats returns aggregate counts grouped by day and outcome.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT date(created_at) as day, outcome, count(*) as cnt
		 FROM audit_log GROUP BY day, outcome ORDER BY day DESC, outcome`)
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, "audit.stats", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var day sql.NullString
		if err := rows.Scan(&day, &s.Outcome, &s.Count); err != nil {
			return nil, fault.Wrap(fault.KindStorage, "audit.stats", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, fault.Wrap(fault.KindStorage, "audit.stats", rows.Err())
}

// Cleanup deletes entries older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fault.Wrap(fault.KindStorage, "audit.cleanup", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}

// truncate caps s at max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

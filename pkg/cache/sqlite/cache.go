// Package sqlite implements the answer cache half of CacheState: an
// exact-match memo of synthesized answers keyed by question and model,
// backed by a SQLite file inside the configured cache directory.
package sqlite

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/models"
)

// Cache is an exact-match answer cache backed by SQLite.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS answer_cache (
	question_hash TEXT NOT NULL,
	model TEXT NOT NULL,
	answer TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL,
	PRIMARY KEY (question_hash, model)
);
`

// New creates a Cache at the given database path with a default TTL.
// _time_format=sqlite stores time.Time binds in a form SQLite's date
// functions can parse; expired-entry sweeps depend on it.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, "cache.open", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fault.Wrap(fault.KindStorage, "cache.migrate", err)
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// HashQuestion computes the cache key for a model/question pair.
// Whitespace is trimmed so retyped questions with stray padding hit the
// same entry; the question text itself is hashed raw to keep non-Latin
// scripts exact.
func HashQuestion(model, question string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(question)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get retrieves a cached answer. Returns false if absent or expired.
func (c *Cache) Get(questionHash, model string) (models.CacheEntry, bool) {
	var entry models.CacheEntry
	var createdAt time.Time
	var ttlSeconds int64

	err := c.db.QueryRow(
		`SELECT answer, prompt_tokens, completion_tokens, total_tokens, created_at, ttl_seconds
		 FROM answer_cache WHERE question_hash = ? AND model = ?`,
		questionHash, model,
	).Scan(&entry.Answer, &entry.Usage.PromptTokens, &entry.Usage.CompletionTokens,
		&entry.Usage.TotalTokens, &createdAt, &ttlSeconds)

	if err != nil {
		c.misses.Add(1)
		return models.CacheEntry{}, false
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	if time.Since(createdAt) > ttl {
		c.misses.Add(1)
		return models.CacheEntry{}, false
	}

	c.hits.Add(1)
	entry.QuestionHash = questionHash
	entry.Model = model
	entry.CreatedAt = createdAt
	entry.TTL = ttl
	return entry, true
}

// Put stores an answer in the cache.
func (c *Cache) Put(questionHash, model, answer string, usage models.Usage) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO answer_cache
		 (question_hash, model, answer, prompt_tokens, completion_tokens, total_tokens, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		questionHash, model, answer, usage.PromptTokens, usage.CompletionTokens,
		usage.TotalTokens, time.Now().UTC(), int64(c.ttl.Seconds()),
	)
	if err != nil {
		return fault.Wrap(fault.KindStorage, "cache.put", err)
	}
	return nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRow(`SELECT COUNT(*) FROM answer_cache`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fault.Wrap(fault.KindStorage, "cache.stats", err)
	}
	return models.CacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes cache entries. If expiredOnly is true, only expired
// entries are removed.
func (c *Cache) Clear(expiredOnly bool) error {
	var query string
	if expiredOnly {
		query = `DELETE FROM answer_cache WHERE (julianday('now') - julianday(created_at)) * 86400 > ttl_seconds`
	} else {
		query = `DELETE FROM answer_cache`
	}
	_, err := c.db.Exec(query)
	if err != nil {
		return fault.Wrap(fault.KindStorage, "cache.clear", err)
	}
	return nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

package models

import "time"

// CacheEntry stores a memoized answer.
type CacheEntry struct {
	QuestionHash string        `json:"question_hash"`
	Model        string        `json:"model"`
	Answer       string        `json:"answer"`
	Usage        Usage         `json:"usage"`
	CreatedAt    time.Time     `json:"created_at"`
	TTL          time.Duration `json:"ttl"`
}

// CacheStats reports answer cache performance.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

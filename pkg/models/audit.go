package models

import "time"

// AuditEntry represents a single audited question/answer exchange.
// Question and Answer are populated only when the corresponding include
// flag is set in AuditConfig.
type AuditEntry struct {
	RequestID        string    `json:"request_id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	Question         string    `json:"question,omitempty"`
	Answer           string    `json:"answer,omitempty"`
	Outcome          string    `json:"outcome"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	RetentionDays int      `yaml:"retention_days"`
	Include       []string `yaml:"include"`       // "questions", "answers"
	MaxBodySize   int      `yaml:"max_body_size"` // bytes per stored field
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Model     string
	Outcome   string
	Since     time.Time
	RequestID string
	Limit     int
}

// AuditStat holds aggregate audit counts for an outcome/day combination.
type AuditStat struct {
	Day     string
	Outcome string
	Count   int
}

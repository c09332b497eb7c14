package models

import "time"

// Usage represents token usage from an LLM response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Ask outcomes recorded by the usage tracker.
const (
	OutcomeOK        = "ok"
	OutcomeCacheHit  = "cache_hit"
	OutcomeInvalid   = "invalid_input"
	OutcomeUpstream  = "upstream_unavailable"
	OutcomeInference = "inference_error"
)

// UsageRecord tracks one answered (or failed) question.
type UsageRecord struct {
	ID               int64     `json:"id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	QuestionHash     string    `json:"question_hash"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CacheHit         bool      `json:"cache_hit"`
	Outcome          string    `json:"outcome"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates usage per day and model.
type UsageSummary struct {
	Day             string `json:"day"`
	Model           string `json:"model"`
	RequestCount    int    `json:"request_count"`
	CacheHits       int    `json:"cache_hits"`
	TotalPrompt     int    `json:"total_prompt"`
	TotalCompletion int    `json:"total_completion"`
	TotalTokens     int    `json:"total_tokens"`
}

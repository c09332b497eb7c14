package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/responsa-ai/responsa/pkg/models"
)

// Tool argument structs.

type askArgs struct {
	Question string `json:"question"`
}

type sinceArgs struct {
	Since string `json:"since"`
}

type auditSearchArgs struct {
	Model     string `json:"model"`
	Outcome   string `json:"outcome"`
	Since     string `json:"since"`
	RequestID string `json:"request_id"`
	Limit     int    `json:"limit"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"responsa_ask":          handleAsk,
	"responsa_health":       handleHealth,
	"responsa_stats":        handleStats,
	"responsa_count":        handleCount,
	"responsa_reload":       handleReload,
	"responsa_usage":        handleUsage,
	"responsa_audit_search": handleAuditSearch,
	"responsa_cache_stats":  handleCacheStats,
	"responsa_budget":       handleBudget,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "responsa_ask",
		Description: "Ask a natural-language question about the dataset and get a grounded answer.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"question"},
			"properties": map[string]any{
				"question": map[string]any{
					"type":        "string",
					"description": "The question to answer, in any language",
				},
			},
		},
	},
	{
		Name:        "responsa_health",
		Description: "Check service health including the data and inference dependencies.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "responsa_stats",
		Description: "Describe the loaded dataset: row count, columns, data types, last update time.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "responsa_count",
		Description: "Compare the provider's live row count against the loaded snapshot.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "responsa_reload",
		Description: "Drop all cached state so the next question sees fresh data.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "responsa_usage",
		Description: "Show aggregated token usage per day and model.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional, defaults to start of month)",
				},
			},
		},
	},
	{
		Name:        "responsa_audit_search",
		Description: "Search the question/answer audit trail with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model": map[string]any{
					"type":        "string",
					"description": "Filter by model (optional)",
				},
				"outcome": map[string]any{
					"type":        "string",
					"description": "Filter by outcome: ok, cache_hit, invalid_input, upstream_unavailable, inference_error (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
				"request_id": map[string]any{
					"type":        "string",
					"description": "Look up a single request by correlation ID (optional)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum entries to return (optional, default 50)",
				},
			},
		},
	},
	{
		Name:        "responsa_cache_stats",
		Description: "Show answer cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "responsa_budget",
		Description: "Show token consumption against each configured budget policy.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleAsk(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args askArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Question == "" {
		return errorResult("question is required")
	}
	resp, err := s.eng.Ask(ctx, args.Question)
	if err != nil {
		return errorResult("Error answering question: " + err.Error())
	}
	return textResult(resp.Answer)
}

func handleHealth(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatHealth(s.eng.Health(ctx)))
}

func handleStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	stats, err := s.eng.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching stats: " + err.Error())
	}
	return textResult(formatStats(stats))
}

func handleCount(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	rep, err := s.eng.Count(ctx)
	if err != nil {
		return errorResult("Error counting rows: " + err.Error())
	}
	return textResult(formatCount(rep))
}

func handleReload(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if err := s.eng.Reload(ctx); err != nil {
		return errorResult("Error clearing cached state: " + err.Error())
	}
	return textResult("Cached state cleared. The next question reloads the dataset.")
}

func handleUsage(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args sinceArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	since := beginningOfMonth()
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}

	rows, err := s.eng.UsageSummary(ctx, since)
	if err != nil {
		return errorResult("Error fetching usage: " + err.Error())
	}
	return textResult(formatUsage(rows))
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args auditSearchArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.AuditQueryOpts{
		Model:     args.Model,
		Outcome:   args.Outcome,
		RequestID: args.RequestID,
		Limit:     args.Limit,
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.eng.AuditSearch(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit trail: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	stats, err := s.eng.CacheStats()
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleBudget(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	statuses, err := s.eng.BudgetStatus(ctx)
	if err != nil {
		return errorResult("Error fetching budget status: " + err.Error())
	}
	return textResult(formatBudgetStatus(statuses))
}

func beginningOfMonth() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

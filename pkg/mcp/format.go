package mcp

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/responsa-ai/responsa/pkg/models"
)

// formatHealth formats a health report as text.
func formatHealth(rep *models.HealthReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status:      %s\n", rep.Status)
	fmt.Fprintf(&b, "Environment: %s\n", rep.Environment)
	if rep.Version != "" {
		fmt.Fprintf(&b, "Version:     %s\n", rep.Version)
	}
	fmt.Fprintf(&b, "Dataset:     loaded=%v rows=%d\n", rep.DatasetLoaded, rep.RowCount)

	names := make([]string, 0, len(rep.Dependencies))
	for name := range rep.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dep := rep.Dependencies[name]
		fmt.Fprintf(&b, "  %-10s %-5s %6dms", name, dep.Status, dep.LatencyMs)
		if dep.Error != "" {
			fmt.Fprintf(&b, "  %s", dep.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatStats formats a dataset description as text.
func formatStats(st *models.StatsSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table:        %s\n", st.Table)
	fmt.Fprintf(&b, "Environment:  %s\n", st.Environment)
	fmt.Fprintf(&b, "Rows:         %d\n", st.RowCount)
	fmt.Fprintf(&b, "Last updated: %s\n", st.LastUpdated.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Columns:      %s\n", strings.Join(st.Columns, ", "))
	for _, col := range st.Columns {
		fmt.Fprintf(&b, "  %-20s %s\n", col, st.DataTypes[col])
	}
	return b.String()
}

// formatCount formats a count comparison as text.
func formatCount(rep *models.CountReport) string {
	return fmt.Sprintf("Provider count: %d\nLoaded count:   %d\nAll loaded:     %v\n",
		rep.ProviderCount, rep.LoadedCount, rep.AllLoaded)
}

// formatUsage formats usage summaries as a text table.
func formatUsage(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-25s %8s %8s %10s %10s %10s\n",
		"Day", "Model", "Requests", "Cached", "Prompt", "Completion", "Total")
	b.WriteString(strings.Repeat("-", 89) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %-25s %8d %8d %10d %10d %10d\n",
			r.Day, r.Model, r.RequestCount, r.CacheHits, r.TotalPrompt, r.TotalCompletion, r.TotalTokens)
	}
	return b.String()
}

// formatAuditEntries formats audit entries as a text table. Question
// bodies are clipped; they can run to whole paragraphs.
func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-14s %-20s %-20s %8s %8s  %s\n",
		"Time", "Request ID", "Model", "Outcome", "Tokens", "Latency", "Question")
	b.WriteString(strings.Repeat("-", 120) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-20s %-14s %-20s %-20s %8d %6dms  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			clip(e.RequestID, 12),
			clip(e.Model, 20),
			e.Outcome,
			e.TotalTokens,
			e.LatencyMs,
			clip(e.Question, 48))
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Answer Cache\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}

// formatBudgetStatus formats budget statuses as a text table.
func formatBudgetStatus(statuses []models.BudgetStatus) string {
	if len(statuses) == 0 {
		return "No budget policies configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %-8s %12s %12s %12s %6s\n",
		"Model", "Period", "Max Tokens", "Used", "Remaining", "Usage%")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, s := range statuses {
		model := s.Policy.Model
		if model == "" {
			model = "(all)"
		}
		pct := float64(0)
		if s.Policy.MaxTokens > 0 {
			pct = float64(s.Used) / float64(s.Policy.MaxTokens) * 100
		}
		fmt.Fprintf(&b, "%-25s %-8s %12d %12d %12d %5.1f%%\n",
			model, s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining, pct)
	}
	return b.String()
}

// clip truncates s to at most n runes, appending an ellipsis marker
// when anything was cut.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

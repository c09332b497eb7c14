package engine

import (
	"strings"
	"text/template"

	"github.com/responsa-ai/responsa/pkg/retrieval"
)

// The system prompt pins the model to the loaded snapshot: the stated
// total must match what /stats reports, and answers outside the
// provided context are refused rather than invented.
const systemPromptText = `You are an assistant answering questions about the "{{.Table}}" dataset.

The dataset currently contains {{.RowCount}} records in total. When asked how many records, decisions, or rows exist, answer with exactly {{.RowCount}}.
{{if .Rows}}
Relevant records:
{{range .Rows}}---
{{.}}
{{end}}---
{{else}}
No individual records matched the question. Answer from the totals above when possible.
{{end}}
Rules:
- Answer only from the information above.
- If the information needed is not present, say so instead of guessing.
- Answer in the language of the question.`

var systemPrompt = template.Must(template.New("system").Parse(systemPromptText))

type promptData struct {
	Table    string
	RowCount int
	Rows     []string
}

func renderSystemPrompt(table string, rowCount int, hits []retrieval.Hit) (string, error) {
	rows := make([]string, len(hits))
	for i, h := range hits {
		rows[i] = h.Text
	}
	var sb strings.Builder
	if err := systemPrompt.Execute(&sb, promptData{Table: table, RowCount: rowCount, Rows: rows}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

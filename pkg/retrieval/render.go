// Package retrieval selects the dataset rows used as context for a
// prompt. Two interchangeable indexes exist: a keyword scorer that
// needs no external calls, and a semantic index holding embedding
// vectors in a chromem-go collection persisted under the cache
// directory. Both are part of CacheState and are dropped on reload.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/responsa-ai/responsa/pkg/dataset"
)

// Hit is one retrieved context row, rendered to prompt text.
type Hit struct {
	Text  string
	Score float32
}

// Index selects context rows for a question. Build replaces the whole
// corpus; Clear empties it.
type Index interface {
	Build(ctx context.Context, snap *dataset.Snapshot) error
	Search(ctx context.Context, question string, topK int) ([]Hit, error)
	Clear() error
}

// Embedder is the capability the semantic index needs from an
// inference provider.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RenderRecord flattens a row into "column: value" lines with columns
// sorted, so prompts and index entries are deterministic.
func RenderRecord(r dataset.Record) string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	var sb strings.Builder
	for _, col := range cols {
		v := r[col]
		if v == nil {
			continue
		}
		sb.WriteString(col)
		sb.WriteString(": ")
		sb.WriteString(formatValue(v))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func renderAll(snap *dataset.Snapshot) []string {
	texts := make([]string, len(snap.Rows))
	for i, r := range snap.Rows {
		texts[i] = RenderRecord(r)
	}
	return texts
}

package dataset

import (
	"sort"
	"time"
)

// Snapshot is the in-memory copy of the provider's table, the memoized
// half of CacheState. It is immutable after construction; the engine
// swaps whole snapshots under its lock.
type Snapshot struct {
	Rows      []Record
	Columns   []string
	FetchedAt time.Time
}

func newSnapshot(rows []Record) *Snapshot {
	return &Snapshot{
		Rows:      rows,
		Columns:   columnsOf(rows),
		FetchedAt: time.Now().UTC(),
	}
}

// columnsOf returns the sorted union of keys across all rows. Rows from
// PostgREST are uniform in practice, but a schema migration mid-fetch
// must not drop columns silently.
func columnsOf(rows []Record) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// RowCount returns the number of loaded rows.
func (s *Snapshot) RowCount() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// DataTypes maps each column to the JSON type of its first non-null
// value.
func (s *Snapshot) DataTypes() map[string]string {
	types := make(map[string]string, len(s.Columns))
	for _, col := range s.Columns {
		types[col] = "null"
		for _, r := range s.Rows {
			v, ok := r[col]
			if !ok || v == nil {
				continue
			}
			types[col] = jsonTypeName(v)
			break
		}
	}
	return types
}

// Sample returns the first row, or nil for an empty snapshot.
func (s *Snapshot) Sample() Record {
	if s == nil || len(s.Rows) == 0 {
		return nil
	}
	return s.Rows[0]
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return "unknown"
	}
}

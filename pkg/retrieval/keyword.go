package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/responsa-ai/responsa/pkg/dataset"
)

// Keyword is an in-memory term-overlap index. Terms are weighted by
// inverse document frequency so common boilerplate columns do not
// drown out distinguishing values. Works on any script the tokenizer
// can segment, Hebrew included.
type Keyword struct {
	mu    sync.RWMutex
	docs  []keywordDoc
	df    map[string]int
	total int
}

type keywordDoc struct {
	text  string
	terms map[string]struct{}
}

// NewKeyword returns an empty keyword index.
func NewKeyword() *Keyword {
	return &Keyword{df: make(map[string]int)}
}

// Build implements Index.
func (k *Keyword) Build(_ context.Context, snap *dataset.Snapshot) error {
	texts := renderAll(snap)
	docs := make([]keywordDoc, len(texts))
	df := make(map[string]int)
	for i, text := range texts {
		terms := make(map[string]struct{})
		for _, tok := range tokenize(text) {
			terms[tok] = struct{}{}
		}
		for t := range terms {
			df[t]++
		}
		docs[i] = keywordDoc{text: text, terms: terms}
	}

	k.mu.Lock()
	k.docs = docs
	k.df = df
	k.total = len(docs)
	k.mu.Unlock()
	return nil
}

// Search implements Index. Rows sharing no terms with the question are
// never returned.
func (k *Keyword) Search(_ context.Context, question string, topK int) ([]Hit, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.total == 0 || topK <= 0 {
		return nil, nil
	}

	qTerms := make(map[string]struct{})
	for _, tok := range tokenize(question) {
		qTerms[tok] = struct{}{}
	}

	type scored struct {
		idx   int
		score float32
	}
	var results []scored
	for i, doc := range k.docs {
		var score float64
		for t := range qTerms {
			if _, ok := doc.terms[t]; !ok {
				continue
			}
			df := k.df[t]
			if df == 0 {
				df = 1
			}
			score += 1 + math.Log(float64(k.total)/float64(df))
		}
		if score > 0 {
			results = append(results, scored{idx: i, score: float32(score)})
		}
	}

	sort.SliceStable(results, func(a, b int) bool { return results[a].score > results[b].score })
	if len(results) > topK {
		results = results[:topK]
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{Text: k.docs[r.idx].text, Score: r.score}
	}
	return hits, nil
}

// Clear implements Index.
func (k *Keyword) Clear() error {
	k.mu.Lock()
	k.docs = nil
	k.df = make(map[string]int)
	k.total = 0
	k.mu.Unlock()
	return nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

package retrieval

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/responsa-ai/responsa/pkg/dataset"
)

// fakeEmbedder maps texts onto a 3-axis topic space so cosine
// similarity is exact and deterministic.
type fakeEmbedder struct {
	batches int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.batches++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 3)
		lower := strings.ToLower(text)
		if strings.Contains(lower, "education") || strings.Contains(lower, "חינוך") {
			v[0] = 1
		}
		if strings.Contains(lower, "hospital") || strings.Contains(lower, "health") {
			v[1] = 1
		}
		if v[0] == 0 && v[1] == 0 {
			v[2] = 1
		}
		out[i] = normalize(v)
	}
	return out, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := float32(math.Sqrt(sum))
	if n == 0 {
		return v
	}
	for i := range v {
		v[i] /= n
	}
	return v
}

func newTestSemantic(t *testing.T) (*Semantic, *fakeEmbedder) {
	t.Helper()
	emb := &fakeEmbedder{}
	s, err := NewSemantic(t.TempDir(), emb, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	return s, emb
}

func TestSemanticBuildAndSearch(t *testing.T) {
	s, _ := newTestSemantic(t)
	if err := s.Build(context.Background(), decisionSnapshot()); err != nil {
		t.Fatal(err)
	}

	hits, err := s.Search(context.Background(), "education policy", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected the 3 education rows, got %d", len(hits))
	}
	for _, h := range hits {
		lower := strings.ToLower(h.Text)
		if !strings.Contains(lower, "education") && !strings.Contains(lower, "חינוך") {
			t.Errorf("off-topic hit above similarity floor: %q", h.Text)
		}
		if h.Score < 0.5 {
			t.Errorf("hit below floor returned: %v", h.Score)
		}
	}
}

func TestSemanticSimilarityFloor(t *testing.T) {
	s, _ := newTestSemantic(t)
	if err := s.Build(context.Background(), decisionSnapshot()); err != nil {
		t.Fatal(err)
	}

	// Orthogonal topic: every row scores 0 against the hospital axis
	// except the hospital row itself.
	hits, err := s.Search(context.Background(), "hospital wing", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit above floor, got %d", len(hits))
	}
	if !strings.Contains(hits[0].Text, "Hospital") {
		t.Errorf("wrong row: %q", hits[0].Text)
	}
}

func TestSemanticReusesPersistedIndex(t *testing.T) {
	s, emb := newTestSemantic(t)
	snap := decisionSnapshot()

	if err := s.Build(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	built := emb.batches

	if err := s.Build(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	if emb.batches != built {
		t.Errorf("unchanged snapshot re-embedded: %d -> %d batches", built, emb.batches)
	}

	changed := decisionSnapshot()
	changed.Rows = append(changed.Rows, dataset.Record{"id": float64(5), "decision_title": "Port expansion"})
	if err := s.Build(context.Background(), changed); err != nil {
		t.Fatal(err)
	}
	if emb.batches == built {
		t.Error("changed snapshot did not trigger re-embedding")
	}
}

func TestSemanticClear(t *testing.T) {
	s, _ := newTestSemantic(t)
	if err := s.Build(context.Background(), decisionSnapshot()); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}

	hits, err := s.Search(context.Background(), "education", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits after clear, got %d", len(hits))
	}

	// Idempotent, same as reload.
	if err := s.Clear(); err != nil {
		t.Errorf("second clear failed: %v", err)
	}

	if err := s.Build(context.Background(), decisionSnapshot()); err != nil {
		t.Fatal(err)
	}
	hits, err = s.Search(context.Background(), "education", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Error("rebuild after clear returned nothing")
	}
}

func TestSemanticEmptySnapshot(t *testing.T) {
	s, _ := newTestSemantic(t)
	if err := s.Build(context.Background(), &dataset.Snapshot{}); err != nil {
		t.Fatal(err)
	}
	hits, err := s.Search(context.Background(), "anything", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits from empty index, got %d", len(hits))
	}
}

package retrieval

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/responsa-ai/responsa/pkg/dataset"
	"github.com/responsa-ai/responsa/pkg/fault"
)

const collectionName = "rows"

// Semantic is an embedding index over the snapshot rows, persisted
// under the cache directory so a restart can skip re-embedding an
// unchanged dataset. A sidecar fingerprint file detects change; reload
// removes both.
type Semantic struct {
	mu       sync.Mutex
	db       *chromem.DB
	col      *chromem.Collection
	embedder Embedder
	path     string
	minSim   float32
}

// NewSemantic opens (or creates) a persisted semantic index at path.
func NewSemantic(path string, embedder Embedder, minSim float32) (*Semantic, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, "retrieval.open", err)
	}
	s := &Semantic{db: db, embedder: embedder, path: path, minSim: minSim}
	s.col, err = db.GetOrCreateCollection(collectionName, nil, s.queryEmbedding)
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, "retrieval.open", err)
	}
	return s, nil
}

// Build implements Index. Embeddings are computed in batches through
// the Embedder rather than chromem's per-document callback; a corpus
// fingerprint skips the whole pass when the persisted index already
// matches the snapshot.
func (s *Semantic) Build(ctx context.Context, snap *dataset.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	texts := renderAll(snap)
	fp := fingerprint(texts)

	if s.col != nil && s.col.Count() == len(texts) && s.readFingerprint() == fp {
		return nil
	}

	if err := s.resetLocked(); err != nil {
		return err
	}
	if len(texts) == 0 {
		return s.writeFingerprint(fp)
	}

	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(texts) {
		return fault.Newf(fault.KindInference, "retrieval.build",
			"embedder returned %d vectors for %d rows", len(vecs), len(texts))
	}

	docs := make([]chromem.Document, len(texts))
	for i, text := range texts {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   text,
			Embedding: vecs[i],
		}
	}
	if err := s.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fault.Wrap(fault.KindStorage, "retrieval.build", err)
	}
	return s.writeFingerprint(fp)
}

// Search implements Index. Results below the similarity floor are
// dropped; a question about nothing in the dataset returns no rows
// rather than the least-bad ones.
func (s *Semantic) Search(ctx context.Context, question string, topK int) ([]Hit, error) {
	s.mu.Lock()
	col := s.col
	s.mu.Unlock()

	if col == nil || topK <= 0 {
		return nil, nil
	}
	n := topK
	if c := col.Count(); n > c {
		n = c
	}
	if n == 0 {
		return nil, nil
	}

	results, err := col.Query(ctx, question, n, nil, nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, "retrieval.search", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		if r.Similarity < s.minSim {
			continue
		}
		hits = append(hits, Hit{Text: r.Content, Score: r.Similarity})
	}
	return hits, nil
}

// Clear implements Index, dropping the collection and fingerprint.
func (s *Semantic) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.resetLocked(); err != nil {
		return err
	}
	return s.removeFingerprint()
}

func (s *Semantic) resetLocked() error {
	if err := s.db.DeleteCollection(collectionName); err != nil {
		return fault.Wrap(fault.KindStorage, "retrieval.clear", err)
	}
	col, err := s.db.GetOrCreateCollection(collectionName, nil, s.queryEmbedding)
	if err != nil {
		return fault.Wrap(fault.KindStorage, "retrieval.clear", err)
	}
	s.col = col
	return nil
}

// queryEmbedding embeds a single query string through the shared
// Embedder.
func (s *Semantic) queryEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fault.Newf(fault.KindInference, "retrieval.embed", "expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

func fingerprint(texts []string) string {
	h := sha256.New()
	for _, t := range texts {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "%d", len(texts))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (s *Semantic) fingerprintPath() string {
	return filepath.Join(s.path, "fingerprint")
}

func (s *Semantic) readFingerprint() string {
	b, err := os.ReadFile(s.fingerprintPath())
	if err != nil {
		return ""
	}
	return string(b)
}

func (s *Semantic) writeFingerprint(fp string) error {
	if err := os.WriteFile(s.fingerprintPath(), []byte(fp), 0o644); err != nil {
		return fault.Wrap(fault.KindStorage, "retrieval.build", err)
	}
	return nil
}

func (s *Semantic) removeFingerprint() error {
	err := os.Remove(s.fingerprintPath())
	if err != nil && !os.IsNotExist(err) {
		return fault.Wrap(fault.KindStorage, "retrieval.clear", err)
	}
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/alusci/ask-bi/docs"
	"github.com/alusci/ask-bi/embeddings"
)

// LocalIndexFile is the fixed file name of the persisted local index inside
// the data directory.
const LocalIndexFile = "index.json"

type localEntry struct {
	Document  docs.Document `json:"document"`
	Embedding []float32     `json:"embedding"`
}

type localIndexFile struct {
	Dimension int          `json:"dimension"`
	Entries   []localEntry `json:"entries"`
}

// LocalIndex is a brute-force cosine-similarity store persisted as a single
// JSON file. It fits the document counts this system produces (tens of
// summaries, not millions of chunks) and needs no running services.
type LocalIndex struct {
	path string

	mu        sync.RWMutex
	dimension int
	entries   []localEntry
}

// LoadLocalIndex reads a previously persisted index. A missing file is not an
// error: it returns (nil, nil) to signal that no index exists yet.
func LoadLocalIndex(path string) (*LocalIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index file: %w", err)
	}

	var payload localIndexFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode index file: %w", err)
	}

	return &LocalIndex{path: path, dimension: payload.Dimension, entries: payload.Entries}, nil
}

// BuildLocalIndex embeds every document and assembles a fresh index. Empty
// input or any embedding failure yields an IndexBuildError and no index.
func BuildLocalIndex(ctx context.Context, path string, documents []docs.Document, embedder embeddings.Embedder) (*LocalIndex, error) {
	idx := &LocalIndex{path: path}
	if err := idx.Add(ctx, documents, embedder); err != nil {
		return nil, err
	}
	return idx, nil
}

// Add embeds and appends documents. The batch is all-or-nothing: every text
// is embedded before anything is stored.
func (idx *LocalIndex) Add(ctx context.Context, documents []docs.Document, embedder embeddings.Embedder) error {
	if len(documents) == 0 {
		return &IndexBuildError{Reason: "no documents to index"}
	}

	texts := make([]string, len(documents))
	for i, doc := range documents {
		texts[i] = doc.Text
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return &IndexBuildError{Reason: "embed documents", Err: err}
	}
	if len(vectors) != len(documents) {
		return &IndexBuildError{Reason: fmt.Sprintf("embedder returned %d vectors for %d documents", len(vectors), len(documents))}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i, vec := range vectors {
		if idx.dimension == 0 {
			idx.dimension = len(vec)
		}
		if len(vec) != idx.dimension {
			return &IndexBuildError{Reason: fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", idx.dimension, len(vec))}
		}
		idx.entries = append(idx.entries, localEntry{Document: documents[i], Embedding: vec})
	}

	return nil
}

// Persist writes the index to its file location, replacing any prior content.
// The write goes through a temp file so a crash never leaves a torn index.
func (idx *LocalIndex) Persist() error {
	idx.mu.RLock()
	payload := localIndexFile{Dimension: idx.dimension, Entries: idx.entries}
	idx.mu.RUnlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	tmp := idx.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Search returns the k nearest documents by cosine similarity, best first.
// Equal scores fall back to document ID order. Returned documents are deep
// copies, so callers may mutate them freely.
func (idx *LocalIndex) Search(ctx context.Context, embedding []float32, k int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if k <= 0 {
		k = 5
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]SearchResult, 0, len(idx.entries))
	for _, entry := range idx.entries {
		results = append(results, SearchResult{
			Document: entry.Document,
			Score:    cosineSimilarity(embedding, entry.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID < results[j].Document.ID
	})

	if k > len(results) {
		k = len(results)
	}
	out := make([]SearchResult, k)
	for i := 0; i < k; i++ {
		out[i] = SearchResult{Document: results[i].Document.Clone(), Score: results[i].Score}
	}
	return out, nil
}

// Size reports the number of indexed documents.
func (idx *LocalIndex) Size(ctx context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries), nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Index = (*LocalIndex)(nil)

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alusci/ask-bi/docs"
	"github.com/alusci/ask-bi/embeddings"
)

// stubEmbedder maps each text to a fixed vector so similarity ordering is
// predictable.
type stubEmbedder struct {
	byText map[string][]float32
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := s.byText[text]; ok {
			out[i] = vec
			continue
		}
		out[i] = []float32{0, 0, 1}
	}
	return out, nil
}

var _ embeddings.Embedder = (*stubEmbedder)(nil)

func salesDocuments() []docs.Document {
	return []docs.Document{
		{
			ID:       "time_2023-Q1",
			Text:     "Sales Summary for 2023-Q1",
			Metadata: docs.Metadata{Type: docs.TypeTimePeriod, Period: "2023-Q1"},
		},
		{
			ID:       "product_Widget_A",
			Text:     "Product Analysis: Widget A",
			Metadata: docs.Metadata{Type: docs.TypeProduct, Product: "Widget A"},
		},
		{
			ID:       "overall_summary",
			Text:     "Overall Sales Summary",
			Metadata: docs.Metadata{Type: docs.TypeOverall},
		},
	}
}

func salesEmbedder() *stubEmbedder {
	return &stubEmbedder{byText: map[string][]float32{
		"Sales Summary for 2023-Q1":  {1, 0, 0},
		"Product Analysis: Widget A": {0.9, 0.1, 0},
		"Overall Sales Summary":      {0, 1, 0},
	}}
}

func TestBuildLocalIndexAndSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), LocalIndexFile)
	idx, err := BuildLocalIndex(context.Background(), path, salesDocuments(), salesEmbedder())
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	size, err := idx.Size(context.Background())
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 3 {
		t.Fatalf("expected 3 entries, got %d", size)
	}

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Document.ID != "time_2023-Q1" {
		t.Fatalf("expected the quarter summary first, got %s", results[0].Document.ID)
	}
	if results[1].Document.ID != "product_Widget_A" {
		t.Fatalf("expected Widget A second, got %s", results[1].Document.ID)
	}
	if results[0].Score < results[1].Score {
		t.Fatal("results are not sorted by score")
	}
}

func TestLocalIndexSearchTieBreaksByID(t *testing.T) {
	documents := []docs.Document{
		{ID: "b_doc", Text: "same"},
		{ID: "a_doc", Text: "same"},
	}
	embedder := &stubEmbedder{byText: map[string][]float32{"same": {1, 0, 0}}}

	idx, err := BuildLocalIndex(context.Background(), filepath.Join(t.TempDir(), LocalIndexFile), documents, embedder)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results[0].Document.ID != "a_doc" || results[1].Document.ID != "b_doc" {
		t.Fatalf("expected ID order on equal scores, got %s then %s",
			results[0].Document.ID, results[1].Document.ID)
	}
}

func TestLocalIndexSearchReturnsCopies(t *testing.T) {
	idx, err := BuildLocalIndex(context.Background(), filepath.Join(t.TempDir(), LocalIndexFile), salesDocuments(), salesEmbedder())
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	results, err := idx.Search(context.Background(), []float32{0.9, 0.1, 0}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	results[0].Document.Metadata.Product = "mutated"

	again, err := idx.Search(context.Background(), []float32{0.9, 0.1, 0}, 1)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if again[0].Document.Metadata.Product != "Widget A" {
		t.Fatalf("stored document mutated: %q", again[0].Document.Metadata.Product)
	}
}

func TestLocalIndexPersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), LocalIndexFile)
	idx, err := BuildLocalIndex(context.Background(), path, salesDocuments(), salesEmbedder())
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	if err := idx.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	loaded, err := LoadLocalIndex(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a loaded index")
	}

	size, err := loaded.Size(context.Background())
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 3 {
		t.Fatalf("expected 3 entries after reload, got %d", size)
	}

	results, err := loaded.Search(context.Background(), []float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("search after reload: %v", err)
	}
	if results[0].Document.ID != "overall_summary" {
		t.Fatalf("expected overall summary, got %s", results[0].Document.ID)
	}
}

func TestLoadLocalIndexMissingFile(t *testing.T) {
	idx, err := LoadLocalIndex(filepath.Join(t.TempDir(), LocalIndexFile))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx != nil {
		t.Fatal("expected no index for a missing file")
	}
}

func TestBuildLocalIndexEmptyInput(t *testing.T) {
	_, err := BuildLocalIndex(context.Background(), filepath.Join(t.TempDir(), LocalIndexFile), nil, salesEmbedder())
	var buildErr *IndexBuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected IndexBuildError, got %v", err)
	}
}

func TestLocalIndexAddAllOrNothing(t *testing.T) {
	idx, err := BuildLocalIndex(context.Background(), filepath.Join(t.TempDir(), LocalIndexFile), salesDocuments(), salesEmbedder())
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	failing := &stubEmbedder{err: errors.New("embedding service down")}
	err = idx.Add(context.Background(), salesDocuments(), failing)
	var buildErr *IndexBuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected IndexBuildError, got %v", err)
	}

	size, err := idx.Size(context.Background())
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 3 {
		t.Fatalf("failed add changed the index: %d entries", size)
	}
}

// Package store adapts vector stores for summary documents: a file-persisted
// local index and a pgvector-backed Postgres index share one search contract.
package store

import (
	"context"
	"fmt"

	"github.com/alusci/ask-bi/docs"
)

// SearchResult pairs a retrieved document with its similarity score
// (1 is a perfect match, tending to 0 with distance).
type SearchResult struct {
	Document docs.Document
	Score    float64
}

// Index is the read side of a vector store. Search returns up to k documents
// ordered best match first; ties are broken by document ID so results are
// reproducible.
type Index interface {
	Search(ctx context.Context, embedding []float32, k int) ([]SearchResult, error)
	Size(ctx context.Context) (int, error)
}

// IndexBuildError reports a failed offline indexing run. Building is
// all-or-nothing: no partial index is ever persisted.
type IndexBuildError struct {
	Reason string
	Err    error
}

func (e *IndexBuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("index build failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("index build failed: %s", e.Reason)
}

func (e *IndexBuildError) Unwrap() error { return e.Err }

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/alusci/ask-bi/docs"
	"github.com/alusci/ask-bi/embeddings"
)

// PostgresIndex stores documents and embeddings in Postgres with pgvector.
// Persistence is intrinsic, so Persist is a no-op surface: every Add commits
// inside one transaction.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

func NewPostgresIndex(pool *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool}
}

// Add embeds documents and upserts them in a single transaction; a failure
// anywhere rolls the whole batch back.
func (idx *PostgresIndex) Add(ctx context.Context, documents []docs.Document, embedder embeddings.Embedder) (err error) {
	if len(documents) == 0 {
		return &IndexBuildError{Reason: "no documents to index"}
	}

	texts := make([]string, len(documents))
	for i, doc := range documents {
		texts[i] = doc.Text
	}

	vectors, embedErr := embedder.Embed(ctx, texts)
	if embedErr != nil {
		return &IndexBuildError{Reason: "embed documents", Err: embedErr}
	}
	if len(vectors) != len(documents) {
		return &IndexBuildError{Reason: fmt.Sprintf("embedder returned %d vectors for %d documents", len(vectors), len(documents))}
	}

	tx, err := idx.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return &IndexBuildError{Reason: "begin transaction", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for i, doc := range documents {
		meta, marshalErr := json.Marshal(doc.Metadata)
		if marshalErr != nil {
			err = &IndexBuildError{Reason: fmt.Sprintf("marshal metadata for %s", doc.ID), Err: marshalErr}
			return err
		}
		if _, execErr := tx.Exec(ctx, `
			INSERT INTO bi_documents (id, content, metadata, embedding, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE
			SET content = EXCLUDED.content,
			    metadata = EXCLUDED.metadata,
			    embedding = EXCLUDED.embedding,
			    updated_at = NOW()
		`, doc.ID, doc.Text, meta, pgvector.NewVector(vectors[i])); execErr != nil {
			err = &IndexBuildError{Reason: fmt.Sprintf("insert document %s", doc.ID), Err: execErr}
			return err
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		err = &IndexBuildError{Reason: "commit transaction", Err: commitErr}
		return err
	}
	return nil
}

// Search returns the k nearest documents by L2 distance, scored 1/(1+d).
// Distance ties resolve by document ID for reproducible output.
func (idx *PostgresIndex) Search(ctx context.Context, embedding []float32, k int) ([]SearchResult, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if k <= 0 {
		k = 5
	}

	rows, err := idx.pool.Query(ctx, `
		SELECT id, content, metadata, (embedding <-> $1::vector) AS distance
		FROM bi_documents
		ORDER BY embedding <-> $1::vector, id
		LIMIT $2
	`, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("query similar documents: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0, k)
	for rows.Next() {
		var (
			doc      docs.Document
			meta     []byte
			distance float64
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &meta, &distance); err != nil {
			return nil, fmt.Errorf("scan similar document: %w", err)
		}
		if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", doc.ID, err)
		}
		results = append(results, SearchResult{Document: doc, Score: 1 / (1 + distance)})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return results, nil
}

// Size reports the number of indexed documents.
func (idx *PostgresIndex) Size(ctx context.Context) (int, error) {
	var count int
	if err := idx.pool.QueryRow(ctx, "SELECT COUNT(*) FROM bi_documents").Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// Clear removes every indexed document.
func (idx *PostgresIndex) Clear(ctx context.Context) error {
	if _, err := idx.pool.Exec(ctx, "TRUNCATE bi_documents"); err != nil {
		return fmt.Errorf("truncate documents: %w", err)
	}
	return nil
}

var _ Index = (*PostgresIndex)(nil)

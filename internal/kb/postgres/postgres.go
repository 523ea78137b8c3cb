// Package postgres implements kb.Retriever over a PostgreSQL lore table with
// a pgvector HNSW index. Queries are embedded and matched by cosine distance.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/arkavel/voidtable/internal/kb"
	"github.com/arkavel/voidtable/pkg/provider/embeddings"
)

// schema is applied by EnsureSchema. The embedding dimension is fixed at
// index-build time, so re-indexing is required when the embedding model
// changes.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS lore (
    id        TEXT PRIMARY KEY,
    title     TEXT NOT NULL,
    content   TEXT NOT NULL,
    tags      TEXT[] NOT NULL DEFAULT '{}',
    embedding vector(%d) NOT NULL
);

CREATE INDEX IF NOT EXISTS lore_embedding_idx
    ON lore USING hnsw (embedding vector_cosine_ops);`

// Retriever is the pgvector-backed lore index.
//
// All methods are safe for concurrent use.
type Retriever struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// New wires a retriever over an existing pool and embedding provider.
func New(pool *pgxpool.Pool, embedder embeddings.Provider) *Retriever {
	return &Retriever{pool: pool, embedder: embedder}
}

// Connect opens a pool from a DSN and returns a ready retriever.
func Connect(ctx context.Context, dsn string, embedder embeddings.Provider) (*Retriever, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("kb postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kb postgres: ping: %w", err)
	}
	return New(pool, embedder), nil
}

// EnsureSchema creates the lore table and vector index sized to the
// embedder's dimensionality.
func (r *Retriever) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(schema, r.embedder.Dimensions()))
	if err != nil {
		return fmt.Errorf("kb postgres: ensure schema: %w", err)
	}
	return nil
}

// Document is one lore entry to index.
type Document struct {
	ID      string
	Title   string
	Content string
	Tags    []string
}

// Index embeds and upserts one document. Same-id documents are replaced.
func (r *Retriever) Index(ctx context.Context, doc Document) error {
	vec, err := r.embedder.Embed(ctx, doc.Title+"\n"+doc.Content)
	if err != nil {
		return fmt.Errorf("kb postgres: embed %q: %w", doc.ID, err)
	}

	const q = `
		INSERT INTO lore (id, title, content, tags, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    title     = EXCLUDED.title,
		    content   = EXCLUDED.content,
		    tags      = EXCLUDED.tags,
		    embedding = EXCLUDED.embedding`
	if _, err := r.pool.Exec(ctx, q, doc.ID, doc.Title, doc.Content, doc.Tags, pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("kb postgres: index %q: %w", doc.ID, err)
	}
	return nil
}

// IndexBatch embeds all documents in one provider call and upserts them.
func (r *Retriever) IndexBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Title + "\n" + d.Content
	}
	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("kb postgres: embed batch: %w", err)
	}

	batch := &pgx.Batch{}
	const q = `
		INSERT INTO lore (id, title, content, tags, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    title     = EXCLUDED.title,
		    content   = EXCLUDED.content,
		    tags      = EXCLUDED.tags,
		    embedding = EXCLUDED.embedding`
	for i, d := range docs {
		batch.Queue(q, d.ID, d.Title, d.Content, d.Tags, pgvector.NewVector(vecs[i]))
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("kb postgres: index batch: %w", err)
	}
	return nil
}

// Query implements [kb.Retriever]. Results are ordered by ascending cosine
// distance; Score is 1−distance so higher still means more relevant.
func (r *Retriever) Query(ctx context.Context, query string, limit int) ([]kb.Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("kb postgres: embed query: %w", err)
	}

	const q = `
		SELECT title, content, embedding <=> $1 AS distance
		FROM   lore
		ORDER  BY distance
		LIMIT  $2`
	rows, err := r.pool.Query(ctx, q, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("kb postgres: query: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (kb.Result, error) {
		var (
			res  kb.Result
			dist float64
		)
		if err := row.Scan(&res.Title, &res.Content, &dist); err != nil {
			return kb.Result{}, err
		}
		res.Source = "lore"
		res.Score = 1 - dist
		return res, nil
	})
	if err != nil {
		return nil, fmt.Errorf("kb postgres: scan rows: %w", err)
	}
	return results, nil
}

// Close releases the underlying pool.
func (r *Retriever) Close() {
	r.pool.Close()
}

var _ kb.Retriever = (*Retriever)(nil)

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/seanblong/faqrag/pkg/models"
)

// PostgresIndex stores chunks in a pgvector-enabled Postgres database.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgresIndex connected to the given database URL.
func NewPostgres(ctx context.Context, url string) (*PostgresIndex, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresIndex{pool: p}, nil
}

func (s *PostgresIndex) Close() { s.pool.Close() }

// Migrate applies necessary database migrations and schema setup.
func (s *PostgresIndex) Migrate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("embedding dimension must be positive")
	}
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunks (
  collection  TEXT NOT NULL,
  id          TEXT NOT NULL,
  source      TEXT NOT NULL,
  chunk_index INT  NOT NULL,
  content     TEXT NOT NULL,
  embedding   vector(%d),
  created_at  TIMESTAMP WITH TIME ZONE DEFAULT now(),
  PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS chunks_source_idx
  ON chunks (collection, source);

CREATE INDEX IF NOT EXISTS chunks_embedding_idx
  ON chunks USING hnsw (embedding vector_cosine_ops);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim))
	return err
}

// Count returns the number of chunks stored in collection.
func (s *PostgresIndex) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE collection = $1`, collection).Scan(&n)
	return n, err
}

// UpsertChunks writes all chunks in one transaction.
func (s *PostgresIndex) UpsertChunks(ctx context.Context, collection string, chunks []models.Chunk, vecs [][]float32) error {
	if len(chunks) != len(vecs) {
		return errors.New("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}

	const q = `
		INSERT INTO chunks (collection, id, source, chunk_index, content, embedding, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (collection, id) DO UPDATE SET
			source      = EXCLUDED.source,
			chunk_index = EXCLUDED.chunk_index,
			content     = EXCLUDED.content,
			embedding   = EXCLUDED.embedding,
			created_at  = chunks.created_at;`

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for i, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		batch.Queue(q, collection, c.ID, c.Source, c.Index, c.Text, pgvector.NewVector(vecs[i]), created)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert chunk %s: %w", chunks[i].ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Nearest returns up to k chunks ordered by cosine distance to vec.
func (s *PostgresIndex) Nearest(ctx context.Context, collection string, vec []float32, k int) ([]models.ContextItem, error) {
	if k <= 0 {
		return []models.ContextItem{}, nil
	}
	const q = `
		SELECT content, source
		FROM chunks
		WHERE collection = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2, chunk_index, id
		LIMIT $3`

	rows, err := s.pool.Query(ctx, q, collection, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.ContextItem, 0, min(k, 64))
	for rows.Next() {
		var it models.ContextItem
		if err := rows.Scan(&it.Text, &it.Source); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Ping checks the database connectivity.
func (s *PostgresIndex) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

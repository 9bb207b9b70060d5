package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/faqrag/pkg/models"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteIndex keeps embedded chunks in a local SQLite file and answers
// nearest-neighbour queries by exhaustive cosine similarity.
type SQLiteIndex struct {
	db   *sql.DB
	path string
	dim  int
}

// NewSQLite opens (or creates) the index database inside dataDir.
func NewSQLite(dataDir string) (*SQLiteIndex, error) {
	if dataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "faqrag.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &SQLiteIndex{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() {
	if err := s.db.Close(); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to close sqlite index")
	}
}

// Ping checks that the database file can be opened.
func (s *SQLiteIndex) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema and records dim. Once migrated, UpsertChunks
// rejects vectors of any other length.
func (s *SQLiteIndex) Migrate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("embedding dimension must be positive")
	}
	const q = `
CREATE TABLE IF NOT EXISTS chunks (
  collection  TEXT    NOT NULL,
  id          TEXT    NOT NULL,
  source      TEXT    NOT NULL,
  chunk_index INTEGER NOT NULL,
  content     TEXT    NOT NULL,
  embedding   BLOB    NOT NULL,
  dim         INTEGER NOT NULL,
  created_at  INTEGER NOT NULL,
  PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS chunks_source_idx ON chunks (collection, source);
`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return err
	}
	s.dim = dim
	return nil
}

// Count returns the number of chunks stored in collection.
func (s *SQLiteIndex) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM chunks WHERE collection = ?`, collection).Scan(&n)
	return n, err
}

// UpsertChunks writes all chunks in one transaction.
func (s *SQLiteIndex) UpsertChunks(ctx context.Context, collection string, chunks []models.Chunk, vecs [][]float32) error {
	if len(chunks) != len(vecs) {
		return errors.New("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	if s.dim > 0 {
		for i, v := range vecs {
			if len(v) != s.dim {
				return fmt.Errorf("vector dimension mismatch for chunk %s: want %d, got %d", chunks[i].ID, s.dim, len(v))
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, source, chunk_index, content, embedding, dim, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			source      = excluded.source,
			chunk_index = excluded.chunk_index,
			content     = excluded.content,
			embedding   = excluded.embedding,
			dim         = excluded.dim`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, collection, c.ID, c.Source, c.Index, c.Text,
			encodeVector(vecs[i]), len(vecs[i]), created.UnixMilli()); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// Nearest returns up to k chunks ordered by cosine similarity to vec.
// Equal similarities keep insertion order.
func (s *SQLiteIndex) Nearest(ctx context.Context, collection string, vec []float32, k int) ([]models.ContextItem, error) {
	if k <= 0 {
		return []models.ContextItem{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT content, source, embedding, dim FROM chunks WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		item models.ContextItem
		sim  float64
	}
	var all []scored
	for rows.Next() {
		var (
			it  models.ContextItem
			raw []byte
			dim int
		)
		if err := rows.Scan(&it.Text, &it.Source, &raw, &dim); err != nil {
			return nil, err
		}
		if dim != len(vec) {
			return nil, fmt.Errorf("vector dimension mismatch: stored %d, query %d", dim, len(vec))
		}
		all = append(all, scored{item: it, sim: cosineSimilarity(vec, decodeVector(raw))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].sim > all[j].sim })
	if len(all) > k {
		all = all[:k]
	}
	out := make([]models.ContextItem, len(all))
	for i, sc := range all {
		out[i] = sc.item
	}
	return out, nil
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

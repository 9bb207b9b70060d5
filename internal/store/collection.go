package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/faqrag/pkg/models"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QueryEmbedder is implemented by embedders that encode search queries
// differently from the documents they are matched against.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Collection is a named set of chunks in a ChunkIndex. It embeds text on the
// way in and out so callers only ever deal with text and metadata.
type Collection struct {
	Name     string
	Index    ChunkIndex
	Embedder Embedder
}

// NewCollection creates a Collection over index.
func NewCollection(name string, index ChunkIndex, embedder Embedder) *Collection {
	return &Collection{Name: name, Index: index, Embedder: embedder}
}

// Count returns the number of chunks in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.Index.Count(ctx, c.Name)
}

// Upsert embeds every chunk and writes them as a single batch.
func (c *Collection) Upsert(ctx context.Context, chunks []models.Chunk) error {
	vecs := make([][]float32, len(chunks))
	for i, ch := range chunks {
		v, err := c.Embedder.Embed(ctx, ch.Text)
		if err != nil {
			return fmt.Errorf("embed chunk %s: %w", ch.ID, err)
		}
		vecs[i] = v
	}
	if err := c.Index.UpsertChunks(ctx, c.Name, chunks, vecs); err != nil {
		return fmt.Errorf("upsert %d chunks: %w", len(chunks), err)
	}
	log.Debug().Str("collection", c.Name).Int("chunks", len(chunks)).Msg("upserted chunks")
	return nil
}

// Query returns up to k items ranked by similarity to text. text is embedded
// with EmbedQuery when the embedder is a QueryEmbedder.
func (c *Collection) Query(ctx context.Context, text string, k int) ([]models.ContextItem, error) {
	embed := c.Embedder.Embed
	if qe, ok := c.Embedder.(QueryEmbedder); ok {
		embed = qe.EmbedQuery
	}
	v, err := embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	items, err := c.Index.Nearest(ctx, c.Name, v, k)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbours: %w", err)
	}
	return items, nil
}

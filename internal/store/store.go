package store

import (
	"context"
	"math"

	"github.com/seanblong/faqrag/pkg/models"
)

// ChunkIndex is a persistent nearest-neighbour index of embedded chunks,
// partitioned by collection name.
type ChunkIndex interface {
	Migrate(ctx context.Context, dim int) error
	Count(ctx context.Context, collection string) (int, error)
	UpsertChunks(ctx context.Context, collection string, chunks []models.Chunk, vecs [][]float32) error
	Nearest(ctx context.Context, collection string, vec []float32, k int) ([]models.ContextItem, error)
	Ping(ctx context.Context) error
	Close()
}

// cosineSimilarity returns 0 when either vector has zero length.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

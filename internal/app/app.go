// Package app wires the configured providers and store into a ready-to-use
// retrieval engine shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/faqrag/internal/ai"
	"github.com/seanblong/faqrag/internal/config"
	"github.com/seanblong/faqrag/internal/indexer"
	"github.com/seanblong/faqrag/internal/search"
	"github.com/seanblong/faqrag/internal/store"
)

// App holds the engine's components. Build it once per process and share it.
type App struct {
	Client     ai.Client
	Index      store.ChunkIndex
	Collection *store.Collection
	Indexer    *indexer.Indexer
	Search     *search.Service
}

// ClientConfig maps the loaded configuration onto an AI client configuration.
func ClientConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	provider, err := ai.ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	cc := &ai.ClientConfig{
		Provider: provider,
		Dim:      cfg.Dim,
	}
	if provider == ai.ProviderStub {
		return cc, nil
	}
	cc.APIKey = cfg.APIKey
	cc.EmbedModel = cfg.EmbedModel
	cc.CompletionModel = cfg.CompletionModel
	cc.ProjectID = cfg.ProjectID
	cc.BaseURL = cfg.BaseURL
	if provider == ai.ProviderVertexAI {
		cc.Location = cfg.Location
	}
	return cc, nil
}

// OpenIndex opens the configured store backend.
func OpenIndex(ctx context.Context, cfg config.Specification) (store.ChunkIndex, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return store.NewPostgres(ctx, cfg.Database)
	case config.StoreSQLite:
		return store.NewSQLite(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unsupported store: %q", cfg.Store)
	}
}

// New connects the AI client and the store and migrates the schema.
func New(ctx context.Context, cfg config.Specification) (*App, error) {
	cc, err := ClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := ai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create AI client: %w", err)
	}
	client = ai.WithRateLimit(client, cfg.RateLimit)

	dim, err := embeddingDim(ctx, client)
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", string(cc.Provider)).Str("embed_model", cc.EmbedModel).Int("embedding_dim", dim).Msg("AI client initialized")

	idx, err := OpenIndex(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	if err := idx.Migrate(ctx, dim); err != nil {
		idx.Close()
		return nil, fmt.Errorf("migrate %s store: %w", cfg.Store, err)
	}

	return Assemble(client, idx, cfg.Collection), nil
}

// Assemble builds the engine over an already migrated index.
func Assemble(client ai.Client, idx store.ChunkIndex, collection string) *App {
	col := store.NewCollection(collection, idx, client)
	return &App{
		Client:     client,
		Index:      idx,
		Collection: col,
		Indexer:    indexer.New(col),
		Search:     search.NewService(client, col),
	}
}

// Close releases the store connection.
func (a *App) Close() {
	if a.Index != nil {
		a.Index.Close()
	}
}

// embeddingDim asks the provider for a sample vector when the model's size
// is not known up front.
func embeddingDim(ctx context.Context, client ai.Client) (int, error) {
	if d := client.Dim(); d > 0 {
		return d, nil
	}
	v, err := client.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if len(v) == 0 {
		return 0, errors.New("embedding dimension must be set")
	}
	return len(v), nil
}

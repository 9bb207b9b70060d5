package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/faqrag/internal/app"
	"github.com/seanblong/faqrag/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("faqrag-indexer", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	log.Logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	log.Info().Str("provider", cfg.Provider).Str("store", cfg.Store).Str("corpus_dir", cfg.CorpusDir).Msg("starting faqrag indexer")

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	if err := a.Indexer.Ingest(ctx, cfg.CorpusDir); err != nil {
		a.Close()
		log.Fatal().Err(err).Msg("ingest failed")
	}

	n, err := a.Collection.Count(ctx)
	if err != nil {
		a.Close()
		log.Fatal().Err(err).Msg("count failed")
	}
	log.Info().Int("chunks", n).Str("collection", cfg.Collection).Msg("collection ready")
}

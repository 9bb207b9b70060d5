package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/faqrag/internal/app"
	"github.com/seanblong/faqrag/internal/auth"
	"github.com/seanblong/faqrag/internal/config"
	"github.com/seanblong/faqrag/internal/server"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("faqrag-api", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	logger.Info().Str("provider", cfg.Provider).Str("store", cfg.Store).Bool("auth_enabled", cfg.Auth.Enabled).Msg("starting faqrag api")

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	// The engine is only shared with handlers once ingestion has finished.
	if err := a.Indexer.Ingest(ctx, cfg.CorpusDir); err != nil {
		a.Close()
		log.Fatal().Err(err).Msg("ingest failed")
	}

	guard := auth.NewGuard(cfg.Auth.JwtSecret, cfg.Auth.Enabled)
	handler := server.New(a.Search, a.Index, guard, cfg.TopK, logger)

	s := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	if err := s.ListenAndServe(); err != nil {
		a.Close()
		log.Fatal().Err(err).Msg("server stopped")
	}
}

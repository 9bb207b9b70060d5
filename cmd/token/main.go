package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/faqrag/internal/auth"
	"github.com/seanblong/faqrag/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("faqrag-token", pflag.ExitOnError)
	subject := fs.String("subject", "", "Client the token is issued to")
	ttl := fs.Duration("ttl", auth.DefaultTokenTTL, "Token lifetime")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	token, err := auth.NewGuard(cfg.Auth.JwtSecret, true).IssueToken(*subject, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to issue token")
	}
	fmt.Fprintln(os.Stdout, token)
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/faqrag/internal/app"
	"github.com/seanblong/faqrag/internal/config"
	"github.com/seanblong/faqrag/internal/search"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const defaultQuestion = "How do I reset my password?"

func main() {
	fs := pflag.NewFlagSet("faqrag-ask", pflag.ExitOnError)
	interactive := fs.BoolP("interactive", "i", false, "Read questions from stdin until 'exit'")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	// stdout carries the answer; logs go to stderr.
	level, err := consoleLevel(cfg.LogLevel, fs.Changed("log-level"))
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

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

	if *interactive {
		repl(ctx, a.Search, cfg.TopK, os.Stdin, os.Stdout, term.IsTerminal(int(os.Stdin.Fd())))
		return
	}

	question := defaultQuestion
	if args := fs.Args(); len(args) > 0 {
		question = strings.Join(args, " ")
	}
	ans, err := a.Search.Answer(ctx, question, cfg.TopK)
	if err != nil {
		a.Close()
		log.Fatal().Err(err).Msg("answer failed")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ans); err != nil {
		a.Close()
		log.Fatal().Err(err).Msg("failed to encode answer")
	}
}

// consoleLevel returns the level for stderr logging. The configured level is
// used when it was set by a flag, environment variable or config file;
// otherwise only warnings and errors are shown.
func consoleLevel(configured string, flagSet bool) (zerolog.Level, error) {
	if !flagSet && configured == config.DefaultLogLevel {
		return zerolog.WarnLevel, nil
	}
	return zerolog.ParseLevel(configured)
}

// repl answers one question per line until exit, quit or end of input.
// Errors are reported and the loop continues. The input prompt is only
// printed when prompt is set.
func repl(ctx context.Context, svc *search.Service, topK int, in io.Reader, out io.Writer, prompt bool) {
	fmt.Fprint(out, "\n--- FAQ assistant ---\nType 'exit' to quit.\n\n")
	sc := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(out, "Enter your question: ")
		}
		if !sc.Scan() {
			fmt.Fprintln(out, "\nGoodbye!")
			return
		}
		q := strings.TrimSpace(sc.Text())
		switch strings.ToLower(q) {
		case "exit", "quit":
			fmt.Fprintln(out, "Goodbye!")
			return
		case "":
			continue
		}

		fmt.Fprintln(out, "Retrieving context...")
		items, err := svc.Retrieve(ctx, q, topK)
		if err != nil {
			fmt.Fprintf(out, "An error occurred: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "Found %d relevant chunks. Generating answer...\n\n", len(items))
		answer, err := svc.Generate(ctx, q, items)
		if err != nil {
			fmt.Fprintf(out, "An error occurred: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "Answer:\n%s\n", answer)
		if sources := search.Sources(items); len(sources) > 0 {
			fmt.Fprintf(out, "Sources: %s\n", strings.Join(sources, ", "))
		}
		fmt.Fprintf(out, "%s\n\n", strings.Repeat("-", 40))
	}
}

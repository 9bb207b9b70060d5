package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seanblong/faqrag/internal/search"
	"github.com/seanblong/faqrag/pkg/models"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

type mockStore struct {
	items []models.ContextItem
	err   error
}

func (m *mockStore) Query(ctx context.Context, text string, k int) ([]models.ContextItem, error) {
	return m.items, m.err
}

type mockCompleter struct {
	answers []string
	err     error
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	a := m.answers[0]
	m.answers = m.answers[1:]
	return a, nil
}

func TestREPL(t *testing.T) {
	store := &mockStore{items: []models.ContextItem{
		{Text: "Reset from Settings.", Source: "faq_auth.md"},
		{Text: "Billing is monthly.", Source: "faq_billing.md"},
	}}
	svc := search.NewService(&mockCompleter{answers: []string{"Open Settings."}}, store)

	var out strings.Builder
	repl(context.Background(), svc, 2, strings.NewReader("\n   \nHow do I reset my password?\nquit\nnever asked\n"), &out, true)

	got := out.String()
	for _, want := range []string{
		"Type 'exit' to quit.",
		"Found 2 relevant chunks.",
		"Answer:\nOpen Settings.",
		"Sources: faq_auth.md, faq_billing.md",
		"Goodbye!",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, got)
		}
	}
	if strings.Count(got, "Enter your question: ") != 4 {
		t.Errorf("Expected a prompt per line read, got:\n%s", got)
	}
	if strings.Count(got, "Retrieving context...") != 1 {
		t.Errorf("Expected exactly one question to be answered, got:\n%s", got)
	}
}

func TestREPL_ErrorsDoNotStopTheLoop(t *testing.T) {
	svc := search.NewService(&mockCompleter{err: errors.New("model offline")}, &mockStore{
		items: []models.ContextItem{{Text: "x", Source: "a.md"}},
	})

	var out strings.Builder
	repl(context.Background(), svc, 1, strings.NewReader("first\nsecond\nEXIT\n"), &out, false)

	got := out.String()
	if n := strings.Count(got, "An error occurred: generate answer: model offline"); n != 2 {
		t.Errorf("Expected 2 reported errors, got %d:\n%s", n, got)
	}
	if strings.Contains(got, "Enter your question") {
		t.Errorf("Expected no prompt without a terminal, got:\n%s", got)
	}
	if !strings.HasSuffix(got, "Goodbye!\n") {
		t.Errorf("Expected the loop to end on exit, got:\n%s", got)
	}
}

func TestREPL_EndOfInput(t *testing.T) {
	svc := search.NewService(&mockCompleter{}, &mockStore{})

	var out strings.Builder
	repl(context.Background(), svc, 1, strings.NewReader(""), &out, true)
	if !strings.HasSuffix(out.String(), "\nGoodbye!\n") {
		t.Errorf("Expected goodbye on end of input, got %q", out.String())
	}
}

func TestConsoleLevel(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		flagSet    bool
		want       zerolog.Level
		wantErr    bool
	}{
		{name: "default stays quiet", configured: "info", want: zerolog.WarnLevel},
		{name: "default passed as flag", configured: "info", flagSet: true, want: zerolog.InfoLevel},
		{name: "env or config file debug", configured: "debug", want: zerolog.DebugLevel},
		{name: "env or config file error", configured: "error", want: zerolog.ErrorLevel},
		{name: "flag debug", configured: "debug", flagSet: true, want: zerolog.DebugLevel},
		{name: "invalid level", configured: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := consoleLevel(tt.configured, tt.flagSet)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.configured)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

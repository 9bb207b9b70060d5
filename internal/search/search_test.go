package search

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seanblong/faqrag/pkg/models"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockCompleter implements Completer for testing
type MockCompleter struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "mock answer", nil
}

// MockVectorStore implements VectorStore for testing
type MockVectorStore struct {
	QueryFunc func(ctx context.Context, text string, k int) ([]models.ContextItem, error)
	Items     []models.ContextItem
}

func (m *MockVectorStore) Query(ctx context.Context, text string, k int) ([]models.ContextItem, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, text, k)
	}
	if k < len(m.Items) {
		return m.Items[:k], nil
	}
	return m.Items, nil
}

func item(source, text string) models.ContextItem {
	return models.ContextItem{Text: text, Source: source}
}

func texts(items []models.ContextItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text
	}
	return out
}

func TestService_Retrieve(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		n         int
		items     []models.ContextItem
		wantTexts []string
		wantK     int
	}{
		{
			name:  "lexical overlap reorders candidates",
			query: "reset password",
			n:     2,
			items: []models.ContextItem{
				item("faq_billing.md", "Invoices are emailed monthly."),
				item("faq_auth.md", "To reset your password open Settings."),
				item("faq_auth.md", "Your password must be twelve characters."),
				item("faq_misc.md", "Contact support for anything else."),
			},
			wantTexts: []string{"To reset your password open Settings.", "Your password must be twelve characters."},
			wantK:     4,
		},
		{
			name:  "equal scores keep store order",
			query: "account",
			n:     3,
			items: []models.ContextItem{
				item("a.md", "first account note"),
				item("b.md", "unrelated"),
				item("c.md", "second account note"),
				item("d.md", "third account note"),
			},
			wantTexts: []string{"first account note", "second account note", "third account note"},
			wantK:     6,
		},
		{
			name:  "words match inside longer words and ignore case",
			query: "Pass",
			n:     1,
			items: []models.ContextItem{
				item("a.md", "nothing here"),
				item("b.md", "PASSWORDS expire yearly"),
			},
			wantTexts: []string{"PASSWORDS expire yearly"},
			wantK:     2,
		},
		{
			name:  "repeated query words count once",
			query: "card card card refund",
			n:     2,
			items: []models.ContextItem{
				item("a.md", "card card card"),
				item("b.md", "card refund"),
			},
			wantTexts: []string{"card refund", "card card card"},
			wantK:     4,
		},
		{
			name:  "fewer candidates than requested",
			query: "hello",
			n:     5,
			items: []models.ContextItem{
				item("a.md", "hello world"),
			},
			wantTexts: []string{"hello world"},
			wantK:     10,
		},
		{
			name:      "empty store",
			query:     "anything",
			n:         3,
			items:     nil,
			wantTexts: []string{},
			wantK:     6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotK int
			store := &MockVectorStore{
				QueryFunc: func(ctx context.Context, text string, k int) ([]models.ContextItem, error) {
					gotK = k
					return tt.items, nil
				},
			}
			svc := NewService(&MockCompleter{}, store)

			got, err := svc.Retrieve(context.Background(), tt.query, tt.n)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got == nil {
				t.Fatal("Expected a non-nil slice")
			}
			if len(got) > tt.n {
				t.Errorf("Expected at most %d items, got %d", tt.n, len(got))
			}
			if gotK != tt.wantK {
				t.Errorf("Expected store to be asked for %d candidates, got %d", tt.wantK, gotK)
			}
			if !reflect.DeepEqual(texts(got), tt.wantTexts) {
				t.Errorf("Expected %v, got %v", tt.wantTexts, texts(got))
			}
		})
	}
}

func TestService_Retrieve_InputErrors(t *testing.T) {
	store := &MockVectorStore{
		QueryFunc: func(ctx context.Context, text string, k int) ([]models.ContextItem, error) {
			t.Error("store should not be queried")
			return nil, nil
		},
	}
	svc := NewService(&MockCompleter{}, store)

	if _, err := svc.Retrieve(context.Background(), "   ", 3); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}
	if _, err := svc.Retrieve(context.Background(), "q", -1); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("Expected ErrInvalidLimit, got %v", err)
	}
	got, err := svc.Retrieve(context.Background(), "q", 0)
	if err != nil {
		t.Fatalf("Unexpected error for n=0: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil slice for n=0, got %v", got)
	}
}

func TestService_Retrieve_FetchSize(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		wantFetch int
	}{
		{name: "doubles n", n: 3, wantFetch: 6},
		{name: "large n", n: 1 << 39, wantFetch: 1 << 40},
		{name: "largest n that doubles", n: math.MaxInt / 2, wantFetch: math.MaxInt - 1},
		{name: "saturates instead of overflowing", n: math.MaxInt/2 + 1, wantFetch: math.MaxInt},
		{name: "max int", n: math.MaxInt, wantFetch: math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotK := 0
			svc := NewService(&MockCompleter{}, &MockVectorStore{
				QueryFunc: func(ctx context.Context, text string, k int) ([]models.ContextItem, error) {
					gotK = k
					return []models.ContextItem{item("faq.md", "Reset your password from Settings.")}, nil
				},
			})

			got, err := svc.Retrieve(context.Background(), "password", tt.n)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if gotK != tt.wantFetch {
				t.Errorf("Expected store k=%d, got %d", tt.wantFetch, gotK)
			}
			if len(got) != 1 {
				t.Errorf("Expected the stored item to be returned, got %v", got)
			}
		})
	}
}

func TestService_Retrieve_StoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	svc := NewService(&MockCompleter{}, &MockVectorStore{
		QueryFunc: func(ctx context.Context, text string, k int) ([]models.ContextItem, error) {
			return nil, storeErr
		},
	})

	_, err := svc.Retrieve(context.Background(), "password", 2)
	if !errors.Is(err, storeErr) {
		t.Errorf("Expected wrapped store error, got %v", err)
	}
}

func TestService_Retrieve_TrimsQuery(t *testing.T) {
	var gotText string
	svc := NewService(&MockCompleter{}, &MockVectorStore{
		QueryFunc: func(ctx context.Context, text string, k int) ([]models.ContextItem, error) {
			gotText = text
			return nil, nil
		},
	})
	if _, err := svc.Retrieve(context.Background(), "  reset password \n", 1); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if gotText != "reset password" {
		t.Errorf("Expected trimmed query, got %q", gotText)
	}
}

func TestRescore(t *testing.T) {
	items := []models.ContextItem{
		item("a.md", "alpha"),
		item("b.md", "beta gamma"),
		item("c.md", "gamma"),
	}
	got := Rescore("beta gamma", items)

	want := []models.Candidate{
		{Item: items[1], Rank: 1, Score: 2},
		{Item: items[2], Rank: 2, Score: 1},
		{Item: items[0], Rank: 0, Score: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestQueryWords(t *testing.T) {
	got := queryWords("How do I reset my Password? how   DO")
	want := []string{"how", "do", "i", "reset", "my", "password?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestService_Generate(t *testing.T) {
	items := []models.ContextItem{
		item("faq_auth.md", "Reset your password from Settings."),
		item("faq_billing.md", "Refunds take five days."),
	}

	var gotPrompt string
	svc := NewService(&MockCompleter{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			gotPrompt = prompt
			return "Use Settings (faq_auth.md).", nil
		},
	}, &MockVectorStore{})

	answer, err := svc.Generate(context.Background(), "How do I reset my password?", items)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if answer != "Use Settings (faq_auth.md)." {
		t.Errorf("Unexpected answer %q", answer)
	}
	if gotPrompt != BuildPrompt("How do I reset my password?", items) {
		t.Error("Expected Generate to send the built prompt")
	}
}

func TestService_Generate_Error(t *testing.T) {
	modelErr := errors.New("rate limited")
	svc := NewService(&MockCompleter{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", modelErr
		},
	}, &MockVectorStore{})

	answer, err := svc.Generate(context.Background(), "q", nil)
	if !errors.Is(err, modelErr) {
		t.Errorf("Expected wrapped model error, got %v", err)
	}
	if answer != "" {
		t.Errorf("Expected no fabricated answer, got %q", answer)
	}
}

func TestBuildPrompt(t *testing.T) {
	items := []models.ContextItem{
		item("faq_auth.md", "Reset your password from Settings."),
		item("faq_billing.md", "Refunds take five days."),
	}
	got := BuildPrompt("How do I reset my password?", items)

	want := "You are a helpful assistant. Answer the question using ONLY the context below.\n" +
		"If you don't know, say \"I don't know\".\n" +
		"Cite the source filename (e.g., faq_auth.md) for every claim.\n\n" +
		"Context:\n" +
		"Source 1 (faq_auth.md):\nReset your password from Settings.\n\n" +
		"Source 2 (faq_billing.md):\nRefunds take five days.\n\n" +
		"\nQuestion: How do I reset my password?\n\nAnswer:"
	if got != want {
		t.Errorf("Unexpected prompt:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildPrompt_NoContext(t *testing.T) {
	got := BuildPrompt("q", nil)
	if strings.Contains(got, "Source 1") {
		t.Error("Expected no source blocks without context")
	}
	if !strings.HasSuffix(got, "Question: q\n\nAnswer:") {
		t.Errorf("Unexpected prompt tail: %q", got)
	}
}

func TestService_Answer(t *testing.T) {
	store := &MockVectorStore{Items: []models.ContextItem{
		item("faq_auth.md", "To reset your password open Settings."),
		item("faq_billing.md", "Invoices are emailed monthly."),
		item("faq_auth.md", "Your password must be twelve characters."),
	}}
	svc := NewService(&MockCompleter{}, store)

	got, err := svc.Answer(context.Background(), "reset password", 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := models.Answer{Answer: "mock answer", Sources: []string{"faq_auth.md", "faq_billing.md"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestService_Answer_Errors(t *testing.T) {
	svc := NewService(&MockCompleter{}, &MockVectorStore{})
	if _, err := svc.Answer(context.Background(), "", 3); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}

	modelErr := errors.New("boom")
	svc = NewService(&MockCompleter{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) { return "", modelErr },
	}, &MockVectorStore{Items: []models.ContextItem{item("a.md", "text")}})
	if _, err := svc.Answer(context.Background(), "q", 1); !errors.Is(err, modelErr) {
		t.Errorf("Expected model error, got %v", err)
	}
}

func TestSources(t *testing.T) {
	tests := []struct {
		name  string
		items []models.ContextItem
		want  []string
	}{
		{
			name:  "duplicates removed and sorted",
			items: []models.ContextItem{item("b.md", "x"), item("a.md", "y"), item("b.md", "z")},
			want:  []string{"a.md", "b.md"},
		},
		{
			name:  "no items",
			items: nil,
			want:  []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sources(tt.items)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNewService(t *testing.T) {
	client := &MockCompleter{}
	store := &MockVectorStore{}
	svc := NewService(client, store)
	if svc.Client != client {
		t.Error("Expected client to be set")
	}
	if svc.Store != store {
		t.Error("Expected store to be set")
	}
}

func BenchmarkRescore(b *testing.B) {
	items := make([]models.ContextItem, 20)
	for i := range items {
		items[i] = item("faq.md", strings.Repeat("password reset account billing ", 10))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Rescore("how do I reset my password", items)
	}
}

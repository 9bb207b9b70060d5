package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/faqrag/pkg/models"
)

// OverFetch is how many store candidates are requested per returned item.
const OverFetch = 2

var (
	// ErrEmptyQuery is returned when the query has no non-space characters.
	ErrEmptyQuery = errors.New("no query provided")
	// ErrInvalidLimit is returned for a negative result count.
	ErrInvalidLimit = errors.New("result count must not be negative")
)

// VectorStore is the read side of the vector store.
type VectorStore interface {
	Query(ctx context.Context, text string, k int) ([]models.ContextItem, error)
}

// Completer turns a prompt into prose.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service answers questions from the indexed corpus. It is safe for
// concurrent use once ingestion has completed.
type Service struct {
	Client Completer
	Store  VectorStore
}

// NewService creates a new search service with the provided completion client and store
func NewService(client Completer, store VectorStore) *Service {
	return &Service{
		Client: client,
		Store:  store,
	}
}

// Retrieve returns at most n context items for q. Store candidates are
// over-fetched and re-sorted by how many distinct query words they contain;
// the store's similarity order breaks ties.
func (s *Service) Retrieve(ctx context.Context, q string, n int) ([]models.ContextItem, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if n < 0 {
		return nil, ErrInvalidLimit
	}
	if n == 0 {
		return []models.ContextItem{}, nil
	}

	fetch := n * OverFetch
	if n > math.MaxInt/OverFetch {
		fetch = math.MaxInt
	}
	items, err := s.Store.Query(ctx, q, fetch)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if len(items) == 0 {
		return []models.ContextItem{}, nil
	}

	cands := Rescore(q, items)
	if len(cands) > n {
		cands = cands[:n]
	}
	out := make([]models.ContextItem, len(cands))
	for i, c := range cands {
		out[i] = c.Item
	}
	log.Debug().Str("q", q).Int("candidates", len(items)).Int("returned", len(out)).Msg("retrieved context")
	return out, nil
}

// Rescore scores items by keyword overlap with q and sorts them by score,
// keeping the original order among equal scores.
func Rescore(q string, items []models.ContextItem) []models.Candidate {
	words := queryWords(q)
	cands := make([]models.Candidate, len(items))
	for i, it := range items {
		cands[i] = models.Candidate{Item: it, Rank: i, Score: overlap(words, it.Text)}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].Rank < cands[j].Rank
	})
	return cands
}

// queryWords returns the distinct lower-cased whitespace-separated words of q.
func queryWords(q string) []string {
	seen := make(map[string]struct{})
	var words []string
	for _, w := range strings.Fields(strings.ToLower(q)) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words
}

// overlap counts the words occurring anywhere in text, inside longer words included.
func overlap(words []string, text string) int {
	lt := strings.ToLower(text)
	n := 0
	for _, w := range words {
		if strings.Contains(lt, w) {
			n++
		}
	}
	return n
}

// Generate asks the language model to answer q from items only.
func (s *Service) Generate(ctx context.Context, q string, items []models.ContextItem) (string, error) {
	answer, err := s.Client.Complete(ctx, BuildPrompt(q, items))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

// BuildPrompt lays out the instructions, the numbered context and the question.
func BuildPrompt(q string, items []models.ContextItem) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant. Answer the question using ONLY the context below.\n")
	sb.WriteString("If you don't know, say \"I don't know\".\n")
	sb.WriteString("Cite the source filename (e.g., faq_auth.md) for every claim.\n\n")
	sb.WriteString("Context:\n")
	for i, it := range items {
		fmt.Fprintf(&sb, "Source %d (%s):\n%s\n\n", i+1, it.Source, it.Text)
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(q)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

// Answer retrieves n context items for q, generates an answer and lists the cited sources.
func (s *Service) Answer(ctx context.Context, q string, n int) (models.Answer, error) {
	items, err := s.Retrieve(ctx, q, n)
	if err != nil {
		return models.Answer{}, err
	}
	answer, err := s.Generate(ctx, strings.TrimSpace(q), items)
	if err != nil {
		return models.Answer{}, err
	}
	return models.Answer{Answer: answer, Sources: Sources(items)}, nil
}

// Sources returns the sorted, de-duplicated sources of items.
func Sources(items []models.ContextItem) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.Source]; ok {
			continue
		}
		seen[it.Source] = struct{}{}
		out = append(out, it.Source)
	}
	sort.Strings(out)
	return out
}

package ai

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimitedClient throttles every provider request through a token bucket.
type RateLimitedClient struct {
	Client
	limiter *rate.Limiter
}

// WithRateLimit wraps c so that it issues at most rps requests per second.
// A non-positive rps returns c unchanged.
func WithRateLimit(c Client, rps float64) Client {
	if rps <= 0 {
		return c
	}
	burst := int(math.Ceil(rps))
	return &RateLimitedClient{
		Client:  c,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimitedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Client.Embed(ctx, text)
}

// EmbedQuery uses the wrapped client's query embedding when it has one and
// falls back to Embed otherwise.
func (r *RateLimitedClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if qe, ok := r.Client.(interface {
		EmbedQuery(ctx context.Context, text string) ([]float32, error)
	}); ok {
		return qe.EmbedQuery(ctx, text)
	}
	return r.Client.Embed(ctx, text)
}

func (r *RateLimitedClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.Client.Complete(ctx, prompt)
}

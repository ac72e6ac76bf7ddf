package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped Embedder. A batch counts as
// one request.
type RateLimited struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with the given burst.
func NewRateLimited(next Embedder, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, wrapErr("rate limit", err)
	}
	return r.next.Embed(ctx, text)
}

func (r *RateLimited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, wrapErr("rate limit", err)
	}
	return r.next.EmbedBatch(ctx, texts)
}

func (r *RateLimited) Model() string  { return r.next.Model() }
func (r *RateLimited) Dimension() int { return r.next.Dimension() }

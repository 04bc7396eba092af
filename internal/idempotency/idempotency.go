package idempotency

import (
	"context"

	redisadapter "github.com/eventloom/ticketpay/internal/adapters/redis"
)

// Idempotency replays cached responses for repeated Idempotency-Key values
// so a retried POST observes the first attempt's outcome instead of
// re-executing it. An empty key disables replay for the request.
type Idempotency struct {
	cache *redisadapter.ReplayCache
}

func NewIdempotency(cache *redisadapter.ReplayCache) *Idempotency {
	return &Idempotency{cache: cache}
}

type Response struct {
	Status int
	Result []byte
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	if key == "" {
		return nil, nil
	}
	cached, err := i.cache.Get(ctx, key)
	if err != nil || cached == nil {
		return nil, err
	}
	return &Response{Status: cached.Status, Result: cached.Body}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	if key == "" {
		return nil
	}
	return i.cache.Set(ctx, key, redisadapter.CachedResponse{Status: resp.Status, Body: resp.Result})
}

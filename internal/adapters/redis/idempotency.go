package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayCache stores the first response produced under an Idempotency-Key so
// a retried POST observes that outcome instead of executing again. Entries
// expire after ttl; a retry arriving later is treated as a new request.
type ReplayCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewReplayCache(client *redis.Client, ttl time.Duration) *ReplayCache {
	return &ReplayCache{client: client, ttl: ttl}
}

// CachedResponse is the replayable part of a handler response: the status
// code and the exact body bytes that were written.
type CachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

func replayKey(key string) string {
	return "replay:" + key
}

// Get returns the cached response for key, or nil on a miss.
func (c *ReplayCache) Get(ctx context.Context, key string) (*CachedResponse, error) {
	raw, err := c.client.Get(ctx, replayKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ReplayCache) Set(ctx context.Context, key string, resp CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, replayKey(key), raw, c.ttl).Err()
}

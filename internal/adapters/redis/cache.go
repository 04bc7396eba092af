package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func checkoutKey(eventID, userID uuid.UUID) string {
	return "checkout:" + eventID.String() + ":" + userID.String()
}

// AcquireCheckout takes the per-(event, user) checkout lock so only one
// gateway session is opened at a time for the same pending ticket.
func (c *Cache) AcquireCheckout(ctx context.Context, eventID, userID uuid.UUID, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, checkoutKey(eventID, userID), "1", ttl)
	return res.Val(), res.Err()
}

func (c *Cache) ReleaseCheckout(ctx context.Context, eventID, userID uuid.UUID) error {
	return c.client.Del(ctx, checkoutKey(eventID, userID)).Err()
}

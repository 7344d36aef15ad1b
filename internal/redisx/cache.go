package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Cache is the redis-backed fast path: order status snapshots for polling
// clients and checkout idempotency keys. Misses and write failures are
// reported as absence; Postgres stays the source of truth.
type Cache struct {
	C *redis.Client
}

func (c *Cache) GetStatus(ctx context.Context, orderID string) ([]byte, bool) {
	b, err := c.C.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	return b, err == nil && len(b) > 0
}

func (c *Cache) SetStatus(ctx context.Context, orderID string, body []byte) {
	_ = c.C.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), body, TTLStatusCache).Err()
}

// IdempotentOrderID resolves a previously seen checkout request to the order
// it created.
func (c *Cache) IdempotentOrderID(ctx context.Context, buyerID, key string) (string, bool) {
	id, err := c.C.Get(ctx, fmt.Sprintf(KeyIdemCheckout, buyerID, key)).Result()
	return id, err == nil && id != ""
}

func (c *Cache) RememberIdempotency(ctx context.Context, buyerID, key, orderID string) {
	_ = c.C.Set(ctx, fmt.Sprintf(KeyIdemCheckout, buyerID, key), orderID, TTLIdempotency).Err()
}

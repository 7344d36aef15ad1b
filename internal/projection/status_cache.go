// Package projection keeps the Redis order-status cache in sync by
// consuming order.transitioned events. The cache is read-only convenience
// for the GET path; Postgres stays the source of truth.
package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/Anezz12/gomealsaver-v2-sub001/internal/kafka"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/orders"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/redisx"
)

type Service struct {
	Redis       *redis.Client
	Logger      *zap.Logger
	ServiceName string
}

// cachedStatus carries the order's parties alongside the state so the HTTP
// status probe can authorize a cache hit without a store read.
type cachedStatus struct {
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
	BuyerID       string               `json:"buyer_id"`
	SellerID      string               `json:"seller_id"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// HandleTransitioned is the consumer handler. Delivery is at-least-once, so
// events are deduplicated by event id before the cache write.
func (s *Service) HandleTransitioned(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderTransitioned {
		return nil // ignore foreign event types
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[orders.OrderTransitionedPayload](env.Payload)
	if err != nil {
		return err
	}
	if p.OrderID == "" {
		return fmt.Errorf("transitioned payload missing order_id")
	}

	key := fmt.Sprintf(redisx.KeyOrderStatus, p.OrderID)
	body, err := json.Marshal(cachedStatus{
		Status:        p.Status,
		PaymentStatus: p.PaymentStatus,
		BuyerID:       p.BuyerID,
		SellerID:      p.SellerID,
		UpdatedAt:     env.OccurredAt,
	})
	if err != nil {
		return err
	}
	if err := s.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err(); err != nil {
		return err
	}

	s.Logger.Debug("status cache updated",
		zap.String("order_id", p.OrderID),
		zap.String("status", string(p.Status)))
	return nil
}

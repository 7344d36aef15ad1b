package redisx

import "time"

const (
	// Cache of the last known order state: order_status:{order_id} ->
	// {"status":"...","payment_status":"...","updated_at":"..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup for at-least-once event consumption: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Checkout idempotency shortcut: idem:checkout:{buyer_id}:{request_id}
	KeyIdemCheckout = "idem:checkout:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLIdempotency = 24 * time.Hour
)

package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated      = "OrderCreated"
	EventOrderTransitioned = "OrderTransitioned"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID        string        `json:"order_id"`
	GatewayOrderID string        `json:"gateway_order_id"`
	BuyerID        string        `json:"buyer_id"`
	SellerID       string        `json:"seller_id"`
	MealID         string        `json:"meal_id"`
	Quantity       int           `json:"quantity"`
	TotalCents     int           `json:"total_cents"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	Status         Status        `json:"status"`
}

type OrderTransitionedPayload struct {
	OrderID           string        `json:"order_id"`
	BuyerID           string        `json:"buyer_id"`
	SellerID          string        `json:"seller_id"`
	Trigger           string        `json:"trigger"`
	FromStatus        Status        `json:"from_status"`
	FromPaymentStatus PaymentStatus `json:"from_payment_status"`
	Status            Status        `json:"status"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	// StockDelta is the change applied to the meal's stock by this
	// transition: negative on reservation, positive on restore, zero
	// otherwise.
	StockDelta int `json:"stock_delta"`
}

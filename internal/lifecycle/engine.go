// Package lifecycle is the single authority over order state. Every
// trigger, the gateway webhook, the client payment poll, seller and buyer
// manual actions, and the reconciliation sweep, funnels into one of the
// Engine methods below; nothing else mutates orders or meal stock.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Anezz12/gomealsaver-v2-sub001/internal/inventory"
	kafkax "github.com/Anezz12/gomealsaver-v2-sub001/internal/kafka"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/orders"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/payment"
)

// Transition triggers, recorded on emitted events.
const (
	TriggerCheckout      = "checkout"
	TriggerSellerConfirm = "seller_confirm"
	TriggerAcceptCash    = "accept_cash"
	TriggerGateway       = "gateway"
	TriggerExpire        = "expire"
	TriggerCancel        = "cancel"
	TriggerProgress      = "progress"
)

type OrderStore interface {
	Create(ctx context.Context, o *orders.Order) error
	Get(ctx context.Context, id string) (*orders.Order, error)
	GetByGatewayRef(ctx context.Context, ref string) (*orders.Order, error)
	ListStaleAwaitingPayment(ctx context.Context, cutoff time.Time, limit int) ([]orders.Order, error)
	Apply(ctx context.Context, orderID string, decide orders.DecideFunc) (*orders.Order, error)
}

type MealCatalog interface {
	GetMeal(ctx context.Context, id string) (*inventory.Meal, error)
}

// EventSink is satisfied by *kafka.Producer.
type EventSink interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Engine struct {
	Store   OrderStore
	Meals   MealCatalog
	Gateway payment.Gateway

	Created      EventSink // order.created
	Transitioned EventSink // order.transitioned

	Logger      *zap.Logger
	ServiceName string
	ServerKey   string

	ServiceFeeCents int
	SessionTTL      time.Duration
	ExpiryAge       time.Duration
	SweepMinAge     time.Duration

	// Now is swappable in tests.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

type CreateOrderInput struct {
	BuyerID         string
	MealID          string
	Quantity        int
	Method          orders.PaymentMethod
	ShippingAddress string
	ShippingPhone   string
	Notes           string
}

// CreateOrder runs checkout. Stock is checked but never reserved here:
// reservation is deferred to COD confirmation or payment settlement, so an
// abandoned checkout never ties up stock. For online payment the gateway
// session is created before the insert, so a gateway failure leaves no
// local record behind.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (*orders.Order, error) {
	if in.BuyerID == "" {
		return nil, &orders.ValidationError{Field: "buyer_id", Reason: "required"}
	}
	if in.MealID == "" {
		return nil, &orders.ValidationError{Field: "meal_id", Reason: "required"}
	}
	if in.Quantity < 1 {
		return nil, &orders.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	if in.Method != orders.MethodOnline && in.Method != orders.MethodCOD {
		return nil, &orders.ValidationError{Field: "payment_method", Reason: "must be online or cash_on_delivery"}
	}
	if in.ShippingAddress == "" {
		return nil, &orders.ValidationError{Field: "shipping_address", Reason: "required"}
	}

	meal, err := e.Meals.GetMeal(ctx, in.MealID)
	if err != nil {
		return nil, err
	}
	if meal.SellerID == in.BuyerID {
		return nil, orders.ErrSelfPurchase
	}
	if meal.Disabled || !meal.Available {
		return nil, orders.ErrMealUnavailable
	}
	if meal.StockQuantity < in.Quantity {
		return nil, &inventory.InsufficientStockError{
			MealID: meal.ID, Requested: in.Quantity, Available: meal.StockQuantity,
		}
	}

	o := &orders.Order{
		ID:              uuid.NewString(),
		GatewayOrderID:  uuid.NewString(),
		BuyerID:         in.BuyerID,
		SellerID:        meal.SellerID,
		MealID:          meal.ID,
		Quantity:        in.Quantity,
		UnitPriceCents:  meal.PriceCents,
		TotalCents:      meal.PriceCents * in.Quantity,
		Status:          orders.StatusPending,
		PaymentStatus:   orders.PaymentPending,
		PaymentMethod:   in.Method,
		ShippingAddress: in.ShippingAddress,
		ShippingPhone:   in.ShippingPhone,
		Notes:           in.Notes,
		CreatedAt:       e.now(),
		UpdatedAt:       e.now(),
	}

	if in.Method == orders.MethodOnline {
		o.ServiceFeeCents = e.ServiceFeeCents
		o.TotalCents += e.ServiceFeeCents
		o.Status = orders.StatusAwaitingPayment

		sess, err := e.Gateway.CreateSession(ctx, payment.SessionRequest{
			OrderRef:      o.GatewayOrderID,
			AmountCents:   o.TotalCents,
			ItemName:      meal.Name,
			Quantity:      o.Quantity,
			CustomerID:    o.BuyerID,
			ExpiryMinutes: int(e.SessionTTL.Minutes()),
		})
		if err != nil {
			return nil, err
		}
		o.PaymentToken = sess.Token
		o.PaymentURL = sess.RedirectURL
	}

	if err := e.Store.Create(ctx, o); err != nil {
		return nil, err
	}

	e.publishCreated(o)
	e.logger().Info("order created",
		zap.String("order_id", o.ID),
		zap.String("meal_id", o.MealID),
		zap.String("method", string(o.PaymentMethod)),
		zap.Int("total_cents", o.TotalCents))
	return o, nil
}

// ApplyWebhook handles a gateway notification. The signature is verified
// before anything else; a tampered payload is rejected without touching
// state and logged as a potential attack.
func (e *Engine) ApplyWebhook(ctx context.Context, raw []byte) (*orders.Order, error) {
	n, err := payment.DecodeNotification(raw)
	if err != nil {
		return nil, &orders.ValidationError{Field: "notification", Reason: err.Error()}
	}
	if !n.Authentic(e.ServerKey) {
		e.logger().Warn("webhook signature mismatch, rejecting",
			zap.String("gateway_order_id", n.OrderID),
			zap.String("transaction_status", n.TransactionStatus))
		return nil, orders.ErrInvalidSignature
	}

	o, err := e.Store.GetByGatewayRef(ctx, n.OrderID)
	if err != nil {
		return nil, err
	}
	return e.applyGateway(ctx, o.ID, n.Status())
}

// CheckPaymentStatus is the client-initiated poll. Webhook delivery is not
// guaranteed, so this is a redundant path into the same state machine, not
// a separate one.
func (e *Engine) CheckPaymentStatus(ctx context.Context, orderID, callerID string) (*orders.Order, error) {
	o, err := e.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsBuyer(callerID) && !o.IsSeller(callerID) {
		return nil, orders.ErrUnauthorized
	}
	return e.reconcile(ctx, o)
}

// reconcile queries the gateway for ground truth and applies the result.
// Shared by the poll endpoint and the sweep.
func (e *Engine) reconcile(ctx context.Context, o *orders.Order) (*orders.Order, error) {
	if o.PaymentMethod != orders.MethodOnline || o.Status != orders.StatusAwaitingPayment {
		// nothing to reconcile, report current state
		return o, nil
	}

	ts, err := e.Gateway.GetTransactionStatus(ctx, o.GatewayOrderID)
	switch {
	case errors.Is(err, payment.ErrTransactionNotFound):
		if e.now().Sub(o.CreatedAt) <= e.ExpiryAge {
			// recent order the gateway does not know yet: do not guess
			return o, nil
		}
		return e.expire(ctx, o.ID)
	case err != nil:
		// transient gateway trouble is retryable and must not mutate state
		return nil, err
	}
	return e.applyGateway(ctx, o.ID, ts)
}

// StaleAwaitingPayment lists sweep candidates.
func (e *Engine) StaleAwaitingPayment(ctx context.Context, limit int) ([]orders.Order, error) {
	return e.Store.ListStaleAwaitingPayment(ctx, e.now().Add(-e.SweepMinAge), limit)
}

// Reconcile re-checks one order against the gateway without interactive
// authorization. Used by the reconciliation sweep.
func (e *Engine) Reconcile(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := e.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return e.reconcile(ctx, o)
}

func (e *Engine) ConfirmCodOrder(ctx context.Context, orderID, sellerID string) (*orders.Order, error) {
	return e.apply(ctx, orderID, TriggerSellerConfirm, func(o *orders.Order) (*orders.Transition, error) {
		if !o.IsSeller(sellerID) {
			return nil, orders.ErrUnauthorized
		}
		if o.PaymentMethod != orders.MethodCOD || o.Status != orders.StatusPending {
			return nil, invalid(o, "confirm")
		}
		return &orders.Transition{
			To:             orders.State{Status: orders.StatusConfirmed, PaymentStatus: orders.PaymentPending},
			Trigger:        TriggerSellerConfirm,
			ReserveStock:   true,
			SetConfirmedAt: true,
		}, nil
	})
}

func (e *Engine) AcceptCodPayment(ctx context.Context, orderID, sellerID, notes string) (*orders.Order, error) {
	return e.apply(ctx, orderID, TriggerAcceptCash, func(o *orders.Order) (*orders.Transition, error) {
		if !o.IsSeller(sellerID) {
			return nil, orders.ErrUnauthorized
		}
		if o.PaymentMethod != orders.MethodCOD || o.PaymentStatus != orders.PaymentPending {
			return nil, invalid(o, "accept cash")
		}
		switch o.Status {
		case orders.StatusConfirmed, orders.StatusInProgress, orders.StatusReady:
		default:
			return nil, invalid(o, "accept cash")
		}
		return &orders.Transition{
			To:        orders.State{Status: orders.StatusProcessing, PaymentStatus: orders.PaymentPaid},
			Trigger:   TriggerAcceptCash,
			SetPaidAt: true,
			Notes:     notes,
		}, nil
	})
}

// CancelOrder cancels on behalf of the buyer or the seller. Buyers may only
// back out before payment is committed; sellers may cancel any non-terminal
// order. Stock is restored exactly when the prior state held a reservation,
// which is what makes a retried cancel unable to restore twice: the second
// attempt sees a cancelled order and fails the guard.
func (e *Engine) CancelOrder(ctx context.Context, orderID, callerID string) (*orders.Order, error) {
	return e.apply(ctx, orderID, TriggerCancel, func(o *orders.Order) (*orders.Transition, error) {
		buyer, seller := o.IsBuyer(callerID), o.IsSeller(callerID)
		if !buyer && !seller {
			return nil, orders.ErrUnauthorized
		}
		if o.State().Terminal() {
			return nil, invalid(o, "cancel")
		}
		if buyer && !seller {
			switch o.Status {
			case orders.StatusPending, orders.StatusAwaitingPayment, orders.StatusConfirmed:
			default:
				return nil, invalid(o, "cancel")
			}
		}
		return &orders.Transition{
			To:           orders.State{Status: orders.StatusCancelled, PaymentStatus: orders.PaymentCancelled},
			Trigger:      TriggerCancel,
			RestoreStock: o.State().Reserved(),
		}, nil
	})
}

// UpdateOrderStatus is the seller's generic progression entry point. Only
// the plain preparation moves are legal here; anything with a side effect
// has its own method.
func (e *Engine) UpdateOrderStatus(ctx context.Context, orderID, sellerID string, target orders.Status) (*orders.Order, error) {
	return e.apply(ctx, orderID, TriggerProgress, func(o *orders.Order) (*orders.Transition, error) {
		if !o.IsSeller(sellerID) {
			return nil, orders.ErrUnauthorized
		}
		if !orders.CanProgress(o.Status, target) {
			return nil, invalid(o, "move to "+string(target))
		}
		to := orders.State{Status: target, PaymentStatus: o.PaymentStatus}
		if !to.Valid() {
			return nil, invalid(o, "move to "+string(target))
		}
		return &orders.Transition{To: to, Trigger: TriggerProgress}, nil
	})
}

func (e *Engine) GetOrder(ctx context.Context, orderID, callerID string) (*orders.Order, error) {
	o, err := e.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsBuyer(callerID) && !o.IsSeller(callerID) {
		return nil, orders.ErrUnauthorized
	}
	return o, nil
}

// applyGateway maps a gateway report onto the transition table. Settlement
// (or capture accepted by fraud screening) pays the order and reserves
// stock; pending is a no-op; deny/cancel/expire/failure fails the order
// with stock untouched, because it was never reserved. A settlement replay
// against an already-paid order is a no-op, not an error.
func (e *Engine) applyGateway(ctx context.Context, orderID string, ts *payment.TransactionStatus) (*orders.Order, error) {
	return e.apply(ctx, orderID, TriggerGateway, func(o *orders.Order) (*orders.Transition, error) {
		switch outcome(ts) {
		case gwSettled:
			if o.PaymentStatus == orders.PaymentPaid {
				return nil, nil
			}
			if o.Status != orders.StatusAwaitingPayment {
				return nil, invalid(o, "settle payment")
			}
			return &orders.Transition{
				To:            orders.State{Status: orders.StatusProcessing, PaymentStatus: orders.PaymentPaid},
				Trigger:       TriggerGateway,
				ReserveStock:  true,
				SetPaidAt:     true,
				TransactionID: ts.TransactionID,
				PaymentType:   ts.PaymentType,
			}, nil
		case gwFailed:
			if o.Status == orders.StatusCancelled {
				return nil, nil // replayed failure on an already-failed order
			}
			if o.Status != orders.StatusAwaitingPayment {
				return nil, invalid(o, "fail payment")
			}
			return &orders.Transition{
				To:          orders.State{Status: orders.StatusCancelled, PaymentStatus: orders.PaymentFailed},
				Trigger:     TriggerGateway,
				PaymentType: ts.PaymentType,
			}, nil
		default: // still pending at the gateway
			return nil, nil
		}
	})
}

func (e *Engine) expire(ctx context.Context, orderID string) (*orders.Order, error) {
	return e.apply(ctx, orderID, TriggerExpire, func(o *orders.Order) (*orders.Transition, error) {
		if o.Status == orders.StatusCancelled {
			return nil, nil
		}
		if o.Status != orders.StatusAwaitingPayment || o.PaymentStatus != orders.PaymentPending {
			return nil, invalid(o, "expire")
		}
		return &orders.Transition{
			To:      orders.State{Status: orders.StatusCancelled, PaymentStatus: orders.PaymentExpired},
			Trigger: TriggerExpire,
		}, nil
	})
}

// apply wraps Store.Apply with event publication and logging. The decide
// closure runs under the per-order lock; the event goes out only after the
// transition committed.
func (e *Engine) apply(ctx context.Context, orderID, trigger string, decide orders.DecideFunc) (*orders.Order, error) {
	var from orders.State
	var applied *orders.Transition
	o, err := e.Store.Apply(ctx, orderID, func(o *orders.Order) (*orders.Transition, error) {
		from = o.State()
		t, err := decide(o)
		applied = t
		return t, err
	})
	if err != nil {
		return nil, err
	}
	if applied == nil {
		return o, nil
	}

	delta := 0
	if applied.ReserveStock {
		delta = -o.Quantity
	} else if applied.RestoreStock {
		delta = o.Quantity
	}
	e.publishTransitioned(o, from, trigger, delta)
	e.logger().Info("order transitioned",
		zap.String("order_id", o.ID),
		zap.String("trigger", trigger),
		zap.String("from", string(from.Status)),
		zap.String("to", string(o.Status)),
		zap.String("payment_status", string(o.PaymentStatus)),
		zap.Int("stock_delta", delta))
	return o, nil
}

func invalid(o *orders.Order, action string) error {
	return &orders.InvalidTransitionError{
		OrderID:       o.ID,
		Action:        action,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
	}
}

type gatewayOutcome int

const (
	gwPending gatewayOutcome = iota
	gwSettled
	gwFailed
)

func outcome(ts *payment.TransactionStatus) gatewayOutcome {
	switch ts.TransactionStatus {
	case payment.TxSettlement:
		return gwSettled
	case payment.TxCapture:
		switch ts.FraudStatus {
		case payment.FraudAccept:
			return gwSettled
		case payment.FraudChallenge:
			return gwPending
		default:
			return gwFailed
		}
	case payment.TxDeny, payment.TxCancel, payment.TxExpire, payment.TxFailure:
		return gwFailed
	default:
		return gwPending
	}
}

func (e *Engine) publishCreated(o *orders.Order) {
	if e.Created == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    e.now(),
		Producer:      e.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:        o.ID,
			GatewayOrderID: o.GatewayOrderID,
			BuyerID:        o.BuyerID,
			SellerID:       o.SellerID,
			MealID:         o.MealID,
			Quantity:       o.Quantity,
			TotalCents:     o.TotalCents,
			PaymentMethod:  o.PaymentMethod,
			Status:         o.Status,
		}),
	}
	e.Created.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (e *Engine) publishTransitioned(o *orders.Order, from orders.State, trigger string, stockDelta int) {
	if e.Transitioned == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderTransitioned,
		EventVersion:  1,
		OccurredAt:    e.now(),
		Producer:      e.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderTransitionedPayload{
			OrderID:           o.ID,
			BuyerID:           o.BuyerID,
			SellerID:          o.SellerID,
			Trigger:           trigger,
			FromStatus:        from.Status,
			FromPaymentStatus: from.PaymentStatus,
			Status:            o.Status,
			PaymentStatus:     o.PaymentStatus,
			StockDelta:        stockDelta,
		}),
	}
	e.Transitioned.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderTransitioned)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

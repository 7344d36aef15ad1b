package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Anezz12/gomealsaver-v2-sub001/internal/inventory"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/lifecycle"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/orders"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/payment"
)

// OrderService is the slice of the lifecycle engine the handlers call.
type OrderService interface {
	CreateOrder(ctx context.Context, in lifecycle.CreateOrderInput) (*orders.Order, error)
	GetOrder(ctx context.Context, orderID, callerID string) (*orders.Order, error)
	CheckPaymentStatus(ctx context.Context, orderID, callerID string) (*orders.Order, error)
	ConfirmCodOrder(ctx context.Context, orderID, sellerID string) (*orders.Order, error)
	AcceptCodPayment(ctx context.Context, orderID, sellerID, notes string) (*orders.Order, error)
	CancelOrder(ctx context.Context, orderID, callerID string) (*orders.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, sellerID string, target orders.Status) (*orders.Order, error)
	ApplyWebhook(ctx context.Context, raw []byte) (*orders.Order, error)
}

type MealLister interface {
	ListAvailable(ctx context.Context) ([]inventory.Meal, error)
}

// Cache is the redis fast path, satisfied by *redisx.Cache. Both methods
// degrade to absence on failure; the store is always the fallback.
type Cache interface {
	GetStatus(ctx context.Context, orderID string) ([]byte, bool)
	SetStatus(ctx context.Context, orderID string, body []byte)
	IdempotentOrderID(ctx context.Context, buyerID, key string) (string, bool)
	RememberIdempotency(ctx context.Context, buyerID, key, orderID string)
}

type OrdersHandler struct {
	Service  OrderService
	Meals    MealLister
	Sessions SessionProvider
	Cache    Cache
}

// cachedStatus is the cache entry shape shared with the projector. Buyer and
// seller ids ride along so a cache hit can be authorized without a store
// read.
type cachedStatus struct {
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	BuyerID       string    `json:"buyer_id"`
	SellerID      string    `json:"seller_id"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Get("/orders/{id}/payment", h.checkPayment)
	r.Post("/orders/{id}/confirm", h.confirmCod)
	r.Post("/orders/{id}/accept-cash", h.acceptCash)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Get("/meals", h.listMeals)
}

type createOrderReq struct {
	MealID          string `json:"meal_id"`
	Quantity        int    `json:"quantity"`
	PaymentMethod   string `json:"payment_method"`
	ShippingAddress string `json:"shipping_address"`
	ShippingPhone   string `json:"shipping_phone"`
	Notes           string `json:"notes"`
}

type orderResp struct {
	ID              string  `json:"id"`
	GatewayOrderID  string  `json:"gateway_order_id"`
	BuyerID         string  `json:"buyer_id"`
	SellerID        string  `json:"seller_id"`
	MealID          string  `json:"meal_id"`
	Quantity        int     `json:"quantity"`
	UnitPriceCents  int     `json:"unit_price_cents"`
	ServiceFeeCents int     `json:"service_fee_cents"`
	TotalCents      int     `json:"total_cents"`
	Status          string  `json:"status"`
	PaymentStatus   string  `json:"payment_status"`
	PaymentMethod   string  `json:"payment_method"`
	PaymentType     string  `json:"payment_type,omitempty"`
	PaymentToken    string  `json:"payment_token,omitempty"`
	PaymentURL      string  `json:"payment_url,omitempty"`
	CreatedAt       string  `json:"created_at"`
	ConfirmedAt     *string `json:"confirmed_at,omitempty"`
	PaidAt          *string `json:"paid_at,omitempty"`
}

func toOrderResp(o *orders.Order) orderResp {
	r := orderResp{
		ID:              o.ID,
		GatewayOrderID:  o.GatewayOrderID,
		BuyerID:         o.BuyerID,
		SellerID:        o.SellerID,
		MealID:          o.MealID,
		Quantity:        o.Quantity,
		UnitPriceCents:  o.UnitPriceCents,
		ServiceFeeCents: o.ServiceFeeCents,
		TotalCents:      o.TotalCents,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		PaymentMethod:   string(o.PaymentMethod),
		PaymentType:     o.PaymentType,
		PaymentToken:    o.PaymentToken,
		PaymentURL:      o.PaymentURL,
		CreatedAt:       o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.ConfirmedAt != nil {
		s := o.ConfirmedAt.UTC().Format(time.RFC3339)
		r.ConfirmedAt = &s
	}
	if o.PaidAt != nil {
		s := o.PaidAt.UTC().Format(time.RFC3339)
		r.PaidAt = &s
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the typed failure taxonomy onto HTTP. Transition conflicts
// return the authoritative current state so the UI can resynchronize
// instead of retrying blindly.
func writeErr(w http.ResponseWriter, err error) {
	var vErr *orders.ValidationError
	var tErr *orders.InvalidTransitionError
	var sErr *inventory.InsufficientStockError

	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Error()})
	case errors.Is(err, orders.ErrSelfPurchase):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, inventory.ErrMealNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrUnauthorized), errors.Is(err, orders.ErrInvalidSignature):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.As(err, &tErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":          tErr.Error(),
			"status":         tErr.Status,
			"payment_status": tErr.PaymentStatus,
		})
	case errors.As(err, &sErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     sErr.Error(),
			"available": sErr.Available,
		})
	case errors.Is(err, orders.ErrMealUnavailable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, payment.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "payment gateway unavailable, retry later"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *OrdersHandler) user(w http.ResponseWriter, r *http.Request) (User, bool) {
	u, ok := h.Sessions.CurrentUser(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
	}
	return u, ok
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	u, ok := h.user(w, r)
	if !ok {
		return
	}
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// A retried checkout with the same key returns the order it already
	// created instead of inserting a duplicate.
	idem := r.Header.Get("Idempotency-Key")
	if idem != "" && h.Cache != nil {
		if id, ok := h.Cache.IdempotentOrderID(ctx, u.ID, idem); ok {
			if o, err := h.Service.GetOrder(ctx, id, u.ID); err == nil {
				writeJSON(w, http.StatusOK, toOrderResp(o))
				return
			}
		}
	}

	o, err := h.Service.CreateOrder(ctx, lifecycle.CreateOrderInput{
		BuyerID:         u.ID,
		MealID:          req.MealID,
		Quantity:        req.Quantity,
		Method:          orders.PaymentMethod(req.PaymentMethod),
		ShippingAddress: req.ShippingAddress,
		ShippingPhone:   req.ShippingPhone,
		Notes:           req.Notes,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	if idem != "" && h.Cache != nil {
		h.Cache.RememberIdempotency(ctx, u.ID, idem, o.ID)
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusCreated, toOrderResp(o))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	u, ok := h.user(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.GetOrder(ctx, chi.URLParam(r, "id"), u.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

// getOrderStatus is the lightweight status probe: cache first, DB fallback.
// A cache hit is served only to the order's own buyer or seller; anyone else
// falls through to the store, where GetOrder rejects them.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	u, ok := h.user(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		if b, ok := h.Cache.GetStatus(ctx, orderID); ok {
			var c cachedStatus
			if err := json.Unmarshal(b, &c); err == nil && (c.BuyerID == u.ID || c.SellerID == u.ID) {
				writeJSON(w, http.StatusOK, statusBody(c.Status, c.PaymentStatus, c.UpdatedAt))
				return
			}
		}
	}

	o, err := h.Service.GetOrder(ctx, orderID, u.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, statusBody(string(o.Status), string(o.PaymentStatus), o.UpdatedAt))
}

func statusBody(status, paymentStatus string, updatedAt time.Time) map[string]any {
	return map[string]any{
		"status":         status,
		"payment_status": paymentStatus,
		"updated_at":     updatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *OrdersHandler) checkPayment(w http.ResponseWriter, r *http.Request) {
	u, ok := h.user(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Service.CheckPaymentStatus(ctx, chi.URLParam(r, "id"), u.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) confirmCod(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(ctx context.Context, orderID string, u User) (*orders.Order, error) {
		return h.Service.ConfirmCodOrder(ctx, orderID, u.ID)
	})
}

func (h *OrdersHandler) acceptCash(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body) // notes are optional
	h.action(w, r, func(ctx context.Context, orderID string, u User) (*orders.Order, error) {
		return h.Service.AcceptCodPayment(ctx, orderID, u.ID, body.Notes)
	})
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(ctx context.Context, orderID string, u User) (*orders.Order, error) {
		return h.Service.CancelOrder(ctx, orderID, u.ID)
	})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing status"})
		return
	}
	h.action(w, r, func(ctx context.Context, orderID string, u User) (*orders.Order, error) {
		return h.Service.UpdateOrderStatus(ctx, orderID, u.ID, orders.Status(body.Status))
	})
}

func (h *OrdersHandler) action(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, orderID string, u User) (*orders.Order, error)) {
	u, ok := h.user(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := fn(ctx, chi.URLParam(r, "id"), u)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) listMeals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ms, err := h.Meals.ListAvailable(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

// cacheStatus refreshes the status cache eagerly on the write path; the
// projector keeps it fresh from events after that. Cache failures are
// ignored, Postgres is the source of truth.
func (h *OrdersHandler) cacheStatus(ctx context.Context, o *orders.Order) {
	if h.Cache == nil {
		return
	}
	b, _ := json.Marshal(cachedStatus{
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		BuyerID:       o.BuyerID,
		SellerID:      o.SellerID,
		UpdatedAt:     o.UpdatedAt.UTC(),
	})
	h.Cache.SetStatus(ctx, o.ID, b)
}

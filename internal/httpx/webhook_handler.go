package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Anezz12/gomealsaver-v2-sub001/internal/orders"
)

// WebhookHandler receives gateway payment notifications. The endpoint is
// unauthenticated; trust comes from the payload signature, which the engine
// verifies before any state change.
type WebhookHandler struct {
	Service OrderService
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/payments/notifications", h.notify)
}

func (h *WebhookHandler) notify(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Service.ApplyWebhook(ctx, raw)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"order_id":       o.ID,
			"status":         o.Status,
			"payment_status": o.PaymentStatus,
		})
	case errors.Is(err, orders.ErrInvalidSignature):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid signature"})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown order"})
	default:
		writeErr(w, err)
	}
}

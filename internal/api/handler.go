// Package api exposes the storefront HTTP endpoints: order intake,
// payment-status updates, the payment-gateway webhook, and checkout
// configuration for the frontend.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mueblesmartek/martek-sub001/internal/domain/order"
)

// OrderService is the domain surface the handlers depend on.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	UpdatePayment(ctx context.Context, update order.PaymentUpdate) (*order.Order, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// WebhookSecret is the shared HMAC key for verifying gateway webhook
	// signatures. Webhooks are rejected when it is empty.
	WebhookSecret string

	// SyncAPIKey authorizes server-to-server payment-status updates.
	SyncAPIKey string

	// GatewayPublicKey is handed to the frontend for tokenizing card data.
	GatewayPublicKey string

	// MaxBodyBytes caps the accepted request body size. Zero means the
	// default of 1 MiB.
	MaxBodyBytes int64
}

// Handler implements the storefront API, delegating business logic to the
// injected order service.
type Handler struct {
	orders OrderService
	cfg    Config
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(orders OrderService, cfg Config) *Handler {
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{orders: orders, cfg: cfg}
}

// Routes mounts the API endpoints on a fresh chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/api/orders/create", h.createOrder)
	r.Post("/api/orders/update-payment", h.updatePayment)
	r.Post("/api/webhooks/payment", h.paymentWebhook)
	r.Get("/api/checkout/config", h.checkoutConfig)
	return r
}

// checkoutConfig returns the public configuration the checkout page needs.
func (h *Handler) checkoutConfig(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]string{
		"gateway_public_key": h.cfg.GatewayPublicKey,
	})
}

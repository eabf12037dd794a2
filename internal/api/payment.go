package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mueblesmartek/martek-sub001/internal/domain/order"
)

// authorizeSync checks the X-API-Key header against the configured sync key
// in constant time. An unset key disables the endpoint entirely.
func (h *Handler) authorizeSync(r *http.Request) bool {
	if h.cfg.SyncAPIKey == "" {
		return false
	}
	got := r.Header.Get("X-API-Key")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.SyncAPIKey)) == 1
}

// updatePayment transitions an order's payment status. Called by the payment
// gateway integration after a charge settles, fails, or is refunded.
func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	if !h.authorizeSync(r) {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid or missing API key")
		return
	}

	var update order.PaymentUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidData, "malformed JSON body")
		return
	}

	o, err := h.orders.UpdatePayment(ctx, update)
	if err != nil {
		var vErr *order.ValidationError
		if errors.As(err, &vErr) {
			respondValidation(w, vErr.Errors)
			return
		}
		// A missing order is not distinguished from any other persistence
		// failure; both surface as a database error with the underlying
		// message.
		lg.Error("update payment status", zap.Error(err))
		respondError(w, http.StatusInternalServerError, CodeDatabaseError, err.Error())
		return
	}

	lg.Info("payment status updated",
		zap.String("order_id", o.ID),
		zap.String("payment_status", string(o.PaymentStatus)),
	)

	respondMessage(w, http.StatusOK, "payment status updated", o)
}

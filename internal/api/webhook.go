package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mueblesmartek/martek-sub001/internal/domain/order"
)

// signatureHeader carries the hex-encoded HMAC-SHA256 of the raw body.
const signatureHeader = "X-Webhook-Signature"

// paymentWebhook receives payment events from the gateway. The signature is
// verified before the body is interpreted; unsigned or mis-signed deliveries
// are rejected outright.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidData, "unreadable request body")
		return
	}

	if !h.verifySignature(raw, r.Header.Get(signatureHeader)) {
		lg.Warn("webhook signature rejected", zap.Int("body_bytes", len(raw)))
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid webhook signature")
		return
	}

	event, err := decodeWebhookEvent(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidData, "malformed webhook payload")
		return
	}

	lg.Info("webhook received",
		zap.String("event", event.Type),
		zap.String("order_id", event.OrderID),
	)

	if status, ok := paymentStatusForEvent(event.Type); ok && event.OrderID != "" {
		_, err := h.orders.UpdatePayment(ctx, order.PaymentUpdate{
			OrderID:          event.OrderID,
			PaymentStatus:    status,
			PaymentReference: event.Reference,
			TransactionData:  raw,
		})
		if err != nil {
			// The delivery is acknowledged regardless: the gateway retries on
			// non-2xx, and a permanently failing update would retry forever.
			lg.Error("apply webhook payment update",
				zap.String("order_id", event.OrderID),
				zap.Error(err),
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// verifySignature compares the provided hex signature against the HMAC-SHA256
// of the raw body in constant time. Verification never succeeds without a
// configured secret.
func (h *Handler) verifySignature(raw []byte, provided string) bool {
	if h.cfg.WebhookSecret == "" || provided == "" {
		return false
	}

	providedBytes, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.cfg.WebhookSecret))
	mac.Write(raw)
	return subtle.ConstantTimeCompare(mac.Sum(nil), providedBytes) == 1
}

// webhookEvent is the subset of the gateway payload the relay acts on.
type webhookEvent struct {
	Type      string
	OrderID   string
	Reference string
}

// decodeWebhookEvent pulls the event type, order id, and transaction
// reference out of the payload without decoding the rest.
func decodeWebhookEvent(raw []byte) (webhookEvent, error) {
	var event webhookEvent
	d := jx.DecodeBytes(raw)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type", "event":
			v, err := d.Str()
			if err != nil {
				return err
			}
			event.Type = v
			return nil
		case "order_id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			event.OrderID = v
			return nil
		case "reference", "transaction_id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			event.Reference = v
			return nil
		default:
			return d.Skip()
		}
	})
	return event, err
}

// paymentStatusForEvent maps gateway event types to payment states. Unknown
// events are logged and acknowledged without touching any order.
func paymentStatusForEvent(eventType string) (order.PaymentStatus, bool) {
	switch eventType {
	case "payment.completed", "charge.succeeded":
		return order.PaymentCompleted, true
	case "payment.failed", "charge.failed":
		return order.PaymentFailed, true
	case "payment.refunded", "charge.refunded":
		return order.PaymentRefunded, true
	}
	return "", false
}

package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mueblesmartek/martek-sub001/internal/domain/order"
	"github.com/mueblesmartek/martek-sub001/internal/intake"
)

// createdOrder is the payload returned to the storefront after intake.
type createdOrder struct {
	ID            string              `json:"id"`
	OrderNumber   string              `json:"order_number"`
	Total         json.Number         `json:"total"`
	Status        order.Status        `json:"status"`
	PaymentStatus order.PaymentStatus `json:"payment_status"`
	CreatedAt     string              `json:"created_at"`
}

// createOrder accepts an order submission as raw JSON or as a multipart form
// whose "data" part carries the JSON, validates it, and persists the order.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidData, "unreadable request body")
		return
	}

	body, err := intake.Parse(raw, r.Header.Get("Content-Type"))
	if err != nil {
		var pErr *intake.ParseError
		msg := "invalid request body"
		if errors.As(err, &pErr) {
			msg = pErr.Reason
		}
		lg.Info("rejected order intake", zap.String("reason", msg))
		respondError(w, http.StatusBadRequest, CodeInvalidData, msg)
		return
	}

	var req order.CreateRequest
	if err := json.Unmarshal(body.JSON, &req); err != nil {
		lg.Info("rejected order intake", zap.Error(err))
		respondError(w, http.StatusBadRequest, CodeInvalidData, "order payload does not match the expected shape")
		return
	}

	o, err := h.orders.Create(ctx, req)
	switch {
	case errors.Is(err, order.ErrNonPositiveTotal):
		respondValidation(w, []string{order.ErrNonPositiveTotal.Error()})
		return
	case err != nil:
		lg.Error("persist order", zap.Error(err))
		respondError(w, http.StatusInternalServerError, CodeDatabaseError, "could not save the order")
		return
	}

	lg.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Stringer("body_kind", body.Kind),
		zap.String("total", o.Total.String()),
	)

	respondData(w, http.StatusCreated, createdOrder{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Total:         json.Number(o.Total.String()),
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		CreatedAt:     o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

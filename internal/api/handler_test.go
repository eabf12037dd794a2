package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mueblesmartek/martek-sub001/internal/domain/order"
)

type mockOrderService struct {
	createFn func(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	updateFn func(ctx context.Context, update order.PaymentUpdate) (*order.Order, error)

	updates []order.PaymentUpdate
}

func (m *mockOrderService) Create(ctx context.Context, req order.CreateRequest) (*order.Order, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return nil, errors.New("unexpected Create call")
}

func (m *mockOrderService) UpdatePayment(ctx context.Context, update order.PaymentUpdate) (*order.Order, error) {
	m.updates = append(m.updates, update)
	if m.updateFn != nil {
		return m.updateFn(ctx, update)
	}
	return nil, errors.New("unexpected UpdatePayment call")
}

func testConfig() Config {
	return Config{
		WebhookSecret:    "whsec_test",
		SyncAPIKey:       "sync_test_key",
		GatewayPublicKey: "pk_test_123",
	}
}

func sampleOrder() *order.Order {
	return &order.Order{
		ID:            "11111111-2222-3333-4444-555555555555",
		OrderNumber:   "MTK123456A1B2",
		Total:         decimal.RequireFromString("100"),
		Subtotal:      decimal.RequireFromString("84"),
		Tax:           decimal.RequireFromString("16"),
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		CreatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func doRequest(t *testing.T, svc OrderService, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(svc, testConfig())
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateOrder_RawJSON(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(_ context.Context, req order.CreateRequest) (*order.Order, error) {
			assert.Equal(t, "100", req.Total.String())
			return sampleOrder(), nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/orders/create",
		strings.NewReader(`{"total": 100, "payment_method": "card"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(t, svc, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "MTK123456A1B2", data["order_number"])
	assert.Equal(t, "pending", data["payment_status"])
}

func TestCreateOrder_MultipartBody(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(_ context.Context, req order.CreateRequest) (*order.Order, error) {
			assert.Equal(t, "150", req.Total.String())
			return sampleOrder(), nil
		},
	}

	raw := "--b\r\n" +
		"Content-Disposition: form-data; name=\"data\"\r\n" +
		"\r\n" +
		`{"total": 150, "payment_method": "card"}` + "\r\n" +
		"--b--\r\n"

	req := httptest.NewRequest(http.MethodPost, "/api/orders/create", strings.NewReader(raw))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")

	rec := doRequest(t, svc, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateOrder_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders/create", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(t, &mockOrderService{}, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, CodeInvalidData, body["code"])
}

func TestCreateOrder_NonPositiveTotal(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(_ context.Context, _ order.CreateRequest) (*order.Order, error) {
			return nil, order.ErrNonPositiveTotal
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/orders/create",
		strings.NewReader(`{"total": -5}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(t, svc, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, CodeValidationError, body["code"])
	assert.Contains(t, body["validation_errors"], "total must be a positive number")
}

func TestCreateOrder_DatabaseError(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(_ context.Context, _ order.CreateRequest) (*order.Order, error) {
			return nil, errors.New("connection refused")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/orders/create",
		strings.NewReader(`{"total": 100}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(t, svc, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeDatabaseError, decodeBody(t, rec)["code"])
}

func TestUpdatePayment_RequiresAPIKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders/update-payment",
		strings.NewReader(`{"order_id": "o1", "payment_status": "completed"}`))

	rec := doRequest(t, &mockOrderService{}, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdatePayment_InvalidStatus(t *testing.T) {
	svc := &mockOrderService{
		updateFn: func(_ context.Context, _ order.PaymentUpdate) (*order.Order, error) {
			return nil, &order.ValidationError{Errors: []string{`invalid payment status: "paid"`}}
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/orders/update-payment",
		strings.NewReader(`{"order_id": "o1", "payment_status": "paid"}`))
	req.Header.Set("X-API-Key", "sync_test_key")

	rec := doRequest(t, svc, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, CodeValidationError, body["code"])
	assert.Contains(t, body["validation_errors"], `invalid payment status: "paid"`)
}

func TestUpdatePayment_MissingOrder(t *testing.T) {
	// A missing order is not distinguished from other persistence failures:
	// both come back as a database error carrying the underlying message.
	svc := &mockOrderService{
		updateFn: func(_ context.Context, _ order.PaymentUpdate) (*order.Order, error) {
			return nil, errors.Wrap(order.ErrNotFound, "order \"missing\"")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/orders/update-payment",
		strings.NewReader(`{"order_id": "missing", "payment_status": "completed"}`))
	req.Header.Set("X-API-Key", "sync_test_key")

	rec := doRequest(t, svc, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, CodeDatabaseError, body["code"])
	assert.Contains(t, body["error"], "order not found")
}

func TestUpdatePayment_Success(t *testing.T) {
	updated := sampleOrder()
	updated.PaymentStatus = order.PaymentCompleted

	svc := &mockOrderService{
		updateFn: func(_ context.Context, u order.PaymentUpdate) (*order.Order, error) {
			assert.Equal(t, order.PaymentCompleted, u.PaymentStatus)
			return updated, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/orders/update-payment",
		strings.NewReader(`{"order_id": "o1", "payment_status": "completed", "payment_reference": "txn_9"}`))
	req.Header.Set("X-API-Key", "sync_test_key")

	rec := doRequest(t, svc, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])

	// The full updated order record comes back, not a summary.
	data := body["data"].(map[string]any)
	assert.Equal(t, "completed", data["payment_status"])
	assert.Equal(t, updated.ID, data["id"])
	assert.Equal(t, "MTK123456A1B2", data["order_number"])
	assert.Equal(t, "pending", data["status"])
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaymentWebhook_ValidSignature(t *testing.T) {
	svc := &mockOrderService{
		updateFn: func(_ context.Context, u order.PaymentUpdate) (*order.Order, error) {
			o := sampleOrder()
			o.PaymentStatus = u.PaymentStatus
			return o, nil
		},
	}

	payload := []byte(`{"type": "payment.completed", "order_id": "o1", "reference": "txn_9"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", strings.NewReader(string(payload)))
	req.Header.Set(signatureHeader, signBody("whsec_test", payload))

	rec := doRequest(t, svc, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received": true}`, rec.Body.String())

	require.Len(t, svc.updates, 1)
	assert.Equal(t, order.PaymentCompleted, svc.updates[0].PaymentStatus)
	assert.Equal(t, "txn_9", svc.updates[0].PaymentReference)
}

func TestPaymentWebhook_BadSignature(t *testing.T) {
	payload := `{"type": "payment.completed", "order_id": "o1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", strings.NewReader(payload))
	req.Header.Set(signatureHeader, signBody("wrong-secret", []byte(payload)))

	svc := &mockOrderService{}
	rec := doRequest(t, svc, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.updates)
}

func TestPaymentWebhook_MissingSignature(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment",
		strings.NewReader(`{"type": "payment.completed"}`))

	rec := doRequest(t, &mockOrderService{}, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPaymentWebhook_UnknownEventAcknowledged(t *testing.T) {
	payload := []byte(`{"type": "customer.created", "order_id": "o1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", strings.NewReader(string(payload)))
	req.Header.Set(signatureHeader, signBody("whsec_test", payload))

	svc := &mockOrderService{}
	rec := doRequest(t, svc, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.updates, "unknown events must not touch orders")
}

func TestCheckoutConfig(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/checkout/config", nil)
	rec := doRequest(t, &mockOrderService{}, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "pk_test_123", data["gateway_public_key"])
}

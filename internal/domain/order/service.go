package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNonPositiveTotal indicates an intake payload whose computed total is not
// a positive number.
var ErrNonPositiveTotal = errors.New("total must be a positive number")

// ErrNotFound indicates the referenced order does not exist.
var ErrNotFound = errors.New("order not found")

// ValidationError carries the field-level messages for a rejected
// payment-status update.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// CreateRequest is the normalized order-intake payload. Subtotal and Tax may
// be zero, in which case the service derives them from Total.
type CreateRequest struct {
	Total           decimal.Decimal `json:"total"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	ShippingAddress Address         `json:"shipping_address"`
	BillingAddress  Address         `json:"billing_address"`
	Items           []Item          `json:"items"`
	PaymentMethod   string          `json:"payment_method"`
}

// ServiceConfig holds the tunable order-creation policy.
type ServiceConfig struct {
	// TaxRate is the fraction of the total attributed to tax when the payload
	// does not carry its own subtotal/tax breakdown. Placeholder policy until
	// real tax rules exist; the 0.16 default reproduces the historic 84/16
	// split.
	TaxRate decimal.Decimal

	// NumberPrefix is prepended to generated order numbers.
	NumberPrefix string
}

// Service encapsulates order creation and payment-status transitions.
type Service struct {
	orders       Repository
	taxRate      decimal.Decimal
	numberPrefix string

	now        func() time.Time
	randSuffix func() string
}

// NewService creates a Service using the given repository and policy.
func NewService(orders Repository, cfg ServiceConfig) *Service {
	taxRate := cfg.TaxRate
	if taxRate.IsZero() {
		taxRate = decimal.RequireFromString("0.16")
	}
	prefix := cfg.NumberPrefix
	if prefix == "" {
		prefix = "MTK"
	}
	return &Service{
		orders:       orders,
		taxRate:      taxRate,
		numberPrefix: prefix,
		now:          time.Now,
		randSuffix:   randBase36,
	}
}

// Create validates and normalizes the intake payload, generates an order
// number, and persists the order with pending status and payment status.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if !req.Total.IsPositive() {
		return nil, ErrNonPositiveTotal
	}

	subtotal := req.Subtotal
	tax := req.Tax
	if subtotal.IsZero() && tax.IsZero() {
		subtotal = req.Total.Mul(decimal.NewFromInt(1).Sub(s.taxRate)).Round(2)
		tax = req.Total.Sub(subtotal)
	}

	now := s.now()
	o := &Order{
		ID:              uuid.New().String(),
		OrderNumber:     s.newOrderNumber(now),
		Total:           req.Total.Round(2),
		Subtotal:        subtotal,
		Tax:             tax,
		ShippingCost:    decimal.Zero,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Items:           req.Items,
		PaymentMethod:   req.PaymentMethod,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// ValidatePaymentUpdate returns the list of validation failures for a
// payment-status update, or an empty slice when the update is acceptable.
func ValidatePaymentUpdate(u PaymentUpdate) []string {
	var errs []string
	if strings.TrimSpace(u.OrderID) == "" {
		errs = append(errs, "order_id is required")
	}
	if !u.PaymentStatus.Valid() {
		errs = append(errs, fmt.Sprintf("invalid payment status: %q", u.PaymentStatus))
	}
	return errs
}

// UpdatePayment applies a payment-status transition to an existing order and
// returns the updated record.
func (s *Service) UpdatePayment(ctx context.Context, u PaymentUpdate) (*Order, error) {
	if errs := ValidatePaymentUpdate(u); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	o, err := s.orders.UpdatePayment(ctx, u)
	if err != nil {
		return nil, errors.Wrapf(err, "update payment for order %s", u.OrderID)
	}
	return o, nil
}

// newOrderNumber fabricates a unique human-readable order number: the prefix,
// the low-order digits of the current timestamp, and a short random suffix.
func (s *Service) newOrderNumber(now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ts) > 6 {
		ts = ts[len(ts)-6:]
	}
	return s.numberPrefix + ts + s.randSuffix()
}

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randBase36() string {
	b := make([]byte, 4)
	for i := range b {
		b[i] = base36[rand.IntN(len(base36))]
	}
	return string(b)
}

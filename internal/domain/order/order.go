package order

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus is the payment state of an order. It is set to
// PaymentPending at creation and afterwards mutated only through
// payment-status updates.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Valid reports whether s is one of the known payment states.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// Address holds a shipping or billing address as collected by the checkout
// form. All fields are optional at this layer; the form enforces its own
// required-field rules before submission.
type Address struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	Apartment  string `json:"apartment,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Item is a single product line in an order.
type Item struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

// Order is a persisted customer order.
type Order struct {
	ID               string          `json:"id"`
	OrderNumber      string          `json:"order_number"`
	Total            decimal.Decimal `json:"total"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Tax              decimal.Decimal `json:"tax"`
	ShippingCost     decimal.Decimal `json:"shipping_cost"`
	ShippingAddress  Address         `json:"shipping_address"`
	BillingAddress   Address         `json:"billing_address"`
	Items            []Item          `json:"items"`
	PaymentMethod    string          `json:"payment_method"`
	Status           Status          `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	TransactionData  json.RawMessage `json:"transaction_data,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PaymentUpdate carries a payment-status transition for an existing order.
type PaymentUpdate struct {
	OrderID          string          `json:"order_id"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	TransactionData  json.RawMessage `json:"transaction_data,omitempty"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	UpdatePayment(ctx context.Context, update PaymentUpdate) (*Order, error)
}

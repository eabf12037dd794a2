package repository

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mueblesmartek/martek-sub001/internal/domain/order"
)

const createOrderSQL = `INSERT INTO orders (
		id, order_number, total, subtotal, tax, shipping_cost,
		shipping_address, billing_address, items, payment_method,
		status, payment_status, payment_reference, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

const updatePaymentSQL = `UPDATE orders SET
		payment_status = $2,
		payment_reference = CASE WHEN $3 <> '' THEN $3 ELSE payment_reference END,
		transaction_data = COALESCE($4, transaction_data),
		updated_at = now()
	WHERE id = $1
	RETURNING id, order_number, total, subtotal, tax, shipping_cost,
		shipping_address, billing_address, items, payment_method,
		status, payment_status, payment_reference, transaction_data,
		created_at, updated_at`

const listSettledSQL = `SELECT order_number, payment_reference FROM orders
	WHERE payment_status = 'completed' AND payment_reference <> ''`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Addresses and items are serialized to JSON
// for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "marshal shipping address")
	}
	billing, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return errors.Wrap(err, "marshal billing address")
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OrderNumber, o.Total, o.Subtotal, o.Tax, o.ShippingCost,
		shipping, billing, items, o.PaymentMethod,
		o.Status, o.PaymentStatus, o.PaymentReference,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %q", o.OrderNumber)
	}
	return nil
}

// UpdatePayment applies a payment-status transition to the matching order
// and returns the updated record. An empty payment reference leaves the
// stored one untouched.
func (r *OrderRepository) UpdatePayment(ctx context.Context, u order.PaymentUpdate) (*order.Order, error) {
	var txData []byte
	if len(u.TransactionData) > 0 {
		txData = u.TransactionData
	}

	row := r.pool.QueryRow(ctx, updatePaymentSQL,
		u.OrderID, u.PaymentStatus, u.PaymentReference, txData,
	)

	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(order.ErrNotFound, "order %q", u.OrderID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "update payment for order %q", u.OrderID)
	}
	return o, nil
}

// SettledRef pairs an order number with its gateway payment reference.
type SettledRef struct {
	OrderNumber      string
	PaymentReference string
}

// ListSettledReferences returns the order-number/payment-reference pairs of
// all orders whose payment completed. Used by the settlement reconciler.
func (r *OrderRepository) ListSettledReferences(ctx context.Context) ([]SettledRef, error) {
	rows, err := r.pool.Query(ctx, listSettledSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list settled references")
	}
	defer rows.Close()

	var refs []SettledRef
	for rows.Next() {
		var ref SettledRef
		if err := rows.Scan(&ref.OrderNumber, &ref.PaymentReference); err != nil {
			return nil, errors.Wrap(err, "scan settled reference")
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// scanOrder reads one full order row.
func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o        order.Order
		shipping []byte
		billing  []byte
		items    []byte
		txData   []byte
	)

	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.Total, &o.Subtotal, &o.Tax, &o.ShippingCost,
		&shipping, &billing, &items, &o.PaymentMethod,
		&o.Status, &o.PaymentStatus, &o.PaymentReference, &txData,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return nil, errors.Wrap(err, "unmarshal shipping address")
	}
	if err := json.Unmarshal(billing, &o.BillingAddress); err != nil {
		return nil, errors.Wrap(err, "unmarshal billing address")
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal order items")
	}
	if len(txData) > 0 {
		o.TransactionData = txData
	}
	return &o, nil
}

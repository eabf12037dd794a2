// Package cart implements the session shopping cart: a validated list of
// line items persisted to a keyed storage slot, with change events fanned out
// over an in-process bus and, for shared backends, over the storage layer's
// own change feed.
package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// SlotKey is the storage slot under which the cart item array is persisted.
const SlotKey = "martek-cart"

// Item is one product line in the cart, carrying cached display attributes
// so the cart can render without a catalog lookup.
type Item struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"product_id"`
	ProductName     string          `json:"product_name"`
	ProductPrice    decimal.Decimal `json:"product_price"`
	Quantity        int             `json:"quantity"`
	ProductImage    string          `json:"product_image,omitempty"`
	ProductCategory string          `json:"product_category,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Valid reports whether the item passes the structural validator: non-empty
// identifiers and name, non-negative price, positive quantity.
func (it Item) Valid() bool {
	return it.ID != "" &&
		it.ProductID != "" &&
		it.ProductName != "" &&
		!it.ProductPrice.IsNegative() &&
		it.Quantity > 0
}

// ProductData is the input for adding a product to the cart.
type ProductData struct {
	ProductID       string          `json:"product_id"`
	ProductName     string          `json:"product_name"`
	ProductPrice    decimal.Decimal `json:"product_price"`
	Quantity        int             `json:"quantity"`
	ProductImage    string          `json:"product_image,omitempty"`
	ProductCategory string          `json:"product_category,omitempty"`
}

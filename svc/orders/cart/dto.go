package cart

import (
	"github.com/shopspring/decimal"

	"github.com/loft-dughairi/storefront/pkg/errs"
	"github.com/loft-dughairi/storefront/pkg/moneysar"
)

// AddItemRequest is the body of POST /cart-items
type AddItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Validate checks the request before it is sent
func (req *AddItemRequest) Validate() error {
	if req.ProductID <= 0 {
		return errs.Validation("Invalid product")
	}
	if req.Quantity <= 0 {
		return errs.Validation("Quantity must be at least 1")
	}
	return nil
}

// UpdateItemRequest is the body of PUT /cart-items/{id}
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// Validate checks the request before it is sent
func (req *UpdateItemRequest) Validate() error {
	if req.Quantity <= 0 {
		return errs.Validation("Quantity must be at least 1")
	}
	return nil
}

// CartItem is one cart line. ID is 0 for a line added locally and not yet confirmed.
type CartItem struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"productId"`
	Title     string          `json:"productName,omitempty"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Cart is the session cart with its aggregates
type Cart struct {
	Items      []CartItem      `json:"items"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// Empty returns a cart with no lines
func Empty() Cart {
	return Cart{Items: []CartItem{}, TotalPrice: decimal.Zero}
}

// Clone deep-copies the cart
func (c Cart) Clone() Cart {
	out := c
	out.Items = append([]CartItem{}, c.Items...)
	return out
}

// Recompute refreshes line subtotals and cart aggregates from the lines
func (c *Cart) Recompute() {
	c.TotalItems = 0
	c.TotalPrice = decimal.Zero
	for i := range c.Items {
		it := &c.Items[i]
		it.Subtotal = moneysar.LineTotal(it.UnitPrice, it.Quantity)
		c.TotalItems += it.Quantity
		c.TotalPrice = c.TotalPrice.Add(it.Subtotal)
	}
}

// Find returns the index of the line with itemID
func (c Cart) Find(itemID int64) int {
	for i, it := range c.Items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// FindProduct returns the index of the line holding productID
func (c Cart) FindProduct(productID int64) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

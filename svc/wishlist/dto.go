package wishlist

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/loft-dughairi/storefront/pkg/errs"
)

// AddItemRequest is the body of POST /wishlist-items
type AddItemRequest struct {
	ProductID int64 `json:"productId"`
}

// Validate checks the request before it is sent
func (req *AddItemRequest) Validate() error {
	if req.ProductID <= 0 {
		return errs.Validation("Invalid product")
	}
	return nil
}

// Item is a saved product with the snapshot fields shown in the list.
// ID is 0 until the backend confirms the entry.
type Item struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"productId"`
	Title     string          `json:"productName,omitempty"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	InStock   bool            `json:"inStock"`
	AddedAt   *time.Time      `json:"addedAt,omitempty"`
}

// Wishlist is the session wishlist
type Wishlist struct {
	Items      []Item `json:"items"`
	TotalItems int    `json:"totalItems"`
}

// Empty returns a wishlist without entries
func Empty() Wishlist {
	return Wishlist{Items: []Item{}}
}

// Clone deep-copies the wishlist
func (w Wishlist) Clone() Wishlist {
	out := w
	out.Items = append([]Item{}, w.Items...)
	return out
}

// Recompute refreshes the aggregate count
func (w *Wishlist) Recompute() {
	w.TotalItems = len(w.Items)
}

// Find returns the index of the entry with itemID
func (w Wishlist) Find(itemID int64) int {
	for i, it := range w.Items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// FindProduct returns the index of the entry holding productID
func (w Wishlist) FindProduct(productID int64) int {
	for i, it := range w.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

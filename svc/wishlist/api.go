package wishlist

import (
	"context"
	"net/http"

	"github.com/loft-dughairi/storefront/pkg/httpx"
)

// API wraps the wishlist endpoints of the storefront backend
type API struct {
	client *httpx.Client
}

// NewAPI creates the wishlist endpoint wrapper
func NewAPI(client *httpx.Client) *API {
	return &API{client: client}
}

// GetWishlist reads the canonical wishlist. A payload without items decodes as empty.
func (a *API) GetWishlist(ctx context.Context) (*Wishlist, error) {
	var w Wishlist
	if err := a.client.Do(ctx, httpx.Request{Method: http.MethodGet, Route: "/wishlist", Path: "/wishlist"}, &w); err != nil {
		return nil, err
	}
	if w.Items == nil {
		empty := Empty()
		return &empty, nil
	}
	w.Recompute()
	return &w, nil
}

// AddItem saves a product
func (a *API) AddItem(ctx context.Context, productID int64) (*Item, error) {
	req := AddItemRequest{ProductID: productID}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var it Item
	err := a.client.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		Route:  "/wishlist-items",
		Path:   "/wishlist-items",
		Body:   req,
	}, &it)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// RemoveItem deletes a saved entry
func (a *API) RemoveItem(ctx context.Context, itemID int64) error {
	return a.client.Do(ctx, httpx.Request{
		Method: http.MethodDelete,
		Route:  "/wishlist-items/{id}",
		Path:   "/wishlist-items/" + httpx.PathID(itemID),
	}, nil)
}

// MoveToCart moves a saved entry into the cart server side
func (a *API) MoveToCart(ctx context.Context, itemID int64) error {
	return a.client.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		Route:  "/wishlist-items/{id}/move-to-cart",
		Path:   "/wishlist-items/" + httpx.PathID(itemID) + "/move-to-cart",
	}, nil)
}

// Clear removes every saved entry
func (a *API) Clear(ctx context.Context) error {
	return a.client.Do(ctx, httpx.Request{Method: http.MethodDelete, Route: "/wishlist", Path: "/wishlist"}, nil)
}

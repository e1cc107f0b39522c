package cart

import (
	"context"
	"net/http"

	"github.com/loft-dughairi/storefront/pkg/httpx"
)

// API wraps the cart endpoints of the storefront backend
type API struct {
	client *httpx.Client
}

// NewAPI creates the cart endpoint wrapper
func NewAPI(client *httpx.Client) *API {
	return &API{client: client}
}

// GetCart reads the canonical cart. A payload without items decodes as empty;
// totals are always recomputed from the lines.
func (a *API) GetCart(ctx context.Context) (*Cart, error) {
	var c Cart
	if err := a.client.Do(ctx, httpx.Request{Method: http.MethodGet, Route: "/cart", Path: "/cart"}, &c); err != nil {
		return nil, err
	}
	if c.Items == nil {
		empty := Empty()
		return &empty, nil
	}
	c.Recompute()
	return &c, nil
}

// AddItem adds quantity of a product, merging with an existing line server side
func (a *API) AddItem(ctx context.Context, productID int64, quantity int) (*CartItem, error) {
	req := AddItemRequest{ProductID: productID, Quantity: quantity}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var item CartItem
	err := a.client.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		Route:  "/cart-items",
		Path:   "/cart-items",
		Body:   req,
	}, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItem sets the quantity of a cart line
func (a *API) UpdateItem(ctx context.Context, itemID int64, quantity int) (*CartItem, error) {
	req := UpdateItemRequest{Quantity: quantity}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var item CartItem
	err := a.client.Do(ctx, httpx.Request{
		Method: http.MethodPut,
		Route:  "/cart-items/{id}",
		Path:   "/cart-items/" + httpx.PathID(itemID),
		Body:   req,
	}, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// RemoveItem deletes a cart line
func (a *API) RemoveItem(ctx context.Context, itemID int64) error {
	return a.client.Do(ctx, httpx.Request{
		Method: http.MethodDelete,
		Route:  "/cart-items/{id}",
		Path:   "/cart-items/" + httpx.PathID(itemID),
	}, nil)
}

// Clear empties the cart
func (a *API) Clear(ctx context.Context) error {
	return a.client.Do(ctx, httpx.Request{Method: http.MethodDelete, Route: "/cart", Path: "/cart"}, nil)
}

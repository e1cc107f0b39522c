// Package cart holds the session cart: the REST wrapper for the cart
// endpoints and the optimistic store built on it.
package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/loft-dughairi/storefront/pkg/errs"
	"github.com/loft-dughairi/storefront/pkg/logger"
	"github.com/loft-dughairi/storefront/pkg/notify"
	"github.com/loft-dughairi/storefront/pkg/optimistic"
)

// Collection names the cart in metrics, logs and notify topics
const Collection = "cart"

// Backend is the subset of the cart endpoints the store needs
type Backend interface {
	GetCart(ctx context.Context) (*Cart, error)
	AddItem(ctx context.Context, productID int64, quantity int) (*CartItem, error)
	UpdateItem(ctx context.Context, itemID int64, quantity int) (*CartItem, error)
	RemoveItem(ctx context.Context, itemID int64) error
	Clear(ctx context.Context) error
}

// Options configure a Store
type Options struct {
	Auth     optimistic.Authenticator
	Hub      *notify.Hub
	Logger   *logger.Logger
	Cooldown time.Duration
	ErrorTTL time.Duration
}

// Store is the session-scoped cart. Consumers read it through Snapshot and
// Subscribe; only its own methods write it.
type Store struct {
	api Backend
	ctl *optimistic.Controller[Cart]
}

// NewStore creates an empty cart store
func NewStore(api Backend, opts Options) *Store {
	return &Store{
		api: api,
		ctl: optimistic.New(optimistic.Options[Cart]{
			Name:     Collection,
			Fetch:    api.GetCart,
			Clone:    Cart.Clone,
			Empty:    Empty,
			Auth:     opts.Auth,
			Cooldown: opts.Cooldown,
			ErrorTTL: opts.ErrorTTL,
			Hub:      opts.Hub,
			Logger:   opts.Logger,
		}),
	}
}

// Snapshot returns the current cart state
func (s *Store) Snapshot() optimistic.State[Cart] { return s.ctl.Snapshot() }

// Count is the number of units in the cart, used by badges
func (s *Store) Count() int { return s.ctl.Snapshot().Value.TotalItems }

// Subscribe registers fn for every cart state replacement
func (s *Store) Subscribe(fn func(optimistic.State[Cart])) func() { return s.ctl.Subscribe(fn) }

// Fetch loads the cart unless a load is in flight or just completed
func (s *Store) Fetch(ctx context.Context) error { return s.ctl.Fetch(ctx) }

// Refresh always reloads the cart
func (s *Store) Refresh(ctx context.Context) error { return s.ctl.Refresh(ctx) }

// Reset empties the cart, used on logout
func (s *Store) Reset() { s.ctl.Reset() }

// ClearError drops the current error string
func (s *Store) ClearError() { s.ctl.ClearError() }

// Close releases the store's timers
func (s *Store) Close() { s.ctl.Close() }

// AddItem adds quantity of productID. An existing line is bumped, otherwise a
// pending line is shown until the following canonical fetch brings the
// backend-priced line.
func (s *Store) AddItem(ctx context.Context, productID int64, quantity int) error {
	req := AddItemRequest{ProductID: productID, Quantity: quantity}
	return s.ctl.Mutate(ctx, optimistic.Mutation[Cart]{
		Op: "add",
		Local: func(c Cart) (Cart, error) {
			if err := req.Validate(); err != nil {
				return c, err
			}
			if i := c.FindProduct(productID); i >= 0 {
				c.Items[i].Quantity += quantity
			} else {
				c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity, UnitPrice: decimal.Zero})
			}
			c.Recompute()
			return c, nil
		},
		Remote: func(ctx context.Context) (*Cart, error) {
			_, err := s.api.AddItem(ctx, productID, quantity)
			return nil, err
		},
		Refetch:        true,
		FailureMessage: "Failed to add item to cart",
	})
}

// UpdateQuantity sets the quantity of a loaded line
func (s *Store) UpdateQuantity(ctx context.Context, itemID int64, quantity int) error {
	req := UpdateItemRequest{Quantity: quantity}
	return s.ctl.Mutate(ctx, optimistic.Mutation[Cart]{
		Op: "update",
		Local: func(c Cart) (Cart, error) {
			if err := req.Validate(); err != nil {
				return c, err
			}
			i, err := loadedLine(c, itemID)
			if err != nil {
				return c, err
			}
			c.Items[i].Quantity = quantity
			c.Recompute()
			return c, nil
		},
		Remote: func(ctx context.Context) (*Cart, error) {
			_, err := s.api.UpdateItem(ctx, itemID, quantity)
			return nil, err
		},
		FailureMessage: "Failed to update cart",
	})
}

// IncreaseQuantity adds one unit to a loaded line. Stock limits are left to the backend.
func (s *Store) IncreaseQuantity(ctx context.Context, itemID int64) error {
	return s.step(ctx, itemID, +1)
}

// DecreaseQuantity removes one unit from a loaded line. A line at quantity 1
// is removed instead; a zero quantity is never sent. The choice is made
// against the value the mutation applies to.
func (s *Store) DecreaseQuantity(ctx context.Context, itemID int64) error {
	var next int
	var remove bool
	return s.ctl.Mutate(ctx, optimistic.Mutation[Cart]{
		Op: "decrease",
		Local: func(c Cart) (Cart, error) {
			i, err := loadedLine(c, itemID)
			if err != nil {
				return c, err
			}
			next = c.Items[i].Quantity - 1
			if next < 1 {
				remove = true
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
			} else {
				c.Items[i].Quantity = next
			}
			c.Recompute()
			return c, nil
		},
		Remote: func(ctx context.Context) (*Cart, error) {
			if remove {
				return nil, s.api.RemoveItem(ctx, itemID)
			}
			_, err := s.api.UpdateItem(ctx, itemID, next)
			return nil, err
		},
		FailureMessage: "Failed to update cart",
	})
}

func (s *Store) step(ctx context.Context, itemID int64, delta int) error {
	var next int
	return s.ctl.Mutate(ctx, optimistic.Mutation[Cart]{
		Op: "increase",
		Local: func(c Cart) (Cart, error) {
			i, err := loadedLine(c, itemID)
			if err != nil {
				return c, err
			}
			next = c.Items[i].Quantity + delta
			c.Items[i].Quantity = next
			c.Recompute()
			return c, nil
		},
		Remote: func(ctx context.Context) (*Cart, error) {
			_, err := s.api.UpdateItem(ctx, itemID, next)
			return nil, err
		},
		FailureMessage: "Failed to update cart",
	})
}

// RemoveItem deletes a loaded line
func (s *Store) RemoveItem(ctx context.Context, itemID int64) error {
	return s.ctl.Mutate(ctx, optimistic.Mutation[Cart]{
		Op: "remove",
		Local: func(c Cart) (Cart, error) {
			i, err := loadedLine(c, itemID)
			if err != nil {
				return c, err
			}
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.Recompute()
			return c, nil
		},
		Remote: func(ctx context.Context) (*Cart, error) {
			return nil, s.api.RemoveItem(ctx, itemID)
		},
		FailureMessage: "Failed to remove item",
	})
}

// Clear empties the cart
func (s *Store) Clear(ctx context.Context) error {
	return s.ctl.Mutate(ctx, optimistic.Mutation[Cart]{
		Op:    "clear",
		Local: func(Cart) (Cart, error) { return Empty(), nil },
		Remote: func(ctx context.Context) (*Cart, error) {
			return nil, s.api.Clear(ctx)
		},
		FailureMessage: "Failed to clear cart",
	})
}

// loadedLine finds a confirmed line; pending lines (ID 0) cannot be edited yet
func loadedLine(c Cart, itemID int64) (int, error) {
	if itemID <= 0 {
		return -1, errs.Validation("Invalid cart item")
	}
	i := c.Find(itemID)
	if i < 0 {
		return -1, errs.Validation("Item is not in the cart")
	}
	return i, nil
}

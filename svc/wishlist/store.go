// Package wishlist holds the session wishlist and its optimistic store.
package wishlist

import (
	"context"
	"time"

	"github.com/loft-dughairi/storefront/pkg/errs"
	"github.com/loft-dughairi/storefront/pkg/logger"
	"github.com/loft-dughairi/storefront/pkg/notify"
	"github.com/loft-dughairi/storefront/pkg/optimistic"
)

// Collection names the wishlist in metrics, logs and notify topics
const Collection = "wishlist"

// Backend is the subset of the wishlist endpoints the store needs
type Backend interface {
	GetWishlist(ctx context.Context) (*Wishlist, error)
	AddItem(ctx context.Context, productID int64) (*Item, error)
	RemoveItem(ctx context.Context, itemID int64) error
	MoveToCart(ctx context.Context, itemID int64) error
	Clear(ctx context.Context) error
}

// CartRefresher reloads the cart after an entry moved into it
type CartRefresher interface {
	Refresh(ctx context.Context) error
}

// Options configure a Store
type Options struct {
	Auth     optimistic.Authenticator
	Cart     CartRefresher
	Hub      *notify.Hub
	Logger   *logger.Logger
	Cooldown time.Duration
	ErrorTTL time.Duration
}

// Store is the session-scoped wishlist
type Store struct {
	api  Backend
	cart CartRefresher
	ctl  *optimistic.Controller[Wishlist]
	log  *logger.Logger
}

// NewStore creates an empty wishlist store
func NewStore(api Backend, opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Store{
		api:  api,
		cart: opts.Cart,
		log:  log.With(Collection),
		ctl: optimistic.New(optimistic.Options[Wishlist]{
			Name:     Collection,
			Fetch:    api.GetWishlist,
			Clone:    Wishlist.Clone,
			Empty:    Empty,
			Auth:     opts.Auth,
			Cooldown: opts.Cooldown,
			ErrorTTL: opts.ErrorTTL,
			Hub:      opts.Hub,
			Logger:   log,
		}),
	}
}

// Snapshot returns the current wishlist state
func (s *Store) Snapshot() optimistic.State[Wishlist] { return s.ctl.Snapshot() }

// Count is the number of saved products, used by badges
func (s *Store) Count() int { return s.ctl.Snapshot().Value.TotalItems }

// Subscribe registers fn for every wishlist state replacement
func (s *Store) Subscribe(fn func(optimistic.State[Wishlist])) func() { return s.ctl.Subscribe(fn) }

// Fetch loads the wishlist unless a load is in flight or just completed
func (s *Store) Fetch(ctx context.Context) error { return s.ctl.Fetch(ctx) }

// Refresh always reloads the wishlist
func (s *Store) Refresh(ctx context.Context) error { return s.ctl.Refresh(ctx) }

// Reset empties the wishlist, used on logout
func (s *Store) Reset() { s.ctl.Reset() }

// ClearError drops the current error string
func (s *Store) ClearError() { s.ctl.ClearError() }

// Close releases the store's timers
func (s *Store) Close() { s.ctl.Close() }

// Contains reports whether productID is saved
func (s *Store) Contains(productID int64) bool {
	return s.ctl.Snapshot().Value.FindProduct(productID) >= 0
}

// Add saves productID. Saving a product twice is a no-op.
func (s *Store) Add(ctx context.Context, productID int64) error {
	if s.Contains(productID) {
		return nil
	}
	req := AddItemRequest{ProductID: productID}
	return s.ctl.Mutate(ctx, optimistic.Mutation[Wishlist]{
		Op: "add",
		Local: func(w Wishlist) (Wishlist, error) {
			if err := req.Validate(); err != nil {
				return w, err
			}
			if w.FindProduct(productID) < 0 {
				w.Items = append(w.Items, Item{ProductID: productID})
			}
			w.Recompute()
			return w, nil
		},
		Remote: func(ctx context.Context) (*Wishlist, error) {
			_, err := s.api.AddItem(ctx, productID)
			return nil, err
		},
		Refetch:        true,
		FailureMessage: "Failed to add to wishlist",
	})
}

// Remove deletes a saved entry
func (s *Store) Remove(ctx context.Context, itemID int64) error {
	return s.ctl.Mutate(ctx, optimistic.Mutation[Wishlist]{
		Op:    "remove",
		Local: removeEntry(itemID),
		Remote: func(ctx context.Context) (*Wishlist, error) {
			return nil, s.api.RemoveItem(ctx, itemID)
		},
		FailureMessage: "Failed to remove from wishlist",
	})
}

// MoveToCart removes the entry locally, asks the backend to move it, and
// reloads the cart once the move is confirmed.
func (s *Store) MoveToCart(ctx context.Context, itemID int64) error {
	err := s.ctl.Mutate(ctx, optimistic.Mutation[Wishlist]{
		Op:    "move_to_cart",
		Local: removeEntry(itemID),
		Remote: func(ctx context.Context) (*Wishlist, error) {
			return nil, s.api.MoveToCart(ctx, itemID)
		},
		FailureMessage: "Failed to move item to cart",
	})
	if err != nil {
		return err
	}
	if s.cart != nil {
		if cerr := s.cart.Refresh(ctx); cerr != nil {
			s.log.LogError(ctx, cerr, "cart refresh after move failed", logger.Fields{"item_id": itemID})
		}
	}
	return nil
}

// Clear removes every saved entry
func (s *Store) Clear(ctx context.Context) error {
	return s.ctl.Mutate(ctx, optimistic.Mutation[Wishlist]{
		Op:    "clear",
		Local: func(Wishlist) (Wishlist, error) { return Empty(), nil },
		Remote: func(ctx context.Context) (*Wishlist, error) {
			return nil, s.api.Clear(ctx)
		},
		FailureMessage: "Failed to clear wishlist",
	})
}

func removeEntry(itemID int64) func(Wishlist) (Wishlist, error) {
	return func(w Wishlist) (Wishlist, error) {
		if itemID <= 0 {
			return w, errs.Validation("Invalid wishlist item")
		}
		i := w.Find(itemID)
		if i < 0 {
			return w, errs.Validation("Item is not in the wishlist")
		}
		w.Items = append(w.Items[:i], w.Items[i+1:]...)
		w.Recompute()
		return w, nil
	}
}

// Package storefront wires the session, transport and the session-scoped
// stores into one client.
package storefront

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loft-dughairi/storefront/pkg/config"
	"github.com/loft-dughairi/storefront/pkg/httpx"
	"github.com/loft-dughairi/storefront/pkg/logger"
	"github.com/loft-dughairi/storefront/pkg/notify"
	"github.com/loft-dughairi/storefront/pkg/session"
	"github.com/loft-dughairi/storefront/svc/orders/cart"
	"github.com/loft-dughairi/storefront/svc/orders/order_mgmt"
	"github.com/loft-dughairi/storefront/svc/wishlist"
)

// loginFetchTimeout bounds the first cart and wishlist fetch after login
const loginFetchTimeout = 10 * time.Second

// Client is a storefront session with its cart, wishlist and orders
type Client struct {
	Session  *session.Manager
	Cart     *cart.Store
	Wishlist *wishlist.Store
	Orders   *order_mgmt.Tracker

	cfg         *config.Settings
	log         *logger.Logger
	hub         *notify.Hub
	api         *httpx.Client
	storage     session.Storage
	transport   http.RoundTripper
	unsubscribe func()

	// fetches tracks the post-login loads, which run off the hub goroutine
	fetches sync.WaitGroup
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger used by every component
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithStorage sets where the session token is persisted
func WithStorage(s session.Storage) Option {
	return func(c *Client) { c.storage = s }
}

// WithTransport replaces the HTTP transport, mostly for tests
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// New builds a client from cfg
func New(cfg *config.Settings, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storefront: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("storefront: %w", err)
	}

	c := &Client{cfg: cfg}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logger.NewLogger(cfg.ServiceName, "storefront")
		c.log.SetLevel(logger.ParseLevel(cfg.LogLevel))
	}

	c.hub = notify.NewHub(c.log.With("notify"))
	c.Session = session.NewManager(c.storage, c.hub, c.log)

	httpOpts := []httpx.Option{
		httpx.WithTimeout(cfg.APITimeout),
		httpx.WithTokenSource(c.Session),
		httpx.WithUnauthorizedHandler(c.Session.Invalidate),
		httpx.WithLogger(c.log),
	}
	if c.transport != nil {
		httpOpts = append(httpOpts, httpx.WithTransport(c.transport))
	}
	c.api = httpx.New(cfg.APIBaseURL, httpOpts...)

	c.Cart = cart.NewStore(cart.NewAPI(c.api), cart.Options{
		Auth:     c.Session,
		Hub:      c.hub,
		Logger:   c.log,
		Cooldown: cfg.FetchCooldown,
		ErrorTTL: errorTTL(cfg),
	})
	c.Wishlist = wishlist.NewStore(wishlist.NewAPI(c.api), wishlist.Options{
		Auth:     c.Session,
		Cart:     c.Cart,
		Hub:      c.hub,
		Logger:   c.log,
		Cooldown: cfg.FetchCooldown,
		ErrorTTL: errorTTL(cfg),
	})
	c.Orders = order_mgmt.NewTracker(order_mgmt.NewAPI(c.api), order_mgmt.Options{
		Session:                 c.Session,
		Logger:                  c.log,
		ErrorTTL:                errorTTL(cfg),
		ReturnLookupConcurrency: cfg.ReturnLookupConcurrency,
	})

	c.unsubscribe = c.Session.OnChange(c.onSessionChange)
	return c, nil
}

// errorTTL maps a zero setting to "never clear"
func errorTTL(cfg *config.Settings) time.Duration {
	if cfg.ErrorTTL == 0 {
		return -1
	}
	return cfg.ErrorTTL
}

// Login installs token and waits until the first fetch of cart and wishlist finished
func (c *Client) Login(ctx context.Context, token string) error {
	if _, err := c.Session.Login(ctx, token); err != nil {
		return err
	}
	return c.settle(ctx)
}

// Restore reinstalls a persisted session, if any
func (c *Client) Restore(ctx context.Context) (bool, error) {
	ok, err := c.Session.Restore(ctx)
	if err != nil || !ok {
		return ok, err
	}
	return true, c.settle(ctx)
}

// Logout ends the session and waits until every store was reset
func (c *Client) Logout(ctx context.Context) error {
	c.Session.Logout(ctx)
	return c.hub.Flush(ctx)
}

// Sync waits for queued session and store notifications to be delivered.
// It must not be called from a Subscribe or OnChange handler.
func (c *Client) Sync(ctx context.Context) error {
	return c.hub.Flush(ctx)
}

// settle waits until queued session changes were handled and the login
// fetches they started have delivered their store updates
func (c *Client) settle(ctx context.Context) error {
	if err := c.hub.Flush(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		c.fetches.Wait()
		close(done)
	}()
	select {
	case <-done:
		return c.hub.Flush(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onSessionChange runs on the hub goroutine and must not block it
func (c *Client) onSessionChange(ev session.Event) {
	c.reset()
	if ev.Kind != session.EventLogin {
		c.log.Info(context.Background(), "session ended, stores reset", logger.Fields{
			"kind":   ev.Kind,
			"reason": ev.Reason,
		})
		return
	}

	c.fetches.Add(1)
	go func() {
		defer c.fetches.Done()
		c.fetchAfterLogin(ev)
	}()
}

func (c *Client) fetchAfterLogin(ev session.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), loginFetchTimeout)
	defer cancel()
	ctx = logger.WithSession(ctx, ev.SessionID, ev.Email)

	var g errgroup.Group
	g.Go(func() error { return c.Cart.Fetch(ctx) })
	g.Go(func() error { return c.Wishlist.Fetch(ctx) })
	if err := g.Wait(); err != nil {
		c.log.Warn(ctx, "first fetch after login failed", logger.Fields{"error": err.Error()})
	}
}

func (c *Client) reset() {
	c.Cart.Reset()
	c.Wishlist.Reset()
	c.Orders.Reset()
}

// Close stops the stores and the notification hub
func (c *Client) Close() error {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.fetches.Wait()
	c.Orders.Close()
	c.Wishlist.Close()
	c.Cart.Close()
	c.hub.Close()
	return c.Session.Close()
}

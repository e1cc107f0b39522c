// Package optimistic implements session-scoped collection state with
// optimistic mutations. A mutation is applied locally before its remote call
// is issued; a rejected call is reconciled by a canonical re-fetch.
package optimistic

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/loft-dughairi/storefront/pkg/errs"
	"github.com/loft-dughairi/storefront/pkg/logger"
	"github.com/loft-dughairi/storefront/pkg/metrics"
	"github.com/loft-dughairi/storefront/pkg/notify"
)

// Defaults used when Options leaves them at zero
const (
	DefaultCooldown = time.Second
	DefaultErrorTTL = 5 * time.Second
)

// Authenticator reports whether a session is active
type Authenticator interface {
	IsAuthenticated() bool
}

// Options configure a Controller
type Options[T any] struct {
	// Name labels metrics and logs, and names the notify topic
	Name string
	// Fetch reads the canonical collection. A nil value means empty.
	Fetch func(ctx context.Context) (*T, error)
	// Clone deep-copies a value. Required when T holds slices or maps.
	Clone func(T) T
	// Empty builds the value used after Reset and for missing payloads
	Empty func() T

	Auth     Authenticator
	Cooldown time.Duration
	// ErrorTTL is how long an error string stays set. Negative disables clearing.
	ErrorTTL time.Duration
	Hub      *notify.Hub
	Logger   *logger.Logger
}

// State is a read-only snapshot of a collection
type State[T any] struct {
	Value       T
	Loading     bool
	Error       string
	Generation  uint64
	LastFetched time.Time
}

// Mutation describes one optimistic change
type Mutation[T any] struct {
	// Op labels metrics, e.g. "add" or "remove"
	Op string
	// Local transforms a copy of the current value. An error rejects the
	// mutation before any network call.
	Local func(T) (T, error)
	// Remote performs the backend call. A non-nil value replaces local state.
	Remote func(ctx context.Context) (*T, error)
	// Refetch forces a canonical fetch after a successful remote call
	Refetch bool
	// FailureMessage is shown when the backend gives no message of its own
	FailureMessage string
}

// Controller owns one collection value
type Controller[T any] struct {
	mu          sync.Mutex
	value       T
	inflight    int
	errMsg      string
	errSeq      uint64
	errTimer    *time.Timer
	gen         uint64
	fetchSeq    uint64
	appliedSeq  uint64
	lastFetched time.Time

	name     string
	fetchFn  func(ctx context.Context) (*T, error)
	clone    func(T) T
	empty    func() T
	auth     Authenticator
	cooldown time.Duration
	errorTTL time.Duration
	hub      *notify.Hub
	ownsHub  bool
	topic    string
	log      *logger.Logger
	group    singleflight.Group
	now      func() time.Time
}

// New creates a controller holding opts.Empty()
func New[T any](opts Options[T]) *Controller[T] {
	c := &Controller[T]{
		name:     opts.Name,
		fetchFn:  opts.Fetch,
		clone:    opts.Clone,
		empty:    opts.Empty,
		auth:     opts.Auth,
		cooldown: opts.Cooldown,
		errorTTL: opts.ErrorTTL,
		hub:      opts.Hub,
		log:      opts.Logger,
		now:      time.Now,
	}
	if c.name == "" {
		c.name = "collection"
	}
	if c.clone == nil {
		c.clone = func(v T) T { return v }
	}
	if c.empty == nil {
		c.empty = func() T {
			var zero T
			return zero
		}
	}
	if c.cooldown == 0 {
		c.cooldown = DefaultCooldown
	}
	if c.errorTTL == 0 {
		c.errorTTL = DefaultErrorTTL
	}
	if c.log == nil {
		c.log = logger.GetGlobalLogger()
	}
	c.log = c.log.With(c.name)
	if c.hub == nil {
		c.hub = notify.NewHub(c.log)
		c.ownsHub = true
	}
	c.topic = "collection." + c.name
	c.value = c.empty()
	return c
}

// Topic is the notify topic snapshots are published on
func (c *Controller[T]) Topic() string { return c.topic }

// Snapshot returns a copy of the current state
func (c *Controller[T]) Snapshot() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller[T]) snapshotLocked() State[T] {
	return State[T]{
		Value:       c.clone(c.value),
		Loading:     c.inflight > 0,
		Error:       c.errMsg,
		Generation:  c.gen,
		LastFetched: c.lastFetched,
	}
}

// Subscribe registers fn for every state replacement. Delivery happens on
// the hub goroutine, never inside the mutating call.
func (c *Controller[T]) Subscribe(fn func(State[T])) func() {
	return c.hub.Subscribe(c.topic, func(ev notify.Event) {
		if st, ok := ev.Payload.(State[T]); ok {
			fn(st)
		}
	})
}

// update applies fn under the lock and publishes the resulting snapshot
func (c *Controller[T]) update(fn func()) {
	c.mu.Lock()
	fn()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.hub.Publish(c.topic, snap)
}

func (c *Controller[T]) authenticated() bool {
	return c.auth == nil || c.auth.IsAuthenticated()
}

// Fetch loads the canonical collection unless a fetch is already in flight
// (the caller joins it) or the last one completed within the cooldown.
func (c *Controller[T]) Fetch(ctx context.Context) error {
	if !c.authenticated() {
		metrics.ObserveFetch(c.name, metrics.FetchSuppressed)
		return nil
	}

	c.mu.Lock()
	gen := c.gen
	last := c.lastFetched
	c.mu.Unlock()

	if !last.IsZero() && c.now().Sub(last) < c.cooldown {
		metrics.ObserveFetch(c.name, metrics.FetchSuppressed)
		c.log.Debug(ctx, "fetch suppressed by cooldown", logger.Fields{"since_last": c.now().Sub(last).String()})
		return nil
	}

	leader := false
	_, err, _ := c.group.Do("fetch:"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		leader = true
		return nil, c.load(ctx, gen)
	})
	if !leader {
		metrics.ObserveFetch(c.name, metrics.FetchJoined)
	}
	return err
}

// Refresh always issues a canonical fetch
func (c *Controller[T]) Refresh(ctx context.Context) error {
	if !c.authenticated() {
		metrics.ObserveFetch(c.name, metrics.FetchSuppressed)
		return nil
	}
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	return c.load(ctx, gen)
}

// load runs one canonical fetch belonging to generation gen. Results from an
// older generation, or older than an already applied fetch, are discarded.
func (c *Controller[T]) load(ctx context.Context, gen uint64) error {
	var seq uint64
	c.update(func() {
		c.fetchSeq++
		seq = c.fetchSeq
		c.inflight++
	})
	defer c.update(func() { c.inflight-- })
	metrics.ObserveFetch(c.name, metrics.FetchIssued)

	v, err := c.fetchFn(ctx)

	if err != nil && errs.Is(err, errs.MalformedResponse) {
		c.log.Warn(ctx, "malformed collection payload, treating as empty", logger.Fields{"error": err.Error()})
		v, err = nil, nil
	}

	var stale bool
	c.update(func() {
		if gen != c.gen || seq < c.appliedSeq {
			stale = true
			return
		}
		c.lastFetched = c.now()
		if err != nil {
			c.setErrorLocked(errs.UserMessage(err, "Failed to load "+c.name))
			return
		}
		c.appliedSeq = seq
		if v == nil {
			c.value = c.empty()
		} else {
			c.value = c.clone(*v)
		}
	})

	switch {
	case stale:
		metrics.ObserveFetch(c.name, metrics.FetchStale)
		c.log.Debug(ctx, "discarding stale fetch response", logger.Fields{"generation": gen})
		return nil
	case err != nil:
		metrics.ObserveFetch(c.name, metrics.FetchFailed)
		c.log.LogError(ctx, err, "canonical fetch failed")
		return err
	}
	return nil
}

// Mutate applies m.Local immediately, then calls m.Remote. A rejected remote
// call is reconciled by a canonical fetch; when that fetch fails too the
// value from before the mutation is restored.
func (c *Controller[T]) Mutate(ctx context.Context, m Mutation[T]) error {
	if !c.authenticated() {
		err := errs.AuthRequired()
		c.update(func() { c.setErrorLocked(err.Message) })
		metrics.ObserveMutation(c.name, m.Op, metrics.MutationRejected)
		return err
	}

	c.mu.Lock()
	gen := c.gen
	prev := c.clone(c.value)
	next := c.clone(c.value)
	if m.Local != nil {
		var err error
		next, err = m.Local(next)
		if err != nil {
			c.setErrorLocked(errs.UserMessage(err, m.FailureMessage))
			snap := c.snapshotLocked()
			c.mu.Unlock()
			c.hub.Publish(c.topic, snap)
			metrics.ObserveMutation(c.name, m.Op, metrics.MutationRejected)
			return err
		}
	}
	c.value = next
	c.inflight++
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.hub.Publish(c.topic, snap)

	defer c.update(func() { c.inflight-- })

	c.log.Debug(ctx, "optimistic mutation applied", logger.Fields{"op": m.Op})

	payload, err := m.Remote(ctx)
	if err != nil {
		metrics.ObserveMutation(c.name, m.Op, metrics.MutationRolledBack)
		c.log.Warn(ctx, "mutation rejected, reconciling", logger.Fields{
			"op":    m.Op,
			"code":  errs.CodeOf(err),
			"error": err.Error(),
		})

		rctx := context.WithoutCancel(ctx)
		if ferr := c.load(rctx, gen); ferr != nil {
			c.update(func() {
				if gen == c.gen {
					c.value = prev
				}
			})
		}
		c.update(func() { c.setErrorLocked(errs.UserMessage(err, m.FailureMessage)) })
		return err
	}

	c.update(func() {
		if gen != c.gen {
			return
		}
		if payload != nil {
			c.value = c.clone(*payload)
		}
		c.clearErrorLocked()
	})
	metrics.ObserveMutation(c.name, m.Op, metrics.MutationConfirmed)

	if m.Refetch {
		_ = c.load(context.WithoutCancel(ctx), gen)
	}
	return nil
}

// Fail records a user-facing error without touching the value
func (c *Controller[T]) Fail(err error, fallback string) {
	if err == nil {
		return
	}
	c.update(func() { c.setErrorLocked(errs.UserMessage(err, fallback)) })
}

// ClearError drops the current error string
func (c *Controller[T]) ClearError() {
	c.update(c.clearErrorLocked)
}

// Reset replaces the value with an empty one and starts a new generation.
// In-flight responses of the previous generation are dropped on arrival and
// the next Fetch is never suppressed.
func (c *Controller[T]) Reset() {
	c.update(func() {
		c.gen++
		c.value = c.empty()
		c.lastFetched = time.Time{}
		c.appliedSeq = c.fetchSeq
		c.clearErrorLocked()
	})
}

// Close stops the error timer and, when the controller created it, the hub
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.errTimer != nil {
		c.errTimer.Stop()
	}
	c.mu.Unlock()
	if c.ownsHub {
		c.hub.Close()
	}
}

func (c *Controller[T]) setErrorLocked(msg string) {
	c.errMsg = msg
	c.errSeq++
	if c.errTimer != nil {
		c.errTimer.Stop()
		c.errTimer = nil
	}
	if c.errorTTL < 0 {
		return
	}
	seq := c.errSeq
	c.errTimer = time.AfterFunc(c.errorTTL, func() {
		c.update(func() {
			if c.errSeq == seq {
				c.errMsg = ""
			}
		})
	})
}

func (c *Controller[T]) clearErrorLocked() {
	c.errMsg = ""
	c.errSeq++
	if c.errTimer != nil {
		c.errTimer.Stop()
		c.errTimer = nil
	}
}

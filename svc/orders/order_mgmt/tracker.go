// Package order_mgmt tracks the signed-in user's orders and their returns,
// reconciling both into the status shown to the user.
package order_mgmt

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loft-dughairi/storefront/pkg/errs"
	"github.com/loft-dughairi/storefront/pkg/logger"
	"github.com/loft-dughairi/storefront/svc/orders/status"
)

// DefaultReturnLookupConcurrency bounds parallel return lookups in ListMine
const DefaultReturnLookupConcurrency = 4

// Backend is the set of order and return endpoints the tracker uses
type Backend interface {
	GetOrder(ctx context.Context, id int64) (*status.Order, error)
	ListUserOrders(ctx context.Context, email string) ([]status.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, next status.OrderStatus, trackingNumber string) (*status.Order, error)
	CancelOrder(ctx context.Context, id int64, reason string) (*status.Order, error)
	ListReturns(ctx context.Context, orderID int64) ([]status.ReturnRequest, error)
	GetReturn(ctx context.Context, id int64) (*status.ReturnRequest, error)
	CreateReturn(ctx context.Context, req CreateReturnRequest) (*status.ReturnRequest, error)
	CancelReturn(ctx context.Context, id int64) (*status.ReturnRequest, error)
	UpdateReturnStatus(ctx context.Context, id int64, next status.ReturnStatus) (*status.ReturnRequest, error)
}

// Session is what the tracker needs to know about the signed-in user
type Session interface {
	IsAuthenticated() bool
	Email() string
	IsAdmin() bool
}

// Options configure a Tracker
type Options struct {
	Session                 Session
	Logger                  *logger.Logger
	ErrorTTL                time.Duration
	ReturnLookupConcurrency int
}

// OrderView is an order with its reconciled display state and the actions
// currently allowed on it
type OrderView struct {
	Order         status.Order
	View          status.View
	DisplayStatus status.OrderStatus
	ActiveReturn  *status.ReturnRequest
	Returns       []status.ReturnRequest

	// Admin controls
	NextStatuses       []status.OrderStatus
	NextReturnStatuses []status.ReturnStatus

	CanCancel        bool
	CanRequestReturn bool
	CanCancelReturn  bool
}

// Tracker is the session-scoped order store
type Tracker struct {
	api         Backend
	sess        Session
	log         *logger.Logger
	errorTTL    time.Duration
	concurrency int

	mu       sync.Mutex
	gen      uint64
	views    map[int64]OrderView
	errMsg   string
	errSeq   uint64
	errTimer *time.Timer
}

// NewTracker creates an empty tracker
func NewTracker(api Backend, opts Options) *Tracker {
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	t := &Tracker{
		api:         api,
		sess:        opts.Session,
		log:         log.With("orders"),
		errorTTL:    opts.ErrorTTL,
		concurrency: opts.ReturnLookupConcurrency,
		views:       make(map[int64]OrderView),
	}
	if t.errorTTL == 0 {
		t.errorTTL = 5 * time.Second
	}
	if t.concurrency <= 0 {
		t.concurrency = DefaultReturnLookupConcurrency
	}
	return t
}

// BuildView reconciles an order and its returns into an OrderView
func BuildView(o status.Order, returns []status.ReturnRequest, view status.View) OrderView {
	res := status.Reconcile(o, returns, view)
	v := OrderView{
		Order:         o,
		View:          view,
		DisplayStatus: res.DisplayStatus,
		ActiveReturn:  res.Active,
		Returns:       append([]status.ReturnRequest{}, returns...),
		NextStatuses:  status.NextOrderStatuses(o.Status),
		CanCancel:     status.CanCancelOrder(o.Status),
	}
	v.CanRequestReturn = status.CanRequestReturn(res.DisplayStatus, res.Active)
	if res.Active != nil {
		v.NextReturnStatuses = status.NextReturnStatuses(res.Active.Status)
		v.CanCancelReturn = status.CanCustomerCancelReturn(*res.Active)
	}
	return v
}

func (t *Tracker) build(ctx context.Context, o status.Order, returns []status.ReturnRequest, view status.View) OrderView {
	if _, n := status.ActiveReturn(returns); n > 1 {
		t.log.Warn(ctx, "order has more than one active return, using the first", logger.Fields{
			"order_id":   o.ID,
			"candidates": n,
		})
	}
	return BuildView(o, returns, view)
}

// Load fetches an order and its returns concurrently and reconciles them
func (t *Tracker) Load(ctx context.Context, orderID int64, view status.View) (*OrderView, error) {
	return t.load(ctx, t.generation(), orderID, view)
}

// load caches the view only while gen is still the current session generation
func (t *Tracker) load(ctx context.Context, gen uint64, orderID int64, view status.View) (*OrderView, error) {
	if err := t.requireSession(gen); err != nil {
		return nil, err
	}
	if orderID <= 0 {
		return nil, t.fail(gen, errs.Validation("Invalid order"), "")
	}

	var order *status.Order
	var returns []status.ReturnRequest

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o, err := t.api.GetOrder(gctx, orderID)
		order = o
		return err
	})
	g.Go(func() error {
		r, err := t.listReturns(gctx, orderID)
		returns = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, t.fail(gen, err, "Failed to load order")
	}

	v := t.build(ctx, *order, returns, view)
	t.store(gen, v)
	return &v, nil
}

// listReturns treats a missing return list as no returns
func (t *Tracker) listReturns(ctx context.Context, orderID int64) ([]status.ReturnRequest, error) {
	r, err := t.api.ListReturns(ctx, orderID)
	if errs.Is(err, errs.NotFound) {
		return nil, nil
	}
	return r, err
}

// ListMine lists the signed-in user's orders with their list-view status.
// Return lookups run with bounded concurrency.
func (t *Tracker) ListMine(ctx context.Context) ([]OrderView, error) {
	gen := t.generation()
	if err := t.requireSession(gen); err != nil {
		return nil, err
	}
	email := ""
	if t.sess != nil {
		email = t.sess.Email()
	}
	orders, err := t.api.ListUserOrders(ctx, email)
	if err != nil {
		return nil, t.fail(gen, err, "Failed to load your orders")
	}

	views := make([]OrderView, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i := range orders {
		i := i
		g.Go(func() error {
			returns, err := t.listReturns(gctx, orders[i].ID)
			if err != nil {
				return err
			}
			views[i] = t.build(gctx, orders[i], returns, status.ViewList)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, t.fail(gen, err, "Failed to load your orders")
	}
	t.log.Debug(ctx, "orders listed", logger.Fields{"count": len(views)})
	return views, nil
}

// CancelOrder cancels an order the user owns while it is placed or processing
func (t *Tracker) CancelOrder(ctx context.Context, orderID int64, reason string) (*OrderView, error) {
	gen := t.generation()
	if err := t.requireSession(gen); err != nil {
		return nil, err
	}
	req := CancelOrderRequest{Reason: reason}
	if err := req.Validate(); err != nil {
		return nil, t.fail(gen, err, "")
	}
	cur, err := t.current(ctx, gen, orderID)
	if err != nil {
		return nil, err
	}
	if !status.CanCancelOrder(cur.Order.Status) {
		return nil, t.fail(gen, errs.New(errs.FailedPrecondition, "This order can no longer be cancelled"), "")
	}

	o, err := t.api.CancelOrder(ctx, orderID, req.Reason)
	if err != nil {
		return nil, t.rejected(ctx, gen, orderID, err, "Failed to cancel order")
	}
	v := t.build(ctx, *o, cur.Returns, status.ViewDetail)
	t.store(gen, v)
	t.log.Info(ctx, "order cancelled", logger.Fields{"order_id": orderID})
	return &v, nil
}

// RequestReturn raises a return for a delivered order without an active return
func (t *Tracker) RequestReturn(ctx context.Context, orderID int64, lines []ReturnLine, reason string) (*OrderView, error) {
	gen := t.generation()
	if err := t.requireSession(gen); err != nil {
		return nil, err
	}
	req := CreateReturnRequest{OrderID: orderID, Items: lines, Reason: reason}
	if err := req.Validate(); err != nil {
		return nil, t.fail(gen, err, "")
	}
	cur, err := t.current(ctx, gen, orderID)
	if err != nil {
		return nil, err
	}
	if err := req.ValidateAgainst(cur.Order); err != nil {
		return nil, t.fail(gen, err, "")
	}
	if !status.CanRequestReturn(cur.DisplayStatus, cur.ActiveReturn) {
		return nil, t.fail(gen, errs.New(errs.FailedPrecondition, "A return cannot be requested for this order"), "")
	}

	r, err := t.api.CreateReturn(ctx, req)
	if err != nil {
		return nil, t.rejected(ctx, gen, orderID, err, "Failed to request return")
	}
	v := t.build(ctx, cur.Order, append(append([]status.ReturnRequest{}, cur.Returns...), *r), status.ViewDetail)
	t.store(gen, v)
	t.log.Info(ctx, "return requested", logger.Fields{"order_id": orderID, "return_id": r.ID})
	return &v, nil
}

// CancelReturn withdraws a return that is still only requested
func (t *Tracker) CancelReturn(ctx context.Context, orderID, returnID int64) (*OrderView, error) {
	gen := t.generation()
	if err := t.requireSession(gen); err != nil {
		return nil, err
	}
	cur, err := t.current(ctx, gen, orderID)
	if err != nil {
		return nil, err
	}
	i, err := t.findReturn(gen, cur, returnID)
	if err != nil {
		return nil, err
	}
	if !status.CanCustomerCancelReturn(cur.Returns[i]) {
		return nil, t.fail(gen, errs.New(errs.FailedPrecondition, "This return can no longer be cancelled"), "")
	}

	r, err := t.api.CancelReturn(ctx, returnID)
	if err != nil {
		return nil, t.rejected(ctx, gen, orderID, err, "Failed to cancel return")
	}
	v := t.build(ctx, cur.Order, replaceReturn(cur.Returns, i, *r), status.ViewDetail)
	t.store(gen, v)
	return &v, nil
}

// AdvanceOrder moves an order along its lifecycle (admin only)
func (t *Tracker) AdvanceOrder(ctx context.Context, orderID int64, next status.OrderStatus, trackingNumber string) (*OrderView, error) {
	gen := t.generation()
	if err := t.requireAdmin(gen); err != nil {
		return nil, err
	}
	cur, err := t.current(ctx, gen, orderID)
	if err != nil {
		return nil, err
	}
	if err := status.ValidateOrderTransition(cur.Order.Status, next); err != nil {
		return nil, t.fail(gen, errs.New(errs.FailedPrecondition, "This status change is not allowed").WithCause(err), "")
	}

	o, err := t.api.UpdateOrderStatus(ctx, orderID, next, trackingNumber)
	if err != nil {
		return nil, t.rejected(ctx, gen, orderID, err, "Failed to update order status")
	}
	v := t.build(ctx, *o, cur.Returns, status.ViewDetail)
	t.store(gen, v)
	t.log.Info(ctx, "order status updated", logger.Fields{
		"order_id": orderID,
		"from":     cur.Order.Status,
		"to":       o.Status,
	})
	return &v, nil
}

// AdvanceReturn moves a return along its sub-lifecycle (admin only)
func (t *Tracker) AdvanceReturn(ctx context.Context, orderID, returnID int64, next status.ReturnStatus) (*OrderView, error) {
	gen := t.generation()
	if err := t.requireAdmin(gen); err != nil {
		return nil, err
	}
	cur, err := t.current(ctx, gen, orderID)
	if err != nil {
		return nil, err
	}
	i, err := t.findReturn(gen, cur, returnID)
	if err != nil {
		return nil, err
	}
	if err := status.ValidateReturnTransition(cur.Returns[i].Status, next); err != nil {
		return nil, t.fail(gen, errs.New(errs.FailedPrecondition, "This status change is not allowed").WithCause(err), "")
	}

	r, err := t.api.UpdateReturnStatus(ctx, returnID, next)
	if err != nil {
		return nil, t.rejected(ctx, gen, orderID, err, "Failed to update return status")
	}
	v := t.build(ctx, cur.Order, replaceReturn(cur.Returns, i, *r), status.ViewDetail)
	t.store(gen, v)
	t.log.Info(ctx, "return status updated", logger.Fields{
		"order_id":  orderID,
		"return_id": returnID,
		"to":        r.Status,
	})
	return &v, nil
}

// Cached returns the last view loaded for orderID
func (t *Tracker) Cached(orderID int64) (OrderView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.views[orderID]
	return v, ok
}

// Error returns the current user-facing error, empty when none
func (t *Tracker) Error() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errMsg
}

// ClearError drops the current error string
func (t *Tracker) ClearError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearErrorLocked()
}

// Reset forgets every loaded order, used on logout. Calls still in flight
// finish without touching the new state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.views = make(map[int64]OrderView)
	t.clearErrorLocked()
}

// Close stops the error timer
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.errTimer != nil {
		t.errTimer.Stop()
	}
}

// current returns the detail view used for eligibility checks, loading it when missing
func (t *Tracker) current(ctx context.Context, gen uint64, orderID int64) (OrderView, error) {
	if v, ok := t.Cached(orderID); ok && v.View == status.ViewDetail {
		return v, nil
	}
	v, err := t.load(ctx, gen, orderID, status.ViewDetail)
	if err != nil {
		return OrderView{}, err
	}
	return *v, nil
}

func (t *Tracker) findReturn(gen uint64, v OrderView, returnID int64) (int, error) {
	for i := range v.Returns {
		if v.Returns[i].ID == returnID {
			return i, nil
		}
	}
	return -1, t.fail(gen, errs.Validation("Return request not found for this order"), "")
}

func (t *Tracker) generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// store caches v unless the tracker was reset since gen was taken
func (t *Tracker) store(gen uint64, v OrderView) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		t.log.Debug(context.Background(), "discarding order view from a previous session", logger.Fields{"order_id": v.Order.ID})
		return
	}
	t.views[v.Order.ID] = v
	t.clearErrorLocked()
}

func (t *Tracker) requireSession(gen uint64) error {
	if t.sess == nil || !t.sess.IsAuthenticated() {
		return t.fail(gen, errs.AuthRequired(), "")
	}
	return nil
}

func (t *Tracker) requireAdmin(gen uint64) error {
	if err := t.requireSession(gen); err != nil {
		return err
	}
	if !t.sess.IsAdmin() {
		return t.fail(gen, errs.New(errs.Forbidden, "Only administrators can change statuses"), "")
	}
	return nil
}

// rejected reloads the affected order after a backend refusal so the cached
// view never keeps a state the backend did not accept
func (t *Tracker) rejected(ctx context.Context, gen uint64, orderID int64, err error, fallback string) error {
	t.log.Warn(ctx, "order mutation rejected, reloading", logger.Fields{
		"order_id": orderID,
		"code":     errs.CodeOf(err),
	})
	if _, lerr := t.load(context.WithoutCancel(ctx), gen, orderID, status.ViewDetail); lerr != nil {
		t.mu.Lock()
		if gen == t.gen {
			delete(t.views, orderID)
		}
		t.mu.Unlock()
	}
	return t.fail(gen, err, fallback)
}

// fail records err as the ephemeral error string and returns it. Errors of
// calls from before the last Reset are returned but not recorded.
func (t *Tracker) fail(gen uint64, err error, fallback string) error {
	if err == nil {
		return nil
	}
	var e *errs.Error
	if !errors.As(err, &e) {
		t.log.LogError(context.Background(), err, "order operation failed")
	}
	msg := errs.UserMessage(err, fallback)

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return err
	}
	t.errMsg = msg
	t.errSeq++
	if t.errTimer != nil {
		t.errTimer.Stop()
		t.errTimer = nil
	}
	if t.errorTTL > 0 {
		seq := t.errSeq
		t.errTimer = time.AfterFunc(t.errorTTL, func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if t.errSeq == seq {
				t.errMsg = ""
			}
		})
	}
	return err
}

func (t *Tracker) clearErrorLocked() {
	t.errMsg = ""
	t.errSeq++
	if t.errTimer != nil {
		t.errTimer.Stop()
		t.errTimer = nil
	}
}

func replaceReturn(returns []status.ReturnRequest, i int, r status.ReturnRequest) []status.ReturnRequest {
	out := append([]status.ReturnRequest{}, returns...)
	out[i] = r
	return out
}

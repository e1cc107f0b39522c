package order_mgmt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/loft-dughairi/storefront/pkg/httpx"
	"github.com/loft-dughairi/storefront/pkg/logger"
	"github.com/loft-dughairi/storefront/svc/orders/status"
)

// API wraps the order and return endpoints of the storefront backend
type API struct {
	client *httpx.Client
}

// NewAPI creates the order endpoint wrapper
func NewAPI(client *httpx.Client) *API {
	return &API{client: client}
}

// GetOrder reads one order
func (a *API) GetOrder(ctx context.Context, id int64) (*status.Order, error) {
	var o status.Order
	err := a.client.Do(ctx, httpx.Request{
		Method: http.MethodGet,
		Route:  "/orders/{id}",
		Path:   "/orders/" + httpx.PathID(id),
	}, &o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListUserOrders reads every order placed by email. Entries that do not
// decode, such as an unknown status, are logged and left out.
func (a *API) ListUserOrders(ctx context.Context, email string) ([]status.Order, error) {
	var raw []json.RawMessage
	err := a.client.Do(ctx, httpx.Request{
		Method: http.MethodGet,
		Route:  "/orders/user/{email}",
		Path:   "/orders/user/" + httpx.PathID(email),
	}, &raw)
	if err != nil {
		return nil, err
	}
	orders := make([]status.Order, 0, len(raw))
	for i, m := range raw {
		var o status.Order
		if err := json.Unmarshal(m, &o); err != nil {
			a.client.Logger().Warn(ctx, "skipping undecodable order", logger.Fields{
				"index": i,
				"error": err.Error(),
			})
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// UpdateOrderStatus moves an order to next (admin only)
func (a *API) UpdateOrderStatus(ctx context.Context, id int64, next status.OrderStatus, trackingNumber string) (*status.Order, error) {
	q := url.Values{"status": {string(next)}}
	if trackingNumber != "" {
		q.Set("trackingNumber", trackingNumber)
	}
	var o status.Order
	err := a.client.Do(ctx, httpx.Request{
		Method: http.MethodPatch,
		Route:  "/orders/{id}/status",
		Path:   "/orders/" + httpx.PathID(id) + "/status",
		Query:  q,
	}, &o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CancelOrder cancels an order on behalf of its owner
func (a *API) CancelOrder(ctx context.Context, id int64, reason string) (*status.Order, error) {
	req := CancelOrderRequest{Reason: reason}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var o status.Order
	err := a.client.Do(ctx, httpx.Request{
		Method: http.MethodPatch,
		Route:  "/orders/{id}/cancel",
		Path:   "/orders/" + httpx.PathID(id) + "/cancel",
		Body:   req,
	}, &o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListReturns reads every return request raised against orderID
func (a *API) ListReturns(ctx context.Context, orderID int64) ([]status.ReturnRequest, error) {
	var returns []status.ReturnRequest
	err := a.client.Do(ctx, httpx.Request{
		Method: http.MethodGet,
		Route:  "/returns",
		Path:   "/returns",
		Query:  url.Values{"orderId": {httpx.PathID(orderID)}},
	}, &returns)
	if err != nil {
		return nil, err
	}
	return returns, nil
}

// GetReturn reads one return request
func (a *API) GetReturn(ctx context.Context, id int64) (*status.ReturnRequest, error) {
	var r status.ReturnRequest
	err := a.client.Do(ctx, httpx.Request{
		Method: http.MethodGet,
		Route:  "/returns/{id}",
		Path:   "/returns/" + httpx.PathID(id),
	}, &r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReturn raises a return request
func (a *API) CreateReturn(ctx context.Context, req CreateReturnRequest) (*status.ReturnRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var r status.ReturnRequest
	err := a.client.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		Route:  "/returns",
		Path:   "/returns",
		Body:   req,
	}, &r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CancelReturn withdraws a return request on behalf of its owner
func (a *API) CancelReturn(ctx context.Context, id int64) (*status.ReturnRequest, error) {
	var r status.ReturnRequest
	err := a.client.Do(ctx, httpx.Request{
		Method: http.MethodPatch,
		Route:  "/returns/{id}/cancel",
		Path:   "/returns/" + httpx.PathID(id) + "/cancel",
	}, &r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateReturnStatus moves a return request to next (admin only)
func (a *API) UpdateReturnStatus(ctx context.Context, id int64, next status.ReturnStatus) (*status.ReturnRequest, error) {
	var r status.ReturnRequest
	err := a.client.Do(ctx, httpx.Request{
		Method: http.MethodPatch,
		Route:  "/returns/{id}/status",
		Path:   "/returns/" + httpx.PathID(id) + "/status",
		Query:  url.Values{"newStatus": {string(next)}},
	}, &r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

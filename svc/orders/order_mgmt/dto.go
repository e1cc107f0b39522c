package order_mgmt

import (
	"strings"

	"github.com/loft-dughairi/storefront/pkg/errs"
	"github.com/loft-dughairi/storefront/svc/orders/status"
)

// CancelOrderRequest is the body of PATCH /orders/{id}/cancel
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// Validate checks the request before it is sent
func (req *CancelOrderRequest) Validate() error {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return errs.Validation("Please give a reason for cancelling")
	}
	return nil
}

// ReturnLine asks to return quantity units of an order line
type ReturnLine struct {
	OrderItemID int64 `json:"orderItemId"`
	Quantity    int   `json:"quantity"`
}

// CreateReturnRequest is the body of POST /returns
type CreateReturnRequest struct {
	OrderID int64        `json:"orderId"`
	Items   []ReturnLine `json:"items"`
	Reason  string       `json:"reason"`
}

// Validate checks the request shape. Quantities against the order are
// checked by ValidateAgainst.
func (req *CreateReturnRequest) Validate() error {
	if req.OrderID <= 0 {
		return errs.Validation("Invalid order")
	}
	if len(req.Items) == 0 {
		return errs.Validation("Select at least one item to return")
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return errs.Validation("Please give a reason for the return")
	}
	for _, it := range req.Items {
		if it.OrderItemID <= 0 {
			return errs.Validation("Invalid order item")
		}
		if it.Quantity <= 0 {
			return errs.Validation("Return quantity must be at least 1")
		}
	}
	return nil
}

// ValidateAgainst checks every line exists in order and no line returns
// more than was ordered. Repeated lines are summed and the first offending
// line, in request order, is reported.
func (req *CreateReturnRequest) ValidateAgainst(order status.Order) error {
	requested := make(map[int64]int, len(req.Items))
	for _, it := range req.Items {
		requested[it.OrderItemID] += it.Quantity
	}
	checked := make(map[int64]bool, len(requested))
	for _, it := range req.Items {
		id := it.OrderItemID
		if checked[id] {
			continue
		}
		checked[id] = true
		qty := requested[id]
		ordered, ok := order.ItemQuantity(id)
		if !ok {
			return errs.Newf(errs.InvalidArgument, "Item %d is not part of this order", id)
		}
		if qty > ordered {
			return errs.Newf(errs.InvalidArgument, "Cannot return %d of item %d, only %d ordered", qty, id, ordered)
		}
	}
	return nil
}

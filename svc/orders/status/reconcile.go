package status

// View selects how approved returns are presented
type View int

const (
	// ViewDetail keeps RETURN_APPROVED distinct from RETURN_REQUESTED
	ViewDetail View = iota
	// ViewList collapses approved returns into RETURN_REQUESTED
	ViewList
)

func (v View) String() string {
	if v == ViewList {
		return "list"
	}
	return "detail"
}

// Result is the reconciled display state of an order
type Result struct {
	DisplayStatus OrderStatus
	// Active is a copy of the selected return request, nil when none is active
	Active *ReturnRequest
}

// ActiveReturn selects the first active return request in input order and
// reports how many active candidates were seen. More than one candidate means
// the backend broke its one-active-return guarantee.
func ActiveReturn(returns []ReturnRequest) (*ReturnRequest, int) {
	var active *ReturnRequest
	candidates := 0
	for i := range returns {
		if !returns[i].Status.IsActive() {
			continue
		}
		candidates++
		if active == nil {
			active = returns[i].clone()
		}
	}
	return active, candidates
}

// Reconcile overlays the active return request, if any, onto the order status.
// Neither input is modified.
func Reconcile(order Order, returns []ReturnRequest, view View) Result {
	active, _ := ActiveReturn(returns)
	if active == nil {
		return Result{DisplayStatus: order.Status}
	}
	return Result{
		DisplayStatus: displayFor(order, *active, view),
		Active:        active,
	}
}

func displayFor(order Order, r ReturnRequest, view View) OrderStatus {
	switch r.Status {
	case ReturnRequested:
		return OrderReturnRequested
	case ReturnApproved:
		if view == ViewList {
			return OrderReturnRequested
		}
		return OrderReturnApproved
	case ReturnProcessed:
		if TotalQuantity(order.Items) == TotalReturnQuantity(r.Items) {
			return OrderReturned
		}
		return OrderPartiallyReturned
	case ReturnRefundInitiated:
		return OrderRefundInitiated
	case ReturnRefunded:
		return OrderRefunded
	default:
		// Rejected returns stay selected but do not change what the order shows
		return order.Status
	}
}

package status

import (
	"errors"
	"fmt"
)

// ErrTransitionNotAllowed is returned for a status change outside the transition table
var ErrTransitionNotAllowed = errors.New("status transition not allowed")

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPlaced:     {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered},
}

var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnRequested:       {ReturnApproved, ReturnCancelled},
	ReturnApproved:        {ReturnProcessed, ReturnCancelled},
	ReturnProcessed:       {ReturnRefundInitiated},
	ReturnRefundInitiated: {ReturnRefunded},
}

// NextOrderStatuses returns the statuses an order in s may move to.
// Terminal and display-only statuses have none.
func NextOrderStatuses(s OrderStatus) []OrderStatus {
	return append([]OrderStatus(nil), orderTransitions[s]...)
}

// NextReturnStatuses returns the statuses a return in s may move to
func NextReturnStatuses(s ReturnStatus) []ReturnStatus {
	return append([]ReturnStatus(nil), returnTransitions[s]...)
}

// ValidateOrderTransition checks that from -> to is in the order table
func ValidateOrderTransition(from, to OrderStatus) error {
	for _, s := range orderTransitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: order %s -> %s", ErrTransitionNotAllowed, from, to)
}

// ValidateReturnTransition checks that from -> to is in the return table
func ValidateReturnTransition(from, to ReturnStatus) error {
	for _, s := range returnTransitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: return %s -> %s", ErrTransitionNotAllowed, from, to)
}

// IsTerminalOrder reports whether no further lifecycle transition exists
func IsTerminalOrder(s OrderStatus) bool {
	return len(orderTransitions[s]) == 0
}

// IsTerminalReturn reports whether no further return transition exists
func IsTerminalReturn(s ReturnStatus) bool {
	return len(returnTransitions[s]) == 0
}

// CanCancelOrder reports whether the owner may cancel an order with this stored status
func CanCancelOrder(stored OrderStatus) bool {
	return stored == OrderPlaced || stored == OrderProcessing
}

// CanRequestReturn reports whether a new return may be raised
func CanRequestReturn(display OrderStatus, active *ReturnRequest) bool {
	return display == OrderDelivered && active == nil
}

// CanCustomerCancelReturn reports whether the owner may still withdraw r
func CanCustomerCancelReturn(r ReturnRequest) bool {
	return r.Status == ReturnRequested
}

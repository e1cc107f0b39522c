// Package status holds the order and return status model, the display
// reconciliation between them, and the transition tables that drive which
// status changes may be offered.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStatus is returned when a status string is not part of the enumeration
var ErrUnknownStatus = errors.New("unknown status")

// OrderStatus is the lifecycle status of an order
type OrderStatus string

const (
	OrderPlaced            OrderStatus = "ORDER_PLACED"
	OrderProcessing        OrderStatus = "PROCESSING"
	OrderShipped           OrderStatus = "SHIPPED"
	OrderDelivered         OrderStatus = "DELIVERED"
	OrderCancelled         OrderStatus = "CANCELLED"
	OrderReturned          OrderStatus = "RETURNED"
	OrderPartiallyReturned OrderStatus = "PARTIALLY_RETURNED"
	OrderRefundInitiated   OrderStatus = "REFUND_INITIATED"
	OrderRefunded          OrderStatus = "REFUNDED"

	// Display-only, produced by Reconcile and never stored by the backend
	OrderReturnRequested OrderStatus = "RETURN_REQUESTED"
	OrderReturnApproved  OrderStatus = "RETURN_APPROVED"
)

var orderStatuses = map[OrderStatus]bool{
	OrderPlaced:            false,
	OrderProcessing:        false,
	OrderShipped:           false,
	OrderDelivered:         false,
	OrderCancelled:         false,
	OrderReturned:          false,
	OrderPartiallyReturned: false,
	OrderRefundInitiated:   false,
	OrderRefunded:          false,
	OrderReturnRequested:   true,
	OrderReturnApproved:    true,
}

// ParseOrderStatus converts a backend value into an OrderStatus.
// Display-only values are rejected.
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	displayOnly, ok := orderStatuses[st]
	if !ok || displayOnly {
		return "", fmt.Errorf("%w: order status %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// IsDisplayOnly reports whether s only exists as a reconciled display value
func (s OrderStatus) IsDisplayOnly() bool {
	return orderStatuses[s]
}

// Valid reports whether s is a member of the enumeration
func (s OrderStatus) Valid() bool {
	_, ok := orderStatuses[s]
	return ok
}

func (s OrderStatus) String() string { return string(s) }

// UnmarshalJSON rejects values outside the enumeration
func (s *OrderStatus) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseOrderStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ReturnStatus is the status of a return request
type ReturnStatus string

const (
	ReturnRequested       ReturnStatus = "REQUESTED"
	ReturnApproved        ReturnStatus = "APPROVED"
	ReturnProcessed       ReturnStatus = "PROCESSED"
	ReturnRefundInitiated ReturnStatus = "REFUND_INITIATED"
	ReturnRefunded        ReturnStatus = "REFUNDED"
	ReturnCancelled       ReturnStatus = "CANCELLED"
	ReturnRejected        ReturnStatus = "REJECTED"
)

var returnStatuses = map[ReturnStatus]struct{}{
	ReturnRequested:       {},
	ReturnApproved:        {},
	ReturnProcessed:       {},
	ReturnRefundInitiated: {},
	ReturnRefunded:        {},
	ReturnCancelled:       {},
	ReturnRejected:        {},
}

// ParseReturnStatus converts a backend value into a ReturnStatus
func ParseReturnStatus(s string) (ReturnStatus, error) {
	st := ReturnStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := returnStatuses[st]; !ok {
		return "", fmt.Errorf("%w: return status %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// Valid reports whether s is a member of the enumeration
func (s ReturnStatus) Valid() bool {
	_, ok := returnStatuses[s]
	return ok
}

func (s ReturnStatus) String() string { return string(s) }

// UnmarshalJSON rejects values outside the enumeration
func (s *ReturnStatus) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseReturnStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// IsActive reports whether a return in this status still overlays the order
func (s ReturnStatus) IsActive() bool {
	return s != ReturnCancelled && s != ReturnRefunded
}

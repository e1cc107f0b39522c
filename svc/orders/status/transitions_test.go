package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderTransitions(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderPlaced:     {OrderProcessing, OrderCancelled},
		OrderProcessing: {OrderShipped, OrderCancelled},
		OrderShipped:    {OrderDelivered},
		OrderDelivered:  nil,
		OrderCancelled:  nil,
	}
	all := []OrderStatus{OrderPlaced, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled, OrderReturned}

	for from, next := range allowed {
		assert.ElementsMatch(t, next, NextOrderStatuses(from), "from %s", from)
		for _, to := range all {
			err := ValidateOrderTransition(from, to)
			if contains(next, to) {
				assert.NoError(t, err, "%s -> %s", from, to)
			} else {
				assert.True(t, errors.Is(err, ErrTransitionNotAllowed), "%s -> %s", from, to)
			}
		}
	}
	assert.True(t, IsTerminalOrder(OrderDelivered))
	assert.True(t, IsTerminalOrder(OrderReturnApproved))
	assert.False(t, IsTerminalOrder(OrderShipped))
}

func TestReturnTransitions(t *testing.T) {
	allowed := map[ReturnStatus][]ReturnStatus{
		ReturnRequested:       {ReturnApproved, ReturnCancelled},
		ReturnApproved:        {ReturnProcessed, ReturnCancelled},
		ReturnProcessed:       {ReturnRefundInitiated},
		ReturnRefundInitiated: {ReturnRefunded},
		ReturnRefunded:        nil,
		ReturnCancelled:       nil,
		ReturnRejected:        nil,
	}
	for from, next := range allowed {
		assert.ElementsMatch(t, next, NextReturnStatuses(from), "from %s", from)
		for to := range returnStatuses {
			err := ValidateReturnTransition(from, to)
			if contains(next, to) {
				assert.NoError(t, err, "%s -> %s", from, to)
			} else {
				assert.Error(t, err, "%s -> %s", from, to)
			}
		}
	}
}

func TestNextStatusesReturnsCopy(t *testing.T) {
	next := NextOrderStatuses(OrderPlaced)
	next[0] = OrderDelivered
	assert.Equal(t, OrderProcessing, NextOrderStatuses(OrderPlaced)[0])
}

func TestEligibility(t *testing.T) {
	assert.True(t, CanCancelOrder(OrderPlaced))
	assert.True(t, CanCancelOrder(OrderProcessing))
	assert.False(t, CanCancelOrder(OrderShipped))
	assert.False(t, CanCancelOrder(OrderDelivered))

	active := &ReturnRequest{ID: 1, Status: ReturnRequested}
	assert.True(t, CanRequestReturn(OrderDelivered, nil))
	assert.False(t, CanRequestReturn(OrderDelivered, active))
	assert.False(t, CanRequestReturn(OrderReturnRequested, nil))
	assert.False(t, CanRequestReturn(OrderShipped, nil))

	assert.True(t, CanCustomerCancelReturn(ReturnRequest{Status: ReturnRequested}))
	assert.False(t, CanCustomerCancelReturn(ReturnRequest{Status: ReturnApproved}))
}

func contains[S ~string](list []S, v S) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

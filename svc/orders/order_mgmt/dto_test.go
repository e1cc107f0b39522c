package order_mgmt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loft-dughairi/storefront/pkg/errs"
	"github.com/loft-dughairi/storefront/svc/orders/status"
)

func TestValidateAgainstReportsFirstOffendingLine(t *testing.T) {
	o := order(1, status.OrderDelivered, 2, 3)

	tests := []struct {
		name  string
		items []ReturnLine
		want  string
	}{
		{
			name:  "valid",
			items: []ReturnLine{{OrderItemID: 11, Quantity: 1}, {OrderItemID: 12, Quantity: 3}},
		},
		{
			name:  "unknown line first",
			items: []ReturnLine{{OrderItemID: 99, Quantity: 1}, {OrderItemID: 11, Quantity: 5}},
			want:  "Item 99 is not part of this order",
		},
		{
			name:  "excess line first",
			items: []ReturnLine{{OrderItemID: 11, Quantity: 5}, {OrderItemID: 99, Quantity: 1}},
			want:  "Cannot return 5 of item 11, only 2 ordered",
		},
		{
			name:  "repeated lines summed",
			items: []ReturnLine{{OrderItemID: 12, Quantity: 2}, {OrderItemID: 11, Quantity: 1}, {OrderItemID: 12, Quantity: 2}},
			want:  "Cannot return 4 of item 12, only 3 ordered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateReturnRequest{OrderID: 1, Items: tt.items, Reason: "damaged"}
			// map iteration order varies between runs, the result must not
			for i := 0; i < 20; i++ {
				err := req.ValidateAgainst(o)
				if tt.want == "" {
					assert.NoError(t, err)
					continue
				}
				assert.True(t, errs.Is(err, errs.InvalidArgument))
				assert.Equal(t, tt.want, errs.UserMessage(err, ""))
			}
		})
	}
}

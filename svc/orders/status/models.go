package status

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem is one ordered line
type OrderItem struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"productId"`
	Title     string          `json:"title,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderTotals are the monetary totals computed by the backend
type OrderTotals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Shipping   decimal.Decimal `json:"shipping"`
	Tax        decimal.Decimal `json:"tax"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
}

// Order is the client projection of a backend order
type Order struct {
	ID                 int64       `json:"id"`
	UserEmail          string      `json:"userEmail,omitempty"`
	Status             OrderStatus `json:"status"`
	Items              []OrderItem `json:"items"`
	Totals             OrderTotals `json:"totals"`
	PlacedAt           *time.Time  `json:"placedAt,omitempty"`
	ShippedAt          *time.Time  `json:"shippedAt,omitempty"`
	DeliveredAt        *time.Time  `json:"deliveredAt,omitempty"`
	CancelledAt        *time.Time  `json:"cancelledAt,omitempty"`
	TrackingNumber     string      `json:"trackingNumber,omitempty"`
	CancellationReason string      `json:"cancellationReason,omitempty"`

	ShippingAddress *ShippingAddress `json:"shippingAddress,omitempty"`
}

// ShippingAddress is where the order is delivered
type ShippingAddress struct {
	CityName string `json:"cityName,omitempty"`
	Label    string `json:"label,omitempty"`
	Line1    string `json:"line1,omitempty"`
	Line2    string `json:"line2,omitempty"`
}

// ItemQuantity returns the ordered quantity of a line, 0 when unknown
func (o Order) ItemQuantity(orderItemID int64) (int, bool) {
	for _, it := range o.Items {
		if it.ID == orderItemID {
			return it.Quantity, true
		}
	}
	return 0, false
}

// ReturnItem is one requested return line
type ReturnItem struct {
	OrderItemID  int64           `json:"orderItemId"`
	Quantity     int             `json:"quantity"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
}

// ReturnRequest is a return raised against an order
type ReturnRequest struct {
	ID        int64        `json:"id"`
	OrderID   int64        `json:"orderId"`
	Status    ReturnStatus `json:"status"`
	Items     []ReturnItem `json:"returnItems"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt *time.Time   `json:"createdAt,omitempty"`
	UpdatedAt *time.Time   `json:"updatedAt,omitempty"`
}

// TotalQuantity sums ordered quantities, nil items count as zero
func TotalQuantity(items []OrderItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

// TotalReturnQuantity sums returned quantities, nil items count as zero
func TotalReturnQuantity(items []ReturnItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

func (r ReturnRequest) clone() *ReturnRequest {
	c := r
	if r.Items != nil {
		c.Items = append([]ReturnItem(nil), r.Items...)
	}
	return &c
}

package domain

import "time"

const (
	EventOrderCompleted     = "OrderCompleted"
	EventOrderPaymentFailed = "OrderPaymentFailed"
)

type OrderCompleted struct {
	OrderID         string          `json:"orderId"`
	UserID          string          `json:"userId"`
	PaymentIntentID string          `json:"paymentIntentId"`
	TotalAmount     string          `json:"totalAmount"`
	Items           []PurchasedItem `json:"items"`
	CompletedAt     time.Time       `json:"completedAt"`
}

type PurchasedItem struct {
	VinylID         string `json:"vinylId"`
	Name            string `json:"name"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"priceAtPurchase"`
}

type OrderPaymentFailed struct {
	OrderID         string    `json:"orderId"`
	UserID          string    `json:"userId"`
	PaymentIntentID string    `json:"paymentIntentId"`
	TotalAmount     string    `json:"totalAmount"`
	Reason          string    `json:"reason,omitempty"`
	FailedAt        time.Time `json:"failedAt"`
}

func NewOrderCompleted(o Order) OrderCompleted {
	items := make([]PurchasedItem, 0, len(o.Items))
	for _, it := range o.Items {
		var name string
		if it.Vinyl != nil {
			name = it.Vinyl.Name
		}
		items = append(items, PurchasedItem{
			VinylID:         it.VinylID.String(),
			Name:            name,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.PriceAtPurchase.StringFixed(2),
		})
	}
	return OrderCompleted{
		OrderID:         o.ID.String(),
		UserID:          o.UserID.String(),
		PaymentIntentID: o.PaymentIntentID,
		TotalAmount:     o.TotalAmount.StringFixed(2),
		Items:           items,
		CompletedAt:     o.UpdatedAt,
	}
}

func NewOrderPaymentFailed(o Order, reason string) OrderPaymentFailed {
	return OrderPaymentFailed{
		OrderID:         o.ID.String(),
		UserID:          o.UserID.String(),
		PaymentIntentID: o.PaymentIntentID,
		TotalAmount:     o.TotalAmount.StringFixed(2),
		Reason:          reason,
		FailedAt:        o.UpdatedAt,
	}
}

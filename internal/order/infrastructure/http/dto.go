package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/vinyl-storefront/internal/order/domain"
)

type createPaymentIntentReq struct {
	VinylID string `json:"vinylId"`
}

// Bind implements render.Binder.
func (req *createPaymentIntentReq) Bind(*http.Request) error {
	if req.VinylID == "" {
		return errors.New("vinylId should not be empty")
	}
	if _, err := uuid.Parse(req.VinylID); err != nil {
		return errors.New("vinylId must be a UUID")
	}
	return nil
}

type paymentIntentResp struct {
	ClientSecret string    `json:"clientSecret"`
	OrderID      uuid.UUID `json:"orderId"`
	Amount       int64     `json:"amount"`
}

type vinylResp struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	AuthorName string          `json:"authorName"`
	Price      decimal.Decimal `json:"price"`
	ImageURL   string          `json:"imageUrl,omitempty"`
}

type orderItemResp struct {
	ID              uuid.UUID       `json:"id"`
	VinylID         uuid.UUID       `json:"vinylId"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"priceAtPurchase"`
	Vinyl           *vinylResp      `json:"vinyl,omitempty"`
}

type orderResp struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"userId"`
	PaymentIntentID string          `json:"paymentIntentId,omitempty"`
	Status          string          `json:"status"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Items           []orderItemResp `json:"items"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func newOrderResp(o domain.Order) orderResp {
	items := make([]orderItemResp, 0, len(o.Items))
	for _, it := range o.Items {
		item := orderItemResp{
			ID:              it.ID,
			VinylID:         it.VinylID,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.PriceAtPurchase,
		}
		if it.Vinyl != nil {
			item.Vinyl = &vinylResp{
				ID:         it.Vinyl.ID,
				Name:       it.Vinyl.Name,
				AuthorName: it.Vinyl.AuthorName,
				Price:      it.Vinyl.Price,
				ImageURL:   it.Vinyl.ImageURL,
			}
		}
		items = append(items, item)
	}
	return orderResp{
		ID:              o.ID,
		UserID:          o.UserID,
		PaymentIntentID: o.PaymentIntentID,
		Status:          string(o.Status),
		TotalAmount:     o.TotalAmount,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

type errorResp struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
	StatusFailed    OrderStatus = "failed"
)

func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s OrderStatus) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// CanTransitionTo reports whether moving from s to next is a forward step.
// Terminal states have no outgoing transitions.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == StatusPending && next.IsTerminal()
}

type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	PaymentIntentID string
	Status          OrderStatus
	TotalAmount     decimal.Decimal
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OrderItem struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	VinylID         uuid.UUID
	Quantity        int
	PriceAtPurchase decimal.Decimal
	Vinyl           *CatalogItem
}

// LineItem is a purchase request for a catalog entry, priced at the moment of purchase.
type LineItem struct {
	Item     CatalogItem
	Quantity int
}

// CatalogItem is the catalog summary an order keeps alongside each line.
type CatalogItem struct {
	ID         uuid.UUID
	Name       string
	AuthorName string
	Price      decimal.Decimal
	ImageURL   string
}

func (o Order) HasPaymentReference() bool {
	return o.PaymentIntentID != ""
}

// NewPendingOrder snapshots the unit prices of items and derives the total from them.
func NewPendingOrder(userID uuid.UUID, items []LineItem) (Order, error) {
	if len(items) == 0 {
		return Order{}, ErrEmptyOrder
	}

	now := time.Now().UTC()
	o := Order{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      StatusPending,
		TotalAmount: decimal.Zero,
		Items:       make([]OrderItem, 0, len(items)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, li := range items {
		qty := li.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 1 {
			return Order{}, ErrInvalidQuantity
		}
		if li.Item.Price.IsNegative() {
			return Order{}, ErrInvalidPrice
		}
		item := li.Item
		o.Items = append(o.Items, OrderItem{
			ID:              uuid.New(),
			OrderID:         o.ID,
			VinylID:         li.Item.ID,
			Quantity:        qty,
			PriceAtPurchase: li.Item.Price,
			Vinyl:           &item,
		})
		o.TotalAmount = o.TotalAmount.Add(li.Item.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	return o, nil
}

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a two-place currency amount to integer cents,
// rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmehra2102/vinyl-storefront/internal/order/domain"
)

type OrderRepository interface {
	// CreatePending prices items from the live catalog, not from the values passed in.
	CreatePending(ctx context.Context, userID uuid.UUID, items []domain.LineItem) (domain.Order, error)
	AttachPaymentReference(ctx context.Context, orderID uuid.UUID, ref string) (domain.Order, error)
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	FindByPaymentReference(ctx context.Context, ref string) (domain.Order, error)
	FindByIDForUser(ctx context.Context, orderID, userID uuid.UUID) (domain.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)
	// TransitionStatus moves the order from one status to another and reports
	// whether a row changed. It never overwrites a status other than from.
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) (bool, error)
}

type CatalogLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (domain.CatalogItem, error)
}

// CatalogInvalidator is implemented by catalog lookups that keep a copy of
// catalog rows. The service drops an entry once the store has seen it is stale.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, id uuid.UUID) error
}

type PaymentGateway interface {
	CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.PaymentIntent, error)
	CancelIntent(ctx context.Context, intentID string) error
	ParseWebhook(payload []byte, signature string) (domain.WebhookEvent, error)
}

// Notifier is best-effort: the service logs its errors and carries on.
type Notifier interface {
	OrderCompleted(ctx context.Context, o domain.Order) error
	PaymentFailed(ctx context.Context, o domain.Order, reason string) error
}

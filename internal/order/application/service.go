package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/vinyl-storefront/internal/order/domain"
)

const defaultGatewayTimeout = 10 * time.Second

type Service struct {
	log            *slog.Logger
	repo           OrderRepository
	catalog        CatalogLookup
	gateway        PaymentGateway
	notifier       Notifier
	gatewayTimeout time.Duration
}

type Option func(*Service)

func WithGatewayTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

func NewService(log *slog.Logger, repo OrderRepository, catalog CatalogLookup, gateway PaymentGateway, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		log:            log,
		repo:           repo,
		catalog:        catalog,
		gateway:        gateway,
		notifier:       notifier,
		gatewayTimeout: defaultGatewayTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreatePaymentIntent(ctx context.Context, userID, vinylID uuid.UUID) (domain.PaymentIntentResult, error) {
	item, err := s.catalog.FindByID(ctx, vinylID)
	if err != nil {
		return domain.PaymentIntentResult{}, err
	}

	order, err := s.repo.CreatePending(ctx, userID, []domain.LineItem{{Item: item, Quantity: 1}})
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			s.invalidate(ctx, item.ID)
		}
		return domain.PaymentIntentResult{}, fmt.Errorf("persist pending order: %w", err)
	}
	if live := order.Items[0].PriceAtPurchase; !live.Equal(item.Price) {
		s.log.Info("catalog price changed since lookup", "vinyl_id", item.ID, "cached", item.Price.String(), "live", live.String())
		s.invalidate(ctx, item.ID)
	}
	amount := domain.MinorUnits(order.TotalAmount)

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	intent, err := s.gateway.CreateIntent(gwCtx, domain.IntentRequest{
		AmountMinor: amount,
		OrderID:     order.ID,
		UserID:      userID,
		VinylID:     item.ID,
		VinylName:   item.Name,
	})
	cancel()
	if err != nil {
		s.rollback(ctx, order)
		return domain.PaymentIntentResult{}, asGatewayError(err)
	}

	// The intent exists now; binding it must not depend on the client staying connected.
	if _, err := s.repo.AttachPaymentReference(context.WithoutCancel(ctx), order.ID, intent.ID); err != nil {
		s.log.Error("attach payment reference failed", "order_id", order.ID, "payment_intent_id", intent.ID, "err", err)
		s.rollback(ctx, order)
		s.cancelIntent(ctx, order.ID, intent.ID)
		return domain.PaymentIntentResult{}, fmt.Errorf("attach payment reference: %w", err)
	}

	s.log.Info("payment intent created", "order_id", order.ID, "payment_intent_id", intent.ID, "amount", amount)
	return domain.PaymentIntentResult{
		ClientSecret: intent.ClientSecret,
		OrderID:      order.ID,
		Amount:       amount,
	}, nil
}

func (s *Service) invalidate(ctx context.Context, vinylID uuid.UUID) {
	inv, ok := s.catalog.(CatalogInvalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, vinylID); err != nil {
		s.log.Warn("catalog invalidate failed", "vinyl_id", vinylID, "err", err)
	}
}

// cancelIntent voids an intent whose order was rolled back, so the client
// secret can never be used to charge for an order that does not exist.
func (s *Service) cancelIntent(ctx context.Context, orderID uuid.UUID, intentID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.gatewayTimeout)
	defer cancel()
	if err := s.gateway.CancelIntent(ctx, intentID); err != nil {
		s.log.Error("cancel orphaned payment intent failed", "order_id", orderID, "payment_intent_id", intentID, "err", err)
		return
	}
	s.log.Info("orphaned payment intent cancelled", "order_id", orderID, "payment_intent_id", intentID)
}

// rollback removes the items and then the order. It runs on a context detached
// from the caller so a cancelled request still compensates.
func (s *Service) rollback(ctx context.Context, order domain.Order) {
	ctx = context.WithoutCancel(ctx)
	for _, it := range order.Items {
		if err := s.repo.DeleteItem(ctx, it.ID); err != nil {
			s.log.Error("rollback delete item failed", "order_id", order.ID, "item_id", it.ID, "err", err)
		}
	}
	if err := s.repo.DeleteOrder(ctx, order.ID); err != nil {
		s.log.Error("rollback delete order failed", "order_id", order.ID, "err", err)
		return
	}
	s.log.Info("pending order rolled back", "order_id", order.ID)
}

func asGatewayError(err error) error {
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return &domain.GatewayError{Message: err.Error(), Err: err}
}

func (s *Service) HandleWebhook(ctx context.Context, signature string, payload []byte) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}

	switch event.Kind {
	case domain.EventPaymentSucceeded:
		return s.CompleteOrder(ctx, event.IntentID)
	case domain.EventPaymentFailed:
		return s.FailOrder(ctx, event.IntentID, event.FailureMessage)
	default:
		return nil
	}
}

func (s *Service) CompleteOrder(ctx context.Context, intentID string) error {
	order, changed, err := s.transition(ctx, intentID, domain.StatusCompleted)
	if err != nil || !changed {
		return err
	}
	if err := s.notifier.OrderCompleted(ctx, order); err != nil {
		s.log.Warn("order confirmation notification failed", "order_id", order.ID, "err", err)
	}
	return nil
}

func (s *Service) FailOrder(ctx context.Context, intentID, reason string) error {
	order, changed, err := s.transition(ctx, intentID, domain.StatusFailed)
	if err != nil || !changed {
		return err
	}
	if err := s.notifier.PaymentFailed(ctx, order, reason); err != nil {
		s.log.Warn("payment failure notification failed", "order_id", order.ID, "err", err)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, intentID string, to domain.OrderStatus) (domain.Order, bool, error) {
	order, err := s.repo.FindByPaymentReference(ctx, intentID)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("order not found for payment intent", "payment_intent_id", intentID)
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("find order by payment reference: %w", err)
	}

	if order.Status == to {
		s.log.Info("order already in status", "order_id", order.ID, "status", to)
		return order, false, nil
	}
	if !order.Status.CanTransitionTo(to) {
		s.log.Warn("ignoring transition out of terminal status", "order_id", order.ID, "status", order.Status, "requested", to)
		return order, false, nil
	}

	changed, err := s.repo.TransitionStatus(ctx, order.ID, order.Status, to)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("transition order %s to %s: %w", order.ID, to, err)
	}
	if !changed {
		s.log.Info("order transitioned concurrently", "order_id", order.ID, "requested", to)
		return order, false, nil
	}

	order.Status = to
	order.UpdatedAt = time.Now().UTC()
	s.log.Info("order status updated", "order_id", order.ID, "payment_intent_id", intentID, "status", to)
	return order, true, nil
}

func (s *Service) GetUserOrders(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	return s.repo.ListForUser(ctx, userID)
}

func (s *Service) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (domain.Order, error) {
	return s.repo.FindByIDForUser(ctx, orderID, userID)
}

package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/vinyl-storefront/internal/notification/domain"
	orderdomain "github.com/dmehra2102/vinyl-storefront/internal/order/domain"
)

type Service struct {
	log    *slog.Logger
	users  UserDirectory
	mailer Mailer
	now    func() time.Time
}

func NewService(log *slog.Logger, users UserDirectory, mailer Mailer) *Service {
	return &Service{log: log, users: users, mailer: mailer, now: time.Now}
}

// Handle turns one order event into an email. Unknown event types are skipped.
func (s *Service) Handle(ctx context.Context, eventType string, payload []byte) error {
	switch eventType {
	case orderdomain.EventOrderCompleted:
		var ev orderdomain.OrderCompleted
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
		}
		return s.sendOrderConfirmation(ctx, ev)
	case orderdomain.EventOrderPaymentFailed:
		var ev orderdomain.OrderPaymentFailed
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
		}
		return s.sendPaymentFailure(ctx, ev)
	default:
		s.log.Debug("event type not notified", "event_type", eventType)
		return nil
	}
}

func (s *Service) sendOrderConfirmation(ctx context.Context, ev orderdomain.OrderCompleted) error {
	to, err := s.recipient(ctx, ev.UserID)
	if err != nil {
		return err
	}
	html, err := render(orderConfirmationTmpl, struct {
		orderdomain.OrderCompleted
		Year int
	}{ev, s.now().Year()})
	if err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, domain.Email{
		To:      to,
		Subject: "Order Confirmation - #" + shortID(ev.OrderID),
		HTML:    html,
	}); err != nil {
		return fmt.Errorf("send order confirmation: %w", err)
	}
	s.log.Info("order confirmation sent", "order_id", ev.OrderID)
	return nil
}

func (s *Service) sendPaymentFailure(ctx context.Context, ev orderdomain.OrderPaymentFailed) error {
	to, err := s.recipient(ctx, ev.UserID)
	if err != nil {
		return err
	}
	html, err := render(paymentFailedTmpl, struct {
		orderdomain.OrderPaymentFailed
		Year int
	}{ev, s.now().Year()})
	if err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, domain.Email{
		To:      to,
		Subject: "Payment Failed - Action Required",
		HTML:    html,
	}); err != nil {
		return fmt.Errorf("send payment failure: %w", err)
	}
	s.log.Info("payment failure notice sent", "order_id", ev.OrderID)
	return nil
}

func (s *Service) recipient(ctx context.Context, rawUserID string) (string, error) {
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return "", fmt.Errorf("%w: user id %q", domain.ErrMalformedEvent, rawUserID)
	}
	return s.users.EmailFor(ctx, userID)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmehra2102/vinyl-storefront/internal/order/domain"
)

const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
)

// Event types the storefront receives but does not act on.
var knownIgnored = map[string]struct{}{
	"charge.succeeded":       {},
	"charge.updated":         {},
	"payment_intent.created": {},
}

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	// Backends overrides the Stripe API endpoint. Nil uses api.stripe.com.
	Backends *stripe.Backends
}

type Gateway struct {
	log           *slog.Logger
	api           *client.API
	webhookSecret string
	currency      string
	cb            *gobreaker.CircuitBreaker[*stripe.PaymentIntent]
}

func NewGateway(log *slog.Logger, cfg Config) (*Gateway, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: stripe secret key is not set", domain.ErrConfiguration)
	}
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}

	cb := gobreaker.NewCircuitBreaker[*stripe.PaymentIntent](gobreaker.Settings{
		Name:        "stripe-payment-intents",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isDeclined(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Gateway{
		log:           log,
		api:           client.New(cfg.SecretKey, cfg.Backends),
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		cb:            cb,
	}, nil
}

func (g *Gateway) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata() {
		params.AddMetadata(k, v)
	}

	pi, err := g.cb.Execute(func() (*stripe.PaymentIntent, error) {
		return g.api.PaymentIntents.New(params)
	})
	if err != nil {
		return domain.PaymentIntent{}, gatewayError(err)
	}

	g.log.Debug("stripe payment intent created", "payment_intent_id", pi.ID, "order_id", req.OrderID)
	return domain.PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// CancelIntent voids an intent the storefront could not bind to an order.
func (g *Gateway) CancelIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String("abandoned"),
	}
	params.Context = ctx

	_, err := g.cb.Execute(func() (*stripe.PaymentIntent, error) {
		return g.api.PaymentIntents.Cancel(intentID, params)
	})
	if err != nil {
		return gatewayError(err)
	}
	g.log.Debug("stripe payment intent cancelled", "payment_intent_id", intentID)
	return nil
}

// isDeclined reports whether Stripe answered with a client-side refusal. Those are
// healthy responses and must not trip the breaker.
func isDeclined(err error) bool {
	var serr *stripe.Error
	return errors.As(err, &serr) && serr.HTTPStatusCode > 0 && serr.HTTPStatusCode < http.StatusInternalServerError
}

func gatewayError(err error) *domain.GatewayError {
	var serr *stripe.Error
	switch {
	case errors.As(err, &serr) && serr.Msg != "":
		return &domain.GatewayError{Message: serr.Msg, Err: err}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.GatewayError{Message: "payment provider is temporarily unavailable", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.GatewayError{Message: "payment provider did not respond in time", Err: err}
	default:
		return &domain.GatewayError{Message: err.Error(), Err: err}
	}
}

type intentObject struct {
	ID               string `json:"id"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (g *Gateway) ParseWebhook(payload []byte, signature string) (domain.WebhookEvent, error) {
	if g.webhookSecret == "" {
		return domain.WebhookEvent{}, fmt.Errorf("%w: stripe webhook secret is not set", domain.ErrConfiguration)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrSignature, err)
	}

	out := domain.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case eventIntentSucceeded:
		out.Kind = domain.EventPaymentSucceeded
	case eventIntentFailed:
		out.Kind = domain.EventPaymentFailed
	default:
		if _, ok := knownIgnored[out.Type]; !ok {
			g.log.Debug("unhandled stripe event type", "event_id", event.ID, "event_type", out.Type)
		}
		return out, nil
	}

	if event.Data == nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: event %s has no data", domain.ErrValidation, event.ID)
	}
	var obj intentObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: decode payment intent: %v", domain.ErrValidation, err)
	}
	out.IntentID = obj.ID
	if obj.LastPaymentError != nil {
		out.FailureMessage = obj.LastPaymentError.Message
	}
	return out, nil
}

package domain

import "github.com/google/uuid"

// IntentRequest is what the lifecycle service asks the gateway to charge.
type IntentRequest struct {
	AmountMinor int64
	OrderID     uuid.UUID
	UserID      uuid.UUID
	VinylID     uuid.UUID
	VinylName   string
}

func (r IntentRequest) Metadata() map[string]string {
	return map[string]string{
		"orderId":   r.OrderID.String(),
		"userId":    r.UserID.String(),
		"vinylId":   r.VinylID.String(),
		"vinylName": r.VinylName,
	}
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
}

type EventKind int

const (
	EventIgnored EventKind = iota
	EventPaymentSucceeded
	EventPaymentFailed
)

func (k EventKind) String() string {
	switch k {
	case EventPaymentSucceeded:
		return "payment_succeeded"
	case EventPaymentFailed:
		return "payment_failed"
	default:
		return "ignored"
	}
}

// WebhookEvent is a verified gateway notification reduced to what reconciliation needs.
type WebhookEvent struct {
	ID             string
	Type           string
	Kind           EventKind
	IntentID       string
	FailureMessage string
}

// PaymentIntentResult is returned to the customer's client to complete payment.
type PaymentIntentResult struct {
	ClientSecret string
	OrderID      uuid.UUID
	Amount       int64
}

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                   = errors.New("not found")
	ErrValidation                 = errors.New("validation failed")
	ErrSignature                  = errors.New("webhook signature verification failed")
	ErrConfiguration              = errors.New("configuration error")
	ErrPaymentReferenceAlreadySet = errors.New("payment reference already set")

	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	ErrItemNotFound  = fmt.Errorf("vinyl %w", ErrNotFound)

	ErrEmptyOrder      = fmt.Errorf("%w: order has no line items", ErrValidation)
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	ErrInvalidPrice    = fmt.Errorf("%w: price must not be negative", ErrValidation)
)

// GatewayError is returned when the payment gateway refuses to create an intent.
// Message is the gateway's own text and is safe to show to the customer.
type GatewayError struct {
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("Failed to create payment intent: %s", e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

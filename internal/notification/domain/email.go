package domain

import "errors"

var (
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrMalformedEvent marks events that can never be processed and must not be retried.
	ErrMalformedEvent = errors.New("malformed event")
)

type Email struct {
	To      string
	Subject string
	HTML    string
}

package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmehra2102/vinyl-storefront/internal/notification/domain"
)

type Mailer interface {
	Send(ctx context.Context, email domain.Email) error
}

type UserDirectory interface {
	EmailFor(ctx context.Context, userID uuid.UUID) (string, error)
}

package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/vinyl-storefront/internal/notification/domain"
)

type UserDirectory struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewUserDirectory(log *slog.Logger, pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{log: log, pool: pool}
}

func (d *UserDirectory) EmailFor(ctx context.Context, userID uuid.UUID) (string, error) {
	var email string
	err := d.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1 AND is_deleted = false`, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrRecipientNotFound
	}
	return email, err
}

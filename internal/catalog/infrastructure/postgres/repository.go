package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/vinyl-storefront/internal/order/domain"
)

// Repository reads the vinyl catalog. The catalog service owns writes.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (domain.CatalogItem, error) {
	var item domain.CatalogItem
	var price string
	err := r.pool.QueryRow(ctx, `SELECT id, name, author_name, price::text, image_url
		FROM vinyls
		WHERE id = $1 AND is_deleted = false`, id).
		Scan(&item.ID, &item.Name, &item.AuthorName, &price, &item.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CatalogItem{}, domain.ErrItemNotFound
	}
	if err != nil {
		return domain.CatalogItem{}, err
	}
	if item.Price, err = decimal.NewFromString(price); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("vinyl %s price: %w", id, err)
	}
	return item, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/vinyl-storefront/internal/order/domain"
)

const foreignKeyViolation = "23503"

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// CreatePending snapshots the price each vinyl has inside the transaction, so a
// stale caller-side price or a withdrawn vinyl can never reach the order.
func (r *Repository) CreatePending(ctx context.Context, userID uuid.UUID, items []domain.LineItem) (domain.Order, error) {
	if _, err := domain.NewPendingOrder(userID, items); err != nil {
		return domain.Order{}, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	items, err = livePrices(ctx, tx, items)
	if err != nil {
		return domain.Order{}, err
	}
	o, err := domain.NewPendingOrder(userID, items)
	if err != nil {
		return domain.Order{}, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO orders (id, user_id, payment_intent_id, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, NULL, $3, $4::numeric, $5, $6)`,
		o.ID, o.UserID, string(o.Status), o.TotalAmount.StringFixed(2), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return domain.Order{}, mapWriteErr(err)
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (id, order_id, vinyl_id, quantity, price_at_purchase)
			VALUES ($1, $2, $3, $4, $5::numeric)`,
			item.ID, o.ID, item.VinylID, item.Quantity, item.PriceAtPurchase.StringFixed(2))
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return domain.Order{}, mapWriteErr(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// livePrices locks the purchasable vinyl rows for the rest of the transaction and
// replaces each line's price with the stored one.
func livePrices(ctx context.Context, tx pgx.Tx, items []domain.LineItem) ([]domain.LineItem, error) {
	ids := make([]string, 0, len(items))
	for _, li := range items {
		ids = append(ids, li.Item.ID.String())
	}

	rows, err := tx.Query(ctx, `SELECT id, price::text FROM vinyls
		WHERE id = ANY($1::uuid[]) AND is_deleted = false FOR SHARE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := make(map[uuid.UUID]decimal.Decimal, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var price string
		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		if prices[id], err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("vinyl %s price: %w", id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.LineItem, len(items))
	for i, li := range items {
		price, ok := prices[li.Item.ID]
		if !ok {
			return nil, fmt.Errorf("%w: vinyl %s", domain.ErrItemNotFound, li.Item.ID)
		}
		li.Item.Price = price
		out[i] = li
	}
	return out, nil
}

func (r *Repository) AttachPaymentReference(ctx context.Context, orderID uuid.UUID, ref string) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var current *string
	err = tx.QueryRow(ctx, `SELECT payment_intent_id FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}

	switch {
	case current == nil:
		if _, err = tx.Exec(ctx, `UPDATE orders SET payment_intent_id = $2, updated_at = now() WHERE id = $1`, orderID, ref); err != nil {
			return domain.Order{}, err
		}
	case *current != ref:
		return domain.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrPaymentReferenceAlreadySet)
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return r.findOne(ctx, `WHERE o.id = $1`, orderID)
}

func (r *Repository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM order_items WHERE id = $1`, itemID)
	return err
}

func (r *Repository) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	return err
}

func (r *Repository) FindByPaymentReference(ctx context.Context, ref string) (domain.Order, error) {
	if ref == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.findOne(ctx, `WHERE o.payment_intent_id = $1`, ref)
}

func (r *Repository) FindByIDForUser(ctx context.Context, orderID, userID uuid.UUID) (domain.Order, error) {
	return r.findOne(ctx, `WHERE o.id = $1 AND o.user_id = $2`, orderID, userID)
}

func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	orders, err := r.query(ctx, `WHERE o.user_id = $1 ORDER BY o.created_at DESC, o.id`, userID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

func (r *Repository) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	ct, err := r.pool.Exec(ctx, `UPDATE orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		orderID, string(from), string(to))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repository) findOne(ctx context.Context, where string, args ...any) (domain.Order, error) {
	orders, err := r.query(ctx, where, args...)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return orders[0], nil
}

func (r *Repository) query(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT o.id, o.user_id, COALESCE(o.payment_intent_id, ''), o.status,
			o.total_amount::text, o.created_at, o.updated_at
		FROM orders o `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var o domain.Order
		var status, total string
		if err := rows.Scan(&o.ID, &o.UserID, &o.PaymentIntentID, &status, &total, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Status = domain.OrderStatus(status)
		if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("order %s total: %w", o.ID, err)
		}
		o.Items = []domain.OrderItem{}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID.String())
	}
	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		i := index[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return orders, nil
}

func (r *Repository) items(ctx context.Context, orderIDs []string) ([]domain.OrderItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT oi.id, oi.order_id, oi.vinyl_id, oi.quantity, oi.price_at_purchase::text,
			v.name, v.author_name, v.price::text, v.image_url
		FROM order_items oi
		JOIN vinyls v ON v.id = oi.vinyl_id
		WHERE oi.order_id = ANY($1::uuid[])
		ORDER BY oi.order_id, oi.id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		var v domain.CatalogItem
		var priceAtPurchase, price string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.VinylID, &it.Quantity, &priceAtPurchase,
			&v.Name, &v.AuthorName, &price, &v.ImageURL); err != nil {
			return nil, err
		}
		if it.PriceAtPurchase, err = decimal.NewFromString(priceAtPurchase); err != nil {
			return nil, err
		}
		if v.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		v.ID = it.VinylID
		it.Vinyl = &v
		items = append(items, it)
	}
	return items, rows.Err()
}

// mapWriteErr turns a missing vinyl reference into the catalog NotFound error.
func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation && pgErr.ConstraintName == "order_items_vinyl_id_fkey" {
		return fmt.Errorf("%w: %s", domain.ErrItemNotFound, pgErr.Detail)
	}
	return err
}

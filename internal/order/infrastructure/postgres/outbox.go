package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/vinyl-storefront/internal/order/domain"
	"github.com/dmehra2102/vinyl-storefront/pkg/outbox"
	"github.com/dmehra2102/vinyl-storefront/pkg/tracing"
)

const aggregateOrder = "order"

type OutboxStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewOutboxStore(log *slog.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool}
}

func (s *OutboxStore) Enqueue(ctx context.Context, aggregateType, aggregateID, eventType string, payload []byte, headers map[string]string, traceparent string) (int64, error) {
	if headers == nil {
		headers = map[string]string{}
	}
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending') RETURNING id`,
		aggregateType, aggregateID, eventType, payload, headers, traceparent).Scan(&id)
	return id, err
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at, retry_count
		FROM outbox
		WHERE status = 'pending'
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, err
	}

	var events []outbox.Event
	for rows.Next() {
		var event outbox.Event
		var headers map[string]string
		if err := rows.Scan(&event.ID, &event.AggregateType, &event.AggregateID, &event.Type, &event.Payload, &headers, &event.Traceparent, &event.CreatedAt, &event.RetryCount); err != nil {
			rows.Close()
			return nil, err
		}
		event.Headers = headers
		event.Status = outbox.StatusInProgress
		event.RelayID = relayID
		events = append(events, event)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}

	_, err = tx.Exec(ctx, `UPDATE outbox SET status = 'in_progress', relay_id = $1, lease_until = now() + make_interval(secs => $2)
		WHERE id = ANY($3)`, relayID, lease.Seconds(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox SET status = 'sent', lease_until = NULL WHERE id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New("no rows updated")
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status = 'failed', last_error = $2, retry_count = retry_count + 1 WHERE id = $1`, id, errMsg)
	return err
}

func (s *OutboxStore) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET lease_until = now() + make_interval(secs => $1) WHERE id = ANY($2) AND relay_id = $3`,
		lease.Seconds(), ids, relayID)
	return err
}

// RequeueExpired returns rows whose lease ran out to pending: in-progress rows from a
// relay that died, and failed rows that still have retries left.
func (s *OutboxStore) RequeueExpired(ctx context.Context, maxRetries int) (int64, error) {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox SET status = 'pending', relay_id = NULL, lease_until = NULL
		WHERE lease_until < now()
		  AND (status = 'in_progress' OR (status = 'failed' AND retry_count < $1))`, maxRetries)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// OutboxNotifier records order notifications as outbox rows for the relay to publish.
type OutboxNotifier struct {
	log   *slog.Logger
	store *OutboxStore
}

func NewOutboxNotifier(log *slog.Logger, store *OutboxStore) *OutboxNotifier {
	return &OutboxNotifier{log: log, store: store}
}

func (n *OutboxNotifier) OrderCompleted(ctx context.Context, o domain.Order) error {
	return n.enqueue(ctx, o, domain.EventOrderCompleted, domain.NewOrderCompleted(o))
}

func (n *OutboxNotifier) PaymentFailed(ctx context.Context, o domain.Order, reason string) error {
	return n.enqueue(ctx, o, domain.EventOrderPaymentFailed, domain.NewOrderPaymentFailed(o, reason))
}

func (n *OutboxNotifier) enqueue(ctx context.Context, o domain.Order, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	headers := map[string]string{"source": "order-service"}
	id, err := n.store.Enqueue(ctx, aggregateOrder, o.ID.String(), eventType, payload, headers, tracing.Traceparent(ctx))
	if err != nil {
		return err
	}
	n.log.Debug("notification enqueued", "order_id", o.ID, "event_type", eventType, "outbox_id", id)
	return nil
}

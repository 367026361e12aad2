package kafka

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/vinyl-storefront/internal/notification/domain"
	"github.com/dmehra2102/vinyl-storefront/pkg/idempotency"
	"github.com/dmehra2102/vinyl-storefront/pkg/outbox"
	"github.com/dmehra2102/vinyl-storefront/pkg/tracing"
)

const idempotencyScope = "notification"

type Handler interface {
	Handle(ctx context.Context, eventType string, payload []byte) error
}

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	log         *slog.Logger
	reader      Reader
	handler     Handler
	idem        *idempotency.Store
	tracer      trace.Tracer
	maxAttempts int
	backoff     time.Duration
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

func NewConsumer(log *slog.Logger, reader Reader, handler Handler, idem *idempotency.Store) *Consumer {
	return &Consumer{
		log:         log,
		reader:      reader,
		handler:     handler,
		idem:        idem,
		tracer:      otel.Tracer("notification-consumer"),
		maxAttempts: 3,
		backoff:     time.Second,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

// handle processes one message at most once per event id. Delivery is best-effort:
// after the last failed attempt the claim is released and the message is dropped.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	key := c.idem.Key(idempotencyScope, messageID(msg))
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		c.log.Error("idempotency check failed", "key", key, "err", err)
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return
	}

	eventType := headerValue(msg.Headers, outbox.HeaderEventType)
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "Notify"+eventType)
	span.SetAttributes(attribute.String("event_type", eventType), attribute.String("order_id", string(msg.Key)))
	defer span.End()

	for attempt := 1; ; attempt++ {
		err = c.handler.Handle(msgCtx, eventType, msg.Value)
		if err == nil {
			return
		}
		span.RecordError(err)
		if permanent(err) {
			c.log.Error("notification dropped", "event_type", eventType, "order_id", string(msg.Key), "err", err)
			return
		}
		if attempt >= c.maxAttempts || ctx.Err() != nil {
			break
		}
		c.log.Warn("notification attempt failed", "attempt", attempt, "event_type", eventType, "err", err)
		select {
		case <-ctx.Done():
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}

	c.log.Error("notification failed", "event_type", eventType, "order_id", string(msg.Key), "err", err)
	if err := c.idem.Release(context.WithoutCancel(ctx), key); err != nil {
		c.log.Error("idempotency release failed", "key", key, "err", err)
	}
}

func permanent(err error) bool {
	return errors.Is(err, domain.ErrMalformedEvent) || errors.Is(err, domain.ErrRecipientNotFound)
}

func messageID(msg kafka.Message) string {
	if id := headerValue(msg.Headers, outbox.HeaderEventID); id != "" {
		return id
	}
	return msg.Topic + ":" + strconv.Itoa(msg.Partition) + ":" + strconv.FormatInt(msg.Offset, 10)
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}

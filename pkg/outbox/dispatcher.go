package outbox

import (
	"context"
	"log/slog"
	"sort"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/vinyl-storefront/pkg/tracing"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewDispatcher(log *slog.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic}
}

// Message builds the record for event. Reserved headers win over any
// same-named entry in event.Headers; the rest are emitted in key order.
func (d *Dispatcher) Message(event Event) kafka.Message {
	keys := make([]string, 0, len(event.Headers))
	for k := range event.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafka.Header, 0, len(keys)+3)
	carrier := tracing.HeaderCarrier{Headers: &headers}
	for _, k := range keys {
		carrier.Set(k, event.Headers[k])
	}
	carrier.Set(HeaderEventType, event.Type)
	carrier.Set(HeaderEventID, event.EventID())
	if event.Traceparent != "" {
		carrier.Set(HeaderTraceparent, event.Traceparent)
	}

	return kafka.Message{
		Topic:   d.topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if err := d.producer.WriteMessages(ctx, d.Message(event)); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", event.ID, "type", event.Type, "err", err)
		return err
	}
	d.log.Info("outbox dispatched", "event_id", event.ID, "type", event.Type)
	return nil
}

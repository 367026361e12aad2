package outbox

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

const (
	HeaderEventType   = "event_type"
	HeaderEventID     = "event_id"
	HeaderTraceparent = "traceparent"
)

type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	RetryCount    int
	LastError     *string
}

// EventID is stable across redeliveries of the same row, so consumers can dedupe on it.
func (e Event) EventID() string {
	return e.AggregateType + "-" + strconv.FormatInt(e.ID, 10)
}

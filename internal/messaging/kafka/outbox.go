package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessing = "processing"
	OutboxStatusSent       = "sent"
	OutboxStatusFailed     = "failed"
)

type OutboxEvent struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	Payload       []byte
	Status        string
	RetryCount    int
	NextRetryAt   *time.Time
	CreatedAt     time.Time
}

// OutboxRepository stores events written alongside business changes.
// Create joins the transaction carried by ctx, if any.
type OutboxRepository interface {
	Create(ctx context.Context, event OutboxEvent) error
	// ClaimPending marks due pending and failed events processing for lease
	// and returns them oldest first, skipping those that already failed
	// maxRetries times. A claimed event is not returned to another caller
	// until its lease expires.
	ClaimPending(ctx context.Context, limit, maxRetries int, lease time.Duration) ([]OutboxEvent, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
}

func ValidateOutboxEvent(event OutboxEvent) error {
	if event.ID == "" {
		return errors.New("outbox id is required")
	}
	if event.Topic == "" {
		return errors.New("outbox topic is required")
	}
	if len(event.Payload) == 0 {
		return errors.New("outbox payload is required")
	}
	switch event.Status {
	case OutboxStatusPending, OutboxStatusProcessing, OutboxStatusSent, OutboxStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid outbox status: %s", event.Status)
	}
}

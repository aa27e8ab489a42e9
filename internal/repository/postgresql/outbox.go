package postgresql

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cmlabs-hris/settlement-backend-go/internal/messaging/kafka"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/database"
)

type outboxRepositoryImpl struct {
	db *database.DB
}

func NewOutboxRepository(db *database.DB) kafka.OutboxRepository {
	return &outboxRepositoryImpl{db: db}
}

// Create implements kafka.OutboxRepository.
func (r *outboxRepositoryImpl) Create(ctx context.Context, event kafka.OutboxEvent) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, topic, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := q.Exec(ctx, query,
		event.ID, event.AggregateType, event.AggregateID, event.EventType, event.Topic, event.Payload, event.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", mapPgError(err))
	}
	return nil
}

// ClaimPending implements kafka.OutboxRepository. The claim is one UPDATE so
// rows locked by another relay are skipped and stay claimed after commit.
// A claim whose lease ran out is picked up again.
func (r *outboxRepositoryImpl) ClaimPending(ctx context.Context, limit, maxRetries int, lease time.Duration) ([]kafka.OutboxEvent, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		WITH due AS (
			SELECT id
			FROM outbox_events
			WHERE status IN ($1, $2, $3)
				AND retry_count < $4
				AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events o
		SET status = $3, next_retry_at = NOW() + make_interval(secs => $6)
		FROM due
		WHERE o.id = due.id
		RETURNING o.id, o.aggregate_type, o.aggregate_id, o.event_type, o.topic, o.payload,
			o.status, o.retry_count, o.next_retry_at, o.created_at
	`

	rows, err := q.Query(ctx, query,
		kafka.OutboxStatusPending, kafka.OutboxStatusFailed, kafka.OutboxStatusProcessing,
		maxRetries, limit, lease.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]kafka.OutboxEvent, 0, limit)
	for rows.Next() {
		var e kafka.OutboxEvent
		if err := rows.Scan(
			&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Topic,
			&e.Payload, &e.Status, &e.RetryCount, &e.NextRetryAt, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to claim pending outbox events: %w", err)
	}

	// RETURNING does not keep the subquery order.
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })

	return events, nil
}

// MarkSent implements kafka.OutboxRepository.
func (r *outboxRepositoryImpl) MarkSent(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE outbox_events
		SET status = $2, sent_at = NOW(), next_retry_at = NULL, last_error = NULL
		WHERE id = $1
	`

	if _, err := q.Exec(ctx, query, id, kafka.OutboxStatusSent); err != nil {
		return fmt.Errorf("failed to mark outbox event %s sent: %w", id, err)
	}
	return nil
}

// MarkFailed implements kafka.OutboxRepository. The next attempt backs off
// linearly, capped at 150 seconds.
func (r *outboxRepositoryImpl) MarkFailed(ctx context.Context, id string, reason string) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE outbox_events
		SET status = $2,
			retry_count = retry_count + 1,
			last_error = LEFT($3, 500),
			next_retry_at = NOW() + (LEAST(retry_count + 1, 10) * INTERVAL '15 seconds')
		WHERE id = $1
	`

	if _, err := q.Exec(ctx, query, id, kafka.OutboxStatusFailed, reason); err != nil {
		return fmt.Errorf("failed to mark outbox event %s failed: %w", id, err)
	}
	return nil
}

// DeleteSentBefore implements kafka.OutboxRepository.
func (r *outboxRepositoryImpl) DeleteSentBefore(ctx context.Context, before time.Time) (int64, error) {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, "DELETE FROM outbox_events WHERE status = $1 AND sent_at < $2", kafka.OutboxStatusSent, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sent outbox events: %w", err)
	}
	return tag.RowsAffected(), nil
}

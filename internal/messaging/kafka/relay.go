package kafka

import (
	"context"
	"log/slog"
	"time"
)

type RelayOptions struct {
	BatchSize  int
	MaxRetries int
	// ClaimLease is how long a claimed batch stays hidden from other relays.
	ClaimLease time.Duration
}

// Relay moves committed outbox events to the broker. Delivery is at least
// once; consumers deduplicate on the event_id header.
type Relay struct {
	repo      OutboxRepository
	publisher Publisher
	logger    *slog.Logger
	opts      RelayOptions
}

func NewRelay(repo OutboxRepository, publisher Publisher, logger *slog.Logger, opts RelayOptions) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 10
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = 5 * time.Minute
	}
	return &Relay{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With("component", "outbox_relay"),
		opts:      opts,
	}
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "poll_interval", pollInterval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.ProcessPending(ctx); err != nil {
				r.logger.Error("process outbox events failed", "error", err)
			}
		}
	}
}

// ProcessPending publishes one batch and returns how many events were sent.
func (r *Relay) ProcessPending(ctx context.Context) (int, error) {
	events, err := r.repo.ClaimPending(ctx, r.opts.BatchSize, r.opts.MaxRetries, r.opts.ClaimLease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	r.logger.Debug("processing pending outbox events", "count", len(events))

	sent := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		if err := r.publisher.Publish(ctx, event); err != nil {
			r.logger.Error("publish outbox event failed",
				"outbox_id", event.ID,
				"event_type", event.EventType,
				"topic", event.Topic,
				"retry_count", event.RetryCount,
				"error", err,
			)
			if markErr := r.repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				r.logger.Error("mark outbox failed failed", "outbox_id", event.ID, "error", markErr)
			}
			continue
		}

		if err := r.repo.MarkSent(ctx, event.ID); err != nil {
			r.logger.Error("mark outbox sent failed", "outbox_id", event.ID, "error", err)
			continue
		}
		sent++

		r.logger.Info("outbox event sent",
			"outbox_id", event.ID,
			"event_type", event.EventType,
			"topic", event.Topic,
		)
	}

	return sent, nil
}

// Sweep deletes events delivered before now minus retention.
func (r *Relay) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	deleted, err := r.repo.DeleteSentBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.logger.Info("outbox sweep completed", "deleted", deleted)
	}
	return deleted, nil
}

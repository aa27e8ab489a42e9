package cron

import (
	"context"
	"time"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
)

// OutboxSweeper deletes delivered outbox events older than retention.
type OutboxSweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (int64, error)
}

type SettlementJobs struct {
	settlementService settlement.SettlementService
	sweeper           OutboxSweeper
	auditInterval     time.Duration
	outboxRetention   time.Duration
}

func NewSettlementJobs(
	settlementService settlement.SettlementService,
	sweeper OutboxSweeper,
	auditInterval time.Duration,
	outboxRetention time.Duration,
) *SettlementJobs {
	return &SettlementJobs{
		settlementService: settlementService,
		sweeper:           sweeper,
		auditInterval:     auditInterval,
		outboxRetention:   outboxRetention,
	}
}

func (j *SettlementJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob("ledger_replay_audit", j.auditInterval, j.AuditLedgers)
	if j.sweeper != nil && j.outboxRetention > 0 {
		scheduler.AddJob("outbox_sweep", time.Hour, j.SweepOutbox)
	}
}

// AuditLedgers replays every ledger. Drift is logged by the service and
// does not fail the job.
func (j *SettlementJobs) AuditLedgers(ctx context.Context) error {
	_, err := j.settlementService.AuditLedgers(ctx)
	return err
}

func (j *SettlementJobs) SweepOutbox(ctx context.Context) error {
	_, err := j.sweeper.Sweep(ctx, j.outboxRetention)
	return err
}

package settlement

import (
	"context"
	"time"
)

// LedgerRepository stores the Advance and Carry-Forward balances. Rows exist
// from staff creation; Ensure backfills staff that predate the ledger table.
type LedgerRepository interface {
	Ensure(ctx context.Context, staffID string) error
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, staffID string) (LedgerBalances, error)
	// Get returns zero balances when the row does not exist yet.
	Get(ctx context.Context, staffID string) (LedgerBalances, error)
	// Update writes both balances if Version still matches, returning the
	// stored row with the incremented version. A mismatch is ErrConcurrencyConflict.
	Update(ctx context.Context, balances LedgerBalances) (LedgerBalances, error)
	ListStaffIDs(ctx context.Context) ([]string, error)
}

// PaymentRecordRepository is append-only.
type PaymentRecordRepository interface {
	Append(ctx context.Context, record PaymentRecord) (PaymentRecord, error)
	GetByIdempotencyKey(ctx context.Context, key string) (PaymentRecord, error)
	ListByStaff(ctx context.Context, staffID string, filter PaymentRecordFilter) ([]PaymentRecord, int64, error)
	// ListAllByStaff returns every record in commit order.
	ListAllByStaff(ctx context.Context, staffID string) ([]PaymentRecord, error)
}

// EventRecorder writes integration events in the caller's transaction.
type EventRecorder interface {
	RecordSettlement(ctx context.Context, record PaymentRecord) error
}

// Transactor runs fn in one atomic unit. Repositories called with the
// context passed to fn join that unit.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	// WithinSnapshot runs read-only fn against one consistent view of storage.
	WithinSnapshot(ctx context.Context, fn func(ctx context.Context) error) error
}

// InFlightGuard rejects a second concurrent request carrying the same
// idempotency key. It is advisory; the unique key in storage is authoritative.
type InFlightGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

package settlement

import "errors"

var (
	// Validation
	ErrUnknownPaymentAccount = errors.New("receiving account does not match staff bank account")
	ErrPeriodBeforeJoining   = errors.New("settlement period ends before staff joining date")
	ErrStaffInactive         = errors.New("advance cannot be issued to inactive staff")

	// Conflicts
	ErrPeriodAlreadySettled    = errors.New("salary already settled for this period")
	ErrIdempotencyConflict     = errors.New("idempotency key was used with a different request")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already recorded")
	ErrSettlementInProgress    = errors.New("settlement with this idempotency key is in progress")
	ErrConcurrencyConflict     = errors.New("ledger was modified by a concurrent settlement")

	ErrPaymentRecordNotFound = errors.New("payment record not found")
	ErrNegativeBalance       = errors.New("ledger balance cannot be negative")
	ErrInvalidSettlementType = errors.New("invalid settlement type")
	ErrNonPositiveAmount     = errors.New("amount paid must be greater than zero")
	ErrNegativeNetPayable    = errors.New("net payable cannot be negative")

	// ErrPersistence wraps storage failures that aborted a settlement.
	ErrPersistence = errors.New("settlement persistence failed")
)

// IsRetryable reports whether the caller may resubmit the same request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrSettlementInProgress)
}

package postgresql

import (
	"errors"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateCheckViolation       = "23514"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"

	constraintIdempotencyKey = "uk_payment_records_idempotency_key"
	constraintSalaryPeriod   = "uk_payment_records_salary_period"
)

// mapPgError turns PostgreSQL failures the settlement engine reacts to into
// domain errors. The original error stays in the chain.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return errors.Join(settlement.ErrConcurrencyConflict, err)
	case sqlStateUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintIdempotencyKey:
			return errors.Join(settlement.ErrDuplicateIdempotencyKey, err)
		case constraintSalaryPeriod:
			return errors.Join(settlement.ErrPeriodAlreadySettled, err)
		}
	case sqlStateCheckViolation:
		if pgErr.TableName == "staff_ledgers" {
			return errors.Join(settlement.ErrNegativeBalance, err)
		}
	}
	return err
}

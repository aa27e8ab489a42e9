package postgresql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapPgError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, settlement.ErrConcurrencyConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, settlement.ErrConcurrencyConflict},
		{"idempotency key", &pgconn.PgError{Code: "23505", ConstraintName: "uk_payment_records_idempotency_key"}, settlement.ErrDuplicateIdempotencyKey},
		{"salary period", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uk_payment_records_salary_period"}), settlement.ErrPeriodAlreadySettled},
		{"negative balance", &pgconn.PgError{Code: "23514", TableName: "staff_ledgers"}, settlement.ErrNegativeBalance},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			mapped := mapPgError(c.err)
			assert.ErrorIs(t, mapped, c.want)

			var pgErr *pgconn.PgError
			assert.True(t, errors.As(mapped, &pgErr))
		})
	}

	other := &pgconn.PgError{Code: "23505", ConstraintName: "staff_pkey"}
	assert.Same(t, other, mapPgError(other))

	plain := errors.New("boom")
	assert.Equal(t, plain, mapPgError(plain))
}

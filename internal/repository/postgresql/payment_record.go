package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const paymentRecordColumns = `
	id, seq, staff_id, type, amount, mode, receiving_account, period_month, period_year, notes,
	idempotency_key, request_hash, recorded_by,
	base_salary, leave_days, deduction_per_day, deduction, net_payable,
	shortfall, overpay, from_advance, to_carry_forward, from_carry_forward, to_advance,
	advance_after, carry_forward_after, created_at
`

type paymentRecordRepositoryImpl struct {
	db *database.DB
}

func NewPaymentRecordRepository(db *database.DB) settlement.PaymentRecordRepository {
	return &paymentRecordRepositoryImpl{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaymentRecord(row rowScanner) (settlement.PaymentRecord, error) {
	var (
		rec        settlement.PaymentRecord
		np         settlement.NetPayable
		netPayable decimal.Decimal
	)
	err := row.Scan(
		&rec.ID, &rec.Sequence, &rec.StaffID, &rec.Type, &rec.Amount, &rec.Mode, &rec.ReceivingAccount,
		&rec.PeriodMonth, &rec.PeriodYear, &rec.Notes,
		&rec.IdempotencyKey, &rec.RequestHash, &rec.RecordedBy,
		&np.BaseSalary, &np.Deduction.LeaveDays, &np.Deduction.PerDay, &np.Deduction.Amount, &netPayable,
		&rec.Shortfall, &rec.Overpay,
		&rec.Movement.FromAdvance, &rec.Movement.ToCarryForward, &rec.Movement.FromCarryForward, &rec.Movement.ToAdvance,
		&rec.AdvanceAfter, &rec.CarryForwardAfter, &rec.CreatedAt,
	)
	if err != nil {
		return settlement.PaymentRecord{}, err
	}
	if rec.Type == settlement.TypeSalary {
		np.Amount = netPayable
		rec.NetPayable = &np
	}
	return rec, nil
}

// Append implements settlement.PaymentRecordRepository.
func (r *paymentRecordRepositoryImpl) Append(ctx context.Context, rec settlement.PaymentRecord) (settlement.PaymentRecord, error) {
	q := GetQuerier(ctx, r.db)

	np := settlement.NetPayable{}
	if rec.NetPayable != nil {
		np = *rec.NetPayable
	}

	query := `
		INSERT INTO payment_records (
			id, staff_id, type, amount, mode, receiving_account, period_month, period_year, notes,
			idempotency_key, request_hash, recorded_by,
			base_salary, leave_days, deduction_per_day, deduction, net_payable,
			shortfall, overpay, from_advance, to_carry_forward, from_carry_forward, to_advance,
			advance_after, carry_forward_after
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23,
			$24, $25
		)
		RETURNING seq, created_at
	`

	err := q.QueryRow(ctx, query,
		rec.ID, rec.StaffID, rec.Type, rec.Amount, rec.Mode, rec.ReceivingAccount, rec.PeriodMonth, rec.PeriodYear, rec.Notes,
		rec.IdempotencyKey, rec.RequestHash, rec.RecordedBy,
		np.BaseSalary, np.Deduction.LeaveDays, np.Deduction.PerDay, np.Deduction.Amount, np.Amount,
		rec.Shortfall, rec.Overpay,
		rec.Movement.FromAdvance, rec.Movement.ToCarryForward, rec.Movement.FromCarryForward, rec.Movement.ToAdvance,
		rec.AdvanceAfter, rec.CarryForwardAfter,
	).Scan(&rec.Sequence, &rec.CreatedAt)
	if err != nil {
		return settlement.PaymentRecord{}, fmt.Errorf("failed to append payment record: %w", mapPgError(err))
	}

	return rec, nil
}

// GetByIdempotencyKey implements settlement.PaymentRecordRepository.
func (r *paymentRecordRepositoryImpl) GetByIdempotencyKey(ctx context.Context, key string) (settlement.PaymentRecord, error) {
	q := GetQuerier(ctx, r.db)

	query := "SELECT " + paymentRecordColumns + " FROM payment_records WHERE idempotency_key = $1"

	rec, err := scanPaymentRecord(q.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.PaymentRecord{}, settlement.ErrPaymentRecordNotFound
		}
		return settlement.PaymentRecord{}, fmt.Errorf("failed to get payment record by idempotency key: %w", err)
	}

	return rec, nil
}

// ListByStaff implements settlement.PaymentRecordRepository.
func (r *paymentRecordRepositoryImpl) ListByStaff(ctx context.Context, staffID string, filter settlement.PaymentRecordFilter) ([]settlement.PaymentRecord, int64, error) {
	q := GetQuerier(ctx, r.db)

	where := " WHERE staff_id = $1"
	args := []any{staffID}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}

	var total int64
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM payment_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payment records: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset())
	query := "SELECT " + paymentRecordColumns + " FROM payment_records" + where +
		fmt.Sprintf(" ORDER BY seq DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	records, err := r.list(ctx, q, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// ListAllByStaff implements settlement.PaymentRecordRepository.
func (r *paymentRecordRepositoryImpl) ListAllByStaff(ctx context.Context, staffID string) ([]settlement.PaymentRecord, error) {
	q := GetQuerier(ctx, r.db)

	query := "SELECT " + paymentRecordColumns + " FROM payment_records WHERE staff_id = $1 ORDER BY seq ASC"

	return r.list(ctx, q, query, staffID)
}

func (r *paymentRecordRepositoryImpl) list(ctx context.Context, q database.Querier, query string, args ...any) ([]settlement.PaymentRecord, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment records: %w", err)
	}
	defer rows.Close()

	records := []settlement.PaymentRecord{}
	for rows.Next() {
		rec, err := scanPaymentRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

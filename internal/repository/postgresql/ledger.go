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

type ledgerRepositoryImpl struct {
	db *database.DB
}

func NewLedgerRepository(db *database.DB) settlement.LedgerRepository {
	return &ledgerRepositoryImpl{db: db}
}

// Ensure implements settlement.LedgerRepository.
func (r *ledgerRepositoryImpl) Ensure(ctx context.Context, staffID string) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO staff_ledgers (staff_id)
		VALUES ($1)
		ON CONFLICT (staff_id) DO NOTHING
	`

	if _, err := q.Exec(ctx, query, staffID); err != nil {
		return fmt.Errorf("failed to ensure ledger for staff %s: %w", staffID, mapPgError(err))
	}
	return nil
}

// GetForUpdate implements settlement.LedgerRepository.
func (r *ledgerRepositoryImpl) GetForUpdate(ctx context.Context, staffID string) (settlement.LedgerBalances, error) {
	return r.get(ctx, staffID, true)
}

// Get implements settlement.LedgerRepository.
func (r *ledgerRepositoryImpl) Get(ctx context.Context, staffID string) (settlement.LedgerBalances, error) {
	b, err := r.get(ctx, staffID, false)
	if errors.Is(err, pgx.ErrNoRows) {
		return settlement.LedgerBalances{StaffID: staffID, Advance: decimal.Zero, CarryForward: decimal.Zero}, nil
	}
	return b, err
}

func (r *ledgerRepositoryImpl) get(ctx context.Context, staffID string, forUpdate bool) (settlement.LedgerBalances, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT staff_id, advance_balance, carry_forward_balance, version, updated_at
		FROM staff_ledgers
		WHERE staff_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var b settlement.LedgerBalances
	err := q.QueryRow(ctx, query, staffID).Scan(&b.StaffID, &b.Advance, &b.CarryForward, &b.Version, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.LedgerBalances{}, err
		}
		return settlement.LedgerBalances{}, fmt.Errorf("failed to get ledger for staff %s: %w", staffID, mapPgError(err))
	}

	return b, nil
}

// Update implements settlement.LedgerRepository.
func (r *ledgerRepositoryImpl) Update(ctx context.Context, balances settlement.LedgerBalances) (settlement.LedgerBalances, error) {
	if err := balances.Validate(); err != nil {
		return settlement.LedgerBalances{}, err
	}

	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE staff_ledgers
		SET advance_balance = $2, carry_forward_balance = $3, version = version + 1, updated_at = NOW()
		WHERE staff_id = $1 AND version = $4
		RETURNING staff_id, advance_balance, carry_forward_balance, version, updated_at
	`

	var b settlement.LedgerBalances
	err := q.QueryRow(ctx, query, balances.StaffID, balances.Advance, balances.CarryForward, balances.Version).Scan(
		&b.StaffID, &b.Advance, &b.CarryForward, &b.Version, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.LedgerBalances{}, settlement.ErrConcurrencyConflict
		}
		return settlement.LedgerBalances{}, fmt.Errorf("failed to update ledger for staff %s: %w", balances.StaffID, mapPgError(err))
	}

	return b, nil
}

// ListStaffIDs implements settlement.LedgerRepository.
func (r *ledgerRepositoryImpl) ListStaffIDs(ctx context.Context) ([]string, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, "SELECT staff_id FROM staff_ledgers ORDER BY staff_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list ledgers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ledger staff id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/staff"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type staffRepositoryImpl struct {
	db *database.DB
}

func NewStaffRepository(db *database.DB) staff.StaffRepository {
	return &staffRepositoryImpl{db: db}
}

// GetByID implements staff.StaffRepository.
func (r *staffRepositoryImpl) GetByID(ctx context.Context, id string) (staff.Staff, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, full_name, base_salary, is_active, joining_date, bank_account_number, created_at, updated_at
		FROM staff
		WHERE id = $1
	`

	var s staff.Staff
	err := q.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.FullName, &s.BaseSalary, &s.IsActive, &s.JoiningDate, &s.BankAccountNumber, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return staff.Staff{}, staff.ErrStaffNotFound
		}
		return staff.Staff{}, fmt.Errorf("failed to get staff %s: %w", id, err)
	}

	return s, nil
}

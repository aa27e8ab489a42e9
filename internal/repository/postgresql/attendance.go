package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/database"
)

type attendanceRepositoryImpl struct {
	db *database.DB
}

func NewAttendanceRepository(db *database.DB) attendance.AttendanceRepository {
	return &attendanceRepositoryImpl{db: db}
}

// CountByStatus implements attendance.AttendanceRepository.
func (r *attendanceRepositoryImpl) CountByStatus(ctx context.Context, staffID string, from, to time.Time, statuses []attendance.Status) (int, error) {
	if to.Before(from) {
		return 0, attendance.ErrInvalidDateRange
	}
	if len(statuses) == 0 {
		return 0, nil
	}

	q := GetQuerier(ctx, r.db)

	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	query := `
		SELECT COUNT(*)
		FROM attendances
		WHERE staff_id = $1 AND date BETWEEN $2 AND $3 AND status = ANY($4)
	`

	var count int
	if err := q.QueryRow(ctx, query, staffID, from, to, values).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count attendance for staff %s: %w", staffID, err)
	}

	return count, nil
}

// ListByStaffAndRange implements attendance.AttendanceRepository.
func (r *attendanceRepositoryImpl) ListByStaffAndRange(ctx context.Context, staffID string, from, to time.Time) ([]attendance.Attendance, error) {
	if to.Before(from) {
		return nil, attendance.ErrInvalidDateRange
	}

	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, staff_id, date, status, created_at, updated_at
		FROM attendances
		WHERE staff_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date
	`

	rows, err := q.Query(ctx, query, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance for staff %s: %w", staffID, err)
	}
	defer rows.Close()

	var records []attendance.Attendance
	for rows.Next() {
		var a attendance.Attendance
		if err := rows.Scan(&a.ID, &a.StaffID, &a.Date, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		records = append(records, a)
	}

	return records, rows.Err()
}

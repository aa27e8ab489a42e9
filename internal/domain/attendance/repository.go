package attendance

import (
	"context"
	"time"
)

type AttendanceRepository interface {
	// CountByStatus counts records dated within [from, to] inclusive.
	CountByStatus(ctx context.Context, staffID string, from, to time.Time, statuses []Status) (int, error)
	ListByStaffAndRange(ctx context.Context, staffID string, from, to time.Time) ([]Attendance, error)
}

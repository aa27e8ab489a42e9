package attendance

import (
	"time"
)

// Status enum
type Status string

const (
	StatusPresent     Status = "present"
	StatusAbsent      Status = "absent"
	StatusPaidLeave   Status = "paid_leave"
	StatusUnpaidLeave Status = "unpaid_leave"
)

// DeductibleStatuses are the statuses that reduce salary for a period.
var DeductibleStatuses = []Status{StatusAbsent, StatusUnpaidLeave}

func (s Status) IsValid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusPaidLeave, StatusUnpaidLeave:
		return true
	}
	return false
}

func (s Status) IsDeductible() bool {
	for _, d := range DeductibleStatuses {
		if s == d {
			return true
		}
	}
	return false
}

// Attendance is one record per staff per day, written by the attendance subsystem.
type Attendance struct {
	ID        string
	StaffID   string
	Date      time.Time
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

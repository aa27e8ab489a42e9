package staff

import (
	"time"

	"github.com/shopspring/decimal"
)

// Staff is owned by the staff-management subsystem. Settlement only reads it.
type Staff struct {
	ID                string
	FullName          string
	BaseSalary        decimal.Decimal
	IsActive          bool
	JoiningDate       time.Time
	BankAccountNumber *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

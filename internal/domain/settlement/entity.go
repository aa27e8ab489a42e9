package settlement

import (
	"time"

	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// SettlementType enum
type SettlementType string

const (
	TypeAdvance            SettlementType = "advance"
	TypeSalary             SettlementType = "salary"
	TypeSalaryCarryforward SettlementType = "salary_carryforward"
)

func (t SettlementType) IsValid() bool {
	switch t {
	case TypeAdvance, TypeSalary, TypeSalaryCarryforward:
		return true
	}
	return false
}

// PaymentMode enum
type PaymentMode string

const (
	ModeCash               PaymentMode = "cash"
	ModeElectronicTransfer PaymentMode = "electronic_transfer"
)

func (m PaymentMode) IsValid() bool {
	return m == ModeCash || m == ModeElectronicTransfer
}

// Period is a calendar month. Dates are UTC.
type Period struct {
	Month int
	Year  int
}

func (p Period) IsValid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year >= 2000 && p.Year <= 2100
}

// Start returns the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// LedgerBalances is the cached pair of running balances for one staff member.
// Advance is what the staff owes the business, CarryForward is what the
// business owes the staff. Both are never negative.
type LedgerBalances struct {
	StaffID      string
	Advance      decimal.Decimal
	CarryForward decimal.Decimal
	Version      int64
	UpdatedAt    time.Time
}

func (b LedgerBalances) Validate() error {
	if b.Advance.IsNegative() || b.CarryForward.IsNegative() {
		return ErrNegativeBalance
	}
	return nil
}

// CheckLimit rejects balances a NUMERIC(14,2) column cannot store.
func (b LedgerBalances) CheckLimit() error {
	var errs validator.ValidationErrors
	limit := MaxAmount.StringFixed(MaxAmountScale)
	if b.Advance.GreaterThan(MaxAmount) {
		errs = append(errs, validator.ValidationError{Field: "amount", Message: "would raise the advance balance above " + limit})
	}
	if b.CarryForward.GreaterThan(MaxAmount) {
		errs = append(errs, validator.ValidationError{Field: "amount", Message: "would raise the carry-forward balance above " + limit})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Net is Advance minus CarryForward: the staff's net position toward the business.
func (b LedgerBalances) Net() decimal.Decimal {
	return b.Advance.Sub(b.CarryForward)
}

// Equal compares balances only.
func (b LedgerBalances) Equal(other LedgerBalances) bool {
	return b.Advance.Equal(other.Advance) && b.CarryForward.Equal(other.CarryForward)
}

type Deduction struct {
	LeaveDays int
	PerDay    decimal.Decimal
	Amount    decimal.Decimal
}

type NetPayable struct {
	BaseSalary decimal.Decimal
	Deduction  Deduction
	Amount     decimal.Decimal
}

// Movement is how much moved in and out of each ledger during one settlement.
type Movement struct {
	FromAdvance      decimal.Decimal
	ToCarryForward   decimal.Decimal
	FromCarryForward decimal.Decimal
	ToAdvance        decimal.Decimal
}

// Outcome is the result of reconciling one payment against the ledgers.
type Outcome struct {
	Shortfall decimal.Decimal
	Overpay   decimal.Decimal
	Movement  Movement
	Before    LedgerBalances
	After     LedgerBalances
}

// Changed reports whether either ledger moved.
func (o Outcome) Changed() bool {
	return !o.Before.Equal(o.After)
}

// PaymentRecord is an immutable audit entry. The breakdown columns capture
// what the engine computed at commit time so history can be replayed.
type PaymentRecord struct {
	ID                string
	Sequence          int64
	StaffID           string
	Type              SettlementType
	Amount            decimal.Decimal
	Mode              PaymentMode
	ReceivingAccount  *string
	PeriodMonth       *int
	PeriodYear        *int
	Notes             *string
	IdempotencyKey    string
	RequestHash       string
	RecordedBy        *string
	NetPayable        *NetPayable
	Shortfall         decimal.Decimal
	Overpay           decimal.Decimal
	Movement          Movement
	AdvanceAfter      decimal.Decimal
	CarryForwardAfter decimal.Decimal
	CreatedAt         time.Time
}

// Period returns the settlement period for salary records.
func (r PaymentRecord) Period() (Period, bool) {
	if r.PeriodMonth == nil || r.PeriodYear == nil {
		return Period{}, false
	}
	return Period{Month: *r.PeriodMonth, Year: *r.PeriodYear}, true
}

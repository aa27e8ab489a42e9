package settlement

import (
	"context"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/staff"
	"github.com/shopspring/decimal"
)

// DeductionDenominator is the number of days a monthly salary is divided by
// to price one day of unpaid absence. It is a payroll policy and does not
// follow the calendar length of the month.
const DeductionDenominator = 30

// Calculator derives leave deductions and net payable salary from the
// current staff and attendance rows. It never writes.
type Calculator struct {
	staffRepo      staff.StaffRepository
	attendanceRepo attendance.AttendanceRepository
}

func NewCalculator(staffRepo staff.StaffRepository, attendanceRepo attendance.AttendanceRepository) *Calculator {
	return &Calculator{staffRepo: staffRepo, attendanceRepo: attendanceRepo}
}

// ComputeDeduction counts absent and unpaid leave days in the period and
// prices them at floor(base salary / 30) each.
func (c *Calculator) ComputeDeduction(ctx context.Context, staffID string, period settlement.Period) (settlement.Deduction, error) {
	st, err := c.staffRepo.GetByID(ctx, staffID)
	if err != nil {
		return settlement.Deduction{}, err
	}
	return c.deductionFor(ctx, st, period)
}

func (c *Calculator) deductionFor(ctx context.Context, st staff.Staff, period settlement.Period) (settlement.Deduction, error) {
	leaveDays, err := c.attendanceRepo.CountByStatus(ctx, st.ID, period.Start(), period.End(), attendance.DeductibleStatuses)
	if err != nil {
		return settlement.Deduction{}, err
	}
	return DeductionFor(st.BaseSalary, leaveDays), nil
}

// DeductionPerDay returns floor(baseSalary / DeductionDenominator).
func DeductionPerDay(baseSalary decimal.Decimal) decimal.Decimal {
	if !baseSalary.IsPositive() {
		return decimal.Zero
	}
	quotient, _ := baseSalary.QuoRem(decimal.NewFromInt(DeductionDenominator), 0)
	return quotient
}

// DeductionFor prices leaveDays against baseSalary. Negative day counts are
// treated as zero.
func DeductionFor(baseSalary decimal.Decimal, leaveDays int) settlement.Deduction {
	if leaveDays < 0 {
		leaveDays = 0
	}
	perDay := DeductionPerDay(baseSalary)
	return settlement.Deduction{
		LeaveDays: leaveDays,
		PerDay:    perDay,
		Amount:    perDay.Mul(decimal.NewFromInt(int64(leaveDays))),
	}
}

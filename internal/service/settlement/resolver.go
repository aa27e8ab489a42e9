package settlement

import (
	"context"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/staff"
	"github.com/shopspring/decimal"
)

// ResolveNetPayable reads the current base salary, so a salary change
// applies from the next settlement onward.
func (c *Calculator) ResolveNetPayable(ctx context.Context, staffID string, period settlement.Period) (settlement.NetPayable, error) {
	st, err := c.staffRepo.GetByID(ctx, staffID)
	if err != nil {
		return settlement.NetPayable{}, err
	}
	return c.resolveFor(ctx, st, period)
}

func (c *Calculator) resolveFor(ctx context.Context, st staff.Staff, period settlement.Period) (settlement.NetPayable, error) {
	deduction, err := c.deductionFor(ctx, st, period)
	if err != nil {
		return settlement.NetPayable{}, err
	}
	return NetPayableFor(st.BaseSalary, deduction), nil
}

// NetPayableFor is max(baseSalary - deduction, 0).
func NetPayableFor(baseSalary decimal.Decimal, deduction settlement.Deduction) settlement.NetPayable {
	amount := baseSalary.Sub(deduction.Amount)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return settlement.NetPayable{
		BaseSalary: baseSalary,
		Deduction:  deduction,
		Amount:     amount,
	}
}

package settlement

import (
	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/shopspring/decimal"
)

// Reconcile applies one payment to the ledgers without touching storage.
//
// Advance adds the payment to the Advance balance. Salary compares the
// payment with netPayable: a shortfall first recovers outstanding advance and
// carries the rest forward, an overpay first clears carry-forward and books
// the rest as a new advance. SalaryCarryforward applies the whole payment
// the way an overpay is applied. netPayable is ignored for non-salary types.
//
// Advance minus CarryForward moves by exactly amountPaid - netPayable for
// Salary and by amountPaid otherwise.
func Reconcile(kind settlement.SettlementType, amountPaid, netPayable decimal.Decimal, before settlement.LedgerBalances) (settlement.Outcome, error) {
	if !amountPaid.IsPositive() {
		return settlement.Outcome{}, settlement.ErrNonPositiveAmount
	}
	if err := before.Validate(); err != nil {
		return settlement.Outcome{}, err
	}

	outcome := settlement.Outcome{
		Shortfall: decimal.Zero,
		Overpay:   decimal.Zero,
		Movement: settlement.Movement{
			FromAdvance:      decimal.Zero,
			ToCarryForward:   decimal.Zero,
			FromCarryForward: decimal.Zero,
			ToAdvance:        decimal.Zero,
		},
		Before: before,
	}

	switch kind {
	case settlement.TypeAdvance:
		outcome.Movement.ToAdvance = amountPaid

	case settlement.TypeSalary:
		if netPayable.IsNegative() {
			return settlement.Outcome{}, settlement.ErrNegativeNetPayable
		}
		switch amountPaid.Cmp(netPayable) {
		case -1:
			outcome.Shortfall = netPayable.Sub(amountPaid)
			outcome.Movement.FromAdvance = decimal.Min(outcome.Shortfall, before.Advance)
			outcome.Movement.ToCarryForward = outcome.Shortfall.Sub(outcome.Movement.FromAdvance)
		case 1:
			outcome.Overpay = amountPaid.Sub(netPayable)
			absorbExcess(&outcome.Movement, outcome.Overpay, before)
		}

	case settlement.TypeSalaryCarryforward:
		absorbExcess(&outcome.Movement, amountPaid, before)

	default:
		return settlement.Outcome{}, settlement.ErrInvalidSettlementType
	}

	after := before
	after.Advance = before.Advance.Sub(outcome.Movement.FromAdvance).Add(outcome.Movement.ToAdvance)
	after.CarryForward = before.CarryForward.Sub(outcome.Movement.FromCarryForward).Add(outcome.Movement.ToCarryForward)
	if err := after.Validate(); err != nil {
		return settlement.Outcome{}, err
	}
	if err := after.CheckLimit(); err != nil {
		return settlement.Outcome{}, err
	}
	outcome.After = after

	return outcome, nil
}

// absorbExcess clears carry-forward first and books the remainder as advance.
func absorbExcess(m *settlement.Movement, excess decimal.Decimal, before settlement.LedgerBalances) {
	m.FromCarryForward = decimal.Min(excess, before.CarryForward)
	m.ToAdvance = excess.Sub(m.FromCarryForward)
}

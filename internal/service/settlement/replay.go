package settlement

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/shopspring/decimal"
)

// ReplayBalances rebuilds the ledger from the payment log. Each salary record
// is replayed with the net payable stored on it, and the leave days it was
// priced with are checked against today's attendance.
func (s *SettlementServiceImpl) ReplayBalances(ctx context.Context, staffID string) (settlement.ReplayResult, error) {
	if err := validateStaffID(staffID); err != nil {
		return settlement.ReplayResult{}, err
	}

	// The log and the cached ledger must come from the same snapshot, or a
	// settlement committing between the reads shows up as drift.
	var (
		records []settlement.PaymentRecord
		cached  settlement.LedgerBalances
	)
	err := s.tx.WithinSnapshot(ctx, func(ctx context.Context) error {
		var err error
		if records, err = s.recordRepo.ListAllByStaff(ctx, staffID); err != nil {
			return err
		}
		cached, err = s.ledgerRepo.Get(ctx, staffID)
		return err
	})
	if err != nil {
		return settlement.ReplayResult{}, classify(err)
	}

	replayed := settlement.LedgerBalances{StaffID: staffID, Advance: decimal.Zero, CarryForward: decimal.Zero}
	var stale []string

	for _, rec := range records {
		netAmount := decimal.Zero
		if rec.Type == settlement.TypeSalary {
			if rec.NetPayable == nil {
				return settlement.ReplayResult{}, fmt.Errorf("payment record %s has no net payable", rec.ID)
			}
			netAmount = rec.NetPayable.Amount

			if period, ok := rec.Period(); ok {
				days, err := s.countLeaveDays(ctx, staffID, period)
				if err != nil {
					return settlement.ReplayResult{}, classify(err)
				}
				if days != rec.NetPayable.Deduction.LeaveDays {
					stale = append(stale, settlement.FormatPeriod(period))
				}
			}
		}

		outcome, err := Reconcile(rec.Type, rec.Amount, netAmount, replayed)
		if err != nil {
			return settlement.ReplayResult{}, fmt.Errorf("replay payment record %s: %w", rec.ID, err)
		}
		replayed = outcome.After
	}

	return settlement.ReplayResult{
		StaffID:              staffID,
		RecordCount:          len(records),
		ReplayedAdvance:      replayed.Advance,
		ReplayedCarryForward: replayed.CarryForward,
		CachedAdvance:        cached.Advance,
		CachedCarryForward:   cached.CarryForward,
		BalancesMatch:        replayed.Equal(cached),
		StalePeriods:         stale,
	}, nil
}

func (s *SettlementServiceImpl) countLeaveDays(ctx context.Context, staffID string, period settlement.Period) (int, error) {
	records, err := s.attendanceRepo.ListByStaffAndRange(ctx, staffID, period.Start(), period.End())
	if err != nil {
		return 0, err
	}
	days := 0
	for _, a := range records {
		if a.Status.IsDeductible() {
			days++
		}
	}
	return days, nil
}

// AuditLedgers replays every ledger and reports the ones that drifted.
// A staff member whose replay fails is logged and skipped.
func (s *SettlementServiceImpl) AuditLedgers(ctx context.Context) (settlement.AuditReport, error) {
	staffIDs, err := s.ledgerRepo.ListStaffIDs(ctx)
	if err != nil {
		return settlement.AuditReport{}, classify(err)
	}

	report := settlement.AuditReport{Drifted: []settlement.LedgerDrift{}}
	for _, staffID := range staffIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result, err := s.ReplayBalances(ctx, staffID)
		if err != nil {
			s.logger.Error("ledger replay failed", "staff_id", staffID, "error", err)
			continue
		}
		report.Checked++

		if result.Consistent() {
			continue
		}
		s.logger.Warn("ledger drift detected",
			"staff_id", staffID,
			"cached_advance", result.CachedAdvance.String(),
			"replayed_advance", result.ReplayedAdvance.String(),
			"cached_carry_forward", result.CachedCarryForward.String(),
			"replayed_carry_forward", result.ReplayedCarryForward.String(),
			"stale_periods", result.StalePeriods,
		)
		report.Drifted = append(report.Drifted, settlement.LedgerDrift{
			StaffID:              staffID,
			CachedAdvance:        result.CachedAdvance,
			CachedCarryForward:   result.CachedCarryForward,
			ReplayedAdvance:      result.ReplayedAdvance,
			ReplayedCarryForward: result.ReplayedCarryForward,
			StalePeriods:         result.StalePeriods,
		})
	}

	s.logger.Info("ledger audit completed", "checked", report.Checked, "drifted", len(report.Drifted))
	return report, nil
}

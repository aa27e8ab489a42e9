package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/staff"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/lock"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/validator"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Options struct {
	// MaxAttempts bounds how often a settlement is re-run after a
	// concurrency conflict. Values below 1 mean a single attempt.
	MaxAttempts  int
	RetryBackoff time.Duration
	// LockTTL is how long the in-flight guard holds an idempotency key.
	LockTTL time.Duration
}

type SettlementServiceImpl struct {
	tx             settlement.Transactor
	staffRepo      staff.StaffRepository
	attendanceRepo attendance.AttendanceRepository
	ledgerRepo     settlement.LedgerRepository
	recordRepo     settlement.PaymentRecordRepository
	events         settlement.EventRecorder
	guard          settlement.InFlightGuard
	calculator     *Calculator
	logger         *slog.Logger
	opts           Options
}

func NewSettlementService(
	tx settlement.Transactor,
	staffRepo staff.StaffRepository,
	attendanceRepo attendance.AttendanceRepository,
	ledgerRepo settlement.LedgerRepository,
	recordRepo settlement.PaymentRecordRepository,
	events settlement.EventRecorder,
	guard settlement.InFlightGuard,
	logger *slog.Logger,
	opts Options,
) settlement.SettlementService {
	if guard == nil {
		guard = lock.NoopGuard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	return &SettlementServiceImpl{
		tx:             tx,
		staffRepo:      staffRepo,
		attendanceRepo: attendanceRepo,
		ledgerRepo:     ledgerRepo,
		recordRepo:     recordRepo,
		events:         events,
		guard:          guard,
		calculator:     NewCalculator(staffRepo, attendanceRepo),
		logger:         logger.With(slog.String("component", "settlement")),
		opts:           opts,
	}
}

func (s *SettlementServiceImpl) Settle(ctx context.Context, req settlement.SettleRequest) (settlement.SettlementResult, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := req.Validate(); err != nil {
		return settlement.SettlementResult{}, err
	}
	hash := req.Hash()

	if result, found, err := s.lookupPrior(ctx, req.IdempotencyKey, hash); err != nil || found {
		return result, err
	}

	release, err := s.guard.Acquire(ctx, "settlement:"+req.IdempotencyKey, s.opts.LockTTL)
	if err != nil {
		return settlement.SettlementResult{}, err
	}
	defer release()

	// The key may have committed between the first lookup and the guard.
	if result, found, err := s.lookupPrior(ctx, req.IdempotencyKey, hash); err != nil || found {
		return result, err
	}

	var record settlement.PaymentRecord
	for attempt := 1; ; attempt++ {
		record, err = s.settleOnce(ctx, req, hash)
		if err == nil {
			break
		}

		if errors.Is(err, settlement.ErrDuplicateIdempotencyKey) {
			// Lost the race to a request carrying the same key.
			if result, found, lookupErr := s.lookupPrior(ctx, req.IdempotencyKey, hash); lookupErr != nil || found {
				return result, lookupErr
			}
		}

		if !errors.Is(err, settlement.ErrConcurrencyConflict) || attempt >= s.opts.MaxAttempts {
			if attempt > 1 {
				s.logger.Warn("settlement failed after retries",
					"staff_id", req.StaffID, "idempotency_key", req.IdempotencyKey, "attempts", attempt, "error", err)
			}
			return settlement.SettlementResult{}, classify(err)
		}

		s.logger.Warn("settlement conflict, retrying",
			"staff_id", req.StaffID, "idempotency_key", req.IdempotencyKey, "attempt", attempt)

		if err := sleepContext(ctx, s.opts.RetryBackoff*time.Duration(attempt)); err != nil {
			return settlement.SettlementResult{}, fmt.Errorf("%w: %w", settlement.ErrPersistence, err)
		}
	}

	s.logger.Info("settlement recorded",
		"staff_id", record.StaffID,
		"record_id", record.ID,
		"type", record.Type,
		"amount", record.Amount.String(),
		"shortfall", record.Shortfall.String(),
		"overpay", record.Overpay.String(),
		"advance_balance", record.AdvanceAfter.String(),
		"carry_forward_balance", record.CarryForwardAfter.String(),
	)

	return settlement.NewSettlementResult(record, false), nil
}

// settleOnce runs one attempt. Every read and write shares the transaction,
// so any failure leaves neither a ledger change nor a record behind.
func (s *SettlementServiceImpl) settleOnce(ctx context.Context, req settlement.SettleRequest, hash string) (settlement.PaymentRecord, error) {
	var stored settlement.PaymentRecord

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		st, err := s.staffRepo.GetByID(ctx, req.StaffID)
		if err != nil {
			return err
		}
		if err := checkEligibility(st, req.Type, req.Mode, req.ReceivingAccount); err != nil {
			return err
		}

		var netPayable *settlement.NetPayable
		netAmount := decimal.Zero
		if period, ok := req.Period(); ok && req.Type == settlement.TypeSalary {
			np, err := s.resolveSalary(ctx, st, period)
			if err != nil {
				return err
			}
			netPayable = &np
			netAmount = np.Amount
		}

		if err := s.ledgerRepo.Ensure(ctx, st.ID); err != nil {
			return err
		}
		before, err := s.ledgerRepo.GetForUpdate(ctx, st.ID)
		if err != nil {
			return err
		}

		outcome, err := Reconcile(req.Type, req.Amount, netAmount, before)
		if err != nil {
			return err
		}

		after := before
		if outcome.Changed() {
			if after, err = s.ledgerRepo.Update(ctx, outcome.After); err != nil {
				return err
			}
		}

		stored, err = s.recordRepo.Append(ctx, settlement.PaymentRecord{
			ID:                uuid.Must(uuid.NewV7()).String(),
			StaffID:           st.ID,
			Type:              req.Type,
			Amount:            req.Amount,
			Mode:              req.Mode,
			ReceivingAccount:  trimmed(req.ReceivingAccount),
			PeriodMonth:       salaryOnly(req.Type, req.PeriodMonth),
			PeriodYear:        salaryOnly(req.Type, req.PeriodYear),
			Notes:             trimmed(req.Notes),
			IdempotencyKey:    req.IdempotencyKey,
			RequestHash:       hash,
			RecordedBy:        req.RecordedBy,
			NetPayable:        netPayable,
			Shortfall:         outcome.Shortfall,
			Overpay:           outcome.Overpay,
			Movement:          outcome.Movement,
			AdvanceAfter:      after.Advance,
			CarryForwardAfter: after.CarryForward,
		})
		if err != nil {
			return err
		}

		return s.events.RecordSettlement(ctx, stored)
	})
	if err != nil {
		return settlement.PaymentRecord{}, err
	}

	return stored, nil
}

func (s *SettlementServiceImpl) lookupPrior(ctx context.Context, key, hash string) (settlement.SettlementResult, bool, error) {
	prior, err := s.recordRepo.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, settlement.ErrPaymentRecordNotFound) {
		return settlement.SettlementResult{}, false, nil
	}
	if err != nil {
		return settlement.SettlementResult{}, false, fmt.Errorf("%w: lookup idempotency key: %w", settlement.ErrPersistence, err)
	}
	if prior.RequestHash != hash {
		return settlement.SettlementResult{}, false, settlement.ErrIdempotencyConflict
	}

	s.logger.Info("settlement replayed", "staff_id", prior.StaffID, "record_id", prior.ID, "idempotency_key", key)
	return settlement.NewSettlementResult(prior, true), true, nil
}

func (s *SettlementServiceImpl) resolveSalary(ctx context.Context, st staff.Staff, period settlement.Period) (settlement.NetPayable, error) {
	joined := time.Date(st.JoiningDate.Year(), st.JoiningDate.Month(), st.JoiningDate.Day(), 0, 0, 0, 0, time.UTC)
	if !st.JoiningDate.IsZero() && period.End().Before(joined) {
		return settlement.NetPayable{}, settlement.ErrPeriodBeforeJoining
	}
	return s.calculator.resolveFor(ctx, st, period)
}

func (s *SettlementServiceImpl) Preview(ctx context.Context, req settlement.PreviewRequest) (settlement.PreviewResult, error) {
	if err := req.Validate(); err != nil {
		return settlement.PreviewResult{}, err
	}

	st, err := s.staffRepo.GetByID(ctx, req.StaffID)
	if err != nil {
		return settlement.PreviewResult{}, classify(err)
	}
	if err := checkEligibility(st, req.Type, settlement.ModeCash, nil); err != nil {
		return settlement.PreviewResult{}, err
	}

	var netPayable *settlement.NetPayable
	netAmount := decimal.Zero
	if period, ok := req.Period(); ok && req.Type == settlement.TypeSalary {
		np, err := s.resolveSalary(ctx, st, period)
		if err != nil {
			return settlement.PreviewResult{}, classify(err)
		}
		netPayable = &np
		netAmount = np.Amount
	}

	before, err := s.ledgerRepo.Get(ctx, st.ID)
	if err != nil {
		return settlement.PreviewResult{}, classify(err)
	}

	outcome, err := Reconcile(req.Type, req.Amount, netAmount, before)
	if err != nil {
		return settlement.PreviewResult{}, err
	}

	return settlement.PreviewResult{
		Type:       req.Type,
		Amount:     req.Amount,
		NetPayable: settlement.NewNetPayableResponse(netPayable),
		Shortfall:  outcome.Shortfall,
		Overpay:    outcome.Overpay,
		Movement:   settlement.NewMovementResponse(outcome.Movement),
		Before:     settlement.NewLedgerResponse(outcome.Before),
		After:      settlement.NewLedgerResponse(outcome.After),
	}, nil
}

func (s *SettlementServiceImpl) GetBalances(ctx context.Context, staffID string) (settlement.LedgerResponse, error) {
	if err := validateStaffID(staffID); err != nil {
		return settlement.LedgerResponse{}, err
	}
	if _, err := s.staffRepo.GetByID(ctx, staffID); err != nil {
		return settlement.LedgerResponse{}, classify(err)
	}

	balances, err := s.ledgerRepo.Get(ctx, staffID)
	if err != nil {
		return settlement.LedgerResponse{}, classify(err)
	}
	return settlement.NewLedgerResponse(balances), nil
}

func (s *SettlementServiceImpl) ListPaymentRecords(ctx context.Context, staffID string, filter settlement.PaymentRecordFilter) (settlement.ListPaymentRecordResponse, error) {
	if err := validateStaffID(staffID); err != nil {
		return settlement.ListPaymentRecordResponse{}, err
	}
	if err := filter.Validate(); err != nil {
		return settlement.ListPaymentRecordResponse{}, err
	}
	if _, err := s.staffRepo.GetByID(ctx, staffID); err != nil {
		return settlement.ListPaymentRecordResponse{}, classify(err)
	}

	records, total, err := s.recordRepo.ListByStaff(ctx, staffID, filter)
	if err != nil {
		return settlement.ListPaymentRecordResponse{}, classify(err)
	}

	data := make([]settlement.PaymentRecordResponse, 0, len(records))
	for _, r := range records {
		data = append(data, settlement.NewPaymentRecordResponse(r))
	}

	return settlement.ListPaymentRecordResponse{
		Data:       data,
		TotalCount: total,
		Page:       filter.Page,
		Limit:      filter.Limit,
	}, nil
}

// checkEligibility covers the rules that depend on the staff row.
func checkEligibility(st staff.Staff, kind settlement.SettlementType, mode settlement.PaymentMode, receivingAccount *string) error {
	if kind == settlement.TypeAdvance && !st.IsActive {
		return settlement.ErrStaffInactive
	}
	if mode == settlement.ModeElectronicTransfer && st.BankAccountNumber != nil {
		registered := normalizeAccount(*st.BankAccountNumber)
		if registered != "" && (receivingAccount == nil || normalizeAccount(*receivingAccount) != registered) {
			return settlement.ErrUnknownPaymentAccount
		}
	}
	return nil
}

func normalizeAccount(account string) string {
	return strings.NewReplacer(" ", "", "-", "", ".", "").Replace(strings.TrimSpace(account))
}

func validateStaffID(staffID string) error {
	if !validator.IsValidUUID(staffID) {
		return validator.ValidationErrors{{Field: "staff_id", Message: "must be a valid UUID"}}
	}
	return nil
}

// classify passes domain errors through and wraps anything else as a
// persistence failure.
func classify(err error) error {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs),
		errors.Is(err, settlement.ErrPersistence),
		errors.Is(err, staff.ErrStaffNotFound),
		errors.Is(err, settlement.ErrStaffInactive),
		errors.Is(err, settlement.ErrUnknownPaymentAccount),
		errors.Is(err, settlement.ErrPeriodBeforeJoining),
		errors.Is(err, settlement.ErrPeriodAlreadySettled),
		errors.Is(err, settlement.ErrIdempotencyConflict),
		errors.Is(err, settlement.ErrDuplicateIdempotencyKey),
		errors.Is(err, settlement.ErrSettlementInProgress),
		errors.Is(err, settlement.ErrConcurrencyConflict),
		errors.Is(err, settlement.ErrNegativeBalance),
		errors.Is(err, settlement.ErrInvalidSettlementType),
		errors.Is(err, settlement.ErrNonPositiveAmount),
		errors.Is(err, settlement.ErrNegativeNetPayable):
		return err
	}
	return fmt.Errorf("%w: %w", settlement.ErrPersistence, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func salaryOnly(kind settlement.SettlementType, v *int) *int {
	if kind != settlement.TypeSalary {
		return nil
	}
	return v
}

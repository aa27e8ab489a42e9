package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// MaxAmountScale is the number of decimal places money is stored with.
const MaxAmountScale = 2

// MaxAmount is the largest value a NUMERIC(14,2) money column holds.
var MaxAmount = decimal.New(999999999999, -MaxAmountScale)

type SettleRequest struct {
	StaffID          string          `json:"staff_id" validate:"required,uuid"`
	Type             SettlementType  `json:"type" validate:"required,oneof=advance salary salary_carryforward"`
	Amount           decimal.Decimal `json:"amount"`
	Mode             PaymentMode     `json:"mode" validate:"required,oneof=cash electronic_transfer"`
	PeriodMonth      *int            `json:"period_month,omitempty" validate:"omitempty,gte=1,lte=12"`
	PeriodYear       *int            `json:"period_year,omitempty" validate:"omitempty,gte=2000,lte=2100"`
	ReceivingAccount *string         `json:"receiving_account,omitempty" validate:"omitempty,max=64"`
	Notes            *string         `json:"notes,omitempty" validate:"omitempty,max=500"`
	IdempotencyKey   string          `json:"idempotency_key" validate:"required,max=128"`

	// RecordedBy is taken from the verified token, never from the body.
	RecordedBy *string `json:"-"`
}

func (r *SettleRequest) Validate() error {
	errs := validator.Struct(r)

	validateAmount(&errs, r.Amount)

	if r.Type == TypeSalary {
		if r.PeriodMonth == nil && !errs.Has("period_month") {
			errs = append(errs, validator.ValidationError{Field: "period_month", Message: "is required for salary settlements"})
		}
		if r.PeriodYear == nil && !errs.Has("period_year") {
			errs = append(errs, validator.ValidationError{Field: "period_year", Message: "is required for salary settlements"})
		}
	} else if r.PeriodMonth != nil || r.PeriodYear != nil {
		errs = append(errs, validator.ValidationError{Field: "period", Message: "is only allowed for salary settlements"})
	}

	if r.Mode == ModeElectronicTransfer && (r.ReceivingAccount == nil || validator.IsEmpty(*r.ReceivingAccount)) {
		errs = append(errs, validator.ValidationError{Field: "receiving_account", Message: "is required for electronic transfer"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Period returns the salary period. Only meaningful after Validate.
func (r *SettleRequest) Period() (Period, bool) {
	if r.PeriodMonth == nil || r.PeriodYear == nil {
		return Period{}, false
	}
	return Period{Month: *r.PeriodMonth, Year: *r.PeriodYear}, true
}

// Hash fingerprints the payload so a reused idempotency key can be told
// apart from a genuine retry. The key itself and RecordedBy are excluded.
func (r *SettleRequest) Hash() string {
	parts := []string{
		r.StaffID,
		string(r.Type),
		r.Amount.StringFixed(MaxAmountScale),
		string(r.Mode),
		optionalInt(r.PeriodMonth),
		optionalInt(r.PeriodYear),
		optionalString(r.ReceivingAccount),
		optionalString(r.Notes),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

type PreviewRequest struct {
	StaffID     string          `json:"staff_id" validate:"required,uuid"`
	Type        SettlementType  `json:"type" validate:"required,oneof=advance salary salary_carryforward"`
	Amount      decimal.Decimal `json:"amount"`
	PeriodMonth *int            `json:"period_month,omitempty" validate:"omitempty,gte=1,lte=12"`
	PeriodYear  *int            `json:"period_year,omitempty" validate:"omitempty,gte=2000,lte=2100"`
}

func (r *PreviewRequest) Validate() error {
	if r.Type == "" {
		r.Type = TypeSalary
	}
	errs := validator.Struct(r)

	validateAmount(&errs, r.Amount)

	if r.Type == TypeSalary && (r.PeriodMonth == nil || r.PeriodYear == nil) {
		errs = append(errs, validator.ValidationError{Field: "period", Message: "is required for salary settlements"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (r *PreviewRequest) Period() (Period, bool) {
	if r.PeriodMonth == nil || r.PeriodYear == nil {
		return Period{}, false
	}
	return Period{Month: *r.PeriodMonth, Year: *r.PeriodYear}, true
}

func validateAmount(errs *validator.ValidationErrors, amount decimal.Decimal) {
	if !amount.IsPositive() {
		*errs = append(*errs, validator.ValidationError{Field: "amount", Message: "must be greater than 0"})
		return
	}
	if !amount.Equal(amount.Round(MaxAmountScale)) {
		*errs = append(*errs, validator.ValidationError{Field: "amount", Message: "must have at most 2 decimal places"})
		return
	}
	if amount.GreaterThan(MaxAmount) {
		*errs = append(*errs, validator.ValidationError{Field: "amount", Message: "must be at most " + MaxAmount.StringFixed(MaxAmountScale)})
	}
}

type PaymentRecordFilter struct {
	Type  *SettlementType `json:"type,omitempty"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (f *PaymentRecordFilter) Validate() error {
	var errs validator.ValidationErrors

	if f.Type != nil && !f.Type.IsValid() {
		errs = append(errs, validator.ValidationError{Field: "type", Message: "must be one of: advance, salary, salary_carryforward"})
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		errs = append(errs, validator.ValidationError{Field: "limit", Message: "must be at most 100"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (f PaymentRecordFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type NetPayableResponse struct {
	BaseSalary      decimal.Decimal `json:"base_salary"`
	LeaveDays       int             `json:"leave_days"`
	DeductionPerDay decimal.Decimal `json:"deduction_per_day"`
	Deduction       decimal.Decimal `json:"deduction"`
	Amount          decimal.Decimal `json:"amount"`
}

type MovementResponse struct {
	FromAdvance      decimal.Decimal `json:"from_advance"`
	ToCarryForward   decimal.Decimal `json:"to_carry_forward"`
	FromCarryForward decimal.Decimal `json:"from_carry_forward"`
	ToAdvance        decimal.Decimal `json:"to_advance"`
}

type LedgerResponse struct {
	StaffID             string          `json:"staff_id"`
	AdvanceBalance      decimal.Decimal `json:"advance_balance"`
	CarryForwardBalance decimal.Decimal `json:"carry_forward_balance"`
	UpdatedAt           *time.Time      `json:"updated_at,omitempty"`
}

type PaymentRecordResponse struct {
	ID                  string              `json:"id"`
	StaffID             string              `json:"staff_id"`
	Type                SettlementType      `json:"type"`
	Amount              decimal.Decimal     `json:"amount"`
	Mode                PaymentMode         `json:"mode"`
	ReceivingAccount    *string             `json:"receiving_account,omitempty"`
	PeriodMonth         *int                `json:"period_month,omitempty"`
	PeriodYear          *int                `json:"period_year,omitempty"`
	Notes               *string             `json:"notes,omitempty"`
	IdempotencyKey      string              `json:"idempotency_key"`
	RecordedBy          *string             `json:"recorded_by,omitempty"`
	NetPayable          *NetPayableResponse `json:"net_payable,omitempty"`
	Shortfall           decimal.Decimal     `json:"shortfall"`
	Overpay             decimal.Decimal     `json:"overpay"`
	Movement            MovementResponse    `json:"movement"`
	AdvanceBalance      decimal.Decimal     `json:"advance_balance_after"`
	CarryForwardBalance decimal.Decimal     `json:"carry_forward_balance_after"`
	CreatedAt           time.Time           `json:"created_at"`
}

type SettlementResult struct {
	Record     PaymentRecordResponse `json:"record"`
	NetPayable *NetPayableResponse   `json:"net_payable,omitempty"`
	Shortfall  decimal.Decimal       `json:"shortfall"`
	Overpay    decimal.Decimal       `json:"overpay"`
	Movement   MovementResponse      `json:"movement"`
	Balances   LedgerResponse        `json:"balances"`
	Replayed   bool                  `json:"replayed"`
}

type PreviewResult struct {
	Type       SettlementType      `json:"type"`
	Amount     decimal.Decimal     `json:"amount"`
	NetPayable *NetPayableResponse `json:"net_payable,omitempty"`
	Shortfall  decimal.Decimal     `json:"shortfall"`
	Overpay    decimal.Decimal     `json:"overpay"`
	Movement   MovementResponse    `json:"movement"`
	Before     LedgerResponse      `json:"before"`
	After      LedgerResponse      `json:"after"`
}

type ListPaymentRecordResponse struct {
	Data       []PaymentRecordResponse `json:"data"`
	TotalCount int64                   `json:"total_count"`
	Page       int                     `json:"page"`
	Limit      int                     `json:"limit"`
}

// LedgerDrift describes a staff whose cached balances disagree with a
// replay of their payment history, or whose attendance changed after a
// salary period was settled.
type LedgerDrift struct {
	StaffID              string          `json:"staff_id"`
	CachedAdvance        decimal.Decimal `json:"cached_advance"`
	CachedCarryForward   decimal.Decimal `json:"cached_carry_forward"`
	ReplayedAdvance      decimal.Decimal `json:"replayed_advance"`
	ReplayedCarryForward decimal.Decimal `json:"replayed_carry_forward"`
	StalePeriods         []string        `json:"stale_periods,omitempty"`
}

type ReplayResult struct {
	StaffID              string          `json:"staff_id"`
	RecordCount          int             `json:"record_count"`
	ReplayedAdvance      decimal.Decimal `json:"replayed_advance"`
	ReplayedCarryForward decimal.Decimal `json:"replayed_carry_forward"`
	CachedAdvance        decimal.Decimal `json:"cached_advance"`
	CachedCarryForward   decimal.Decimal `json:"cached_carry_forward"`
	BalancesMatch        bool            `json:"balances_match"`
	// StalePeriods lists settled salary periods whose leave days no longer
	// match attendance, formatted YYYY-MM.
	StalePeriods []string `json:"stale_periods,omitempty"`
}

func (r ReplayResult) Consistent() bool {
	return r.BalancesMatch && len(r.StalePeriods) == 0
}

type AuditReport struct {
	Checked int           `json:"checked"`
	Drifted []LedgerDrift `json:"drifted"`
}

func NewLedgerResponse(b LedgerBalances) LedgerResponse {
	resp := LedgerResponse{
		StaffID:             b.StaffID,
		AdvanceBalance:      b.Advance,
		CarryForwardBalance: b.CarryForward,
	}
	if !b.UpdatedAt.IsZero() {
		updatedAt := b.UpdatedAt
		resp.UpdatedAt = &updatedAt
	}
	return resp
}

func NewNetPayableResponse(n *NetPayable) *NetPayableResponse {
	if n == nil {
		return nil
	}
	return &NetPayableResponse{
		BaseSalary:      n.BaseSalary,
		LeaveDays:       n.Deduction.LeaveDays,
		DeductionPerDay: n.Deduction.PerDay,
		Deduction:       n.Deduction.Amount,
		Amount:          n.Amount,
	}
}

func NewMovementResponse(m Movement) MovementResponse {
	return MovementResponse{
		FromAdvance:      m.FromAdvance,
		ToCarryForward:   m.ToCarryForward,
		FromCarryForward: m.FromCarryForward,
		ToAdvance:        m.ToAdvance,
	}
}

func NewPaymentRecordResponse(r PaymentRecord) PaymentRecordResponse {
	return PaymentRecordResponse{
		ID:                  r.ID,
		StaffID:             r.StaffID,
		Type:                r.Type,
		Amount:              r.Amount,
		Mode:                r.Mode,
		ReceivingAccount:    r.ReceivingAccount,
		PeriodMonth:         r.PeriodMonth,
		PeriodYear:          r.PeriodYear,
		Notes:               r.Notes,
		IdempotencyKey:      r.IdempotencyKey,
		RecordedBy:          r.RecordedBy,
		NetPayable:          NewNetPayableResponse(r.NetPayable),
		Shortfall:           r.Shortfall,
		Overpay:             r.Overpay,
		Movement:            NewMovementResponse(r.Movement),
		AdvanceBalance:      r.AdvanceAfter,
		CarryForwardBalance: r.CarryForwardAfter,
		CreatedAt:           r.CreatedAt,
	}
}

// NewSettlementResult rebuilds the caller-facing result from a stored
// record, so a replayed request returns exactly what was committed.
func NewSettlementResult(r PaymentRecord, replayed bool) SettlementResult {
	return SettlementResult{
		Record:     NewPaymentRecordResponse(r),
		NetPayable: NewNetPayableResponse(r.NetPayable),
		Shortfall:  r.Shortfall,
		Overpay:    r.Overpay,
		Movement:   NewMovementResponse(r.Movement),
		Balances: LedgerResponse{
			StaffID:             r.StaffID,
			AdvanceBalance:      r.AdvanceAfter,
			CarryForwardBalance: r.CarryForwardAfter,
		},
		Replayed: replayed,
	}
}

// FormatPeriod renders a period as YYYY-MM.
func FormatPeriod(p Period) string {
	month := strconv.Itoa(p.Month)
	if p.Month < 10 {
		month = "0" + month
	}
	return strconv.Itoa(p.Year) + "-" + month
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

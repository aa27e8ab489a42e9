package settlement

import (
	"testing"
	"time"

	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/validator"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func validSalaryRequest() SettleRequest {
	return SettleRequest{
		StaffID:        "0191f4a2-6d3e-7c1a-9b2f-3e4d5c6b7a81",
		Type:           TypeSalary,
		Amount:         decimal.RequireFromString("14000.50"),
		Mode:           ModeCash,
		PeriodMonth:    intPtr(5),
		PeriodYear:     intPtr(2024),
		IdempotencyKey: "payroll-2024-05-rina",
	}
}

func TestSettleRequest_Validate(t *testing.T) {
	t.Run("valid salary", func(t *testing.T) {
		req := validSalaryRequest()
		assert.NoError(t, req.Validate())
	})

	cases := []struct {
		name   string
		mutate func(r *SettleRequest)
		field  string
	}{
		{"zero amount", func(r *SettleRequest) { r.Amount = decimal.Zero }, "amount"},
		{"negative amount", func(r *SettleRequest) { r.Amount = decimal.NewFromInt(-1) }, "amount"},
		{"sub-cent amount", func(r *SettleRequest) { r.Amount = decimal.RequireFromString("1.005") }, "amount"},
		{"amount above column limit", func(r *SettleRequest) { r.Amount = decimal.NewFromInt(1_000_000_000_000) }, "amount"},
		{"unknown type", func(r *SettleRequest) { r.Type = "bonus" }, "type"},
		{"unknown mode", func(r *SettleRequest) { r.Mode = "cheque" }, "mode"},
		{"missing key", func(r *SettleRequest) { r.IdempotencyKey = "" }, "idempotency_key"},
		{"bad staff id", func(r *SettleRequest) { r.StaffID = "staff-1" }, "staff_id"},
		{"missing month", func(r *SettleRequest) { r.PeriodMonth = nil }, "period_month"},
		{"month out of range", func(r *SettleRequest) { r.PeriodMonth = intPtr(13) }, "period_month"},
		{"missing year", func(r *SettleRequest) { r.PeriodYear = nil }, "period_year"},
		{"transfer without account", func(r *SettleRequest) { r.Mode = ModeElectronicTransfer }, "receiving_account"},
		{"period on advance", func(r *SettleRequest) { r.Type = TypeAdvance }, "period"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := validSalaryRequest()
			c.mutate(&req)

			err := req.Validate()
			var errs validator.ValidationErrors
			require.ErrorAs(t, err, &errs)
			assert.True(t, errs.Has(c.field), "expected error on %s, got %v", c.field, errs)
		})
	}
}

func TestSettleRequest_ValidateMaxAmount(t *testing.T) {
	req := validSalaryRequest()
	req.Amount = MaxAmount
	assert.NoError(t, req.Validate())

	req.Amount = MaxAmount.Add(decimal.New(1, -2))
	var errs validator.ValidationErrors
	require.ErrorAs(t, req.Validate(), &errs)
	assert.Equal(t, "must be at most 9999999999.99", errs.ToMap()["amount"])

	preview := PreviewRequest{StaffID: req.StaffID, Amount: decimal.NewFromInt(1_000_000_000_000)}
	require.ErrorAs(t, preview.Validate(), &errs)
	assert.True(t, errs.Has("amount"))
}

func TestSettleRequest_Hash(t *testing.T) {
	a := validSalaryRequest()
	b := validSalaryRequest()
	b.IdempotencyKey = "another-key"
	b.RecordedBy = strPtr("operator-1")
	b.Amount = decimal.RequireFromString("14000.5")

	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 64)

	c := validSalaryRequest()
	c.Amount = decimal.RequireFromString("14000.51")
	assert.NotEqual(t, a.Hash(), c.Hash())

	d := validSalaryRequest()
	d.Notes = strPtr("May payroll")
	assert.NotEqual(t, a.Hash(), d.Hash())
}

func TestPeriod(t *testing.T) {
	feb := Period{Month: 2, Year: 2024}
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), feb.Start())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), feb.End())

	dec := Period{Month: 12, Year: 2023}
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), dec.End())

	assert.Equal(t, "2024-02", FormatPeriod(feb))
	assert.False(t, Period{Month: 0, Year: 2024}.IsValid())
}

func TestPaymentRecordFilter_Validate(t *testing.T) {
	f := PaymentRecordFilter{}
	require.NoError(t, f.Validate())
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 20, f.Limit)
	assert.Equal(t, 0, f.Offset())

	f = PaymentRecordFilter{Page: 3, Limit: 10}
	require.NoError(t, f.Validate())
	assert.Equal(t, 20, f.Offset())

	bad := SettlementType("bonus")
	f = PaymentRecordFilter{Type: &bad, Limit: 500}
	var errs validator.ValidationErrors
	require.ErrorAs(t, f.Validate(), &errs)
	assert.True(t, errs.Has("type"))
	assert.True(t, errs.Has("limit"))
}

func TestNewSettlementResult(t *testing.T) {
	rec := PaymentRecord{
		ID:                "rec-1",
		StaffID:           "staff-1",
		Type:              TypeSalary,
		Amount:            decimal.NewFromInt(10000),
		NetPayable:        &NetPayable{BaseSalary: decimal.NewFromInt(15000), Deduction: Deduction{LeaveDays: 2, PerDay: decimal.NewFromInt(500), Amount: decimal.NewFromInt(1000)}, Amount: decimal.NewFromInt(14000)},
		Shortfall:         decimal.NewFromInt(4000),
		Movement:          Movement{FromAdvance: decimal.NewFromInt(3000), ToCarryForward: decimal.NewFromInt(1000)},
		AdvanceAfter:      decimal.Zero,
		CarryForwardAfter: decimal.NewFromInt(1000),
	}

	result := NewSettlementResult(rec, true)
	assert.True(t, result.Replayed)
	assert.Equal(t, 2, result.NetPayable.LeaveDays)
	assert.True(t, result.Balances.CarryForwardBalance.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "rec-1", result.Record.ID)
}

package settlement

import "context"

type SettlementService interface {
	Settle(ctx context.Context, req SettleRequest) (SettlementResult, error)
	Preview(ctx context.Context, req PreviewRequest) (PreviewResult, error)
	GetBalances(ctx context.Context, staffID string) (LedgerResponse, error)
	ListPaymentRecords(ctx context.Context, staffID string, filter PaymentRecordFilter) (ListPaymentRecordResponse, error)

	// ReplayBalances folds the payment history of one staff member and
	// compares the result with the cached ledger row.
	ReplayBalances(ctx context.Context, staffID string) (ReplayResult, error)
	AuditLedgers(ctx context.Context) (AuditReport, error)
}

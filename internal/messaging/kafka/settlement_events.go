package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/google/uuid"
)

const (
	AggregateTypeStaff          = "staff"
	EventTypeSettlementRecorded = "settlement.recorded"
)

// SettlementRecordedEvent is the payload published for every committed
// payment record.
type SettlementRecordedEvent struct {
	EventID string                           `json:"event_id"`
	Type    string                           `json:"event_type"`
	Record  settlement.PaymentRecordResponse `json:"record"`
}

type settlementRecorder struct {
	repo  OutboxRepository
	topic string
}

// NewSettlementRecorder writes settlement events to the outbox in the
// caller's transaction.
func NewSettlementRecorder(repo OutboxRepository, topic string) settlement.EventRecorder {
	return &settlementRecorder{repo: repo, topic: topic}
}

func (r *settlementRecorder) RecordSettlement(ctx context.Context, record settlement.PaymentRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate outbox id: %w", err)
	}

	payload, err := json.Marshal(SettlementRecordedEvent{
		EventID: id.String(),
		Type:    EventTypeSettlementRecorded,
		Record:  settlement.NewPaymentRecordResponse(record),
	})
	if err != nil {
		return fmt.Errorf("marshal settlement event: %w", err)
	}

	event := OutboxEvent{
		ID:            id.String(),
		AggregateType: AggregateTypeStaff,
		AggregateID:   record.StaffID,
		EventType:     EventTypeSettlementRecorded,
		Topic:         r.topic,
		Payload:       payload,
		Status:        OutboxStatusPending,
	}
	if err := ValidateOutboxEvent(event); err != nil {
		return err
	}

	return r.repo.Create(ctx, event)
}

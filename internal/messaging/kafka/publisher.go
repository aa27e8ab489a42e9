package kafka

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

type writerPublisher struct {
	writer *kafkago.Writer
}

// NewWriter builds a writer that routes each message by its own topic.
func NewWriter(brokers []string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewPublisher(writer *kafkago.Writer) Publisher {
	return &writerPublisher{writer: writer}
}

func (p *writerPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	return p.writer.WriteMessages(ctx, newMessage(event))
}

// Messages are keyed by aggregate so one staff member's events stay ordered
// within a partition.
func newMessage(event OutboxEvent) kafkago.Message {
	return kafkago.Message{
		Topic: event.Topic,
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "aggregate_type", Value: []byte(event.AggregateType)},
		},
	}
}

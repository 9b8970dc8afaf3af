package outbox

import (
	"context"

	"github.com/md-rashed-zaman/consultdesk/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes every event to the topic named after its type, keyed by aggregate id.
type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Deliver(ctx context.Context, rec Record) error {
	msg := kafka.Message{
		Topic: rec.Event.EventType,
		Key:   []byte(rec.Event.AggregateID),
		Value: rec.Event.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(rec.EventID)},
			{Key: "event_type", Value: []byte(rec.Event.EventType)},
			{Key: "aggregate_type", Value: []byte(rec.Event.AggregateType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return s.writer.WriteMessages(ctx, msg)
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/outbox"
)

// envelope is the part of an appointment event payload the sinks read.
type envelope struct {
	Notification *Intent `json:"notification"`
}

func decodeIntent(rec outbox.Record) (*Intent, error) {
	var env envelope
	if err := json.Unmarshal(rec.Event.Payload, &env); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", rec.Event.EventType, err)
	}
	return env.Notification, nil
}

// EmailSink mails events that carry a notification and acknowledges the rest.
type EmailSink struct {
	mailer Mailer
	logger *slog.Logger
}

func NewEmailSink(mailer Mailer, logger *slog.Logger) *EmailSink {
	return &EmailSink{mailer: mailer, logger: logger}
}

func (s *EmailSink) Deliver(ctx context.Context, rec outbox.Record) error {
	intent, err := decodeIntent(rec)
	if err != nil {
		return err
	}
	if intent == nil {
		return nil
	}
	msg, err := Render(*intent)
	if err != nil {
		// Unrenderable intents never succeed; drop them instead of retrying.
		s.logger.Warn("notification dropped", "event_id", rec.EventID, "err", err)
		return nil
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s email: %w", intent.Kind, err)
	}
	s.logger.Info("notification sent", "event_id", rec.EventID, "kind", intent.Kind, "to", msg.To)
	return nil
}

// LogSink stands in for real delivery in the mock environment.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, rec outbox.Record) error {
	intent, err := decodeIntent(rec)
	if err != nil {
		return err
	}
	attrs := []any{"event_id", rec.EventID, "event_type", rec.Event.EventType, "aggregate_id", rec.Event.AggregateID}
	if intent != nil {
		if msg, err := Render(*intent); err == nil {
			attrs = append(attrs, "to", msg.To, "subject", msg.Subject)
		}
	}
	s.logger.Info("outbox event delivered to log", attrs...)
	return nil
}

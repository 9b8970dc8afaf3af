package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/outbox"
)

type recordingMailer struct {
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func recordWith(t *testing.T, intent *Intent) outbox.Record {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"appointment_id": 7, "notification": intent})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return outbox.Record{ID: 1, EventID: "evt", Event: outbox.Event{EventType: "appointment.confirmed.v1", Payload: payload}}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRenderConfirmation(t *testing.T) {
	msg, err := Render(Intent{
		Kind:            KindConfirmation,
		CustomerName:    "Bob",
		CustomerEmail:   "bob@example.com",
		ConsultantName:  "Jane <Doe>",
		Date:            "2024-01-01",
		Time:            "08:00",
		DurationMinutes: 60,
		MeetingURL:      "https://meet.example.com/abc",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if msg.To != "bob@example.com" || !strings.Contains(msg.Subject, "confirmed") {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.Contains(msg.Text, "https://meet.example.com/abc") {
		t.Fatal("meeting link missing")
	}
	if strings.Contains(msg.HTML, "<Doe>") {
		t.Fatal("html body must be escaped")
	}
	if _, err := Render(Intent{Kind: KindCancellation}); err == nil {
		t.Fatal("expected error without recipient")
	}
}

func TestEmailSink(t *testing.T) {
	mailer := &recordingMailer{}
	sink := NewEmailSink(mailer, discard())

	rec := recordWith(t, &Intent{Kind: KindCancellation, CustomerEmail: "bob@example.com", Reason: "sick"})
	if err := sink.Deliver(context.Background(), rec); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if len(mailer.sent) != 1 || !strings.Contains(mailer.sent[0].Text, "Reason: sick") {
		t.Fatalf("unexpected sent messages %+v", mailer.sent)
	}

	if err := sink.Deliver(context.Background(), recordWith(t, nil)); err != nil {
		t.Fatalf("events without notification should be acknowledged: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatal("no mail expected for plain events")
	}

	mailer.err = errors.New("connection refused")
	if err := sink.Deliver(context.Background(), rec); err == nil {
		t.Fatal("expected send failure to propagate for retry")
	}
}

func TestNewSMTPMailerRequiresHost(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPConfig{}); err == nil {
		t.Fatal("expected error without host")
	}
	m, err := NewSMTPMailer(SMTPConfig{Host: "localhost", Username: "ops@example.com"})
	if err != nil {
		t.Fatalf("NewSMTPMailer failed: %v", err)
	}
	if m.from != "ops@example.com" {
		t.Fatalf("expected from to default to username, got %q", m.from)
	}
}

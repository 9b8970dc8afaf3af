package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage"
)

func seedSlot(t *testing.T, s *Store, date, start, end string) model.ScheduleSlot {
	t.Helper()
	slot, err := s.CreateSlot(context.Background(), model.ScheduleSlot{
		ConsultantID: 1, Date: date, StartTime: start, EndTime: end, IsAvailable: true,
	})
	if err != nil {
		t.Fatalf("CreateSlot failed: %v", err)
	}
	return slot
}

func TestCreateSlotUnique(t *testing.T) {
	s := New()
	seedSlot(t, s, "2024-01-01", "08:00", "09:00")
	_, err := s.CreateSlot(context.Background(), model.ScheduleSlot{
		ConsultantID: 1, Date: "2024-01-01", StartTime: "08:00", EndTime: "09:00",
	})
	if !errors.Is(err, storage.ErrSlotExists) {
		t.Fatalf("expected ErrSlotExists, got %v", err)
	}
}

func TestBookSlotConcurrent(t *testing.T) {
	s := New()
	seedSlot(t, s, "2024-01-01", "08:00", "09:00")

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(customer int64) {
			defer wg.Done()
			_, err := s.BookSlot(context.Background(), storage.NewAppointment{
				ConsultantID: 1, CustomerID: customer, Date: "2024-01-01", Time: "08:00",
				DurationMinutes: 60, Status: model.StatusPending,
			}, nil)
			results <- err
		}(int64(i + 1))
	}
	wg.Wait()
	close(results)

	ok, unavailable := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, storage.ErrSlotUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || unavailable != n-1 {
		t.Fatalf("expected 1 winner and %d rejections, got %d/%d", n-1, ok, unavailable)
	}
}

func TestBookSlotEventsErrorLeavesNoTrace(t *testing.T) {
	s := New()
	slot := seedSlot(t, s, "2024-01-01", "08:00", "09:00")
	_, err := s.BookSlot(context.Background(), storage.NewAppointment{
		ConsultantID: 1, CustomerID: 1, Date: "2024-01-01", Time: "08:00", Status: model.StatusPending,
	}, func(model.Appointment) ([]outbox.Event, error) { return nil, errors.New("encode failed") })
	if err == nil {
		t.Fatal("expected error")
	}
	got, _ := s.GetSlot(context.Background(), slot.ID)
	if !got.IsAvailable {
		t.Fatal("slot must stay available when booking aborts")
	}
	if appts, _ := s.ListAppointments(context.Background(), storage.AppointmentFilter{}); len(appts) != 0 {
		t.Fatalf("expected no appointments, got %d", len(appts))
	}
}

func confirmedEvent(a model.Appointment) ([]outbox.Event, error) {
	return []outbox.Event{{AggregateType: "appointment", AggregateID: "1", EventType: "appointment.confirmed.v1"}}, nil
}

func TestBookSlotCancelledContextLeavesNoTrace(t *testing.T) {
	s := New()
	slot := seedSlot(t, s, "2024-01-01", "08:00", "09:00")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.BookSlot(ctx, storage.NewAppointment{
		ConsultantID: 1, CustomerID: 1, Date: "2024-01-01", Time: "08:00", Status: model.StatusConfirmed,
	}, confirmedEvent)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got, _ := s.GetSlot(context.Background(), slot.ID); !got.IsAvailable {
		t.Fatal("slot must stay available")
	}
	if appts, _ := s.ListAppointments(context.Background(), storage.AppointmentFilter{}); len(appts) != 0 {
		t.Fatalf("expected no appointments, got %d", len(appts))
	}
	if evs := s.Events(); len(evs) != 0 {
		t.Fatalf("expected no events, got %d", len(evs))
	}
}

func TestTransitionCancelledContextLeavesNoTrace(t *testing.T) {
	s := New()
	slot := seedSlot(t, s, "2024-01-01", "08:00", "09:00")
	appt, err := s.BookSlot(context.Background(), storage.NewAppointment{
		ConsultantID: 1, CustomerID: 1, Date: "2024-01-01", Time: "08:00", Status: model.StatusPending,
	}, nil)
	if err != nil {
		t.Fatalf("BookSlot failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.TransitionAppointment(ctx, appt.ID, 1, func(model.Appointment) (storage.Change, error) {
		return storage.Change{Status: model.StatusCancelled, ReleaseSlot: true, Events: confirmedEvent}, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got, _ := s.GetAppointment(context.Background(), appt.ID); got.Status != model.StatusPending {
		t.Fatalf("status changed to %s", got.Status)
	}
	if got, _ := s.GetSlot(context.Background(), slot.ID); got.IsAvailable {
		t.Fatal("slot must stay held")
	}
	if evs := s.Events(); len(evs) != 0 {
		t.Fatalf("expected no events, got %d", len(evs))
	}
}

func TestBookSlotCutoff(t *testing.T) {
	s := New()
	seedSlot(t, s, "2024-01-01", "08:00", "09:00")
	req := storage.NewAppointment{
		ConsultantID: 1, CustomerID: 1, Date: "2024-01-01", Time: "08:00", Status: model.StatusPending,
		Cutoff: time.Date(2024, 1, 1, 9, 0, 1, 0, time.UTC),
	}
	if _, err := s.BookSlot(context.Background(), req, nil); !errors.Is(err, storage.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable past the slot end, got %v", err)
	}
	req.Cutoff = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if _, err := s.BookSlot(context.Background(), req, nil); err != nil {
		t.Fatalf("slot ending exactly at the cutoff is still bookable: %v", err)
	}
}

func TestDeleteSlotUnbindsInactive(t *testing.T) {
	ctx := context.Background()
	s := New()
	slot := seedSlot(t, s, "2024-01-01", "08:00", "09:00")
	appt, err := s.BookSlot(ctx, storage.NewAppointment{
		ConsultantID: 1, CustomerID: 1, Date: "2024-01-01", Time: "08:00", Status: model.StatusPending,
	}, nil)
	if err != nil {
		t.Fatalf("BookSlot failed: %v", err)
	}
	if err := s.DeleteSlot(ctx, slot.ID); !errors.Is(err, storage.ErrSlotBound) {
		t.Fatalf("expected ErrSlotBound, got %v", err)
	}
	if _, err := s.UpdateSlot(ctx, slot.ID, storage.SlotPatch{}); !errors.Is(err, storage.ErrSlotBound) {
		t.Fatalf("expected ErrSlotBound on update, got %v", err)
	}

	_, err = s.TransitionAppointment(ctx, appt.ID, 1, func(model.Appointment) (storage.Change, error) {
		return storage.Change{Status: model.StatusCancelled, ReleaseSlot: true}, nil
	})
	if err != nil {
		t.Fatalf("TransitionAppointment failed: %v", err)
	}
	if err := s.DeleteSlot(ctx, slot.ID); err != nil {
		t.Fatalf("DeleteSlot failed: %v", err)
	}
	got, _ := s.GetAppointment(ctx, appt.ID)
	if got.SlotID != nil {
		t.Fatal("cancelled appointment should lose its slot binding")
	}
}

func TestTransitionOtherConsultantIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedSlot(t, s, "2024-01-01", "08:00", "09:00")
	appt, _ := s.BookSlot(ctx, storage.NewAppointment{
		ConsultantID: 1, CustomerID: 1, Date: "2024-01-01", Time: "08:00", Status: model.StatusPending,
	}, nil)
	_, err := s.TransitionAppointment(ctx, appt.ID, 2, func(model.Appointment) (storage.Change, error) {
		t.Fatal("fn must not run for a foreign appointment")
		return storage.Change{}, nil
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOutboxClaimLease(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	seedSlot(t, s, "2024-01-01", "08:00", "09:00")

	_, err := s.BookSlot(ctx, storage.NewAppointment{
		ConsultantID: 1, CustomerID: 1, Date: "2024-01-01", Time: "08:00", Status: model.StatusConfirmed,
	}, confirmedEvent)
	if err != nil {
		t.Fatalf("BookSlot failed: %v", err)
	}

	recs, _ := s.ClaimDue(ctx, 10, time.Minute)
	if len(recs) != 1 || recs[0].EventID == "" {
		t.Fatalf("expected one claimed record, got %+v", recs)
	}
	if again, _ := s.ClaimDue(ctx, 10, time.Minute); len(again) != 0 {
		t.Fatal("leased record must not be claimed twice")
	}

	if err := s.MarkFailed(ctx, recs[0].ID, outbox.Failure{Attempts: 1, NextAttempt: now.Add(5 * time.Second)}); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if due, _ := s.ClaimDue(ctx, 10, time.Minute); len(due) != 0 {
		t.Fatal("record must wait for its next attempt")
	}
	now = now.Add(6 * time.Second)
	due, _ := s.ClaimDue(ctx, 10, time.Minute)
	if len(due) != 1 || due[0].Attempts != 1 {
		t.Fatalf("expected retry with attempts=1, got %+v", due)
	}
	if err := s.MarkDelivered(ctx, due[0].ID); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}
	now = now.Add(time.Hour)
	if rest, _ := s.ClaimDue(ctx, 10, time.Minute); len(rest) != 0 {
		t.Fatal("delivered records are never claimed")
	}
}

// Package memory is a mutex-guarded Store for the mock environment and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/consultdesk/libs/otel"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage"
)

type slotKey struct {
	consultantID int64
	date         string
	start        string
}

type eventRow struct {
	rec         outbox.Record
	nextAttempt time.Time
	leaseUntil  time.Time
	delivered   bool
	dead        bool
	lastError   string
}

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	slotSeq  int64
	apptSeq  int64
	eventSeq int64

	slots   map[int64]model.ScheduleSlot
	slotIDs map[slotKey]int64
	appts   map[int64]model.Appointment
	events  []*eventRow
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:     time.Now,
		slots:   map[int64]model.ScheduleSlot{},
		slotIDs: map[slotKey]int64{},
		appts:   map[int64]model.Appointment{},
	}
}

func keyOf(s model.ScheduleSlot) slotKey {
	return slotKey{consultantID: s.ConsultantID, date: s.Date, start: s.StartTime}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateSlot(ctx context.Context, slot model.ScheduleSlot) (model.ScheduleSlot, error) {
	if err := ctx.Err(); err != nil {
		return model.ScheduleSlot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(slot)
	if _, exists := s.slotIDs[k]; exists {
		return model.ScheduleSlot{}, storage.ErrSlotExists
	}
	s.slotSeq++
	now := s.now().UTC()
	slot.ID = s.slotSeq
	slot.CreatedAt = now
	slot.UpdatedAt = now
	s.slots[slot.ID] = slot
	s.slotIDs[k] = slot.ID
	return slot, nil
}

func (s *Store) GetSlot(_ context.Context, id int64) (model.ScheduleSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return model.ScheduleSlot{}, storage.ErrNotFound
	}
	return slot, nil
}

func (s *Store) UpdateSlot(ctx context.Context, id int64, patch storage.SlotPatch) (model.ScheduleSlot, error) {
	if err := ctx.Err(); err != nil {
		return model.ScheduleSlot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return model.ScheduleSlot{}, storage.ErrNotFound
	}
	if s.boundLocked(id) {
		return model.ScheduleSlot{}, storage.ErrSlotBound
	}

	oldKey := keyOf(slot)
	if patch.Date != nil {
		slot.Date = *patch.Date
	}
	if patch.StartTime != nil {
		slot.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		slot.EndTime = *patch.EndTime
	}
	if patch.IsAvailable != nil {
		slot.IsAvailable = *patch.IsAvailable
	}
	newKey := keyOf(slot)
	if newKey != oldKey {
		if _, exists := s.slotIDs[newKey]; exists {
			return model.ScheduleSlot{}, storage.ErrSlotExists
		}
		delete(s.slotIDs, oldKey)
		s.slotIDs[newKey] = id
	}
	slot.UpdatedAt = s.now().UTC()
	s.slots[id] = slot
	return slot, nil
}

func (s *Store) DeleteSlot(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return storage.ErrNotFound
	}
	if s.boundLocked(id) {
		return storage.ErrSlotBound
	}
	for apptID, a := range s.appts {
		if a.SlotID != nil && *a.SlotID == id {
			a.SlotID = nil
			s.appts[apptID] = a
		}
	}
	delete(s.slotIDs, keyOf(slot))
	delete(s.slots, id)
	return nil
}

func (s *Store) boundLocked(slotID int64) bool {
	for _, a := range s.appts {
		if a.SlotID != nil && *a.SlotID == slotID && a.Status.Active() {
			return true
		}
	}
	return false
}

func (s *Store) ListSlots(_ context.Context, f storage.SlotFilter) ([]storage.SlotView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.SlotView
	for id, slot := range s.slots {
		if f.ConsultantID != 0 && slot.ConsultantID != f.ConsultantID {
			continue
		}
		if f.DateFrom != "" && slot.Date < f.DateFrom {
			continue
		}
		if f.DateTo != "" && slot.Date > f.DateTo {
			continue
		}
		if f.Available != nil && slot.IsAvailable != *f.Available {
			continue
		}
		out = append(out, storage.SlotView{ScheduleSlot: slot, HasAppointment: s.boundLocked(id)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) BookSlot(ctx context.Context, req storage.NewAppointment, events storage.EventsFunc) (model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return model.Appointment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slotID, ok := s.slotIDs[slotKey{consultantID: req.ConsultantID, date: req.Date, start: req.Time}]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	slot := s.slots[slotID]
	if !slot.IsAvailable {
		return model.Appointment{}, storage.ErrSlotUnavailable
	}
	if !req.Cutoff.IsZero() && clock.EndsBefore(slot.Date, slot.EndTime, req.Cutoff) {
		return model.Appointment{}, storage.ErrSlotUnavailable
	}

	now := s.now().UTC()
	appt := model.Appointment{
		ID:              s.apptSeq + 1,
		ConsultantID:    req.ConsultantID,
		CustomerID:      req.CustomerID,
		SlotID:          &slotID,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: req.DurationMinutes,
		MeetingURL:      req.MeetingURL,
		Status:          req.Status,
		Description:     req.Description,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	rows, err := s.buildEventsLocked(ctx, appt, events)
	if err != nil {
		return model.Appointment{}, err
	}

	s.apptSeq++
	slot.IsAvailable = false
	slot.UpdatedAt = now
	s.slots[slotID] = slot
	s.appts[appt.ID] = appt
	s.events = append(s.events, rows...)
	return appt, nil
}

func (s *Store) TransitionAppointment(ctx context.Context, id, consultantID int64, fn storage.TransitionFunc) (model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return model.Appointment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.appts[id]
	if !ok || current.ConsultantID != consultantID {
		return model.Appointment{}, storage.ErrNotFound
	}
	change, err := fn(current)
	if err != nil {
		return model.Appointment{}, err
	}

	next := current
	next.Status = change.Status
	if change.Reason != "" {
		next.CancellationReason = change.Reason
	}
	next.UpdatedAt = s.now().UTC()

	rows, err := s.buildEventsLocked(ctx, next, change.Events)
	if err != nil {
		return model.Appointment{}, err
	}

	if change.ReleaseSlot && next.SlotID != nil {
		if slot, ok := s.slots[*next.SlotID]; ok {
			slot.IsAvailable = true
			slot.UpdatedAt = next.UpdatedAt
			s.slots[slot.ID] = slot
		}
	}
	s.appts[id] = next
	s.events = append(s.events, rows...)
	return next, nil
}

func (s *Store) buildEventsLocked(ctx context.Context, appt model.Appointment, fn storage.EventsFunc) ([]*eventRow, error) {
	if fn == nil {
		return nil, nil
	}
	events, err := fn(appt)
	if err != nil {
		return nil, err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	now := s.now().UTC()
	rows := make([]*eventRow, 0, len(events))
	for i, e := range events {
		rows = append(rows, &eventRow{
			rec: outbox.Record{
				ID:          s.eventSeq + int64(i) + 1,
				EventID:     uuid.NewString(),
				Event:       e,
				Traceparent: traceparent,
				Tracestate:  tracestate,
				CreatedAt:   now,
			},
			nextAttempt: now,
		})
	}
	s.eventSeq += int64(len(rows))
	return rows, nil
}

func (s *Store) GetAppointment(_ context.Context, id int64) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAppointments(_ context.Context, f storage.AppointmentFilter) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Appointment
	for _, a := range s.appts {
		if f.ConsultantID != 0 && a.ConsultantID != f.ConsultantID {
			continue
		}
		if f.CustomerID != 0 && a.CustomerID != f.CustomerID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.DateFrom != "" && a.Date < f.DateFrom {
			continue
		}
		if f.DateTo != "" && a.Date > f.DateTo {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	if limit := storage.ClampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountActiveAppointments(_ context.Context, customerID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.appts {
		if a.CustomerID == customerID && a.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (s *Store) ClaimDue(_ context.Context, limit int, lease time.Duration) ([]outbox.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []outbox.Record
	for _, row := range s.events {
		if len(out) >= limit {
			break
		}
		if row.delivered || row.dead || row.nextAttempt.After(now) || row.leaseUntil.After(now) {
			continue
		}
		row.leaseUntil = now.Add(lease)
		rec := row.rec
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) MarkDelivered(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.eventLocked(id)
	if row == nil {
		return storage.ErrNotFound
	}
	row.delivered = true
	row.leaseUntil = time.Time{}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id int64, f outbox.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.eventLocked(id)
	if row == nil {
		return storage.ErrNotFound
	}
	row.rec.Attempts = f.Attempts
	row.nextAttempt = f.NextAttempt
	row.lastError = f.LastError
	row.dead = f.Dead
	row.leaseUntil = time.Time{}
	return nil
}

func (s *Store) eventLocked(id int64) *eventRow {
	for _, row := range s.events {
		if row.rec.ID == id {
			return row
		}
	}
	return nil
}

// Events returns every outbox record appended so far, delivered or not.
func (s *Store) Events() []outbox.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Record, 0, len(s.events))
	for _, row := range s.events {
		out = append(out, row.rec)
	}
	return out
}

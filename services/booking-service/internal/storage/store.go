// Package storage defines the schedule and appointment store. Implementations live in the
// postgres and memory subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrSlotExists means a slot already exists for (consultant, date, start time).
	ErrSlotExists = errors.New("slot already exists")
	// ErrSlotBound means the slot is bound to a pending or confirmed appointment.
	ErrSlotBound       = errors.New("slot bound to an active appointment")
	ErrSlotUnavailable = errors.New("slot unavailable")
)

type SlotFilter struct {
	ConsultantID int64
	DateFrom     string
	DateTo       string
	Available    *bool
}

type SlotPatch struct {
	Date        *string
	StartTime   *string
	EndTime     *string
	IsAvailable *bool
}

type SlotView struct {
	model.ScheduleSlot
	HasAppointment bool
}

type NewAppointment struct {
	ConsultantID    int64
	CustomerID      int64
	Date            string
	Time            string
	DurationMinutes int
	MeetingURL      string
	Description     string
	Status          model.Status
	// Cutoff is a zone-free wall-clock instant; slots ending before it cannot be booked.
	// Zero disables the check.
	Cutoff time.Time
}

// EventsFunc builds the outbox events for an appointment row before its transaction commits.
type EventsFunc func(model.Appointment) ([]outbox.Event, error)

// Change is the outcome of a transition decided against the locked current row.
type Change struct {
	Status      model.Status
	Reason      string
	ReleaseSlot bool
	Events      EventsFunc
}

// TransitionFunc decides the change for the current appointment; returning an error aborts the
// transition without side effects.
type TransitionFunc func(current model.Appointment) (Change, error)

type AppointmentFilter struct {
	ConsultantID int64
	CustomerID   int64
	Status       model.Status
	DateFrom     string
	DateTo       string
	Limit        int
}

type Store interface {
	CreateSlot(ctx context.Context, slot model.ScheduleSlot) (model.ScheduleSlot, error)
	GetSlot(ctx context.Context, id int64) (model.ScheduleSlot, error)
	UpdateSlot(ctx context.Context, id int64, patch SlotPatch) (model.ScheduleSlot, error)
	// DeleteSlot refuses bound slots; inactive appointments lose their binding.
	DeleteSlot(ctx context.Context, id int64) error
	ListSlots(ctx context.Context, f SlotFilter) ([]SlotView, error)

	// BookSlot flips the slot at (consultant, date, time) from available to unavailable and
	// inserts the appointment and its events in one atomic step.
	BookSlot(ctx context.Context, req NewAppointment, events EventsFunc) (model.Appointment, error)
	// TransitionAppointment locks the appointment owned by consultantID, applies fn's change and
	// appends its events atomically.
	TransitionAppointment(ctx context.Context, id, consultantID int64, fn TransitionFunc) (model.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (model.Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error)
	CountActiveAppointments(ctx context.Context, customerID int64) (int, error)

	outbox.Source

	Ping(ctx context.Context) error
}

const DefaultListLimit = 200

func ClampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultListLimit
	}
	return limit
}

package booking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Directory is the consultant/customer lookup the engine depends on.
type Directory interface {
	GetConsultant(ctx context.Context, id int64) (model.Consultant, error)
	GetCustomer(ctx context.Context, id int64) (model.Customer, error)
	DisableCustomer(ctx context.Context, id int64) error
}

type Config struct {
	// WorkerLimit bounds schedule generation fan-out.
	WorkerLimit     int
	DefaultDuration int
}

type Service struct {
	store  storage.Store
	dir    Directory
	zone   *clock.Zone
	logger *slog.Logger
	cfg    Config
	tracer trace.Tracer
	now    func() time.Time
}

func NewService(store storage.Store, dir Directory, zone *clock.Zone, logger *slog.Logger, cfg Config) *Service {
	if cfg.WorkerLimit <= 0 {
		cfg.WorkerLimit = 4
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 60
	}
	return &Service{
		store:  store,
		dir:    dir,
		zone:   zone,
		logger: logger,
		cfg:    cfg,
		tracer: otel.Tracer("booking-service/booking"),
		now:    time.Now,
	}
}

func (s *Service) activeConsultant(ctx context.Context, id int64) (model.Consultant, error) {
	if id <= 0 {
		return model.Consultant{}, apperr.Validation("consultant_id is required")
	}
	c, err := s.dir.GetConsultant(ctx, id)
	if err != nil {
		return model.Consultant{}, err
	}
	if c.Disabled {
		return model.Consultant{}, apperr.Validation("consultant %d is disabled", id)
	}
	return c, nil
}

type CreateSlotRequest struct {
	ConsultantID int64
	Date         string
	StartTime    string
	EndTime      string
	IsAvailable  *bool
}

func (s *Service) CreateSlot(ctx context.Context, req CreateSlotRequest) (slot model.ScheduleSlot, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.CreateSlot", trace.WithAttributes(attribute.Int64("consultant.id", req.ConsultantID)))
	defer func() { finish(span, err) }()

	date, start, end, err := normalizeWindow(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return model.ScheduleSlot{}, err
	}
	if _, err := s.activeConsultant(ctx, req.ConsultantID); err != nil {
		return model.ScheduleSlot{}, err
	}
	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	slot, err = s.store.CreateSlot(ctx, model.ScheduleSlot{
		ConsultantID: req.ConsultantID,
		Date:         date,
		StartTime:    start,
		EndTime:      end,
		IsAvailable:  available,
	})
	if err != nil {
		return model.ScheduleSlot{}, translate(err, "slot")
	}
	return slot, nil
}

func (s *Service) UpdateSlot(ctx context.Context, actor model.Actor, id int64, patch storage.SlotPatch) (slot model.ScheduleSlot, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.UpdateSlot", trace.WithAttributes(attribute.Int64("slot.id", id)))
	defer func() { finish(span, err) }()

	current, err := s.ownedSlot(ctx, actor, id)
	if err != nil {
		return model.ScheduleSlot{}, err
	}

	merged := current
	if patch.Date != nil {
		merged.Date = *patch.Date
	}
	if patch.StartTime != nil {
		merged.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		merged.EndTime = *patch.EndTime
	}
	date, start, end, err := normalizeWindow(merged.Date, merged.StartTime, merged.EndTime)
	if err != nil {
		return model.ScheduleSlot{}, err
	}
	normalized := storage.SlotPatch{IsAvailable: patch.IsAvailable}
	if patch.Date != nil {
		normalized.Date = &date
	}
	if patch.StartTime != nil {
		normalized.StartTime = &start
	}
	if patch.EndTime != nil {
		normalized.EndTime = &end
	}

	slot, err = s.store.UpdateSlot(ctx, id, normalized)
	if err != nil {
		return model.ScheduleSlot{}, translate(err, "slot")
	}
	return slot, nil
}

func (s *Service) DeleteSlot(ctx context.Context, actor model.Actor, id int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "booking.DeleteSlot", trace.WithAttributes(attribute.Int64("slot.id", id)))
	defer func() { finish(span, err) }()

	if _, err := s.ownedSlot(ctx, actor, id); err != nil {
		return err
	}
	return translate(s.store.DeleteSlot(ctx, id), "slot")
}

func (s *Service) ownedSlot(ctx context.Context, actor model.Actor, id int64) (model.ScheduleSlot, error) {
	if id <= 0 {
		return model.ScheduleSlot{}, apperr.Validation("schedule_id is required")
	}
	slot, err := s.store.GetSlot(ctx, id)
	if err != nil {
		return model.ScheduleSlot{}, translate(err, "slot")
	}
	if !actor.CanManage(slot.ConsultantID) {
		return model.ScheduleSlot{}, apperr.Forbidden("not allowed to manage consultant %d", slot.ConsultantID)
	}
	return slot, nil
}

type ListSlotsRequest struct {
	ConsultantID int64
	DateFrom     string
	DateTo       string
	Available    *bool
}

// SlotListing is a stored slot with its derived annotations.
type SlotListing struct {
	storage.SlotView
	IsPast bool
}

func (s *Service) ListSlots(ctx context.Context, req ListSlotsRequest) (out []SlotListing, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.ListSlots", trace.WithAttributes(attribute.Int64("consultant.id", req.ConsultantID)))
	defer func() { finish(span, err) }()

	if req.ConsultantID <= 0 {
		return nil, apperr.Validation("consultant_id is required")
	}
	from, to, err := normalizeRange(req.DateFrom, req.DateTo)
	if err != nil {
		return nil, err
	}
	views, err := s.store.ListSlots(ctx, storage.SlotFilter{
		ConsultantID: req.ConsultantID,
		DateFrom:     from,
		DateTo:       to,
		Available:    req.Available,
	})
	if err != nil {
		return nil, translate(err, "slots")
	}
	out = make([]SlotListing, 0, len(views))
	for _, v := range views {
		out = append(out, SlotListing{SlotView: v, IsPast: s.zone.IsPast(v.Date, v.EndTime)})
	}
	return out, nil
}

type CreateAppointmentRequest struct {
	ConsultantID    int64
	CustomerID      int64
	Date            string
	Time            string
	DurationMinutes int
	MeetingURL      string
	Status          string
	Description     string
}

func (s *Service) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (appt model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.CreateAppointment", trace.WithAttributes(
		attribute.Int64("consultant.id", req.ConsultantID),
		attribute.String("slot.date", req.Date),
		attribute.String("slot.time", req.Time),
	))
	defer func() { finish(span, err) }()

	if req.CustomerID <= 0 {
		return model.Appointment{}, apperr.Validation("customer_id is required")
	}
	if _, err := clock.ParseDate(req.Date); err != nil {
		return model.Appointment{}, apperr.Validation("date: %v", err)
	}
	at, err := clock.ParseClock(req.Time)
	if err != nil {
		return model.Appointment{}, apperr.Validation("time: %v", err)
	}
	status := model.StatusPending
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status = model.Status(raw)
	}
	out, err := initialOutcome(status)
	if err != nil {
		return model.Appointment{}, err
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = s.cfg.DefaultDuration
	}
	if duration < 0 || duration > 24*60 {
		return model.Appointment{}, apperr.Validation("duration must be between 1 and 1440 minutes")
	}

	consultant, err := s.activeConsultant(ctx, req.ConsultantID)
	if err != nil {
		return model.Appointment{}, err
	}
	customer, err := s.dir.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return model.Appointment{}, err
	}
	if customer.Disabled {
		return model.Appointment{}, apperr.Validation("customer %d is disabled", req.CustomerID)
	}

	p := parties{consultant: consultant, customer: customer, known: true}
	appt, err = s.store.BookSlot(ctx, storage.NewAppointment{
		ConsultantID:    req.ConsultantID,
		CustomerID:      req.CustomerID,
		Date:            strings.TrimSpace(req.Date),
		Time:            at.String(),
		DurationMinutes: duration,
		MeetingURL:      strings.TrimSpace(req.MeetingURL),
		Description:     strings.TrimSpace(req.Description),
		Status:          out.To,
		Cutoff:          s.zone.WallClock(),
	}, buildEvents("create", "", out, p, s.now))
	if err != nil {
		return model.Appointment{}, translate(err, "slot")
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID, "consultant_id", appt.ConsultantID, "date", appt.Date, "time", appt.Time, "status", appt.Status)
	return appt, nil
}

type TransitionRequest struct {
	ConsultantID  int64
	AppointmentID int64
	Action        Action
	Reason        string
}

// Transition applies one lifecycle action. The status change, slot release and outbox event
// commit together or not at all.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (appt model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.Transition", trace.WithAttributes(
		attribute.Int64("appointment.id", req.AppointmentID),
		attribute.String("appointment.action", string(req.Action)),
	))
	defer func() { finish(span, err) }()

	if req.AppointmentID <= 0 {
		return model.Appointment{}, apperr.Validation("appointment_id is required")
	}
	if req.ConsultantID <= 0 {
		return model.Appointment{}, apperr.Validation("consultant_id is required")
	}

	current, err := s.store.GetAppointment(ctx, req.AppointmentID)
	if err != nil {
		return model.Appointment{}, translate(err, "appointment")
	}
	if current.ConsultantID != req.ConsultantID {
		return model.Appointment{}, apperr.NotFound("appointment %d not found for consultant %d", req.AppointmentID, req.ConsultantID)
	}
	// Fail fast before touching the directory; re-checked under the row lock below.
	if _, err := Next(current.Status, req.Action); err != nil {
		return model.Appointment{}, err
	}
	p := s.loadParties(ctx, current)

	reason := strings.TrimSpace(req.Reason)
	appt, err = s.store.TransitionAppointment(ctx, req.AppointmentID, req.ConsultantID, func(locked model.Appointment) (storage.Change, error) {
		out, err := Next(locked.Status, req.Action)
		if err != nil {
			return storage.Change{}, err
		}
		change := storage.Change{
			Status:      out.To,
			ReleaseSlot: out.ReleaseSlot,
			Events:      buildEvents(string(req.Action), locked.Status, out, p, s.now),
		}
		if out.To == model.StatusCancelled {
			change.Reason = reason
		}
		return change, nil
	})
	if err != nil {
		return model.Appointment{}, translate(err, "appointment")
	}

	s.logger.Info("appointment transitioned",
		"appointment_id", appt.ID, "action", req.Action, "from", current.Status, "to", appt.Status)
	return appt, nil
}

// loadParties resolves notification facts. A lookup failure only costs the notification.
func (s *Service) loadParties(ctx context.Context, a model.Appointment) parties {
	consultant, err := s.dir.GetConsultant(ctx, a.ConsultantID)
	if err != nil {
		s.logger.Warn("consultant lookup failed, notification skipped", "appointment_id", a.ID, "err", err)
		return parties{}
	}
	customer, err := s.dir.GetCustomer(ctx, a.CustomerID)
	if err != nil {
		s.logger.Warn("customer lookup failed, notification skipped", "appointment_id", a.ID, "err", err)
		return parties{}
	}
	return parties{consultant: consultant, customer: customer, known: true}
}

func (s *Service) Confirm(ctx context.Context, consultantID, appointmentID int64) (model.Appointment, error) {
	return s.Transition(ctx, TransitionRequest{ConsultantID: consultantID, AppointmentID: appointmentID, Action: ActionConfirm})
}

func (s *Service) Deny(ctx context.Context, consultantID, appointmentID int64, reason string) (model.Appointment, error) {
	return s.Transition(ctx, TransitionRequest{ConsultantID: consultantID, AppointmentID: appointmentID, Action: ActionDeny, Reason: reason})
}

func (s *Service) Cancel(ctx context.Context, consultantID, appointmentID int64, reason string) (model.Appointment, error) {
	return s.Transition(ctx, TransitionRequest{ConsultantID: consultantID, AppointmentID: appointmentID, Action: ActionCancel, Reason: reason})
}

func (s *Service) Complete(ctx context.Context, consultantID, appointmentID int64) (model.Appointment, error) {
	return s.Transition(ctx, TransitionRequest{ConsultantID: consultantID, AppointmentID: appointmentID, Action: ActionComplete})
}

func (s *Service) ListAppointments(ctx context.Context, f storage.AppointmentFilter) (out []model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.ListAppointments")
	defer func() { finish(span, err) }()

	if f.Status != "" {
		if _, ok := model.ParseStatus(string(f.Status)); !ok {
			return nil, apperr.Validation("unknown status %q", f.Status)
		}
	}
	if f.DateFrom, f.DateTo, err = normalizeRange(f.DateFrom, f.DateTo); err != nil {
		return nil, err
	}
	out, err = s.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, translate(err, "appointments")
	}
	return out, nil
}

// DeleteCustomer soft-deletes a customer without active appointments. A booking racing this
// call can still land; the customer is then disabled with one active appointment.
func (s *Service) DeleteCustomer(ctx context.Context, customerID int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "booking.DeleteCustomer", trace.WithAttributes(attribute.Int64("customer.id", customerID)))
	defer func() { finish(span, err) }()

	if customerID <= 0 {
		return apperr.Validation("customer_id is required")
	}
	if _, err := s.dir.GetCustomer(ctx, customerID); err != nil {
		return err
	}
	n, err := s.store.CountActiveAppointments(ctx, customerID)
	if err != nil {
		return translate(err, "appointments")
	}
	if n > 0 {
		return apperr.Conflict("customer %d has %d active appointments", customerID, n)
	}
	return s.dir.DisableCustomer(ctx, customerID)
}

func normalizeWindow(date, start, end string) (string, string, string, error) {
	d, err := clock.ParseDate(date)
	if err != nil {
		return "", "", "", apperr.Validation("date: %v", err)
	}
	st, err := clock.ParseClock(start)
	if err != nil {
		return "", "", "", apperr.Validation("start_time: %v", err)
	}
	en, err := clock.ParseClock(end)
	if err != nil {
		return "", "", "", apperr.Validation("end_time: %v", err)
	}
	if en <= st {
		return "", "", "", apperr.Validation("end_time must be after start_time")
	}
	return clock.FormatDate(d), st.String(), en.String(), nil
}

func normalizeRange(from, to string) (string, string, error) {
	var out [2]string
	for i, raw := range []string{from, to} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		d, err := clock.ParseDate(raw)
		if err != nil {
			return "", "", apperr.Validation("%v", err)
		}
		out[i] = clock.FormatDate(d)
	}
	if out[0] != "" && out[1] != "" && out[1] < out[0] {
		return "", "", apperr.Validation("date_to must not be before date_from")
	}
	return out[0], out[1], nil
}

package booking

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage"
)

const aggregateAppointment = "appointment"

// AppointmentEvent is the outbox payload for every lifecycle change.
type AppointmentEvent struct {
	AppointmentID   int64          `json:"appointment_id"`
	ConsultantID    int64          `json:"consultant_id"`
	CustomerID      int64          `json:"customer_id"`
	Action          string         `json:"action"`
	PreviousStatus  model.Status   `json:"previous_status,omitempty"`
	Status          model.Status   `json:"status"`
	Date            string         `json:"date"`
	Time            string         `json:"time"`
	DurationMinutes int            `json:"duration_minutes"`
	Reason          string         `json:"reason,omitempty"`
	OccurredAt      string         `json:"occurred_at"`
	Notification    *notify.Intent `json:"notification,omitempty"`
}

func eventType(status model.Status, created bool) string {
	if created && status == model.StatusPending {
		return "appointment.created.v1"
	}
	return "appointment." + string(status) + ".v1"
}

// parties are the directory facts a notification needs; loaded before the transaction.
type parties struct {
	consultant model.Consultant
	customer   model.Customer
	known      bool
}

func buildEvents(action string, previous model.Status, out Outcome, p parties, now func() time.Time) storage.EventsFunc {
	return func(a model.Appointment) ([]outbox.Event, error) {
		ev := AppointmentEvent{
			AppointmentID:   a.ID,
			ConsultantID:    a.ConsultantID,
			CustomerID:      a.CustomerID,
			Action:          action,
			PreviousStatus:  previous,
			Status:          a.Status,
			Date:            a.Date,
			Time:            a.Time,
			DurationMinutes: a.DurationMinutes,
			Reason:          a.CancellationReason,
			OccurredAt:      now().UTC().Format(time.RFC3339),
		}
		if out.Notify != "" && p.known && p.customer.Email != "" {
			ev.Notification = &notify.Intent{
				Kind:            out.Notify,
				CustomerName:    p.customer.FullName,
				CustomerEmail:   p.customer.Email,
				ConsultantName:  p.consultant.FullName,
				Date:            a.Date,
				Time:            a.Time,
				DurationMinutes: a.DurationMinutes,
				MeetingURL:      a.MeetingURL,
				Description:     a.Description,
				Reason:          a.CancellationReason,
			}
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		return []outbox.Event{{
			AggregateType: aggregateAppointment,
			AggregateID:   strconv.FormatInt(a.ID, 10),
			EventType:     eventType(a.Status, previous == ""),
			Payload:       payload,
		}}, nil
	}
}

package handlers

import (
	"time"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
)

type slotDTO struct {
	ID           int64  `json:"id"`
	ConsultantID int64  `json:"consultant_id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	IsAvailable  bool   `json:"is_available"`
}

type slotListingDTO struct {
	slotDTO
	HasAppointment bool `json:"has_appointment"`
	IsPast         bool `json:"is_past"`
}

type plannedSlotDTO struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type failedSlotDTO struct {
	plannedSlotDTO
	Error string `json:"error"`
}

type generateDTO struct {
	Created []slotDTO        `json:"created"`
	Skipped []plannedSlotDTO `json:"skipped"`
	Failed  []failedSlotDTO  `json:"failed"`
}

type appointmentDTO struct {
	ID                 int64  `json:"id"`
	ConsultantID       int64  `json:"consultant_id"`
	CustomerID         int64  `json:"customer_id"`
	SlotID             *int64 `json:"slot_id,omitempty"`
	Date               string `json:"date"`
	Time               string `json:"time"`
	DurationMinutes    int    `json:"duration"`
	MeetingURL         string `json:"meeting_url,omitempty"`
	Status             string `json:"status"`
	Description        string `json:"description,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

type consultantDTO struct {
	ID          int64    `json:"id"`
	FullName    string   `json:"full_name"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone,omitempty"`
	Specialties []string `json:"specialties"`
	JoinDate    string   `json:"join_date,omitempty"`
	Disabled    bool     `json:"disabled"`
}

type customerDTO struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Disabled bool   `json:"disabled"`
}

type syncItemDTO struct {
	ConsultantID int64  `json:"consultant_id"`
	Email        string `json:"email"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason,omitempty"`
}

type syncReportDTO struct {
	Created       int           `json:"created"`
	AlreadyExists int           `json:"already_exists"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	Errors        []string      `json:"errors"`
	Items         []syncItemDTO `json:"items"`
}

type accountDTO struct {
	Outcome      string `json:"outcome"`
	Username     string `json:"username,omitempty"`
	Status       string `json:"status,omitempty"`
	TempPassword string `json:"temp_password,omitempty"`
}

type accountStatusDTO struct {
	consultantDTO
	AccountStatus string `json:"account_status"`
	Enabled       bool   `json:"enabled"`
	Username      string `json:"username,omitempty"`
}

func toSlot(s model.ScheduleSlot) slotDTO {
	return slotDTO{
		ID:           s.ID,
		ConsultantID: s.ConsultantID,
		Date:         s.Date,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		IsAvailable:  s.IsAvailable,
	}
}

func toListings(in []booking.SlotListing) []slotListingDTO {
	out := make([]slotListingDTO, 0, len(in))
	for _, l := range in {
		out = append(out, slotListingDTO{slotDTO: toSlot(l.ScheduleSlot), HasAppointment: l.HasAppointment, IsPast: l.IsPast})
	}
	return out
}

func toGenerate(res booking.GenerateResult) generateDTO {
	out := generateDTO{
		Created: make([]slotDTO, 0, len(res.Created)),
		Skipped: make([]plannedSlotDTO, 0, len(res.Skipped)),
		Failed:  make([]failedSlotDTO, 0, len(res.Failed)),
	}
	for _, s := range res.Created {
		out.Created = append(out.Created, toSlot(s))
	}
	for _, p := range res.Skipped {
		out.Skipped = append(out.Skipped, plannedSlotDTO(p))
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, failedSlotDTO{plannedSlotDTO: plannedSlotDTO(f.PlannedSlot), Error: f.Error})
	}
	return out
}

func toAppointment(a model.Appointment) appointmentDTO {
	return appointmentDTO{
		ID:                 a.ID,
		ConsultantID:       a.ConsultantID,
		CustomerID:         a.CustomerID,
		SlotID:             a.SlotID,
		Date:               a.Date,
		Time:               a.Time,
		DurationMinutes:    a.DurationMinutes,
		MeetingURL:         a.MeetingURL,
		Status:             string(a.Status),
		Description:        a.Description,
		CancellationReason: a.CancellationReason,
		CreatedAt:          a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toAppointments(in []model.Appointment) []appointmentDTO {
	out := make([]appointmentDTO, 0, len(in))
	for _, a := range in {
		out = append(out, toAppointment(a))
	}
	return out
}

func toConsultant(c model.Consultant) consultantDTO {
	specialties := c.Specialties
	if specialties == nil {
		specialties = []string{}
	}
	return consultantDTO{
		ID:          c.ID,
		FullName:    c.FullName,
		Email:       c.Email,
		Phone:       c.Phone,
		Specialties: specialties,
		JoinDate:    c.JoinDate,
		Disabled:    c.Disabled,
	}
}

func toConsultants(in []model.Consultant) []consultantDTO {
	out := make([]consultantDTO, 0, len(in))
	for _, c := range in {
		out = append(out, toConsultant(c))
	}
	return out
}

func toCustomer(c model.Customer) customerDTO {
	return customerDTO{ID: c.ID, FullName: c.FullName, Email: c.Email, Phone: c.Phone, Notes: c.Notes, Disabled: c.Disabled}
}

func toCustomers(in []model.Customer) []customerDTO {
	out := make([]customerDTO, 0, len(in))
	for _, c := range in {
		out = append(out, toCustomer(c))
	}
	return out
}

func toSyncReport(r identity.SyncReport) syncReportDTO {
	out := syncReportDTO{
		Created:       r.Created,
		AlreadyExists: r.AlreadyExists,
		Skipped:       r.Skipped,
		Failed:        r.Failed,
		Errors:        r.Errors,
		Items:         make([]syncItemDTO, 0, len(r.Items)),
	}
	if out.Errors == nil {
		out.Errors = []string{}
	}
	for _, it := range r.Items {
		out.Items = append(out.Items, syncItemDTO{ConsultantID: it.ConsultantID, Email: it.Email, Outcome: string(it.Outcome), Reason: it.Reason})
	}
	return out
}

func toAccountStatuses(in []identity.ConsultantAccount) []accountStatusDTO {
	out := make([]accountStatusDTO, 0, len(in))
	for _, ca := range in {
		out = append(out, accountStatusDTO{
			consultantDTO: toConsultant(ca.Consultant),
			AccountStatus: ca.Status,
			Enabled:       ca.Enabled,
			Username:      ca.Username,
		})
	}
	return out
}

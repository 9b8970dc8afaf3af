package handlers

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/apperr"
)

// request is the closed set of RPC actions. Only types in this file implement it.
type request interface {
	isRequest()
}

type sealed struct{}

func (sealed) isRequest() {}

type generateScheduleRequest struct {
	sealed
	ConsultantID    int64  `json:"consultant_id"`
	DateFrom        string `json:"date_from"`
	DateTo          string `json:"date_to"`
	WorkStart       string `json:"work_start"`
	WorkEnd         string `json:"work_end"`
	SlotDuration    int    `json:"slot_duration"`
	ExcludeWeekends bool   `json:"exclude_weekends"`
}

type createSlotRequest struct {
	sealed
	ConsultantID int64  `json:"consultant_id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	IsAvailable  *bool  `json:"is_available"`
}

type updateSlotRequest struct {
	sealed
	ScheduleID  int64   `json:"schedule_id"`
	Date        *string `json:"date"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	IsAvailable *bool   `json:"is_available"`
}

type deleteSlotRequest struct {
	sealed
	ScheduleID int64 `json:"schedule_id"`
}

type getScheduleRequest struct {
	sealed
	ConsultantID int64  `json:"consultant_id"`
	DateFrom     string `json:"date_from"`
	DateTo       string `json:"date_to"`
	IsAvailable  *bool  `json:"is_available"`
}

type createAppointmentRequest struct {
	sealed
	ConsultantID int64  `json:"consultant_id"`
	CustomerID   int64  `json:"customer_id"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Duration     int    `json:"duration"`
	MeetingURL   string `json:"meeting_url"`
	Status       string `json:"status"`
	Description  string `json:"description"`
}

type transitionRequest struct {
	sealed
	ConsultantID  int64  `json:"consultant_id"`
	AppointmentID int64  `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type confirmAppointmentRequest struct{ transitionRequest }
type denyAppointmentRequest struct{ transitionRequest }
type cancelAppointmentRequest struct{ transitionRequest }
type completeAppointmentRequest struct{ transitionRequest }

type listAppointmentsRequest struct {
	sealed
	ConsultantID int64  `json:"consultant_id"`
	CustomerID   int64  `json:"customer_id"`
	Status       string `json:"status"`
	DateFrom     string `json:"date_from"`
	DateTo       string `json:"date_to"`
	Limit        int    `json:"limit"`
}

type syncAccountsRequest struct{ sealed }

type createAccountRequest struct {
	sealed
	Email        string `json:"email"`
	ConsultantID int64  `json:"consultant_id"`
	SendInvite   bool   `json:"send_invite"`
}

type resetPasswordRequest struct {
	sealed
	Email string `json:"email"`
}

type deleteAccountRequest struct {
	sealed
	Email string `json:"email"`
}

type accountStatusRequest struct {
	sealed
	IncludeDisabled bool   `json:"include_disabled"`
	Search          string `json:"search"`
}

type createConsultantRequest struct {
	sealed
	FullName    string   `json:"full_name"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	Specialties []string `json:"specialties"`
	JoinDate    string   `json:"join_date"`
}

type updateConsultantRequest struct {
	sealed
	ConsultantID int64     `json:"consultant_id"`
	FullName     *string   `json:"full_name"`
	Email        *string   `json:"email"`
	Phone        *string   `json:"phone"`
	Specialties  *[]string `json:"specialties"`
	JoinDate     *string   `json:"join_date"`
	Disabled     *bool     `json:"disabled"`
}

type deleteConsultantRequest struct {
	sealed
	ConsultantID int64 `json:"consultant_id"`
}

type listRequest struct {
	sealed
	IncludeDisabled bool   `json:"include_disabled"`
	Search          string `json:"search"`
	Limit           int    `json:"limit"`
}

type listConsultantsRequest struct{ listRequest }
type listCustomersRequest struct{ listRequest }

type createCustomerRequest struct {
	sealed
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Notes    string `json:"notes"`
}

type deleteCustomerRequest struct {
	sealed
	CustomerID int64 `json:"customer_id"`
}

var actions = map[string]func() request{
	"generate_schedule":                   func() request { return &generateScheduleRequest{} },
	"create_schedule_slot":                func() request { return &createSlotRequest{} },
	"update_schedule_slot":                func() request { return &updateSlotRequest{} },
	"delete_schedule_slot":                func() request { return &deleteSlotRequest{} },
	"get_schedule_by_consultant":          func() request { return &getScheduleRequest{} },
	"create_appointment":                  func() request { return &createAppointmentRequest{} },
	"confirm_appointment":                 func() request { return &confirmAppointmentRequest{} },
	"deny_appointment":                    func() request { return &denyAppointmentRequest{} },
	"cancel_appointment":                  func() request { return &cancelAppointmentRequest{} },
	"complete_appointment":                func() request { return &completeAppointmentRequest{} },
	"list_appointments":                   func() request { return &listAppointmentsRequest{} },
	"sync_all_consultant_accounts":        func() request { return &syncAccountsRequest{} },
	"create_consultant_account":           func() request { return &createAccountRequest{} },
	"reset_consultant_password":           func() request { return &resetPasswordRequest{} },
	"delete_consultant_account":           func() request { return &deleteAccountRequest{} },
	"get_consultants_with_account_status": func() request { return &accountStatusRequest{} },
	"create_consultant":                   func() request { return &createConsultantRequest{} },
	"update_consultant":                   func() request { return &updateConsultantRequest{} },
	"delete_consultant":                   func() request { return &deleteConsultantRequest{} },
	"list_consultants":                    func() request { return &listConsultantsRequest{} },
	"create_customer":                     func() request { return &createCustomerRequest{} },
	"delete_customer":                     func() request { return &deleteCustomerRequest{} },
	"list_customers":                      func() request { return &listCustomersRequest{} },
}

// Actions lists the accepted action tags in lexical order.
func Actions() []string {
	out := make([]string, 0, len(actions))
	for name := range actions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// decode reads the action tag and unmarshals the same body into its request variant.
func decode(body []byte) (string, request, error) {
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", nil, apperr.Validation("invalid json body")
	}
	name := strings.TrimSpace(envelope.Action)
	if name == "" {
		return "", nil, apperr.Validation("action is required")
	}
	ctor, ok := actions[name]
	if !ok {
		return name, nil, apperr.Validation("unknown action %q", name)
	}
	req := ctor()
	if err := json.Unmarshal(body, req); err != nil {
		return name, nil, apperr.Validation("invalid %s request: %v", name, err)
	}
	return name, req, nil
}

// Package handlers exposes the booking engine as a single authenticated RPC endpoint.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/consultdesk/libs/httpx"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage"
)

type Booking interface {
	GenerateSchedule(ctx context.Context, req availability.PlanRequest) (booking.GenerateResult, error)
	CreateSlot(ctx context.Context, req booking.CreateSlotRequest) (model.ScheduleSlot, error)
	UpdateSlot(ctx context.Context, actor model.Actor, id int64, patch storage.SlotPatch) (model.ScheduleSlot, error)
	DeleteSlot(ctx context.Context, actor model.Actor, id int64) error
	ListSlots(ctx context.Context, req booking.ListSlotsRequest) ([]booking.SlotListing, error)
	CreateAppointment(ctx context.Context, req booking.CreateAppointmentRequest) (model.Appointment, error)
	Transition(ctx context.Context, req booking.TransitionRequest) (model.Appointment, error)
	ListAppointments(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error)
	DeleteCustomer(ctx context.Context, customerID int64) error
}

type Identity interface {
	CreateAccount(ctx context.Context, email string, consultantID int64, sendInvite bool) (identity.CreateAccountResult, error)
	ResetPassword(ctx context.Context, email string) (string, error)
	DeleteAccount(ctx context.Context, email string) error
	SyncAll(ctx context.Context) (identity.SyncReport, error)
	AccountStatuses(ctx context.Context, f directory.ListFilter) ([]identity.ConsultantAccount, error)
}

type Directory interface {
	CreateConsultant(ctx context.Context, c model.Consultant) (model.Consultant, error)
	UpdateConsultant(ctx context.Context, id int64, patch directory.ConsultantPatch) (model.Consultant, error)
	DisableConsultant(ctx context.Context, id int64) (model.Consultant, error)
	ListConsultants(ctx context.Context, f directory.ListFilter) ([]model.Consultant, error)
	CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error)
	ListCustomers(ctx context.Context, f directory.ListFilter) ([]model.Customer, error)
}

type RPCHandler struct {
	booking   Booking
	identity  Identity
	directory Directory
	logger    *slog.Logger
}

func NewRPCHandler(b Booking, id Identity, dir Directory, logger *slog.Logger) *RPCHandler {
	return &RPCHandler{booking: b, identity: id, directory: dir, logger: logger}
}

type envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Error: &errorBody{Kind: string(apperr.KindValidation), Message: "method not allowed"}})
		return
	}
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "missing identity")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, "", apperr.Validation("read body: %v", err))
		return
	}
	name, req, err := decode(body)
	httpx.Annotate(r.Context(), "action", name, "actor", actor.Subject)
	if err != nil {
		h.fail(w, r, name, err)
		return
	}

	data, err := h.dispatch(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, name, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{OK: true, Data: data})
}

func (h *RPCHandler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	kind := apperr.KindOf(err)
	attrs := []any{"action", action, "kind", kind, "request_id", httpx.RequestIDFromContext(r.Context()), "err", err}
	switch kind {
	case apperr.KindInternal, apperr.KindExternalService:
		h.logger.Error("rpc action failed", attrs...)
	default:
		h.logger.Debug("rpc action rejected", attrs...)
	}
	writeJSON(w, apperr.HTTPStatus(kind), envelope{Error: &errorBody{Kind: string(kind), Message: apperr.PublicMessage(err)}})
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, envelope{Error: &errorBody{Kind: "unauthorized", Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/consultdesk/libs/auth"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage/memory"
)

const testSecret = "test-secret"

type rpcResponse struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *errorBody      `json:"error"`
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gdb, err := directory.Open("sqlite", fmt.Sprintf("file:handlers_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open directory: %v", err)
	}
	t.Cleanup(func() { _ = directory.Close(gdb) })
	dir := directory.NewRepository(gdb)
	if err := dir.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	zone := clock.NewZone(time.UTC, func() time.Time { return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) })
	svc := booking.NewService(memory.New(), dir, zone, logger, booking.Config{})
	rec := identity.NewReconciler(identity.NewMockProvider(), dir, logger, identity.Config{})
	verifier := auth.NewVerifier(auth.VerifierConfig{HS256Secret: testSecret})
	return RequireBearer(verifier, "admin", NewRPCHandler(svc, rec, dir, logger))
}

func token(t *testing.T, groups []string, consultantID string) string {
	t.Helper()
	now := time.Now()
	tok, err := auth.SignHS256(auth.Claims{
		Sub:          "user-1",
		Groups:       groups,
		ConsultantID: consultantID,
		Iat:          now.Unix(),
		Exp:          now.Add(time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func call(t *testing.T, h http.Handler, tok string, body map[string]any) (int, rpcResponse) {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rpc", bytes.NewReader(raw))
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var resp rpcResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return rr.Code, resp
}

func mustOK(t *testing.T, h http.Handler, tok string, body map[string]any, out any) {
	t.Helper()
	code, resp := call(t, h, tok, body)
	if code != http.StatusOK || !resp.OK {
		t.Fatalf("%v: expected ok, got %d %+v", body["action"], code, resp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
}

func expectError(t *testing.T, h http.Handler, tok string, body map[string]any, status int, kind string) {
	t.Helper()
	code, resp := call(t, h, tok, body)
	if code != status || resp.OK || resp.Error == nil || resp.Error.Kind != kind {
		t.Fatalf("%v: expected %d %s, got %d %+v", body["action"], status, kind, code, resp.Error)
	}
}

func TestRequiresBearerToken(t *testing.T) {
	h := newTestServer(t)
	expectError(t, h, "", map[string]any{"action": "list_consultants"}, http.StatusUnauthorized, "unauthorized")
	expectError(t, h, "not.a.token", map[string]any{"action": "list_consultants"}, http.StatusUnauthorized, "unauthorized")
}

func TestUnknownActionIsValidation(t *testing.T) {
	h := newTestServer(t)
	admin := token(t, []string{"admin"}, "")
	expectError(t, h, admin, map[string]any{"action": "drop_tables"}, http.StatusBadRequest, "validation")
	expectError(t, h, admin, map[string]any{}, http.StatusBadRequest, "validation")
}

func TestEveryActionIsDispatched(t *testing.T) {
	h := newTestServer(t)
	admin := token(t, []string{"admin"}, "")
	for _, name := range Actions() {
		_, resp := call(t, h, admin, map[string]any{"action": name})
		if resp.Error != nil && strings.Contains(resp.Error.Message, "unhandled") {
			t.Fatalf("action %s is not dispatched", name)
		}
	}
}

func TestBookingFlow(t *testing.T) {
	h := newTestServer(t)
	admin := token(t, []string{"admin"}, "")

	var consultant consultantDTO
	mustOK(t, h, admin, map[string]any{"action": "create_consultant", "full_name": "Jane Consultant", "email": "jane@example.com"}, &consultant)
	var customer customerDTO
	mustOK(t, h, admin, map[string]any{"action": "create_customer", "full_name": "Bob", "email": "bob@example.com"}, &customer)

	own := token(t, nil, fmt.Sprint(consultant.ID))
	other := token(t, nil, "999")

	var gen generateDTO
	mustOK(t, h, own, map[string]any{
		"action": "generate_schedule", "consultant_id": consultant.ID,
		"date_from": "2024-01-02", "date_to": "2024-01-02", "work_start": "08:00", "work_end": "12:00",
	}, &gen)
	if len(gen.Created) != 3 || len(gen.Skipped) != 0 {
		t.Fatalf("unexpected generate result %+v", gen)
	}

	expectError(t, h, other, map[string]any{
		"action": "get_schedule_by_consultant", "consultant_id": consultant.ID,
	}, http.StatusForbidden, "forbidden")

	var appt appointmentDTO
	mustOK(t, h, own, map[string]any{
		"action": "create_appointment", "consultant_id": consultant.ID, "customer_id": customer.ID,
		"date": "2024-01-02", "time": "09:30", "meeting_url": "https://meet.example.com/a",
	}, &appt)
	if appt.Status != string(model.StatusPending) || appt.DurationMinutes != 60 {
		t.Fatalf("unexpected appointment %+v", appt)
	}

	expectError(t, h, own, map[string]any{
		"action": "create_appointment", "consultant_id": consultant.ID, "customer_id": customer.ID,
		"date": "2024-01-02", "time": "09:30",
	}, http.StatusConflict, "slot_unavailable")

	var slots []slotListingDTO
	mustOK(t, h, own, map[string]any{"action": "get_schedule_by_consultant", "consultant_id": consultant.ID}, &slots)
	bound := 0
	for _, s := range slots {
		if s.HasAppointment {
			bound++
			if s.StartTime != "09:30" || s.IsAvailable {
				t.Fatalf("unexpected bound slot %+v", s)
			}
		}
	}
	if bound != 1 {
		t.Fatalf("expected one bound slot, got %d", bound)
	}

	expectError(t, h, other, map[string]any{
		"action": "confirm_appointment", "consultant_id": consultant.ID, "appointment_id": appt.ID,
	}, http.StatusForbidden, "forbidden")

	mustOK(t, h, own, map[string]any{"action": "confirm_appointment", "consultant_id": consultant.ID, "appointment_id": appt.ID}, &appt)
	if appt.Status != string(model.StatusConfirmed) {
		t.Fatalf("expected confirmed, got %s", appt.Status)
	}
	expectError(t, h, own, map[string]any{
		"action": "deny_appointment", "consultant_id": consultant.ID, "appointment_id": appt.ID,
	}, http.StatusConflict, "invalid_transition")

	expectError(t, h, admin, map[string]any{"action": "delete_customer", "customer_id": customer.ID}, http.StatusConflict, "conflict")

	mustOK(t, h, own, map[string]any{"action": "cancel_appointment", "consultant_id": consultant.ID, "appointment_id": appt.ID, "reason": "sick"}, &appt)
	if appt.Status != string(model.StatusCancelled) || appt.CancellationReason != "sick" {
		t.Fatalf("unexpected cancelled appointment %+v", appt)
	}

	var list []appointmentDTO
	mustOK(t, h, own, map[string]any{"action": "list_appointments"}, &list)
	if len(list) != 1 || list[0].ID != appt.ID {
		t.Fatalf("unexpected appointment list %+v", list)
	}
	mustOK(t, h, admin, map[string]any{"action": "delete_customer", "customer_id": customer.ID}, nil)
}

func TestIdentityActionsAreAdminOnly(t *testing.T) {
	h := newTestServer(t)
	admin := token(t, []string{"admin"}, "")
	consultantTok := token(t, nil, "1")

	expectError(t, h, consultantTok, map[string]any{"action": "sync_all_consultant_accounts"}, http.StatusForbidden, "forbidden")

	var c consultantDTO
	mustOK(t, h, admin, map[string]any{"action": "create_consultant", "full_name": "Ann", "email": "ann@example.com"}, &c)

	var acct accountDTO
	mustOK(t, h, admin, map[string]any{"action": "create_consultant_account", "email": "ann@example.com", "consultant_id": c.ID}, &acct)
	if acct.Outcome != string(identity.OutcomeCreated) || acct.TempPassword == "" {
		t.Fatalf("unexpected account result %+v", acct)
	}

	var report syncReportDTO
	mustOK(t, h, admin, map[string]any{"action": "sync_all_consultant_accounts"}, &report)
	if report.Created != 0 || report.AlreadyExists != 1 {
		t.Fatalf("unexpected sync report %+v", report)
	}

	var statuses []accountStatusDTO
	mustOK(t, h, admin, map[string]any{"action": "get_consultants_with_account_status"}, &statuses)
	if len(statuses) != 1 || statuses[0].AccountStatus != identity.LabelPending {
		t.Fatalf("unexpected statuses %+v", statuses)
	}

	var reset map[string]string
	mustOK(t, h, admin, map[string]any{"action": "reset_consultant_password", "email": "ann@example.com"}, &reset)
	if reset["temp_password"] == "" {
		t.Fatal("expected a temporary password")
	}
	mustOK(t, h, admin, map[string]any{"action": "delete_consultant_account", "email": "ann@example.com"}, nil)
	expectError(t, h, admin, map[string]any{"action": "reset_consultant_password", "email": "ann@example.com"}, http.StatusNotFound, "not_found")
}

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/consultdesk/libs/auth"
)

func mockEnv(t *testing.T) Environment {
	t.Helper()
	env := Environment{
		Service:            "booking-service",
		Mode:               ModeMock,
		Port:               "0",
		GRPCPort:           "0",
		Timezone:           "UTC",
		DirectoryDSN:       fmt.Sprintf("file:app_%d?mode=memory&cache=shared", time.Now().UnixNano()),
		JWTSecret:          "app-test-secret",
		AdminGroup:         "admin",
		RateLimitPerMinute: 1000,
		BodyLimitBytes:     1 << 20,
		RequestTimeout:     5 * time.Second,
		ShutdownGrace:      time.Second,
	}
	if err := env.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return env
}

func TestLoadEnvironment(t *testing.T) {
	for _, key := range []string{"JWT_SECRET", "JWKS_URL", "JWT_ISSUER", "NOTIFY_SINK", "DIRECTORY_DSN", "DIRECTORY_DRIVER"} {
		t.Setenv(key, "")
	}
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadEnvironment(); err == nil {
		t.Fatal("expected DATABASE_URL to be required in production")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/booking")
	t.Setenv("COGNITO_USER_POOL_ID", "us-east-1_abc")
	t.Setenv("COGNITO_REGION", "us-east-1")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	env, err := LoadEnvironment()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if env.DirectoryDSN != env.DatabaseURL || env.NotifySink != SinkSMTP {
		t.Fatalf("unexpected production defaults %+v", env)
	}
	if env.JWKSURL != "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_abc/.well-known/jwks.json" {
		t.Fatalf("unexpected jwks url %q", env.JWKSURL)
	}

	t.Setenv("APP_ENV", "mock")
	env, err = LoadEnvironment()
	if err != nil {
		t.Fatalf("load mock: %v", err)
	}
	if env.DirectoryDriver != "sqlite" || env.NotifySink != SinkLog {
		t.Fatalf("unexpected mock defaults %+v", env)
	}

	t.Setenv("APP_ENV", "staging")
	if _, err := LoadEnvironment(); err == nil {
		t.Fatal("expected unknown APP_ENV to be rejected")
	}
}

func TestMockAppServesRPC(t *testing.T) {
	ctx := context.Background()
	env := mockEnv(t)
	a, err := Build(ctx, env, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(a.Close)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		a.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d %s", path, rr.Code, rr.Body.String())
		}
	}

	now := time.Now()
	tok, err := auth.SignHS256(auth.Claims{
		Sub: "admin-1", Groups: []string{"admin"}, Iat: now.Unix(), Exp: now.Add(time.Hour).Unix(),
	}, env.JWTSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rpc := func(body map[string]any) map[string]any {
		t.Helper()
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/rpc", bytes.NewReader(raw))
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		a.Handler.ServeHTTP(rr, req)
		var resp struct {
			OK   bool           `json:"ok"`
			Data map[string]any `json:"data"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || !resp.OK {
			t.Fatalf("%v failed: %d %s", body["action"], rr.Code, rr.Body.String())
		}
		return resp.Data
	}

	consultant := rpc(map[string]any{"action": "create_consultant", "full_name": "Jane", "email": "jane@example.com"})
	customer := rpc(map[string]any{"action": "create_customer", "full_name": "Bob", "email": "bob@example.com"})
	rpc(map[string]any{
		"action": "create_schedule_slot", "consultant_id": consultant["id"],
		"date": "2030-03-04", "start_time": "09:30", "end_time": "10:30",
	})
	appt := rpc(map[string]any{
		"action": "create_appointment", "consultant_id": consultant["id"], "customer_id": customer["id"],
		"date": "2030-03-04", "time": "09:30", "status": "confirmed",
	})
	if appt["status"] != "confirmed" {
		t.Fatalf("unexpected appointment %v", appt)
	}

	delivered, err := a.Relay.RunOnce(ctx)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected the confirmation event to be delivered, got %d", delivered)
	}
}

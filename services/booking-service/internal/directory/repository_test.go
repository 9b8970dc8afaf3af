package directory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
)

// setupTestRepo opens a uniquely named in-memory sqlite database so tests never share state.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:directory_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	gdb, err := Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = Close(gdb) })
	repo := NewRepository(gdb)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return repo
}

func TestConsultantCRUD(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	c, err := repo.CreateConsultant(ctx, model.Consultant{
		FullName:    "Jane Doe",
		Email:       "  Jane@Example.com ",
		Specialties: []string{"tax", " ", "audit"},
		JoinDate:    "2023-05-01",
	})
	if err != nil {
		t.Fatalf("CreateConsultant failed: %v", err)
	}
	if c.Email != "jane@example.com" {
		t.Fatalf("expected lower-cased email, got %q", c.Email)
	}
	if len(c.Specialties) != 2 {
		t.Fatalf("expected 2 specialties, got %v", c.Specialties)
	}

	got, err := repo.GetConsultant(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetConsultant failed: %v", err)
	}
	if got.Specialties[1] != "audit" {
		t.Fatalf("specialties not persisted: %v", got.Specialties)
	}

	_, err = repo.CreateConsultant(ctx, model.Consultant{FullName: "Other", Email: "jane@example.com"})
	if !errors.Is(err, ErrDuplicateEmail) || !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected duplicate email conflict, got %v", err)
	}

	// Consultants without email do not collide on the unique index.
	for i := 0; i < 2; i++ {
		if _, err := repo.CreateConsultant(ctx, model.Consultant{FullName: fmt.Sprintf("No Mail %d", i)}); err != nil {
			t.Fatalf("CreateConsultant without email failed: %v", err)
		}
	}

	phone := "+8801700000000"
	updated, err := repo.UpdateConsultant(ctx, c.ID, ConsultantPatch{Phone: &phone})
	if err != nil || updated.Phone != phone {
		t.Fatalf("UpdateConsultant failed: %+v (%v)", updated, err)
	}

	if _, err := repo.DisableConsultant(ctx, c.ID); err != nil {
		t.Fatalf("DisableConsultant failed: %v", err)
	}
	active, _ := repo.ListConsultants(ctx, ListFilter{})
	all, _ := repo.ListConsultants(ctx, ListFilter{IncludeDisabled: true})
	if len(active) != 2 || len(all) != 3 {
		t.Fatalf("expected 2 active and 3 total, got %d/%d", len(active), len(all))
	}

	if _, err := repo.GetConsultant(ctx, 999); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConsultantValidation(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	cases := []model.Consultant{
		{FullName: ""},
		{FullName: "A", Email: "not-an-email"},
		{FullName: "A", JoinDate: "01-05-2023"},
	}
	for _, c := range cases {
		if _, err := repo.CreateConsultant(ctx, c); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("expected validation error for %+v, got %v", c, err)
		}
	}
}

func TestCustomers(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	c, err := repo.CreateCustomer(ctx, model.Customer{FullName: "Bob", Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	if err := repo.DisableCustomer(ctx, c.ID); err != nil {
		t.Fatalf("DisableCustomer failed: %v", err)
	}
	got, _ := repo.GetCustomer(ctx, c.ID)
	if !got.Disabled {
		t.Fatal("expected customer disabled")
	}
	if err := repo.DisableCustomer(ctx, 42); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	list, _ := repo.ListCustomers(ctx, ListFilter{IncludeDisabled: true, Search: "BOB"})
	if len(list) != 1 {
		t.Fatalf("expected search hit, got %d", len(list))
	}
}

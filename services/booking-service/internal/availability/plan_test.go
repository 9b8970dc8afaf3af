package availability

import (
	"testing"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/apperr"
)

func TestCatalogShape(t *testing.T) {
	c := Catalog()
	if len(c) != 8 {
		t.Fatalf("expected 8 windows, got %d", len(c))
	}
	if c[0].Start.String() != "08:00" || c[7].End.String() != "21:30" {
		t.Fatalf("unexpected bounds %s..%s", c[0].Start, c[7].End)
	}
	for i := 1; i < len(c); i++ {
		if c[i].Start < c[i-1].End {
			t.Fatalf("windows %d and %d overlap", i-1, i)
		}
	}
	c[0].Start = 0
	if Catalog()[0].Start.String() != "08:00" {
		t.Fatal("Catalog must return a copy")
	}
}

func TestPlan_MorningWindows(t *testing.T) {
	reqs, err := Plan(PlanRequest{
		ConsultantID: 1,
		DateFrom:     "2024-01-01",
		DateTo:       "2024-01-01",
		WorkStart:    "08:00",
		WorkEnd:      "12:00",
		SlotDuration: 60,
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(reqs))
	}
	want := []string{"08:00", "09:30", "11:00"}
	for i, r := range reqs {
		if r.Window.Start.String() != want[i] || r.Date != "2024-01-01" {
			t.Fatalf("slot %d: got %s %s", i, r.Date, r.Window.Start)
		}
	}
}

func TestPlan_ExcludeWeekends(t *testing.T) {
	// 2024-01-06 is a Saturday, 2024-01-07 a Sunday.
	reqs, err := Plan(PlanRequest{
		ConsultantID:    1,
		DateFrom:        "2024-01-05",
		DateTo:          "2024-01-08",
		ExcludeWeekends: true,
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(reqs) != 16 {
		t.Fatalf("expected 2 days x 8 windows, got %d", len(reqs))
	}
	if reqs[0].Date != "2024-01-05" || reqs[15].Date != "2024-01-08" {
		t.Fatalf("unexpected dates %s..%s", reqs[0].Date, reqs[15].Date)
	}
}

func TestPlan_Rejects(t *testing.T) {
	cases := map[string]PlanRequest{
		"missing consultant": {DateFrom: "2024-01-01", DateTo: "2024-01-01"},
		"reversed range":     {ConsultantID: 1, DateFrom: "2024-01-02", DateTo: "2024-01-01"},
		"too long":           {ConsultantID: 1, DateFrom: "2024-01-01", DateTo: "2025-01-02"},
		"bad work hours":     {ConsultantID: 1, DateFrom: "2024-01-01", DateTo: "2024-01-01", WorkStart: "12:00", WorkEnd: "08:00"},
		"no duration match":  {ConsultantID: 1, DateFrom: "2024-01-01", DateTo: "2024-01-01", SlotDuration: 45},
		"malformed date":     {ConsultantID: 1, DateFrom: "01/01/2024", DateTo: "2024-01-01"},
	}
	for name, req := range cases {
		if _, err := Plan(req); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

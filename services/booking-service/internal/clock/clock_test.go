package clock

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	good := map[string]Clock{"08:00": 480, "21:30": 1290, "9:05": 545, "13:30:00": 810}
	for raw, want := range good {
		got, err := ParseClock(raw)
		if err != nil || got != want {
			t.Fatalf("%s: expected %d, got %d (%v)", raw, want, got, err)
		}
	}
	for _, raw := range []string{"", "24:00", "08:60", "8", "08:5", "08:00:30", "ab:cd"} {
		if _, err := ParseClock(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
	if MustClock("16:30").String() != "16:30" {
		t.Fatal("round trip failed")
	}
}

func TestZoneIsPast(t *testing.T) {
	loc := time.FixedZone("UTC+6", 6*60*60)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, loc)
	z := NewZone(loc, func() time.Time { return now.UTC() })

	if !z.IsPast("2024-01-01", "09:00") {
		t.Fatal("09:00 local should be past at 10:00 local")
	}
	if z.IsPast("2024-01-01", "10:30") {
		t.Fatal("10:30 local should not be past at 10:00 local")
	}
	if z.IsPast("not-a-date", "10:30") {
		t.Fatal("malformed input is never past")
	}
	if z.Today() != "2024-01-01" {
		t.Fatalf("expected today 2024-01-01, got %s", z.Today())
	}
}

func TestLoadZone(t *testing.T) {
	z, err := LoadZone("")
	if err != nil || z.Location() != time.UTC {
		t.Fatalf("expected UTC default, got %v (%v)", z, err)
	}
	if _, err := LoadZone("Not/AZone"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestWallClockCutoff(t *testing.T) {
	loc := time.FixedZone("UTC+6", 6*60*60)
	// 03:00 UTC is 09:00 local.
	z := NewZone(loc, func() time.Time { return time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC) })
	cutoff := z.WallClock()
	if want := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC); !cutoff.Equal(want) {
		t.Fatalf("expected %s, got %s", want, cutoff)
	}
	if EndsBefore("2024-01-01", "09:00", cutoff) {
		t.Fatal("a slot ending exactly now has not ended before now")
	}
	if !EndsBefore("2024-01-01", "08:59", cutoff) {
		t.Fatal("08:59 ends before 09:00")
	}
	if EndsBefore("2024-01-01", "bad", cutoff) {
		t.Fatal("malformed input is never past")
	}
}

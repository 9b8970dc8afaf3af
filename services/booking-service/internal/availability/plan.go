package availability

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/clock"
)

const MaxRangeDays = 366

type PlanRequest struct {
	ConsultantID    int64
	DateFrom        string
	DateTo          string
	WorkStart       string
	WorkEnd         string
	SlotDuration    int
	ExcludeWeekends bool
}

type SlotRequest struct {
	ConsultantID int64
	Date         string
	Window       Window
}

// Plan expands a generation request into one SlotRequest per (date, window), ordered by date
// then start time. It only validates input; existing slots are the caller's concern.
func Plan(req PlanRequest) ([]SlotRequest, error) {
	if req.ConsultantID <= 0 {
		return nil, apperr.Validation("consultant_id is required")
	}
	from, err := clock.ParseDate(req.DateFrom)
	if err != nil {
		return nil, apperr.Validation("date_from: %v", err)
	}
	to, err := clock.ParseDate(req.DateTo)
	if err != nil {
		return nil, apperr.Validation("date_to: %v", err)
	}
	if to.Before(from) {
		return nil, apperr.Validation("date_to must not be before date_from")
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > MaxRangeDays {
		return nil, apperr.Validation("date range spans %d days, at most %d allowed", days, MaxRangeDays)
	}

	workStart, err := clockOrDefault(req.WorkStart, DefaultWorkStart)
	if err != nil {
		return nil, apperr.Validation("work_start: %v", err)
	}
	workEnd, err := clockOrDefault(req.WorkEnd, DefaultWorkEnd)
	if err != nil {
		return nil, apperr.Validation("work_end: %v", err)
	}
	if workEnd <= workStart {
		return nil, apperr.Validation("work_end must be after work_start")
	}
	if req.SlotDuration < 0 {
		return nil, apperr.Validation("slot_duration must be positive")
	}

	var windows []Window
	for _, w := range catalog {
		if !w.Within(workStart, workEnd) {
			continue
		}
		if req.SlotDuration > 0 && w.Minutes() != req.SlotDuration {
			continue
		}
		windows = append(windows, w)
	}
	if len(windows) == 0 {
		return nil, apperr.Validation("no catalog window fits %s-%s with duration %d", workStart, workEnd, req.SlotDuration)
	}

	var out []SlotRequest
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if req.ExcludeWeekends && isWeekend(d) {
			continue
		}
		date := clock.FormatDate(d)
		for _, w := range windows {
			out = append(out, SlotRequest{ConsultantID: req.ConsultantID, Date: date, Window: w})
		}
	}
	return out, nil
}

func clockOrDefault(raw string, fallback clock.Clock) (clock.Clock, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return clock.ParseClock(raw)
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

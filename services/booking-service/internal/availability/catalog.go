// Package availability owns the fixed slot catalog and turns a date range request into the
// list of slots to create.
package availability

import "github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/clock"

// Window is a daily [Start, End) time window.
type Window struct {
	Start clock.Clock
	End   clock.Clock
}

func (w Window) Minutes() int { return int(w.End - w.Start) }

func (w Window) Within(start, end clock.Clock) bool {
	return w.Start >= start && w.End <= end
}

var catalog = [...]Window{
	{Start: clock.MustClock("08:00"), End: clock.MustClock("09:00")},
	{Start: clock.MustClock("09:30"), End: clock.MustClock("10:30")},
	{Start: clock.MustClock("11:00"), End: clock.MustClock("12:00")},
	{Start: clock.MustClock("13:30"), End: clock.MustClock("14:30")},
	{Start: clock.MustClock("15:00"), End: clock.MustClock("16:00")},
	{Start: clock.MustClock("16:30"), End: clock.MustClock("17:30")},
	{Start: clock.MustClock("19:00"), End: clock.MustClock("20:00")},
	{Start: clock.MustClock("20:30"), End: clock.MustClock("21:30")},
}

// Catalog returns a copy of the eight legal daily windows in order.
func Catalog() []Window {
	out := make([]Window, len(catalog))
	copy(out, catalog[:])
	return out
}

var (
	DefaultWorkStart = clock.MustClock("08:00")
	DefaultWorkEnd   = clock.MustClock("21:30")
)

package model

import "time"

// ScheduleSlot is unique per (ConsultantID, Date, StartTime). Date is YYYY-MM-DD, times are HH:MM.
type ScheduleSlot struct {
	ID           int64
	ConsultantID int64
	Date         string
	StartTime    string
	EndTime      string
	IsAvailable  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return s, true
	default:
		return "", false
	}
}

// Active appointments hold their slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Appointment struct {
	ID                 int64
	ConsultantID       int64
	CustomerID         int64
	SlotID             *int64
	Date               string
	Time               string
	DurationMinutes    int
	MeetingURL         string
	Status             Status
	Description        string
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

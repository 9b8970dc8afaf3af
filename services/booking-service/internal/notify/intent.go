// Package notify renders appointment notifications and delivers them from the outbox.
package notify

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindCancellation Kind = "cancellation"
)

// Intent carries the committed facts a notification needs.
type Intent struct {
	Kind            Kind   `json:"kind"`
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	ConsultantName  string `json:"consultant_name"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	MeetingURL      string `json:"meeting_url,omitempty"`
	Description     string `json:"description,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

func Render(in Intent) (Message, error) {
	if strings.TrimSpace(in.CustomerEmail) == "" {
		return Message{}, fmt.Errorf("notification %s has no recipient", in.Kind)
	}

	var subject, lead string
	switch in.Kind {
	case KindConfirmation:
		subject = fmt.Sprintf("Appointment confirmed: %s %s", in.Date, in.Time)
		lead = "Your appointment has been confirmed."
	case KindCancellation:
		subject = fmt.Sprintf("Appointment cancelled: %s %s", in.Date, in.Time)
		lead = "Your appointment has been cancelled."
	default:
		return Message{}, fmt.Errorf("unknown notification kind %q", in.Kind)
	}

	name := in.CustomerName
	if name == "" {
		name = "there"
	}
	lines := []string{
		fmt.Sprintf("Hello %s,", name),
		"",
		lead,
		"",
		fmt.Sprintf("Consultant: %s", in.ConsultantName),
		fmt.Sprintf("Date: %s", in.Date),
		fmt.Sprintf("Time: %s (%d minutes)", in.Time, in.DurationMinutes),
	}
	if in.MeetingURL != "" && in.Kind == KindConfirmation {
		lines = append(lines, fmt.Sprintf("Meeting link: %s", in.MeetingURL))
	}
	if in.Description != "" {
		lines = append(lines, fmt.Sprintf("Notes: %s", in.Description))
	}
	if in.Reason != "" {
		lines = append(lines, fmt.Sprintf("Reason: %s", in.Reason))
	}

	text := strings.Join(lines, "\n")
	return Message{
		To:      in.CustomerEmail,
		Subject: subject,
		Text:    text,
		HTML:    "<p>" + strings.ReplaceAll(htmlEscape(text), "\n", "<br>") + "</p>",
	}, nil
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;", "'", "&#39;")

func htmlEscape(s string) string { return htmlReplacer.Replace(s) }

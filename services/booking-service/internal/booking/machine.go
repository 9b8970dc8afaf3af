// Package booking owns the schedule operations and the appointment lifecycle.
package booking

import (
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/notify"
)

type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionDeny     Action = "deny"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

// Outcome is what a legal transition does besides changing status.
type Outcome struct {
	To          model.Status
	ReleaseSlot bool
	// Notify is empty when the transition sends nothing.
	Notify notify.Kind
}

type edge struct {
	from   model.Status
	action Action
}

var transitions = map[edge]Outcome{
	{model.StatusPending, ActionConfirm}:    {To: model.StatusConfirmed, Notify: notify.KindConfirmation},
	{model.StatusPending, ActionDeny}:       {To: model.StatusCancelled, ReleaseSlot: true},
	{model.StatusPending, ActionCancel}:     {To: model.StatusCancelled, ReleaseSlot: true},
	{model.StatusConfirmed, ActionCancel}:   {To: model.StatusCancelled, ReleaseSlot: true, Notify: notify.KindCancellation},
	{model.StatusConfirmed, ActionComplete}: {To: model.StatusCompleted},
}

// Next evaluates the transition table. Anything not listed, including every move out of a
// terminal status, is an invalid transition.
func Next(from model.Status, action Action) (Outcome, error) {
	if from.Terminal() {
		return Outcome{}, apperr.New(apperr.KindInvalidTransition, "cannot %s an appointment that is already %s", action, from)
	}
	if out, ok := transitions[edge{from, action}]; ok {
		return out, nil
	}
	return Outcome{}, apperr.New(apperr.KindInvalidTransition, "cannot %s an appointment that is %s", action, from)
}

// initialOutcome covers booking creation, which may start as pending or confirmed.
func initialOutcome(status model.Status) (Outcome, error) {
	switch status {
	case model.StatusPending:
		return Outcome{To: model.StatusPending}, nil
	case model.StatusConfirmed:
		return Outcome{To: model.StatusConfirmed, Notify: notify.KindConfirmation}, nil
	default:
		return Outcome{}, apperr.Validation("an appointment can only be created as pending or confirmed, not %q", status)
	}
}

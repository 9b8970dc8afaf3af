package booking

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// translate maps store sentinels onto the public taxonomy; what names the entity for messages.
func translate(err error, what string) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, err, "%s not found", what)
	case errors.Is(err, storage.ErrSlotExists):
		return apperr.Wrap(apperr.KindConflict, err, "a slot already exists at that date and start time")
	case errors.Is(err, storage.ErrSlotBound):
		return apperr.Wrap(apperr.KindConflict, err, "slot is bound to an active appointment")
	case errors.Is(err, storage.ErrSlotUnavailable):
		return apperr.Wrap(apperr.KindSlotUnavailable, err, "slot is no longer available")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindInternal, err, "request cancelled")
	default:
		return apperr.Wrap(apperr.KindInternal, err, "%s: storage error", what)
	}
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	span.End()
}

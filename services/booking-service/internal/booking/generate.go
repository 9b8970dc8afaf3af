package booking

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type PlannedSlot struct {
	Date      string
	StartTime string
	EndTime   string
}

type FailedSlot struct {
	PlannedSlot
	Error string
}

// GenerateResult lists every planned slot exactly once, each list ordered by date and start.
type GenerateResult struct {
	Created []model.ScheduleSlot
	Skipped []PlannedSlot
	Failed  []FailedSlot
}

type slotOutcome struct {
	slot    model.ScheduleSlot
	skipped bool
	err     error
}

// GenerateSchedule creates the planned slots through a bounded worker pool. Existing slots are
// skipped and per-slot failures are reported, never aborting the batch.
func (s *Service) GenerateSchedule(ctx context.Context, req availability.PlanRequest) (res GenerateResult, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.GenerateSchedule", trace.WithAttributes(
		attribute.Int64("consultant.id", req.ConsultantID),
		attribute.String("range.from", req.DateFrom),
		attribute.String("range.to", req.DateTo),
	))
	defer func() { finish(span, err) }()

	plan, err := availability.Plan(req)
	if err != nil {
		return GenerateResult{}, err
	}
	if _, err := s.activeConsultant(ctx, req.ConsultantID); err != nil {
		return GenerateResult{}, err
	}

	outcomes := make([]slotOutcome, len(plan))
	var g errgroup.Group
	g.SetLimit(s.cfg.WorkerLimit)
	for i, p := range plan {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = slotOutcome{err: err}
				return nil
			}
			slot, err := s.store.CreateSlot(ctx, model.ScheduleSlot{
				ConsultantID: p.ConsultantID,
				Date:         p.Date,
				StartTime:    p.Window.Start.String(),
				EndTime:      p.Window.End.String(),
				IsAvailable:  true,
			})
			switch {
			case errors.Is(err, storage.ErrSlotExists):
				outcomes[i] = slotOutcome{skipped: true}
			case err != nil:
				outcomes[i] = slotOutcome{err: err}
			default:
				outcomes[i] = slotOutcome{slot: slot}
			}
			return nil
		})
	}
	_ = g.Wait()

	res = GenerateResult{
		Created: []model.ScheduleSlot{},
		Skipped: []PlannedSlot{},
		Failed:  []FailedSlot{},
	}
	for i, o := range outcomes {
		planned := PlannedSlot{
			Date:      plan[i].Date,
			StartTime: plan[i].Window.Start.String(),
			EndTime:   plan[i].Window.End.String(),
		}
		switch {
		case o.skipped:
			res.Skipped = append(res.Skipped, planned)
		case o.err != nil:
			res.Failed = append(res.Failed, FailedSlot{PlannedSlot: planned, Error: o.err.Error()})
		default:
			res.Created = append(res.Created, o.slot)
		}
	}
	span.SetAttributes(
		attribute.Int("slots.created", len(res.Created)),
		attribute.Int("slots.skipped", len(res.Skipped)),
		attribute.Int("slots.failed", len(res.Failed)),
	)
	if len(res.Failed) > 0 {
		s.logger.Warn("schedule generation had failures",
			"consultant_id", req.ConsultantID, "failed", len(res.Failed), "first_error", res.Failed[0].Error)
	}
	return res, nil
}

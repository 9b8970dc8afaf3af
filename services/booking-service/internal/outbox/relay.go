package outbox

import (
	"context"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/consultdesk/libs/otel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Source is the storage side of the outbox.
type Source interface {
	// ClaimDue leases up to limit due records for lease; a crashed relay's lease simply expires.
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]Record, error)
	MarkDelivered(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, f Failure) error
}

type Sink interface {
	Deliver(ctx context.Context, rec Record) error
}

type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Deliver(ctx context.Context, rec Record) error { return f(ctx, rec) }

type RelayConfig struct {
	PollEvery   time.Duration
	BatchSize   int
	Lease       time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
	// DeliverTimeout bounds a single Deliver call.
	DeliverTimeout time.Duration
}

type Relay struct {
	source Source
	sink   Sink
	logger *slog.Logger
	cfg    RelayConfig
	now    func() time.Time
}

func NewRelay(source Source, sink Sink, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 1 * time.Minute
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 15 * time.Second
	}
	return &Relay{source: source, sink: sink, logger: logger, cfg: cfg, now: time.Now}
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox relay batch failed", "err", err)
			}
		}
	}
}

// RunOnce claims one batch and delivers it, returning how many records were delivered.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	records, err := r.source.ClaimDue(ctx, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if r.deliver(ctx, rec) {
			delivered++
		}
	}
	return delivered, nil
}

func (r *Relay) deliver(ctx context.Context, rec Record) bool {
	recCtx := otelx.ContextWithTraceContext(ctx, rec.Traceparent, rec.Tracestate)
	recCtx, span := otel.Tracer("booking-service/outbox").Start(recCtx, "outbox.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", rec.EventID),
		attribute.String("event.type", rec.Event.EventType),
		attribute.Int("event.attempts", rec.Attempts),
	)

	deliverCtx, cancel := context.WithTimeout(recCtx, r.cfg.DeliverTimeout)
	err := r.sink.Deliver(deliverCtx, rec)
	cancel()

	if err == nil {
		if err := r.source.MarkDelivered(ctx, rec.ID); err != nil {
			r.logger.Error("outbox mark delivered failed", "event_id", rec.EventID, "err", err)
		}
		return true
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "delivery failed")

	attempts := rec.Attempts + 1
	f := Failure{
		Attempts:    attempts,
		NextAttempt: r.now().Add(Backoff(attempts, r.cfg.BaseBackoff, r.cfg.MaxBackoff)),
		LastError:   truncate(err.Error(), 500),
		Dead:        attempts >= r.cfg.MaxAttempts,
	}
	if f.Dead {
		r.logger.Error("outbox event dead-lettered",
			"event_id", rec.EventID, "event_type", rec.Event.EventType, "attempts", attempts, "err", err)
	} else {
		r.logger.Warn("outbox delivery failed",
			"event_id", rec.EventID, "event_type", rec.Event.EventType, "attempts", attempts, "err", err)
	}
	if err := r.source.MarkFailed(ctx, rec.ID, f); err != nil {
		r.logger.Error("outbox mark failed failed", "event_id", rec.EventID, "err", err)
	}
	return false
}

// Backoff doubles base per attempt (attempt 1 waits base) and caps at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

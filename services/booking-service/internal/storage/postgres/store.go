// Package postgres is the pgx-backed Store. Slot availability is flipped with a conditional
// UPDATE so concurrent bookings of one slot produce exactly one winner.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/md-rashed-zaman/consultdesk/libs/db"
	otelx "github.com/md-rashed-zaman/consultdesk/libs/otel"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage"
)

//go:embed schema.sql
var schema string

type Store struct {
	pool *db.Pool
}

var _ storage.Store = (*Store)(nil)

func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the idempotent schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return db.ReadyCheck(s.pool)(ctx)
}

const slotColumns = `id, consultant_id, to_char(slot_date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'),
	to_char(end_time, 'HH24:MI'), is_available, created_at, updated_at`

func scanSlot(row pgx.Row) (model.ScheduleSlot, error) {
	var slot model.ScheduleSlot
	err := row.Scan(
		&slot.ID,
		&slot.ConsultantID,
		&slot.Date,
		&slot.StartTime,
		&slot.EndTime,
		&slot.IsAvailable,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	return slot, err
}

func (s *Store) CreateSlot(ctx context.Context, slot model.ScheduleSlot) (model.ScheduleSlot, error) {
	created, err := scanSlot(s.pool.QueryRow(ctx, `
		INSERT INTO schedule_slots (consultant_id, slot_date, start_time, end_time, is_available)
		VALUES ($1, $2::date, $3::time, $4::time, $5)
		RETURNING `+slotColumns,
		slot.ConsultantID, slot.Date, slot.StartTime, slot.EndTime, slot.IsAvailable))
	if isUniqueViolation(err) {
		return model.ScheduleSlot{}, storage.ErrSlotExists
	}
	return created, err
}

func (s *Store) GetSlot(ctx context.Context, id int64) (model.ScheduleSlot, error) {
	slot, err := scanSlot(s.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM schedule_slots WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ScheduleSlot{}, storage.ErrNotFound
	}
	return slot, err
}

// lockSlot takes the row lock the booking CAS also needs, so the bound check below cannot race
// a concurrent booking.
func lockSlot(ctx context.Context, tx pgx.Tx, id int64) error {
	var locked int64
	err := tx.QueryRow(ctx, `SELECT id FROM schedule_slots WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}

	var bound bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments WHERE slot_id = $1 AND status IN ('pending', 'confirmed')
		)
	`, id).Scan(&bound)
	if err != nil {
		return err
	}
	if bound {
		return storage.ErrSlotBound
	}
	return nil
}

func (s *Store) UpdateSlot(ctx context.Context, id int64, patch storage.SlotPatch) (model.ScheduleSlot, error) {
	var updated model.ScheduleSlot
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := lockSlot(ctx, tx, id); err != nil {
			return err
		}
		var err error
		updated, err = scanSlot(tx.QueryRow(ctx, `
			UPDATE schedule_slots
			SET slot_date = COALESCE($2::date, slot_date),
				start_time = COALESCE($3::time, start_time),
				end_time = COALESCE($4::time, end_time),
				is_available = COALESCE($5, is_available),
				updated_at = now()
			WHERE id = $1
			RETURNING `+slotColumns,
			id, patch.Date, patch.StartTime, patch.EndTime, patch.IsAvailable))
		return err
	})
	if isUniqueViolation(err) {
		return model.ScheduleSlot{}, storage.ErrSlotExists
	}
	if err != nil {
		return model.ScheduleSlot{}, err
	}
	return updated, nil
}

func (s *Store) DeleteSlot(ctx context.Context, id int64) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := lockSlot(ctx, tx, id); err != nil {
			return err
		}
		// ON DELETE SET NULL unbinds completed and cancelled appointments.
		_, err := tx.Exec(ctx, `DELETE FROM schedule_slots WHERE id = $1`, id)
		return err
	})
}

func (s *Store) ListSlots(ctx context.Context, f storage.SlotFilter) ([]storage.SlotView, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ConsultantID != 0 {
		add("s.consultant_id = $%d", f.ConsultantID)
	}
	if f.DateFrom != "" {
		add("s.slot_date >= $%d::date", f.DateFrom)
	}
	if f.DateTo != "" {
		add("s.slot_date <= $%d::date", f.DateTo)
	}
	if f.Available != nil {
		add("s.is_available = $%d", *f.Available)
	}
	query := `
		SELECT s.id, s.consultant_id, to_char(s.slot_date, 'YYYY-MM-DD'), to_char(s.start_time, 'HH24:MI'),
			to_char(s.end_time, 'HH24:MI'), s.is_available, s.created_at, s.updated_at,
			EXISTS (
				SELECT 1 FROM appointments a WHERE a.slot_id = s.id AND a.status IN ('pending', 'confirmed')
			)
		FROM schedule_slots s`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY s.slot_date, s.start_time, s.id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.SlotView
	for rows.Next() {
		var v storage.SlotView
		if err := rows.Scan(
			&v.ID,
			&v.ConsultantID,
			&v.Date,
			&v.StartTime,
			&v.EndTime,
			&v.IsAvailable,
			&v.CreatedAt,
			&v.UpdatedAt,
			&v.HasAppointment,
		); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const appointmentColumns = `id, consultant_id, customer_id, slot_id, to_char(appt_date, 'YYYY-MM-DD'),
	to_char(appt_time, 'HH24:MI'), duration_minutes, meeting_url, status, description, cancellation_reason,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a      model.Appointment
		status string
	)
	err := row.Scan(
		&a.ID,
		&a.ConsultantID,
		&a.CustomerID,
		&a.SlotID,
		&a.Date,
		&a.Time,
		&a.DurationMinutes,
		&a.MeetingURL,
		&status,
		&a.Description,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	a.Status = model.Status(status)
	return a, err
}

func (s *Store) BookSlot(ctx context.Context, req storage.NewAppointment, events storage.EventsFunc) (model.Appointment, error) {
	cutoff := pgtype.Timestamp{Time: req.Cutoff, Valid: !req.Cutoff.IsZero()}
	var appt model.Appointment
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var slotID int64
		err := tx.QueryRow(ctx, `
			UPDATE schedule_slots
			SET is_available = false, updated_at = now()
			WHERE consultant_id = $1 AND slot_date = $2::date AND start_time = $3::time AND is_available
				AND ($4::timestamp IS NULL OR slot_date + end_time >= $4::timestamp)
			RETURNING id
		`, req.ConsultantID, req.Date, req.Time, cutoff).Scan(&slotID)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM schedule_slots WHERE consultant_id = $1 AND slot_date = $2::date AND start_time = $3::time
				)
			`, req.ConsultantID, req.Date, req.Time).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return storage.ErrSlotUnavailable
			}
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		appt, err = scanAppointment(tx.QueryRow(ctx, `
			INSERT INTO appointments
				(consultant_id, customer_id, slot_id, appt_date, appt_time, duration_minutes, meeting_url, status, description)
			VALUES ($1, $2, $3, $4::date, $5::time, $6, $7, $8, $9)
			RETURNING `+appointmentColumns,
			req.ConsultantID, req.CustomerID, slotID, req.Date, req.Time, req.DurationMinutes,
			req.MeetingURL, string(req.Status), req.Description))
		if isUniqueViolation(err) {
			return storage.ErrSlotUnavailable
		}
		if err != nil {
			return err
		}
		return appendEvents(ctx, tx, appt, events)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Store) TransitionAppointment(ctx context.Context, id, consultantID int64, fn storage.TransitionFunc) (model.Appointment, error) {
	var next model.Appointment
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		current, err := scanAppointment(tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id = $1 AND consultant_id = $2
			FOR UPDATE
		`, id, consultantID))
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		change, err := fn(current)
		if err != nil {
			return err
		}

		next, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $2,
				cancellation_reason = CASE WHEN $3 = '' THEN cancellation_reason ELSE $3 END,
				updated_at = now()
			WHERE id = $1
			RETURNING `+appointmentColumns,
			id, string(change.Status), change.Reason))
		if err != nil {
			return err
		}

		if change.ReleaseSlot && next.SlotID != nil {
			if _, err := tx.Exec(ctx, `
				UPDATE schedule_slots SET is_available = true, updated_at = now() WHERE id = $1
			`, *next.SlotID); err != nil {
				return err
			}
		}
		return appendEvents(ctx, tx, next, change.Events)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return next, nil
}

func appendEvents(ctx context.Context, tx pgx.Tx, appt model.Appointment, fn storage.EventsFunc) error {
	if fn == nil {
		return nil
	}
	events, err := fn(appt)
	if err != nil {
		return err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	for _, e := range events {
		if _, err := tx.Exec(ctx, `
			INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New(), e.AggregateType, e.AggregateID, e.EventType, e.Payload, traceparent, tracestate); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id int64) (model.Appointment, error) {
	a, err := scanAppointment(s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, err
}

func (s *Store) ListAppointments(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ConsultantID != 0 {
		add("consultant_id = $%d", f.ConsultantID)
	}
	if f.CustomerID != 0 {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.DateFrom != "" {
		add("appt_date >= $%d::date", f.DateFrom)
	}
	if f.DateTo != "" {
		add("appt_date <= $%d::date", f.DateTo)
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, storage.ClampLimit(f.Limit))
	query += fmt.Sprintf(" ORDER BY appt_date, appt_time, id LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CountActiveAppointments(ctx context.Context, customerID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments WHERE customer_id = $1 AND status IN ('pending', 'confirmed')
	`, customerID).Scan(&n)
	return n, err
}

// ClaimDue leases due rows with SKIP LOCKED so several relays can share the table.
func (s *Store) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]outbox.Record, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE outbox_events
		SET locked_until = now() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE delivered_at IS NULL
				AND dead_at IS NULL
				AND next_attempt_at <= now()
				AND (locked_until IS NULL OR locked_until <= now())
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id::text, aggregate_type, aggregate_id, event_type, payload::text,
			traceparent, tracestate, attempts, created_at
	`, limit, lease.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outbox.Record
	for rows.Next() {
		var (
			rec     outbox.Record
			payload string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.EventID,
			&rec.Event.AggregateType,
			&rec.Event.AggregateID,
			&rec.Event.EventType,
			&payload,
			&rec.Traceparent,
			&rec.Tracestate,
			&rec.Attempts,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Event.Payload = []byte(payload)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// UPDATE ... RETURNING does not keep the subquery order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkDelivered(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events SET delivered_at = now(), locked_until = NULL WHERE id = $1
	`, id)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id int64, f outbox.Failure) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = $2,
			next_attempt_at = $3,
			last_error = $4,
			dead_at = CASE WHEN $5 THEN now() ELSE NULL END,
			locked_until = NULL
		WHERE id = $1
	`, id, f.Attempts, f.NextAttempt, f.LastError, f.Dead)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/pastoralcare/libs/db"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/outbox"
)

// AppointmentRepository stores appointments as a JSONB attribute bag plus
// the columns needed for filtering and for the slot uniqueness index.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	logger *slog.Logger
	loc    *time.Location
}

// NewAppointmentRepository reads dates stored without an offset as wall-clock
// times in loc.
func NewAppointmentRepository(pool *db.Pool, ob *outbox.Repository, logger *slog.Logger, loc *time.Location) *AppointmentRepository {
	if loc == nil {
		loc = time.Local
	}
	return &AppointmentRepository{pool: pool, outbox: ob, logger: logger, loc: loc}
}

const selectAppointment = `SELECT id, church_id, version, data FROM counseling_appointments`

func (r *AppointmentRepository) Get(ctx context.Context, churchID, id string) (*model.Appointment, error) {
	rows, err := r.pool.Query(ctx, selectAppointment+` WHERE church_id = $1 AND id = $2`, churchID, id)
	if err != nil {
		return nil, err
	}
	appts, err := r.collect(rows)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return nil, ErrNotFound
	}
	return &appts[0], nil
}

func (r *AppointmentRepository) ListByChurch(ctx context.Context, churchID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, selectAppointment+` WHERE church_id = $1 ORDER BY scheduled_at NULLS LAST, id`, churchID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *AppointmentRepository) ListByStatus(ctx context.Context, churchID string, statuses ...model.Status) ([]model.Appointment, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.pool.Query(ctx, selectAppointment+`
		WHERE church_id = $1 AND status = ANY($2)
		ORDER BY scheduled_at NULLS LAST, id`, churchID, names)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// ListByCounselor returns the counselor's appointments scheduled in
// [from, to). A zero range returns all of them.
func (r *AppointmentRepository) ListByCounselor(ctx context.Context, churchID, counselorID string, from, to time.Time) ([]model.Appointment, error) {
	query := selectAppointment + ` WHERE church_id = $1 AND counselor_id = $2`
	args := []any{churchID, counselorID}
	if !from.IsZero() && !to.IsZero() {
		query += ` AND scheduled_at >= $3 AND scheduled_at < $4`
		args = append(args, from, to)
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY scheduled_at NULLS LAST, id`, args...)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// CountPendingBefore counts Pendente requests created before cutoff.
func (r *AppointmentRepository) CountPendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM counseling_appointments
		WHERE status = $1 AND created_at < $2
	`, string(model.StatusPending), cutoff).Scan(&n)
	return n, err
}

// Insert stores a new appointment at version 1 and its event atomically.
func (r *AppointmentRepository) Insert(ctx context.Context, a *model.Appointment, evt outbox.Event) error {
	a.Version = 1
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal appointment: %w", err)
	}
	err = r.pool.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO counseling_appointments
				(id, church_id, counselor_id, scheduled_at, status, data, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
		`, a.ID, a.ChurchID, nullable(a.CounselorID), nullableTime(a.Date), string(a.Status), data, a.CreatedAt)
		if err != nil {
			return err
		}
		return r.emit(ctx, tx, evt)
	})
	if err != nil {
		a.Version = 0
		return translate(err)
	}
	return nil
}

// Update writes a when the stored version still equals expectedVersion and
// bumps it. Otherwise nothing is written and ErrStale is returned.
func (r *AppointmentRepository) Update(ctx context.Context, a *model.Appointment, expectedVersion int64, evt outbox.Event) error {
	next := *a
	next.Version = expectedVersion + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal appointment: %w", err)
	}
	err = r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE counseling_appointments
			SET counselor_id = $4,
				scheduled_at = $5,
				status = $6,
				data = $7,
				version = version + 1,
				updated_at = now()
			WHERE church_id = $1 AND id = $2 AND version = $3
		`, a.ChurchID, a.ID, expectedVersion, nullable(a.CounselorID), nullableTime(a.Date), string(a.Status), data)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrStale
		}
		return r.emit(ctx, tx, evt)
	})
	if err != nil {
		return translate(err)
	}
	a.Version = next.Version
	return nil
}

// Delete removes the row when it is still at expectedVersion.
func (r *AppointmentRepository) Delete(ctx context.Context, churchID, id string, expectedVersion int64, evt outbox.Event) error {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM counseling_appointments
			WHERE church_id = $1 AND id = $2 AND version = $3
		`, churchID, id, expectedVersion)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrStale
		}
		return r.emit(ctx, tx, evt)
	})
	return translate(err)
}

func (r *AppointmentRepository) emit(ctx context.Context, tx pgx.Tx, evt outbox.Event) error {
	if evt.Empty() || r.outbox == nil {
		return nil
	}
	return r.outbox.Insert(ctx, tx, evt)
}

// collect decodes rows, skipping records whose attribute bag cannot be
// parsed at all. Those are logged, never returned as errors.
func (r *AppointmentRepository) collect(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		var (
			id, churchID string
			version      int64
			data         []byte
		)
		if err := rows.Scan(&id, &churchID, &version, &data); err != nil {
			return nil, err
		}
		a, err := model.DecodeAppointment(data, r.loc)
		if err != nil {
			r.logger.Warn("skipping undecodable appointment", "appointment_id", id, "err", err)
			continue
		}
		a.ID = id
		a.ChurchID = churchID
		a.Version = version
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

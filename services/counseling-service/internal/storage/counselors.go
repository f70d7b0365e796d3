package storage

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/pastoralcare/libs/db"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/availability"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
)

type CounselorRepository struct {
	pool   *db.Pool
	logger *slog.Logger
}

func NewCounselorRepository(pool *db.Pool, logger *slog.Logger) *CounselorRepository {
	return &CounselorRepository{pool: pool, logger: logger}
}

const selectCounselor = `
	SELECT id, church_id, name, email, phone, gender, topics, availability, active, updated_at
	FROM counselors`

func (r *CounselorRepository) Get(ctx context.Context, churchID, id string) (*model.Counselor, error) {
	rows, err := r.pool.Query(ctx, selectCounselor+` WHERE church_id = $1 AND id = $2`, churchID, id)
	if err != nil {
		return nil, err
	}
	list, err := r.collect(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// ListByChurch returns the active roster ordered by name.
func (r *CounselorRepository) ListByChurch(ctx context.Context, churchID string) ([]model.Counselor, error) {
	rows, err := r.pool.Query(ctx, selectCounselor+` WHERE church_id = $1 AND active ORDER BY name, id`, churchID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *CounselorRepository) Upsert(ctx context.Context, c model.Counselor) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO counselors (id, church_id, name, email, phone, gender, topics, availability, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			gender = EXCLUDED.gender,
			topics = EXCLUDED.topics,
			availability = EXCLUDED.availability,
			active = EXCLUDED.active,
			updated_at = now()
		WHERE counselors.church_id = EXCLUDED.church_id
	`, c.ID, c.ChurchID, c.Name, c.Email, c.Phone, c.Gender, topicsOrEmpty(c.Topics), c.Availability, c.Active)
	return translate(err)
}

func (r *CounselorRepository) SetAvailability(ctx context.Context, churchID, id string, weekly availability.Weekly) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE counselors SET availability = $3, updated_at = now()
		WHERE church_id = $1 AND id = $2
	`, churchID, id, weekly)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CounselorRepository) collect(rows pgx.Rows) ([]model.Counselor, error) {
	defer rows.Close()
	var out []model.Counselor
	for rows.Next() {
		var (
			c   model.Counselor
			raw []byte
		)
		if err := rows.Scan(&c.ID, &c.ChurchID, &c.Name, &c.Email, &c.Phone, &c.Gender, &c.Topics, &raw, &c.Active, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if !availability.Valid(raw) {
			r.logger.Warn("malformed counselor availability, unreadable entries ignored", "counselor_id", c.ID)
		}
		c.Availability = availability.Decode(raw)
		out = append(out, c)
	}
	return out, rows.Err()
}

func topicsOrEmpty(t []string) []string {
	if t == nil {
		return []string{}
	}
	return t
}

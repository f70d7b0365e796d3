package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStale means the row changed since it was read.
	ErrStale = errors.New("record was modified concurrently")
	// ErrSlotTaken means another live appointment holds the counselor's slot.
	ErrSlotTaken = errors.New("counselor slot already taken")
)

const slotConstraint = "counseling_appointments_slot_uniq"

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}

// IsConflict covers both commit time conflicts.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStale) || errors.Is(err, ErrSlotTaken)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == slotConstraint {
			return ErrSlotTaken
		}
		return ErrStale
	}
	return err
}

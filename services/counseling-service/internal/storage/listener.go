package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/libs/db"
)

// ChangeChannel is the NOTIFY channel fed by the appointment trigger.
const ChangeChannel = "counseling_changes"

// Change is the payload of one notification.
type Change struct {
	Op          string `json:"op"`
	ID          string `json:"id"`
	ChurchID    string `json:"church_id"`
	CounselorID string `json:"counselor_id"`
	Status      string `json:"status"`
	Version     int64  `json:"version"`
}

type Listener struct {
	pool       *db.Pool
	logger     *slog.Logger
	maxBackoff time.Duration
}

func NewListener(pool *db.Pool, logger *slog.Logger) *Listener {
	return &Listener{pool: pool, logger: logger, maxBackoff: 30 * time.Second}
}

// Run delivers every change to fn until ctx is done, reconnecting with
// exponential backoff when the connection drops.
func (l *Listener) Run(ctx context.Context, fn func(Change)) {
	backoff := time.Second
	for {
		err := l.listen(ctx, fn)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("change listener disconnected", "err", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, l.maxBackoff)
	}
}

func (l *Listener) listen(ctx context.Context, fn func(Change)) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return err
	}
	l.logger.Info("listening for appointment changes", "channel", ChangeChannel)
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var c Change
		if err := json.Unmarshal([]byte(n.Payload), &c); err != nil {
			l.logger.Warn("bad change payload", "err", err)
			continue
		}
		fn(c)
	}
}

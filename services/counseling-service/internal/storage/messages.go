package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/pastoralcare/libs/db"
)

const (
	MessagePending = "pending"
	MessageSent    = "sent"
	MessageFailed  = "failed"
)

type Message struct {
	ChurchID      string
	AppointmentID string
	Channel       string
	Recipient     string
	Body          string
}

// MessageLogRepository keeps a local copy of every outbound chat message.
type MessageLogRepository struct {
	pool *db.Pool
}

func NewMessageLogRepository(pool *db.Pool) *MessageLogRepository {
	return &MessageLogRepository{pool: pool}
}

func (r *MessageLogRepository) Insert(ctx context.Context, m Message) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO message_log (id, church_id, appointment_id, channel, recipient, body, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, m.ChurchID, m.AppointmentID, m.Channel, m.Recipient, m.Body, MessagePending)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *MessageLogRepository) MarkSent(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE message_log SET status = $2, sent_at = now(), error = '' WHERE id = $1
	`, id, MessageSent)
	return err
}

func (r *MessageLogRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE message_log SET status = $2, error = $3 WHERE id = $1
	`, id, MessageFailed, reason)
	return err
}

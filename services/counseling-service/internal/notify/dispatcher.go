package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/md-rashed-zaman/pastoralcare/libs/metrics"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/storage"
)

const (
	ChannelEmail = "email"
	ChannelChat  = "whatsapp"

	outcomeSent    = "sent"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

type MessageLog interface {
	Insert(ctx context.Context, m storage.Message) (string, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// Dispatcher sends email and chat messages on behalf of scheduling
// operations. Chat messages are copied to the message log before delivery.
type Dispatcher struct {
	email   Sender
	chat    ChatSender
	log     MessageLog
	metrics *metrics.Collector
	logger  *slog.Logger
}

func NewDispatcher(email Sender, chat ChatSender, log MessageLog, m *metrics.Collector, logger *slog.Logger) *Dispatcher {
	if email == nil {
		email = NoopSender{}
	}
	if chat == nil {
		chat = NoopChatSender{}
	}
	return &Dispatcher{email: email, chat: chat, log: log, metrics: m, logger: logger}
}

// Email skips missing or malformed addresses, returning nil.
func (d *Dispatcher) Email(ctx context.Context, to, subject, html string) error {
	if !ValidAddress(to) {
		d.logger.Info("email skipped, invalid recipient", "to", to, "subject", subject)
		d.count(ChannelEmail, outcomeSkipped)
		return nil
	}
	if err := d.email.Send(ctx, to, subject, html); err != nil {
		d.logger.Warn("email failed", "provider", d.email.ProviderID(), "to", to, "err", err)
		d.count(ChannelEmail, outcomeFailed)
		return err
	}
	d.count(ChannelEmail, outcomeSent)
	return nil
}

// Chat logs the message as pending, sends it and records the outcome. A
// message-log write failure does not stop delivery.
func (d *Dispatcher) Chat(ctx context.Context, churchID, appointmentID, phone, text string) error {
	to := NormalizePhone(phone)
	if to == "" {
		d.count(ChannelChat, outcomeSkipped)
		return ErrNoRecipient
	}
	var logID string
	if d.log != nil {
		id, err := d.log.Insert(ctx, storage.Message{
			ChurchID:      churchID,
			AppointmentID: appointmentID,
			Channel:       ChannelChat,
			Recipient:     to,
			Body:          text,
		})
		if err != nil {
			d.logger.Warn("message log insert failed", "appointment_id", appointmentID, "err", err)
		}
		logID = id
	}

	sendErr := d.chat.Send(ctx, to, text)
	if logID != "" {
		var err error
		if sendErr != nil {
			err = d.log.MarkFailed(ctx, logID, sendErr.Error())
		} else {
			err = d.log.MarkSent(ctx, logID)
		}
		if err != nil {
			d.logger.Warn("message log update failed", "message_id", logID, "err", err)
		}
	}
	if sendErr != nil {
		d.logger.Warn("chat message failed", "provider", d.chat.ProviderID(), "appointment_id", appointmentID, "err", sendErr)
		d.count(ChannelChat, outcomeFailed)
		return sendErr
	}
	d.count(ChannelChat, outcomeSent)
	return nil
}

func (d *Dispatcher) count(channel, outcome string) {
	if d.metrics != nil {
		d.metrics.Notification(channel, outcome)
	}
}

// IsSkipped reports whether err means there was nobody to send to.
func IsSkipped(err error) bool {
	return errors.Is(err, ErrNoRecipient)
}

package scheduling

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/notify"
)

const dateDisplay = "02/01/2006 às 15:04"

func (s *Service) result(actor model.Actor, a model.Appointment) Result {
	return Result{Appointment: a.ForViewer(actor), Warnings: []string{}}
}

func (s *Service) messageData(a model.Appointment, previous time.Time, reason string) notify.MessageData {
	return notify.MessageData{
		MemberName:    a.MemberName,
		CounselorName: a.CounselorName,
		Topic:         a.Topic,
		Date:          s.display(a.Date),
		PreviousDate:  s.display(previous),
		Reason:        reason,
	}
}

func (s *Service) display(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(s.cal.Loc).Format(dateDisplay)
}

// email renders and sends one message. Empty recipients are dropped here;
// malformed ones are the notifier's call.
func (s *Service) email(ctx context.Context, res *Result, to string, tmpl notify.Template, data notify.MessageData) {
	if to == "" {
		return
	}
	subject, body, err := notify.RenderEmail(tmpl, data)
	if err != nil {
		s.logger.Error("render email", "template", tmpl, "err", err)
		res.warn("e-mail para %s não enviado", to)
		return
	}
	if err := s.notifier.Email(ctx, to, subject, body); err != nil {
		res.warn("e-mail para %s não enviado: %v", to, err)
	}
}

// chatCounselor sends a chat message to the appointment's counselor. A
// counselor without a phone is silently skipped.
func (s *Service) chatCounselor(ctx context.Context, res *Result, a model.Appointment, tmpl notify.Template, data notify.MessageData) {
	c, err := s.counselors.Get(ctx, a.ChurchID, a.CounselorID)
	if err != nil {
		s.logger.Warn("chat skipped, counselor lookup failed", "counselor_id", a.CounselorID, "err", err)
		res.warn("mensagem para o conselheiro não enviada")
		return
	}
	if c.Phone == "" {
		return
	}
	text, err := notify.RenderChat(tmpl, data)
	if err != nil {
		s.logger.Error("render chat", "template", tmpl, "err", err)
		res.warn("mensagem para o conselheiro não enviada")
		return
	}
	if err := s.notifier.Chat(ctx, a.ChurchID, a.ID, c.Phone, text); err != nil && !notify.IsSkipped(err) {
		res.warn("mensagem de WhatsApp para %s não entregue: %v", c.Name, err)
	}
}

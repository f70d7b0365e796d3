package scheduling

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/notify"
)

// RegisterMeeting records a session. The returned appointment is already
// masked for the actor.
func (s *Service) RegisterMeeting(ctx context.Context, actor model.Actor, id string, in lifecycle.MeetingInput) (Result, error) {
	_, a, err := s.mutate(ctx, actor, id, OpMeetingAdded, func(d *model.Appointment) error {
		_, err := s.machine.AddMeeting(d, actor, in)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return s.result(actor, a), nil
}

func (s *Service) EditMeeting(ctx context.Context, actor model.Actor, id, meetingID string, in lifecycle.MeetingInput) (Result, error) {
	_, a, err := s.mutate(ctx, actor, id, OpMeetingEdited, func(d *model.Appointment) error {
		_, err := s.machine.EditMeeting(d, actor, meetingID, in)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return s.result(actor, a), nil
}

const contactPreview = 120

// SendWhatsApp records the contact first and then hands the text to the
// chat notifier. A delivery failure is a warning.
func (s *Service) SendWhatsApp(ctx context.Context, actor model.Actor, id, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, lifecycle.Validationf("whatsapp: mensagem vazia")
	}
	_, a, err := s.mutate(ctx, actor, id, OpContacted, func(d *model.Appointment) error {
		if notify.NormalizePhone(d.MemberPhone) == "" {
			return lifecycle.Validationf("whatsapp: telefone do membro ausente ou inválido")
		}
		return s.machine.RecordContact(d, actor, model.ActionWhatsAppContact, "Mensagem enviada via WhatsApp: "+preview(text))
	})
	if err != nil {
		return Result{}, err
	}
	res := s.result(actor, a)
	if err := s.notifier.Chat(ctx, a.ChurchID, a.ID, a.MemberPhone, text); err != nil {
		res.warn("mensagem de WhatsApp não entregue: %v", err)
	}
	return res, nil
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= contactPreview {
		return s
	}
	r := []rune(s)
	return string(r[:contactPreview]) + "…"
}

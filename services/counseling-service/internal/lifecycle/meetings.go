package lifecycle

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
)

type MeetingInput struct {
	Date           time.Time
	Topic          string
	Notes          string
	NextSteps      string
	IsConfidential bool
}

func (in MeetingInput) validate() error {
	if strings.TrimSpace(in.Notes) == "" {
		return Validationf("registrar sessão: anotações são obrigatórias")
	}
	return nil
}

// AddMeeting registers a session on a confirmed or running appointment.
func (m *Machine) AddMeeting(a *model.Appointment, actor model.Actor, in MeetingInput) (model.Meeting, error) {
	if err := in.validate(); err != nil {
		return model.Meeting{}, err
	}
	if err := requireStatus(a, model.StatusScheduled, model.StatusInProgress); err != nil {
		return model.Meeting{}, err
	}
	if err := requireAssignedOrSupervisor(a, actor); err != nil {
		return model.Meeting{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = m.now()
	}
	meeting := model.Meeting{
		ID:             m.newID(),
		Date:           date,
		Topic:          strings.TrimSpace(in.Topic),
		Notes:          strings.TrimSpace(in.Notes),
		NextSteps:      strings.TrimSpace(in.NextSteps),
		RecordedBy:     actor.DisplayName(),
		RecordedByID:   actor.ID,
		IsConfidential: in.IsConfidential,
	}
	a.Meetings = append(a.Meetings, meeting)
	details := "Sessão registrada em " + m.display(date)
	if meeting.IsConfidential {
		details += " (confidencial)"
	}
	m.record(a, actor, model.ActionAddMeeting, details)
	return meeting, nil
}

// EditMeeting updates a session; only whoever recorded it may.
func (m *Machine) EditMeeting(a *model.Appointment, actor model.Actor, meetingID string, in MeetingInput) (model.Meeting, error) {
	if err := in.validate(); err != nil {
		return model.Meeting{}, err
	}
	i, ok := a.MeetingByID(meetingID)
	if !ok {
		return model.Meeting{}, NotFoundf("sessão %s não encontrada", meetingID)
	}
	meeting := a.Meetings[i]
	if meeting.RecordedByID != actor.ID {
		return model.Meeting{}, Forbiddenf("apenas quem registrou a sessão pode editá-la")
	}
	if !in.Date.IsZero() {
		meeting.Date = in.Date
	}
	meeting.Topic = strings.TrimSpace(in.Topic)
	meeting.Notes = strings.TrimSpace(in.Notes)
	meeting.NextSteps = strings.TrimSpace(in.NextSteps)
	meeting.IsConfidential = in.IsConfidential
	a.Meetings[i] = meeting
	m.record(a, actor, model.ActionEditMeeting, "Sessão de "+m.display(meeting.Date)+" editada")
	return meeting, nil
}

// RecordContact logs an outbound contact (WhatsApp message, phone call)
// without touching the status.
func (m *Machine) RecordContact(a *model.Appointment, actor model.Actor, action model.Action, details string) error {
	switch action {
	case model.ActionWhatsAppContact, model.ActionContactRegistered:
	default:
		return Validationf("tipo de contato inválido: %q", action)
	}
	details = strings.TrimSpace(details)
	if details == "" {
		return Validationf("registrar contato: descrição é obrigatória")
	}
	if err := requireAssignedOrSupervisor(a, actor); err != nil {
		return err
	}
	m.record(a, actor, action, details)
	return nil
}

package lifecycle

import (
	"net/mail"
	"strings"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
)

// Request is a new counseling request from the self-service form or the
// intake pipeline.
type Request struct {
	ChurchID            string
	MemberName          string
	MemberEmail         string
	MemberPhone         string
	MemberAge           string
	MemberMaritalStatus string
	Topic               string
	Details             string
	Date                time.Time
	Source              string
}

func (r Request) validate() error {
	var missing []string
	if strings.TrimSpace(r.ChurchID) == "" {
		missing = append(missing, "igreja")
	}
	if strings.TrimSpace(r.MemberName) == "" {
		missing = append(missing, "nome")
	}
	if strings.TrimSpace(r.MemberEmail) == "" && strings.TrimSpace(r.MemberPhone) == "" {
		missing = append(missing, "e-mail ou telefone")
	}
	if strings.TrimSpace(r.Topic) == "" {
		missing = append(missing, "assunto")
	}
	if len(missing) > 0 {
		return Validationf("solicitação incompleta: %s", strings.Join(missing, ", "))
	}
	if e := strings.TrimSpace(r.MemberEmail); e != "" {
		if _, err := mail.ParseAddress(e); err != nil {
			return Validationf("e-mail inválido: %s", e)
		}
	}
	return nil
}

// Create builds a new appointment. With a counselor and a date it starts as
// Pendente, otherwise it waits in the queue.
func (m *Machine) Create(req Request, actor model.Actor, counselor *model.Counselor) (model.Appointment, error) {
	if err := req.validate(); err != nil {
		return model.Appointment{}, err
	}
	now := m.now()
	a := model.Appointment{
		ID:                  m.newID(),
		ChurchID:            req.ChurchID,
		MemberName:          strings.TrimSpace(req.MemberName),
		MemberEmail:         strings.TrimSpace(req.MemberEmail),
		MemberPhone:         strings.TrimSpace(req.MemberPhone),
		MemberAge:           strings.TrimSpace(req.MemberAge),
		MemberMaritalStatus: strings.TrimSpace(req.MemberMaritalStatus),
		Date:                req.Date,
		Topic:               strings.TrimSpace(req.Topic),
		Details:             strings.TrimSpace(req.Details),
		Status:              model.StatusQueued,
		Source:              req.Source,
		CreatedAt:           now,
	}
	details := "Solicitação criada"
	if counselor != nil {
		if counselor.ChurchID != req.ChurchID || !counselor.Active {
			return model.Appointment{}, Validationf("conselheiro indisponível")
		}
		if req.Date.IsZero() {
			return model.Appointment{}, Validationf("selecione um horário")
		}
		a.AssignCounselor(*counselor)
		a.Status = model.StatusPending
		details += " para " + counselor.Name + " em " + m.display(req.Date)
	}
	m.record(&a, actor, model.ActionCreated, details)
	return a, nil
}

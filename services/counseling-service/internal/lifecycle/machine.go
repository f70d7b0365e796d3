// Package lifecycle owns the appointment status field. Every function either
// rejects the request leaving the appointment untouched, or applies the change
// and appends exactly one activity describing it.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
)

const dateDisplay = "02/01/2006 15:04"

type Machine struct {
	now   func() time.Time
	newID func() string
	loc   *time.Location
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func WithIDs(newID func() string) Option {
	return func(m *Machine) { m.newID = newID }
}

// WithLocation sets the zone used to render dates inside activity details.
func WithLocation(loc *time.Location) Option {
	return func(m *Machine) { m.loc = loc }
}

func New(opts ...Option) *Machine {
	m := &Machine{
		now:   time.Now,
		newID: uuid.NewString,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Now() time.Time {
	return m.now()
}

func (m *Machine) NewID() string {
	return m.newID()
}

func (m *Machine) record(a *model.Appointment, actor model.Actor, action model.Action, details string) {
	a.UpdatedAt = m.now()
	a.AppendActivity(model.Activity{
		ID:        m.newID(),
		Timestamp: a.UpdatedAt,
		User:      actor.DisplayName(),
		Action:    action,
		Details:   details,
	})
}

func (m *Machine) display(t time.Time) string {
	if t.IsZero() {
		return "sem data"
	}
	return t.In(m.loc).Format(dateDisplay)
}

func requireReason(reason, what string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", Validationf("%s: motivo é obrigatório", what)
	}
	return reason, nil
}

func requireStatus(a *model.Appointment, allowed ...model.Status) error {
	for _, s := range allowed {
		if a.Status == s {
			return nil
		}
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return Conflictf("agendamento está %q; esperado %s", a.Status, strings.Join(names, " ou "))
}

func requireNonTerminal(a *model.Appointment) error {
	if a.Status.Terminal() {
		return Conflictf("agendamento já encerrado (%s)", a.Status)
	}
	return nil
}

func requireAssigned(a *model.Appointment, actor model.Actor) error {
	if !a.AssignedTo(actor) {
		return Forbiddenf("apenas o conselheiro responsável pode executar esta ação")
	}
	return nil
}

func requireAssignedOrSupervisor(a *model.Appointment, actor model.Actor) error {
	if a.AssignedTo(actor) || actor.Role.Supervisor() {
		return nil
	}
	return Forbiddenf("ação restrita ao conselheiro responsável ou à liderança")
}

func requireSupervisor(actor model.Actor) error {
	if !actor.Role.Supervisor() {
		return Forbiddenf("ação restrita a Administrador, Pastor ou Coordenador")
	}
	return nil
}

// Approve confirms a pending request: Pendente -> Marcado.
func (m *Machine) Approve(a *model.Appointment, actor model.Actor) error {
	if err := requireStatus(a, model.StatusPending); err != nil {
		return err
	}
	if err := requireAssigned(a, actor); err != nil {
		return err
	}
	prev := a.Status
	a.Status = model.StatusScheduled
	m.record(a, actor, model.ActionStatusChange, fmt.Sprintf("Solicitação aprovada: %s → %s", prev, a.Status))
	return nil
}

// Reject refuses a pending request: Pendente -> Na Fila. Assignment fields
// are left in place; rejected_by names who refused it.
func (m *Machine) Reject(a *model.Appointment, actor model.Actor, reason string) error {
	reason, err := requireReason(reason, "recusar")
	if err != nil {
		return err
	}
	if err := requireStatus(a, model.StatusPending); err != nil {
		return err
	}
	if err := requireAssigned(a, actor); err != nil {
		return err
	}
	prev := a.Status
	a.Status = model.StatusQueued
	a.RejectionReason = reason
	a.RejectedBy = actor.DisplayName()
	m.record(a, actor, model.ActionStatusChange, fmt.Sprintf("Solicitação recusada (%s → %s). Motivo: %s", prev, a.Status, reason))
	return nil
}

// Reschedule replaces the date of a confirmed or running appointment. Slot
// availability is the caller's job since it needs the counselor's agenda.
func (m *Machine) Reschedule(a *model.Appointment, actor model.Actor, to time.Time) error {
	if to.IsZero() {
		return Validationf("reagendar: selecione um horário")
	}
	if err := requireStatus(a, model.StatusScheduled, model.StatusInProgress); err != nil {
		return err
	}
	if err := requireAssignedOrSupervisor(a, actor); err != nil {
		return err
	}
	if a.Date.Equal(to) {
		return Validationf("reagendar: o novo horário é igual ao atual")
	}
	from := a.Date
	a.Date = to
	m.record(a, actor, model.ActionRescheduled, fmt.Sprintf("Reagendado de %s para %s", m.display(from), m.display(to)))
	return nil
}

// ReturnToQueue gives the appointment back to the unassigned queue and
// clears the counselor snapshot.
func (m *Machine) ReturnToQueue(a *model.Appointment, actor model.Actor, reason string) error {
	reason, err := requireReason(reason, "devolver para a fila")
	if err != nil {
		return err
	}
	if err := requireStatus(a, model.StatusScheduled, model.StatusInProgress); err != nil {
		return err
	}
	if err := requireAssigned(a, actor); err != nil {
		return err
	}
	prev := a.Status
	a.Status = model.StatusQueued
	a.RejectionReason = reason
	a.RejectedBy = actor.DisplayName()
	a.ClearCounselor()
	m.record(a, actor, model.ActionStatusChange, fmt.Sprintf("Devolvido para a fila (%s → %s). Motivo: %s", prev, a.Status, reason))
	return nil
}

// Cancel is irreversible. A member may cancel a request made with their
// own email address.
func (m *Machine) Cancel(a *model.Appointment, actor model.Actor, reason string) error {
	reason, err := requireReason(reason, "cancelar")
	if err != nil {
		return err
	}
	if err := requireNonTerminal(a); err != nil {
		return err
	}
	if !ownRequest(a, actor) {
		if err := requireAssignedOrSupervisor(a, actor); err != nil {
			return err
		}
	}
	a.Status = model.StatusCanceled
	a.CancellationReason = reason
	m.record(a, actor, model.ActionCanceled, "Agendamento cancelado. Motivo: "+reason)
	return nil
}

func ownRequest(a *model.Appointment, actor model.Actor) bool {
	return actor.Role == model.RoleMember &&
		actor.Email != "" &&
		strings.EqualFold(strings.TrimSpace(actor.Email), strings.TrimSpace(a.MemberEmail))
}

// CancelDefinitively only validates; the caller deletes the record.
func (m *Machine) CancelDefinitively(a *model.Appointment, actor model.Actor) error {
	if err := requireNonTerminal(a); err != nil {
		return err
	}
	return requireAssignedOrSupervisor(a, actor)
}

// Transfer hands a confirmed appointment to another counselor of the same
// church. The status stays Marcado.
func (m *Machine) Transfer(a *model.Appointment, actor model.Actor, to model.Counselor, reason string) error {
	reason, err := requireReason(reason, "transferir")
	if err != nil {
		return err
	}
	if to.ID == "" {
		return Validationf("transferir: selecione o conselheiro de destino")
	}
	if err := requireStatus(a, model.StatusScheduled); err != nil {
		return err
	}
	if err := requireAssignedOrSupervisor(a, actor); err != nil {
		return err
	}
	if to.ID == a.CounselorID {
		return Validationf("transferir: o conselheiro de destino é o atual")
	}
	if to.ChurchID != a.ChurchID || !to.Active {
		return Validationf("transferir: conselheiro de destino indisponível")
	}
	from := a.CounselorName
	a.AssignCounselor(to)
	a.Status = model.StatusScheduled
	m.record(a, actor, model.ActionTransferred, fmt.Sprintf("Transferido de %s para %s. Motivo: %s", from, to.Name, reason))
	return nil
}

// Claim lets a counselor take a queued request. It goes back to Pendente,
// waiting for that counselor's approval.
func (m *Machine) Claim(a *model.Appointment, actor model.Actor, counselor model.Counselor) error {
	if err := requireStatus(a, model.StatusQueued); err != nil {
		return err
	}
	if !counselor.Identifies(actor) {
		return Forbiddenf("apenas o próprio conselheiro pode assumir um atendimento")
	}
	if counselor.ChurchID != a.ChurchID || !counselor.Active {
		return Validationf("assumir: conselheiro indisponível")
	}
	a.AssignCounselor(counselor)
	a.Status = model.StatusPending
	m.record(a, actor, model.ActionOwnershipTaken, counselor.Name+" assumiu o atendimento")
	return nil
}

// Assign is the supervisor variant of Claim and may also replace the
// counselor of a pending request.
func (m *Machine) Assign(a *model.Appointment, actor model.Actor, counselor model.Counselor) error {
	if err := requireStatus(a, model.StatusQueued, model.StatusPending); err != nil {
		return err
	}
	if err := requireSupervisor(actor); err != nil {
		return err
	}
	if counselor.ChurchID != a.ChurchID || !counselor.Active {
		return Validationf("atribuir: conselheiro indisponível")
	}
	if a.Status == model.StatusPending && a.CounselorID == counselor.ID {
		return Validationf("atribuir: conselheiro já é o responsável")
	}
	a.AssignCounselor(counselor)
	a.Status = model.StatusPending
	m.record(a, actor, model.ActionAssignedCounselor, "Atribuído a "+counselor.Name)
	return nil
}

// Start marks the first session as under way: Marcado -> Em Aconselhamento.
func (m *Machine) Start(a *model.Appointment, actor model.Actor) error {
	if err := requireStatus(a, model.StatusScheduled); err != nil {
		return err
	}
	if err := requireAssigned(a, actor); err != nil {
		return err
	}
	prev := a.Status
	a.Status = model.StatusInProgress
	m.record(a, actor, model.ActionStatusChange, fmt.Sprintf("Aconselhamento iniciado: %s → %s", prev, a.Status))
	return nil
}

// Override is the administrative status dropdown. It skips the transition
// table but not the activity. A canceled appointment only moves between
// terminal statuses, and an override to Na Fila releases the counselor.
func (m *Machine) Override(a *model.Appointment, actor model.Actor, to model.Status) error {
	st, ok := model.ParseStatus(string(to))
	if !ok || strings.TrimSpace(string(to)) == "" {
		return Validationf("status inválido: %q", to)
	}
	if err := requireAssignedOrSupervisor(a, actor); err != nil {
		return err
	}
	if a.Status == st {
		return Validationf("agendamento já está %q", st)
	}
	if a.Status == model.StatusCanceled && !st.Terminal() {
		return Conflictf("agendamento cancelado não pode voltar para %q", st)
	}
	prev := a.Status
	a.Status = st
	if st == model.StatusQueued {
		a.ClearCounselor()
	}
	m.record(a, actor, model.ActionStatusChange, fmt.Sprintf("Status alterado manualmente: %s → %s", prev, st))
	return nil
}

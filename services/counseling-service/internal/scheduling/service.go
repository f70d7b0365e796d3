// Package scheduling composes the state machine, the slot computer and the
// store into the operations counselors and supervisors invoke. Every
// mutating operation follows the same cycle: load, clone, transition,
// re-check the slot when a time or counselor changes, write with a version
// check together with its outbox event, then notify. Notification failures
// come back as warnings on an otherwise successful Result.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/libs/metrics"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/availability"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/outbox"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/storage"
)

type Appointments interface {
	Get(ctx context.Context, churchID, id string) (*model.Appointment, error)
	ListByChurch(ctx context.Context, churchID string) ([]model.Appointment, error)
	ListByStatus(ctx context.Context, churchID string, statuses ...model.Status) ([]model.Appointment, error)
	ListByCounselor(ctx context.Context, churchID, counselorID string, from, to time.Time) ([]model.Appointment, error)
	Insert(ctx context.Context, a *model.Appointment, evt outbox.Event) error
	Update(ctx context.Context, a *model.Appointment, expectedVersion int64, evt outbox.Event) error
	Delete(ctx context.Context, churchID, id string, expectedVersion int64, evt outbox.Event) error
}

type Counselors interface {
	Get(ctx context.Context, churchID, id string) (*model.Counselor, error)
	ListByChurch(ctx context.Context, churchID string) ([]model.Counselor, error)
	SetAvailability(ctx context.Context, churchID, id string, weekly availability.Weekly) error
}

type Notifier interface {
	Email(ctx context.Context, to, subject, html string) error
	Chat(ctx context.Context, churchID, appointmentID, phone, text string) error
}

// Result is what every mutating operation returns. A non-empty Warnings
// means the change was saved but some notification was not delivered.
type Result struct {
	Appointment model.Appointment `json:"appointment"`
	Warnings    []string          `json:"warnings"`
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

type Service struct {
	appts      Appointments
	counselors Counselors
	notifier   Notifier
	machine    *lifecycle.Machine
	cal        availability.Calendar
	metrics    *metrics.Collector
	logger     *slog.Logger
}

type Option func(*Service)

func WithMachine(m *lifecycle.Machine) Option {
	return func(s *Service) { s.machine = m }
}

func WithCalendar(c availability.Calendar) Option {
	return func(s *Service) { s.cal = c }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(appts Appointments, counselors Counselors, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		appts:      appts,
		counselors: counselors,
		notifier:   notifier,
		machine:    lifecycle.New(),
		cal:        availability.NewCalendar(time.Local),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cal.Loc == nil {
		s.cal = availability.NewCalendar(time.Local)
	}
	return s
}

// Calendar exposes the zone used for slot and day computations.
func (s *Service) Calendar() availability.Calendar {
	return s.cal
}

func (s *Service) load(ctx context.Context, actor model.Actor, id string) (*model.Appointment, error) {
	a, err := s.appts.Get(ctx, actor.ChurchID, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, lifecycle.NotFoundf("agendamento %s não encontrado", id)
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return a, nil
}

func (s *Service) loadCounselor(ctx context.Context, churchID, id string) (*model.Counselor, error) {
	if id == "" {
		return nil, lifecycle.Validationf("selecione um conselheiro")
	}
	c, err := s.counselors.Get(ctx, churchID, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, lifecycle.NotFoundf("conselheiro %s não encontrado", id)
		}
		return nil, fmt.Errorf("load counselor: %w", err)
	}
	return c, nil
}

// mutate runs one read-modify-write cycle. apply works on a clone, so a
// rejected transition leaves nothing behind.
func (s *Service) mutate(ctx context.Context, actor model.Actor, id, op string, apply func(draft *model.Appointment) error) (model.Appointment, model.Appointment, error) {
	current, err := s.load(ctx, actor, id)
	if err != nil {
		return model.Appointment{}, model.Appointment{}, err
	}
	before := current.Clone()
	draft := current.Clone()
	if err := apply(&draft); err != nil {
		return model.Appointment{}, model.Appointment{}, err
	}
	draft.Version = before.Version + 1
	evt, err := outbox.NewAppointmentEvent(op, draft.ID, newEventPayload(op, draft, actor))
	if err != nil {
		return model.Appointment{}, model.Appointment{}, err
	}
	if err := s.appts.Update(ctx, &draft, before.Version, evt); err != nil {
		return model.Appointment{}, model.Appointment{}, s.storeErr(op, err)
	}
	s.committed(op, draft, actor)
	return before, draft, nil
}

func (s *Service) committed(op string, a model.Appointment, actor model.Actor) {
	if s.metrics != nil {
		s.metrics.Transition(op)
	}
	s.logger.Info("appointment updated",
		"operation", op,
		"appointment_id", a.ID,
		"church_id", a.ChurchID,
		"status", a.Status,
		"version", a.Version,
		"actor_id", actor.ID,
	)
}

// storeErr turns commit time store failures into conflicts; anything else
// is a hard error.
func (s *Service) storeErr(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrSlotTaken):
		s.conflict("slot_taken")
		return lifecycle.Conflictf("o horário acabou de ser ocupado; atualize e escolha outro")
	case errors.Is(err, storage.ErrStale):
		s.conflict("stale")
		return lifecycle.Conflictf("o agendamento foi alterado por outra pessoa; atualize e tente novamente")
	case storage.IsNotFound(err):
		return lifecycle.NotFoundf("agendamento não encontrado")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) conflict(reason string) {
	if s.metrics != nil {
		s.metrics.Conflict(reason)
	}
}

// bookings loads the counselor's appointments on the local day of at,
// leaving out excludeID and records without a usable date.
func (s *Service) bookings(ctx context.Context, churchID, counselorID string, at time.Time, excludeID string) ([]availability.Booking, error) {
	from, to := s.dayBounds(at)
	appts, err := s.appts.ListByCounselor(ctx, churchID, counselorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list counselor appointments: %w", err)
	}
	out := make([]availability.Booking, 0, len(appts))
	for _, a := range appts {
		if a.ID == excludeID || !a.HasValidDate() {
			continue
		}
		out = append(out, availability.Booking{ID: a.ID, At: a.Date, Holding: a.Status.Holding()})
	}
	return out, nil
}

func (s *Service) dayBounds(at time.Time) (time.Time, time.Time) {
	y, m, d := at.In(s.cal.Loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, s.cal.Loc)
	return from, from.AddDate(0, 0, 1)
}

// requireFreeSlot is the stale-slot guard: at must be one of the
// counselor's configured slots and not held by another live appointment.
func (s *Service) requireFreeSlot(ctx context.Context, counselor model.Counselor, at time.Time, excludeID string) error {
	existing, err := s.bookings(ctx, counselor.ChurchID, counselor.ID, at, excludeID)
	if err != nil {
		return err
	}
	clock := s.cal.Clock(at)
	for _, slot := range s.cal.Compute(counselor.Availability, at, existing) {
		if slot.Time != clock {
			continue
		}
		if slot.IsBooked {
			s.conflict("slot_taken")
			return lifecycle.Conflictf("o horário %s já está ocupado", clock)
		}
		return nil
	}
	return lifecycle.Validationf("%s não é um horário disponível de %s", clock, counselor.Name)
}

// requireNoCollision only checks other live appointments; configured
// availability is not consulted.
func (s *Service) requireNoCollision(ctx context.Context, counselor model.Counselor, at time.Time, excludeID string) error {
	if at.IsZero() {
		return nil
	}
	existing, err := s.bookings(ctx, counselor.ChurchID, counselor.ID, at, excludeID)
	if err != nil {
		return err
	}
	if s.cal.Collides(at, existing) {
		s.conflict("slot_taken")
		return lifecycle.Conflictf("%s já tem um atendimento às %s", counselor.Name, s.cal.Clock(at))
	}
	return nil
}

type eventPayload struct {
	Operation   string    `json:"operation"`
	ID          string    `json:"appointment_id"`
	ChurchID    string    `json:"church_id"`
	CounselorID string    `json:"counselor_id,omitempty"`
	Status      string    `json:"status"`
	Date        time.Time `json:"date,omitzero"`
	Version     int64     `json:"version"`
	ActorID     string    `json:"actor_id"`
	ActorRole   string    `json:"actor_role"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Meeting notes never go into events.
func newEventPayload(op string, a model.Appointment, actor model.Actor) eventPayload {
	return eventPayload{
		Operation:   op,
		ID:          a.ID,
		ChurchID:    a.ChurchID,
		CounselorID: a.CounselorID,
		Status:      string(a.Status),
		Date:        a.Date,
		Version:     a.Version,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		OccurredAt:  a.UpdatedAt,
	}
}

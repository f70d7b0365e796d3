package scheduling

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/availability"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/history"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
)

// View is an appointment decorated with its attendance history.
type View struct {
	model.Appointment
	History *history.Entry `json:"history,omitempty"`
	Label   string         `json:"attendanceLabel,omitempty"`
}

// Slots lists the counselor's slots on the local day of date.
func (s *Service) Slots(ctx context.Context, actor model.Actor, counselorID string, date time.Time) ([]availability.Slot, error) {
	counselor, err := s.loadCounselor(ctx, actor.ChurchID, counselorID)
	if err != nil {
		return nil, err
	}
	existing, err := s.bookings(ctx, counselor.ChurchID, counselor.ID, date, "")
	if err != nil {
		return nil, err
	}
	return s.cal.Compute(counselor.Availability, date, existing), nil
}

// TransferTargets lists the active counselors of the church other than the
// current one.
func (s *Service) TransferTargets(ctx context.Context, actor model.Actor, id string) ([]model.Counselor, error) {
	a, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !a.AssignedTo(actor) && !actor.Role.Supervisor() {
		return nil, lifecycle.Forbiddenf("ação restrita ao conselheiro responsável ou à liderança")
	}
	roster, err := s.counselors.ListByChurch(ctx, actor.ChurchID)
	if err != nil {
		return nil, fmt.Errorf("list counselors: %w", err)
	}
	out := make([]model.Counselor, 0, len(roster))
	for _, c := range roster {
		if c.ID == a.CounselorID || !c.Active || c.ChurchID != a.ChurchID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Service) Counselors(ctx context.Context, actor model.Actor) ([]model.Counselor, error) {
	roster, err := s.counselors.ListByChurch(ctx, actor.ChurchID)
	if err != nil {
		return nil, fmt.Errorf("list counselors: %w", err)
	}
	return roster, nil
}

// Queue lists unassigned requests waiting for a counselor.
func (s *Service) Queue(ctx context.Context, actor model.Actor) ([]View, error) {
	if actor.Role == model.RoleMember {
		return nil, lifecycle.Forbiddenf("fila restrita a conselheiros e liderança")
	}
	queued, err := s.appts.ListByStatus(ctx, actor.ChurchID, model.StatusQueued)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return s.decorate(ctx, actor, queued)
}

// List is the church-wide view for supervisors.
func (s *Service) List(ctx context.Context, actor model.Actor) ([]View, error) {
	if !actor.Role.Supervisor() {
		return nil, lifecycle.Forbiddenf("lista completa restrita à liderança")
	}
	all, err := s.appts.ListByChurch(ctx, actor.ChurchID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return s.views(actor, all, all), nil
}

// MySchedule lists the acting counselor's own appointments.
func (s *Service) MySchedule(ctx context.Context, actor model.Actor) ([]View, error) {
	mine, err := s.appts.ListByCounselor(ctx, actor.ChurchID, actor.ID, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}
	return s.decorate(ctx, actor, mine)
}

// Detail returns one appointment with its history. Members only see
// requests made with their own email.
func (s *Service) Detail(ctx context.Context, actor model.Actor, id string) (View, error) {
	a, err := s.load(ctx, actor, id)
	if err != nil {
		return View{}, err
	}
	if actor.Role == model.RoleMember && !sameEmail(actor.Email, a.MemberEmail) {
		return View{}, lifecycle.NotFoundf("agendamento %s não encontrado", id)
	}
	views, err := s.decorate(ctx, actor, []model.Appointment{*a})
	if err != nil {
		return View{}, err
	}
	return views[0], nil
}

// decorate loads the whole church so history numbers match across views.
func (s *Service) decorate(ctx context.Context, actor model.Actor, appts []model.Appointment) ([]View, error) {
	all, err := s.appts.ListByChurch(ctx, actor.ChurchID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return s.views(actor, appts, all), nil
}

func (s *Service) views(actor model.Actor, appts, all []model.Appointment) []View {
	idx := history.Build(all)
	out := make([]View, 0, len(appts))
	for _, a := range appts {
		v := View{Appointment: a.ForViewer(actor)}
		if e, ok := idx.For(a.ID); ok {
			v.History = &e
			v.Label = e.Label()
		}
		out = append(out, v)
	}
	slices.SortStableFunc(out, func(a, b View) int {
		switch {
		case a.HasValidDate() && !b.HasValidDate():
			return -1
		case !a.HasValidDate() && b.HasValidDate():
			return 1
		}
		return a.Date.Compare(b.Date)
	})
	return out
}

// UpdateAvailability replaces a counselor's weekly slots. Weekday names are
// canonicalized and clocks are stored zero-padded as "HH:MM".
func (s *Service) UpdateAvailability(ctx context.Context, actor model.Actor, counselorID string, raw map[string][]string) (model.Counselor, error) {
	if actor.ID != counselorID && !actor.Role.Supervisor() {
		return model.Counselor{}, lifecycle.Forbiddenf("apenas o próprio conselheiro ou a liderança pode alterar a disponibilidade")
	}
	weekly := availability.Weekly{}
	for day, clocks := range raw {
		name, ok := availability.CanonicalWeekday(day)
		if !ok {
			return model.Counselor{}, lifecycle.Validationf("dia da semana inválido: %q", day)
		}
		for _, c := range clocks {
			clock, ok := availability.NormalizeClock(c)
			if !ok {
				return model.Counselor{}, lifecycle.Validationf("horário inválido em %s: %q", name, c)
			}
			weekly[name] = append(weekly[name], clock)
		}
	}
	for day := range weekly {
		weekly[day] = weekly.Get(day)
	}

	if _, err := s.loadCounselor(ctx, actor.ChurchID, counselorID); err != nil {
		return model.Counselor{}, err
	}
	if err := s.counselors.SetAvailability(ctx, actor.ChurchID, counselorID, weekly); err != nil {
		return model.Counselor{}, s.storeErr("availability_updated", err)
	}
	if s.metrics != nil {
		s.metrics.Transition("availability_updated")
	}
	s.logger.Info("availability updated", "counselor_id", counselorID, "actor_id", actor.ID)
	updated, err := s.loadCounselor(ctx, actor.ChurchID, counselorID)
	if err != nil {
		return model.Counselor{}, err
	}
	return *updated, nil
}

func sameEmail(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

package scheduling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/availability"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/outbox"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/storage"
)

// memAppointments mimics the Postgres store: version check on write and
// one live hold per counselor and instant.
type memAppointments struct {
	mu        sync.Mutex
	byID      map[string]model.Appointment
	events    []outbox.Event
	updateErr error
}

func newMemAppointments(appts ...model.Appointment) *memAppointments {
	m := &memAppointments{byID: map[string]model.Appointment{}}
	for _, a := range appts {
		if a.Version == 0 {
			a.Version = 1
		}
		m.byID[a.ID] = a
	}
	return m
}

func (m *memAppointments) Get(_ context.Context, churchID, id string) (*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok || a.ChurchID != churchID {
		return nil, storage.ErrNotFound
	}
	c := a.Clone()
	return &c, nil
}

func (m *memAppointments) list(keep func(model.Appointment) bool) []model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.byID {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, func(a, b model.Appointment) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (m *memAppointments) ListByChurch(_ context.Context, churchID string) ([]model.Appointment, error) {
	return m.list(func(a model.Appointment) bool { return a.ChurchID == churchID }), nil
}

func (m *memAppointments) ListByStatus(_ context.Context, churchID string, statuses ...model.Status) ([]model.Appointment, error) {
	return m.list(func(a model.Appointment) bool {
		return a.ChurchID == churchID && slices.Contains(statuses, a.Status)
	}), nil
}

func (m *memAppointments) ListByCounselor(_ context.Context, churchID, counselorID string, from, to time.Time) ([]model.Appointment, error) {
	return m.list(func(a model.Appointment) bool {
		if a.ChurchID != churchID || a.CounselorID != counselorID {
			return false
		}
		if from.IsZero() || to.IsZero() {
			return true
		}
		return !a.Date.Before(from) && a.Date.Before(to)
	}), nil
}

func (m *memAppointments) slotTaken(a model.Appointment) bool {
	if !a.Status.Holding() || a.CounselorID == "" || a.Date.IsZero() {
		return false
	}
	for _, other := range m.byID {
		if other.ID != a.ID && other.Status.Holding() && other.CounselorID == a.CounselorID && other.Date.Equal(a.Date) {
			return true
		}
	}
	return false
}

func (m *memAppointments) Insert(_ context.Context, a *model.Appointment, evt outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[a.ID]; ok {
		return storage.ErrStale
	}
	if m.slotTaken(*a) {
		return storage.ErrSlotTaken
	}
	a.Version = 1
	m.byID[a.ID] = a.Clone()
	m.events = append(m.events, evt)
	return nil
}

func (m *memAppointments) Update(_ context.Context, a *model.Appointment, expected int64, evt outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	cur, ok := m.byID[a.ID]
	if !ok || cur.Version != expected {
		return storage.ErrStale
	}
	if m.slotTaken(*a) {
		return storage.ErrSlotTaken
	}
	a.Version = expected + 1
	m.byID[a.ID] = a.Clone()
	m.events = append(m.events, evt)
	return nil
}

func (m *memAppointments) Delete(_ context.Context, churchID, id string, expected int64, evt outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[id]
	if !ok || cur.ChurchID != churchID || cur.Version != expected {
		return storage.ErrStale
	}
	delete(m.byID, id)
	m.events = append(m.events, evt)
	return nil
}

func (m *memAppointments) stored(id string) model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Clone()
}

type memCounselors struct {
	byID map[string]model.Counselor
}

func newMemCounselors(cs ...model.Counselor) *memCounselors {
	m := &memCounselors{byID: map[string]model.Counselor{}}
	for _, c := range cs {
		m.byID[c.ID] = c
	}
	return m
}

func (m *memCounselors) Get(_ context.Context, churchID, id string) (*model.Counselor, error) {
	c, ok := m.byID[id]
	if !ok || c.ChurchID != churchID {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (m *memCounselors) ListByChurch(_ context.Context, churchID string) ([]model.Counselor, error) {
	var out []model.Counselor
	for _, c := range m.byID {
		if c.ChurchID == churchID && c.Active {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b model.Counselor) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *memCounselors) SetAvailability(_ context.Context, churchID, id string, weekly availability.Weekly) error {
	c, ok := m.byID[id]
	if !ok || c.ChurchID != churchID {
		return storage.ErrNotFound
	}
	c.Availability = weekly
	m.byID[id] = c
	return nil
}

type sentMessage struct {
	channel string
	to      string
	subject string
}

type recordingNotifier struct {
	sent     []sentMessage
	emailErr error
	chatErr  error
}

func (n *recordingNotifier) Email(_ context.Context, to, subject, _ string) error {
	if n.emailErr != nil {
		return n.emailErr
	}
	n.sent = append(n.sent, sentMessage{channel: "email", to: to, subject: subject})
	return nil
}

func (n *recordingNotifier) Chat(_ context.Context, _, _, phone, _ string) error {
	if n.chatErr != nil {
		return n.chatErr
	}
	n.sent = append(n.sent, sentMessage{channel: "chat", to: phone})
	return nil
}

func (n *recordingNotifier) count(channel string) int {
	c := 0
	for _, m := range n.sent {
		if m.channel == channel {
			c++
		}
	}
	return c
}

const church = "church-1"

var (
	// 2024-01-08 is a Monday.
	monday9  = time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	monday10 = time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	monday11 = time.Date(2024, 1, 8, 11, 0, 0, 0, time.UTC)

	counselorA = model.Counselor{
		ID: "couns-a", ChurchID: church, Name: "Ana", Email: "ana@igreja.org", Phone: "(11) 98765-4321",
		Active: true, Availability: availability.Weekly{availability.Monday: {"10:00", "09:00", "11:00"}},
	}
	counselorB = model.Counselor{
		ID: "couns-b", ChurchID: church, Name: "Bruno", Email: "bruno@igreja.org",
		Active: true, Availability: availability.Weekly{availability.Monday: {"09:00"}},
	}

	actorA     = model.Actor{ID: "couns-a", Role: model.RoleCounselor, Name: "Ana", ChurchID: church}
	actorB     = model.Actor{ID: "couns-b", Role: model.RoleCounselor, Name: "Bruno", ChurchID: church}
	supervisor = model.Actor{ID: "pastor-1", Role: model.RolePastor, Name: "Pr. Paulo", ChurchID: church}
)

type fixture struct {
	svc      *Service
	appts    *memAppointments
	notifier *recordingNotifier
}

func newFixture(appts ...model.Appointment) fixture {
	n := 0
	machine := lifecycle.New(
		lifecycle.WithClock(func() time.Time { return time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC) }),
		lifecycle.WithIDs(func() string { n++; return fmt.Sprintf("gen-%d", n) }),
		lifecycle.WithLocation(time.UTC),
	)
	store := newMemAppointments(appts...)
	notifier := &recordingNotifier{}
	svc := NewService(store, newMemCounselors(counselorA, counselorB), notifier,
		WithMachine(machine),
		WithCalendar(availability.NewCalendar(time.UTC)),
	)
	return fixture{svc: svc, appts: store, notifier: notifier}
}

func appointment(id string, status model.Status, counselor *model.Counselor, at time.Time) model.Appointment {
	a := model.Appointment{
		ID: id, ChurchID: church, MemberName: "Maria", MemberEmail: "m@x.com", MemberPhone: "11 91234-5678",
		Topic: "família", Date: at, Status: status,
	}
	if counselor != nil {
		a.AssignCounselor(*counselor)
	}
	return a
}

var errBoom = errors.New("boom")

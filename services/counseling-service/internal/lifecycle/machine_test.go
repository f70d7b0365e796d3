package lifecycle

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
)

var (
	fixedNow  = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	counselor = model.Actor{ID: "c1", Role: model.RoleCounselor, Name: "Ana", ChurchID: "ch1"}
	other     = model.Actor{ID: "c2", Role: model.RoleCounselor, Name: "Bruno", ChurchID: "ch1"}
	pastor    = model.Actor{ID: "p1", Role: model.RolePastor, Name: "Pr. Paulo", ChurchID: "ch1"}
	member    = model.Actor{ID: "u9", Role: model.RoleMember, Name: "Maria", Email: "m@x.com", ChurchID: "ch1"}
)

func newMachine() *Machine {
	n := 0
	return New(
		WithClock(func() time.Time { return fixedNow }),
		WithIDs(func() string { n++; return fmt.Sprintf("id-%d", n) }),
		WithLocation(time.UTC),
	)
}

func appt(status model.Status) *model.Appointment {
	return &model.Appointment{
		ID:             "a1",
		ChurchID:       "ch1",
		CounselorID:    "c1",
		CounselorName:  "Ana",
		CounselorEmail: "ana@igreja.org",
		MemberName:     "Maria",
		MemberEmail:    "m@x.com",
		Date:           time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC),
		Status:         status,
		Meetings:       []model.Meeting{{ID: "m1", Notes: "primeira conversa", RecordedByID: "c1"}},
	}
}

func TestValidTransitionsAppendOneActivity(t *testing.T) {
	bruno := model.Counselor{ID: "c2", ChurchID: "ch1", Name: "Bruno", Email: "bruno@igreja.org", Active: true}
	cases := []struct {
		name   string
		from   model.Status
		run    func(*Machine, *model.Appointment) error
		to     model.Status
		action model.Action
	}{
		{"approve", model.StatusPending, func(m *Machine, a *model.Appointment) error { return m.Approve(a, counselor) }, model.StatusScheduled, model.ActionStatusChange},
		{"reject", model.StatusPending, func(m *Machine, a *model.Appointment) error { return m.Reject(a, counselor, "agenda cheia") }, model.StatusQueued, model.ActionStatusChange},
		{"reschedule", model.StatusScheduled, func(m *Machine, a *model.Appointment) error {
			return m.Reschedule(a, pastor, a.Date.Add(time.Hour))
		}, model.StatusScheduled, model.ActionRescheduled},
		{"reschedule running", model.StatusInProgress, func(m *Machine, a *model.Appointment) error {
			return m.Reschedule(a, counselor, a.Date.AddDate(0, 0, 7))
		}, model.StatusInProgress, model.ActionRescheduled},
		{"return to queue", model.StatusInProgress, func(m *Machine, a *model.Appointment) error { return m.ReturnToQueue(a, counselor, "viagem") }, model.StatusQueued, model.ActionStatusChange},
		{"cancel pending", model.StatusPending, func(m *Machine, a *model.Appointment) error { return m.Cancel(a, counselor, "desistiu") }, model.StatusCanceled, model.ActionCanceled},
		{"cancel queued by member", model.StatusQueued, func(m *Machine, a *model.Appointment) error { return m.Cancel(a, member, "resolvido") }, model.StatusCanceled, model.ActionCanceled},
		{"transfer", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Transfer(a, counselor, bruno, "especialidade") }, model.StatusScheduled, model.ActionTransferred},
		{"claim", model.StatusQueued, func(m *Machine, a *model.Appointment) error { return m.Claim(a, other, bruno) }, model.StatusPending, model.ActionOwnershipTaken},
		{"assign", model.StatusQueued, func(m *Machine, a *model.Appointment) error { return m.Assign(a, pastor, bruno) }, model.StatusPending, model.ActionAssignedCounselor},
		{"start", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Start(a, counselor) }, model.StatusInProgress, model.ActionStatusChange},
		{"override completed", model.StatusInProgress, func(m *Machine, a *model.Appointment) error { return m.Override(a, counselor, model.StatusCompleted) }, model.StatusCompleted, model.ActionStatusChange},
		{"override no return", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Override(a, pastor, model.StatusNoReturn) }, model.StatusNoReturn, model.ActionStatusChange},
		{"override from terminal", model.StatusCanceled, func(m *Machine, a *model.Appointment) error { return m.Override(a, pastor, model.StatusCompleted) }, model.StatusCompleted, model.ActionStatusChange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := appt(tc.from)
			if err := tc.run(newMachine(), a); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Status != tc.to {
				t.Fatalf("status = %q, want %q", a.Status, tc.to)
			}
			if len(a.Activities) != 1 {
				t.Fatalf("expected exactly one activity, got %d", len(a.Activities))
			}
			act := a.Activities[0]
			if act.Action != tc.action || !act.Timestamp.Equal(fixedNow) || act.ID == "" || act.User == "" {
				t.Fatalf("unexpected activity: %+v", act)
			}
		})
	}
}

func TestInvalidTransitionsLeaveAppointmentUntouched(t *testing.T) {
	bruno := model.Counselor{ID: "c2", ChurchID: "ch1", Name: "Bruno", Active: true}
	cases := []struct {
		name string
		from model.Status
		run  func(*Machine, *model.Appointment) error
		kind Kind
	}{
		{"approve canceled", model.StatusCanceled, func(m *Machine, a *model.Appointment) error { return m.Approve(a, counselor) }, KindConflict},
		{"approve by other counselor", model.StatusPending, func(m *Machine, a *model.Appointment) error { return m.Approve(a, other) }, KindForbidden},
		{"approve by pastor", model.StatusPending, func(m *Machine, a *model.Appointment) error { return m.Approve(a, pastor) }, KindForbidden},
		{"reject without reason", model.StatusPending, func(m *Machine, a *model.Appointment) error { return m.Reject(a, counselor, "  ") }, KindValidation},
		{"reject scheduled", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Reject(a, counselor, "x") }, KindConflict},
		{"reschedule pending", model.StatusPending, func(m *Machine, a *model.Appointment) error { return m.Reschedule(a, counselor, a.Date.Add(time.Hour)) }, KindConflict},
		{"reschedule no slot", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Reschedule(a, counselor, time.Time{}) }, KindValidation},
		{"reschedule same time", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Reschedule(a, counselor, a.Date) }, KindValidation},
		{"reschedule by member", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Reschedule(a, member, a.Date.Add(time.Hour)) }, KindForbidden},
		{"return pending", model.StatusPending, func(m *Machine, a *model.Appointment) error { return m.ReturnToQueue(a, counselor, "x") }, KindConflict},
		{"return without reason", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.ReturnToQueue(a, counselor, "") }, KindValidation},
		{"cancel canceled", model.StatusCanceled, func(m *Machine, a *model.Appointment) error { return m.Cancel(a, counselor, "x") }, KindConflict},
		{"cancel completed", model.StatusCompleted, func(m *Machine, a *model.Appointment) error { return m.Cancel(a, pastor, "x") }, KindConflict},
		{"cancel without reason", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Cancel(a, counselor, "") }, KindValidation},
		{"cancel by stranger", model.StatusScheduled, func(m *Machine, a *model.Appointment) error {
			return m.Cancel(a, model.Actor{ID: "u2", Role: model.RoleMember, Email: "x@y.com"}, "x")
		}, KindForbidden},
		{"transfer pending", model.StatusPending, func(m *Machine, a *model.Appointment) error { return m.Transfer(a, counselor, bruno, "x") }, KindConflict},
		{"transfer to self", model.StatusScheduled, func(m *Machine, a *model.Appointment) error {
			return m.Transfer(a, counselor, model.Counselor{ID: "c1", ChurchID: "ch1", Active: true}, "x")
		}, KindValidation},
		{"transfer other church", model.StatusScheduled, func(m *Machine, a *model.Appointment) error {
			return m.Transfer(a, counselor, model.Counselor{ID: "c3", ChurchID: "ch2", Active: true}, "x")
		}, KindValidation},
		{"transfer without reason", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Transfer(a, counselor, bruno, "") }, KindValidation},
		{"claim scheduled", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Claim(a, other, bruno) }, KindConflict},
		{"claim for someone else", model.StatusQueued, func(m *Machine, a *model.Appointment) error { return m.Claim(a, counselor, bruno) }, KindForbidden},
		{"assign by counselor", model.StatusQueued, func(m *Machine, a *model.Appointment) error { return m.Assign(a, counselor, bruno) }, KindForbidden},
		{"start pending", model.StatusPending, func(m *Machine, a *model.Appointment) error { return m.Start(a, counselor) }, KindConflict},
		{"override unknown", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Override(a, pastor, "Arquivado") }, KindValidation},
		{"override same", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Override(a, pastor, model.StatusScheduled) }, KindValidation},
		{"override canceled to scheduled", model.StatusCanceled, func(m *Machine, a *model.Appointment) error { return m.Override(a, pastor, model.StatusScheduled) }, KindConflict},
		{"override canceled to pending", model.StatusCanceled, func(m *Machine, a *model.Appointment) error { return m.Override(a, pastor, model.StatusPending) }, KindConflict},
		{"override canceled to running", model.StatusCanceled, func(m *Machine, a *model.Appointment) error { return m.Override(a, pastor, model.StatusInProgress) }, KindConflict},
		{"override canceled to queue", model.StatusCanceled, func(m *Machine, a *model.Appointment) error { return m.Override(a, pastor, model.StatusQueued) }, KindConflict},
		{"override by other", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.Override(a, other, model.StatusCompleted) }, KindForbidden},
		{"definitive cancel completed", model.StatusCompleted, func(m *Machine, a *model.Appointment) error { return m.CancelDefinitively(a, counselor) }, KindConflict},
		{"definitive cancel by other", model.StatusScheduled, func(m *Machine, a *model.Appointment) error { return m.CancelDefinitively(a, other) }, KindForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := appt(tc.from)
			before := a.Clone()
			err := tc.run(newMachine(), a)
			if err == nil {
				t.Fatal("expected error")
			}
			if KindOf(err) != tc.kind {
				t.Fatalf("kind = %q, want %q (%v)", KindOf(err), tc.kind, err)
			}
			if !reflect.DeepEqual(before, *a) {
				t.Fatalf("appointment mutated by rejected transition:\nbefore %+v\nafter  %+v", before, *a)
			}
		})
	}
}

func TestReject_ScenarioC(t *testing.T) {
	m := newMachine()
	a := appt(model.StatusPending)

	if err := m.Reject(a, counselor, ""); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if a.Status != model.StatusPending || len(a.Activities) != 0 {
		t.Fatal("refused rejection changed the appointment")
	}

	if err := m.Reject(a, counselor, "agenda cheia"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if a.Status != model.StatusQueued || a.RejectionReason != "agenda cheia" || a.RejectedBy != "Ana" {
		t.Fatalf("unexpected appointment: %+v", a)
	}
	if len(a.Activities) != 1 || a.Activities[0].Action != model.ActionStatusChange {
		t.Fatalf("expected one status_change activity, got %+v", a.Activities)
	}
	if a.CounselorID != "c1" {
		t.Fatal("reject must keep the assignment fields")
	}
}

func TestReturnToQueueClearsCounselor(t *testing.T) {
	a := appt(model.StatusScheduled)
	if err := newMachine().ReturnToQueue(a, counselor, "mudança de cidade"); err != nil {
		t.Fatalf("return: %v", err)
	}
	if a.CounselorID != "" || a.CounselorName != "" || a.CounselorEmail != "" {
		t.Fatalf("counselor fields not cleared: %+v", a)
	}
	if a.RejectionReason != "mudança de cidade" || a.RejectedBy != "Ana" {
		t.Fatalf("rejection fields not recorded: %+v", a)
	}
}

func TestTransfer_ScenarioD(t *testing.T) {
	a := appt(model.StatusScheduled)
	meetings := append([]model.Meeting(nil), a.Meetings...)
	b := model.Counselor{ID: "c2", ChurchID: "ch1", Name: "Bruno", Email: "bruno@igreja.org", Active: true}

	if err := newMachine().Transfer(a, counselor, b, "tema de casamento"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if a.CounselorID != "c2" || a.CounselorName != "Bruno" || a.CounselorEmail != "bruno@igreja.org" {
		t.Fatalf("counselor not reassigned: %+v", a)
	}
	if !reflect.DeepEqual(a.Meetings, meetings) {
		t.Fatal("transfer touched meetings")
	}
	act := a.Activities[len(a.Activities)-1]
	for _, want := range []string{"Ana", "Bruno", "tema de casamento"} {
		if !strings.Contains(act.Details, want) {
			t.Fatalf("activity %q does not mention %q", act.Details, want)
		}
	}
}

func TestCancelRecordsReason(t *testing.T) {
	a := appt(model.StatusScheduled)
	if err := newMachine().Cancel(a, pastor, "doença"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if a.CancellationReason != "doença" {
		t.Fatalf("reason not recorded: %+v", a)
	}
}

func TestActivitiesAppendInOrder(t *testing.T) {
	m := newMachine()
	a := appt(model.StatusPending)
	if err := m.Approve(a, counselor); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(a, counselor); err != nil {
		t.Fatal(err)
	}
	if err := m.Override(a, counselor, model.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	if len(a.Activities) != 3 || a.Activities[0].ID != "id-1" || a.Activities[2].ID != "id-3" {
		t.Fatalf("activities out of order: %+v", a.Activities)
	}
}

func TestOverrideToQueueReleasesCounselor(t *testing.T) {
	a := appt(model.StatusScheduled)
	if err := newMachine().Override(a, pastor, model.StatusQueued); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != model.StatusQueued {
		t.Fatalf("status = %q, want %q", a.Status, model.StatusQueued)
	}
	if a.CounselorID != "" || a.CounselorName != "" || a.CounselorEmail != "" {
		t.Fatalf("counselor fields kept on queued appointment: %+v", a)
	}
	if len(a.Activities) != 1 {
		t.Fatalf("expected one activity, got %d", len(a.Activities))
	}
}

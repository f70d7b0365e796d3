package scheduling

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/libs/metrics"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/availability"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/outbox"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func requireKind(t *testing.T, err error, kind lifecycle.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := lifecycle.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func TestSlotsMarksHoldingBookings(t *testing.T) {
	f := newFixture(
		appointment("held", model.StatusScheduled, &counselorA, monday9),
		appointment("canceled", model.StatusCanceled, &counselorA, monday10),
		appointment("queued", model.StatusQueued, &counselorA, monday11),
	)
	slots, err := f.svc.Slots(context.Background(), actorA, counselorA.ID, monday9)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	want := []availability.Slot{{Time: "09:00", IsBooked: true}, {Time: "10:00"}, {Time: "11:00"}}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %v", len(want), slots)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slot %d: expected %+v, got %+v", i, want[i], slots[i])
		}
	}

	tuesday, err := f.svc.Slots(context.Background(), actorA, counselorA.ID, monday9.AddDate(0, 0, 1))
	if err != nil || len(tuesday) != 0 {
		t.Fatalf("expected no slots on a day without availability, got %v (%v)", tuesday, err)
	}
}

func TestApproveNotifiesMemberAndCounselor(t *testing.T) {
	m := metrics.NewCollector("test")
	f := newFixture(appointment("a1", model.StatusPending, &counselorA, monday9))
	f.svc.metrics = m

	res, err := f.svc.Approve(context.Background(), actorA, "a1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.Appointment.Status != model.StatusScheduled {
		t.Fatalf("expected Marcado, got %s", res.Appointment.Status)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	if f.notifier.count("email") != 2 || f.notifier.count("chat") != 1 {
		t.Fatalf("expected 2 emails and 1 chat, got %+v", f.notifier.sent)
	}
	stored := f.appts.stored("a1")
	if stored.Version != 2 || len(stored.Activities) != 1 {
		t.Fatalf("expected version 2 with one activity, got v%d / %d", stored.Version, len(stored.Activities))
	}
	if len(f.appts.events) != 1 || f.appts.events[0].EventType != outbox.AppointmentEventType(OpApproved) {
		t.Fatalf("expected one approved event, got %+v", f.appts.events)
	}
	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues(OpApproved)); got != 1 {
		t.Fatalf("expected transition metric 1, got %v", got)
	}
}

func TestApproveByOtherCounselorIsForbidden(t *testing.T) {
	f := newFixture(appointment("a1", model.StatusPending, &counselorA, monday9))
	_, err := f.svc.Approve(context.Background(), actorB, "a1")
	requireKind(t, err, lifecycle.KindForbidden)
	if f.appts.stored("a1").Version != 1 {
		t.Fatalf("refused transition must not write")
	}
}

func TestNotificationFailureIsAWarning(t *testing.T) {
	f := newFixture(appointment("a1", model.StatusScheduled, &counselorA, monday9))
	f.notifier.emailErr = errBoom

	res, err := f.svc.Cancel(context.Background(), supervisor, "a1", "membro viajou")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", res.Warnings)
	}
	stored := f.appts.stored("a1")
	if stored.Status != model.StatusCanceled || stored.CancellationReason != "membro viajou" {
		t.Fatalf("state must be saved despite notification failure, got %+v", stored)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(appointment("a1", model.StatusPending, &counselorA, monday9))

	_, err := f.svc.Reject(context.Background(), actorA, "a1", "  ")
	requireKind(t, err, lifecycle.KindValidation)
	if got := f.appts.stored("a1"); got.Status != model.StatusPending || len(got.Activities) != 0 {
		t.Fatalf("refused reject must leave the record untouched, got %+v", got)
	}

	res, err := f.svc.Reject(context.Background(), actorA, "a1", "agenda cheia")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	a := res.Appointment
	if a.Status != model.StatusQueued || a.RejectionReason != "agenda cheia" || a.RejectedBy != "Ana" {
		t.Fatalf("unexpected rejected appointment: %+v", a)
	}
	if a.CounselorID != counselorA.ID {
		t.Fatalf("reject keeps the counselor fields, got %q", a.CounselorID)
	}
	if len(a.Activities) != 1 || a.Activities[0].Action != model.ActionStatusChange {
		t.Fatalf("expected one status_change activity, got %+v", a.Activities)
	}
	if f.notifier.count("email") != 1 || f.notifier.sent[0].to != "m@x.com" {
		t.Fatalf("expected member email, got %+v", f.notifier.sent)
	}
}

func TestRescheduleChecksSlotAtCommit(t *testing.T) {
	f := newFixture(
		appointment("moving", model.StatusScheduled, &counselorA, monday9),
		appointment("other", model.StatusPending, &counselorA, monday10),
	)
	ctx := context.Background()

	_, err := f.svc.Reschedule(ctx, actorA, "moving", monday10)
	requireKind(t, err, lifecycle.KindConflict)

	_, err = f.svc.Reschedule(ctx, actorA, "moving", monday9.Add(30*time.Minute))
	requireKind(t, err, lifecycle.KindValidation)

	res, err := f.svc.Reschedule(ctx, actorA, "moving", monday11)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !res.Appointment.Date.Equal(monday11) {
		t.Fatalf("expected new date, got %v", res.Appointment.Date)
	}
	if f.notifier.count("email") != 2 {
		t.Fatalf("expected member and counselor emails, got %+v", f.notifier.sent)
	}

	// The appointment's own slot does not block moving within the same day.
	if _, err := f.svc.Reschedule(ctx, actorA, "moving", monday9); err != nil {
		t.Fatalf("move back: %v", err)
	}
}

func TestRescheduleLosesRaceToConcurrentBooking(t *testing.T) {
	f := newFixture(appointment("a1", model.StatusScheduled, &counselorA, monday9))
	f.appts.updateErr = storage.ErrSlotTaken
	_, err := f.svc.Reschedule(context.Background(), actorA, "a1", monday10)
	requireKind(t, err, lifecycle.KindConflict)

	f.appts.updateErr = storage.ErrStale
	_, err = f.svc.Start(context.Background(), actorA, "a1")
	requireKind(t, err, lifecycle.KindConflict)

	f.appts.updateErr = errBoom
	_, err = f.svc.ReturnToQueue(context.Background(), actorA, "a1", "sem agenda")
	if !errors.Is(err, errBoom) || lifecycle.KindOf(err) != "" {
		t.Fatalf("expected hard store error, got %v", err)
	}
}

func TestReturnToQueueClearsCounselor(t *testing.T) {
	f := newFixture(appointment("a1", model.StatusInProgress, &counselorA, monday9))
	res, err := f.svc.ReturnToQueue(context.Background(), actorA, "a1", "sem disponibilidade")
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	a := res.Appointment
	if a.Status != model.StatusQueued || a.CounselorID != "" || a.CounselorName != "" || a.CounselorEmail != "" {
		t.Fatalf("expected cleared counselor in queue, got %+v", a)
	}

	queue, err := f.svc.Queue(context.Background(), actorB)
	if err != nil || len(queue) != 1 {
		t.Fatalf("expected the appointment in the queue, got %v (%v)", queue, err)
	}

	claimed, err := f.svc.Claim(context.Background(), actorB, "a1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Appointment.Status != model.StatusPending || claimed.Appointment.CounselorID != counselorB.ID {
		t.Fatalf("unexpected claimed appointment: %+v", claimed.Appointment)
	}
}

func TestTransferKeepsMeetings(t *testing.T) {
	a := appointment("a1", model.StatusScheduled, &counselorA, monday10)
	a.Meetings = []model.Meeting{{ID: "m1", Notes: "primeira conversa", RecordedByID: counselorA.ID}}
	f := newFixture(a)

	res, err := f.svc.Transfer(context.Background(), actorA, "a1", counselorB.ID, "férias")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	got := f.appts.stored("a1")
	if got.CounselorID != counselorB.ID || got.CounselorName != "Bruno" || got.CounselorEmail != "bruno@igreja.org" {
		t.Fatalf("expected counselor B, got %+v", got)
	}
	if got.Status != model.StatusScheduled || len(got.Meetings) != 1 || got.Meetings[0].Notes != "primeira conversa" {
		t.Fatalf("transfer must leave status and meetings alone, got %+v", got)
	}
	last := got.Activities[len(got.Activities)-1]
	if last.Action != model.ActionTransferred || !strings.Contains(last.Details, "Ana") ||
		!strings.Contains(last.Details, "Bruno") || !strings.Contains(last.Details, "férias") {
		t.Fatalf("unexpected transfer activity: %+v", last)
	}
	if len(res.Warnings) != 0 || len(f.notifier.sent) != 0 {
		t.Fatalf("transfer does not notify, got %+v", f.notifier.sent)
	}
}

func TestTransferRefusesBusyTarget(t *testing.T) {
	f := newFixture(
		appointment("a1", model.StatusScheduled, &counselorA, monday9),
		appointment("b1", model.StatusScheduled, &counselorB, monday9),
	)
	_, err := f.svc.Transfer(context.Background(), actorA, "a1", counselorB.ID, "férias")
	requireKind(t, err, lifecycle.KindConflict)

	_, err = f.svc.Transfer(context.Background(), actorA, "a1", "", "férias")
	requireKind(t, err, lifecycle.KindValidation)
}

func TestTransferTargetsExcludeCurrent(t *testing.T) {
	f := newFixture(appointment("a1", model.StatusScheduled, &counselorA, monday9))
	targets, err := f.svc.TransferTargets(context.Background(), actorA, "a1")
	if err != nil {
		t.Fatalf("targets: %v", err)
	}
	if len(targets) != 1 || targets[0].ID != counselorB.ID {
		t.Fatalf("expected only counselor B, got %+v", targets)
	}
}

func TestCancelDefinitivelyDeletes(t *testing.T) {
	f := newFixture(appointment("a1", model.StatusScheduled, &counselorA, monday9))
	if _, err := f.svc.CancelDefinitively(context.Background(), actorA, "a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err := f.svc.Detail(context.Background(), actorA, "a1")
	requireKind(t, err, lifecycle.KindNotFound)
	if f.appts.events[0].EventType != outbox.AppointmentEventType(OpDeleted) {
		t.Fatalf("expected deleted event, got %+v", f.appts.events)
	}
}

func TestSubmitToCounselor(t *testing.T) {
	f := newFixture(appointment("held", model.StatusScheduled, &counselorA, monday9))
	member := model.Actor{ID: "u-9", Role: model.RoleMember, Name: "Maria", Email: "m@x.com", ChurchID: church}
	in := SubmitInput{
		Request: lifecycle.Request{
			MemberName: "Maria", MemberEmail: "m@x.com", Topic: "luto", Date: monday9,
		},
		CounselorID: counselorA.ID,
	}
	_, err := f.svc.Submit(context.Background(), member, in)
	requireKind(t, err, lifecycle.KindConflict)

	in.Date = monday10
	res, err := f.svc.Submit(context.Background(), member, in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Appointment.Status != model.StatusPending || res.Appointment.CounselorID != counselorA.ID {
		t.Fatalf("unexpected appointment: %+v", res.Appointment)
	}
	if f.notifier.count("email") != 1 || f.notifier.sent[0].to != counselorA.Email {
		t.Fatalf("expected counselor email, got %+v", f.notifier.sent)
	}

	queued, err := f.svc.Submit(context.Background(), member, SubmitInput{
		Request: lifecycle.Request{MemberName: "Maria", MemberPhone: "11912345678", Topic: "luto"},
	})
	if err != nil || queued.Appointment.Status != model.StatusQueued {
		t.Fatalf("expected queued request, got %+v (%v)", queued.Appointment, err)
	}
}

func TestDetailHistoryAndMasking(t *testing.T) {
	first := appointment("a1", model.StatusCompleted, &counselorA, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC))
	second := appointment("a2", model.StatusInProgress, &counselorA, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC))
	second.Meetings = []model.Meeting{
		{ID: "m1", Notes: "segredo", RecordedBy: "Ana", RecordedByID: counselorA.ID, IsConfidential: true},
		{ID: "m2", Notes: "aberto", RecordedBy: "Ana", RecordedByID: counselorA.ID},
	}
	f := newFixture(first, second)

	v, err := f.svc.Detail(context.Background(), actorB, "a2")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if v.History == nil || v.History.Number != 2 || v.Label != "2º Atendimento" {
		t.Fatalf("expected second attendance, got %+v", v.History)
	}
	if v.Meetings[0].Notes == "segredo" || v.Meetings[1].Notes != "aberto" {
		t.Fatalf("expected confidential note masked for another counselor, got %+v", v.Meetings)
	}

	own, err := f.svc.Detail(context.Background(), actorA, "a2")
	if err != nil || own.Meetings[0].Notes != "segredo" {
		t.Fatalf("recorder must see the note, got %+v (%v)", own.Meetings, err)
	}
	if f.appts.stored("a2").Meetings[0].Notes != "segredo" {
		t.Fatalf("masking must not touch stored data")
	}

	stranger := model.Actor{ID: "u-1", Role: model.RoleMember, Email: "other@x.com", ChurchID: church}
	_, err = f.svc.Detail(context.Background(), stranger, "a2")
	requireKind(t, err, lifecycle.KindNotFound)
}

func TestListRequiresSupervisor(t *testing.T) {
	f := newFixture(appointment("a1", model.StatusScheduled, &counselorA, monday9))
	_, err := f.svc.List(context.Background(), actorA)
	requireKind(t, err, lifecycle.KindForbidden)

	all, err := f.svc.List(context.Background(), supervisor)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected one appointment, got %v (%v)", all, err)
	}

	mine, err := f.svc.MySchedule(context.Background(), actorB)
	if err != nil || len(mine) != 0 {
		t.Fatalf("expected empty schedule for B, got %v (%v)", mine, err)
	}
}

func TestMeetingsAndWhatsApp(t *testing.T) {
	f := newFixture(appointment("a1", model.StatusScheduled, &counselorA, monday9))
	ctx := context.Background()

	res, err := f.svc.RegisterMeeting(ctx, actorA, "a1", lifecycle.MeetingInput{Notes: "conversa inicial", IsConfidential: true})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	meetingID := res.Appointment.Meetings[0].ID

	_, err = f.svc.EditMeeting(ctx, supervisor, "a1", meetingID, lifecycle.MeetingInput{Notes: "x"})
	requireKind(t, err, lifecycle.KindForbidden)

	if _, err := f.svc.EditMeeting(ctx, actorA, "a1", meetingID, lifecycle.MeetingInput{Notes: "revisado"}); err != nil {
		t.Fatalf("edit: %v", err)
	}

	f.notifier.chatErr = errBoom
	sent, err := f.svc.SendWhatsApp(ctx, actorA, "a1", "Olá Maria, tudo bem?")
	if err != nil {
		t.Fatalf("whatsapp: %v", err)
	}
	if len(sent.Warnings) != 1 {
		t.Fatalf("expected delivery warning, got %v", sent.Warnings)
	}
	stored := f.appts.stored("a1")
	if len(stored.Activities) != 3 || stored.Activities[2].Action != model.ActionWhatsAppContact {
		t.Fatalf("expected three activities ending in whatsapp_contact, got %+v", stored.Activities)
	}
}

func TestUpdateAvailability(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.UpdateAvailability(ctx, actorB, counselorA.ID, map[string][]string{"Segunda": {"09:00"}})
	requireKind(t, err, lifecycle.KindForbidden)

	_, err = f.svc.UpdateAvailability(ctx, actorA, counselorA.ID, map[string][]string{"Funday": {"09:00"}})
	requireKind(t, err, lifecycle.KindValidation)

	_, err = f.svc.UpdateAvailability(ctx, actorA, counselorA.ID, map[string][]string{"Terça": {"25:00"}})
	requireKind(t, err, lifecycle.KindValidation)

	c, err := f.svc.UpdateAvailability(ctx, actorA, counselorA.ID, map[string][]string{
		"terca-feira": {"14:00", "8:00", "14:00"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got := c.Availability.Get(availability.Tuesday)
	if len(got) != 2 || got[0] != "08:00" || got[1] != "14:00" {
		t.Fatalf("unexpected availability: %v", c.Availability)
	}
	if len(c.Availability.Get(availability.Monday)) != 0 {
		t.Fatalf("update replaces the whole map")
	}
}

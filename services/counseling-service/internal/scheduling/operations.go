package scheduling

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/notify"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/outbox"
)

const (
	OpSubmitted       = "submitted"
	OpApproved        = "approved"
	OpRejected        = "rejected"
	OpRescheduled     = "rescheduled"
	OpReturnedToQueue = "returned_to_queue"
	OpCanceled        = "canceled"
	OpDeleted         = "deleted"
	OpTransferred     = "transferred"
	OpClaimed         = "claimed"
	OpAssigned        = "assigned"
	OpStarted         = "started"
	OpStatusOverride  = "status_overridden"
	OpMeetingAdded    = "meeting_added"
	OpMeetingEdited   = "meeting_edited"
	OpContacted       = "contacted"
)

// SubmitInput is a new request. CounselorID and Date are optional; with
// both the request goes straight to that counselor as Pendente.
type SubmitInput struct {
	lifecycle.Request
	CounselorID string
}

func (s *Service) Submit(ctx context.Context, actor model.Actor, in SubmitInput) (Result, error) {
	if in.ChurchID == "" {
		in.ChurchID = actor.ChurchID
	}
	if in.ChurchID != actor.ChurchID {
		return Result{}, lifecycle.Forbiddenf("igreja diferente da do usuário")
	}

	var counselor *model.Counselor
	if in.CounselorID != "" {
		c, err := s.loadCounselor(ctx, in.ChurchID, in.CounselorID)
		if err != nil {
			return Result{}, err
		}
		counselor = c
	}

	a, err := s.machine.Create(in.Request, actor, counselor)
	if err != nil {
		return Result{}, err
	}
	if counselor != nil {
		if err := s.requireFreeSlot(ctx, *counselor, a.Date, ""); err != nil {
			return Result{}, err
		}
	}
	a.Version = 1
	evt, err := outbox.NewAppointmentEvent(OpSubmitted, a.ID, newEventPayload(OpSubmitted, a, actor))
	if err != nil {
		return Result{}, err
	}
	if err := s.appts.Insert(ctx, &a, evt); err != nil {
		return Result{}, s.storeErr(OpSubmitted, err)
	}
	s.committed(OpSubmitted, a, actor)

	res := s.result(actor, a)
	if counselor != nil {
		s.email(ctx, &res, counselor.Email, notify.TemplateNewRequestCounselor, s.messageData(a, time.Time{}, ""))
	}
	return res, nil
}

// Approve confirms a pending request and tells member and counselor.
func (s *Service) Approve(ctx context.Context, actor model.Actor, id string) (Result, error) {
	_, a, err := s.mutate(ctx, actor, id, OpApproved, func(d *model.Appointment) error {
		return s.machine.Approve(d, actor)
	})
	if err != nil {
		return Result{}, err
	}
	res := s.result(actor, a)
	data := s.messageData(a, time.Time{}, "")
	s.email(ctx, &res, a.MemberEmail, notify.TemplateApprovedMember, data)
	s.email(ctx, &res, a.CounselorEmail, notify.TemplateApprovedCounselor, data)
	s.chatCounselor(ctx, &res, a, notify.TemplateApprovedCounselor, data)
	return res, nil
}

// Reject refuses a pending request. It goes back to the queue with its
// counselor fields intact and the member is told by email.
func (s *Service) Reject(ctx context.Context, actor model.Actor, id, reason string) (Result, error) {
	_, a, err := s.mutate(ctx, actor, id, OpRejected, func(d *model.Appointment) error {
		return s.machine.Reject(d, actor, reason)
	})
	if err != nil {
		return Result{}, err
	}
	res := s.result(actor, a)
	s.email(ctx, &res, a.MemberEmail, notify.TemplateRejectedMember, s.messageData(a, time.Time{}, a.RejectionReason))
	return res, nil
}

// Reschedule moves a confirmed appointment to another free slot of the
// same counselor. The slot is checked again right before the write.
func (s *Service) Reschedule(ctx context.Context, actor model.Actor, id string, to time.Time) (Result, error) {
	before, a, err := s.mutate(ctx, actor, id, OpRescheduled, func(d *model.Appointment) error {
		if err := s.machine.Reschedule(d, actor, to); err != nil {
			return err
		}
		counselor, err := s.loadCounselor(ctx, d.ChurchID, d.CounselorID)
		if err != nil {
			return err
		}
		return s.requireFreeSlot(ctx, *counselor, to, d.ID)
	})
	if err != nil {
		return Result{}, err
	}
	res := s.result(actor, a)
	data := s.messageData(a, before.Date, "")
	s.email(ctx, &res, a.MemberEmail, notify.TemplateRescheduledMember, data)
	s.email(ctx, &res, a.CounselorEmail, notify.TemplateRescheduledCounselor, data)
	return res, nil
}

// ReturnToQueue hands a confirmed appointment back to the unassigned queue.
func (s *Service) ReturnToQueue(ctx context.Context, actor model.Actor, id, reason string) (Result, error) {
	_, a, err := s.mutate(ctx, actor, id, OpReturnedToQueue, func(d *model.Appointment) error {
		return s.machine.ReturnToQueue(d, actor, reason)
	})
	if err != nil {
		return Result{}, err
	}
	return s.result(actor, a), nil
}

// Cancel is irreversible; member and the counselor who held it are told.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id, reason string) (Result, error) {
	_, a, err := s.mutate(ctx, actor, id, OpCanceled, func(d *model.Appointment) error {
		return s.machine.Cancel(d, actor, reason)
	})
	if err != nil {
		return Result{}, err
	}
	res := s.result(actor, a)
	data := s.messageData(a, time.Time{}, a.CancellationReason)
	s.email(ctx, &res, a.MemberEmail, notify.TemplateCanceledMember, data)
	s.email(ctx, &res, a.CounselorEmail, notify.TemplateCanceledCounselor, data)
	return res, nil
}

// CancelDefinitively deletes the record. Nothing is notified and the
// returned Result carries the last stored state.
func (s *Service) CancelDefinitively(ctx context.Context, actor model.Actor, id string) (Result, error) {
	current, err := s.load(ctx, actor, id)
	if err != nil {
		return Result{}, err
	}
	if err := s.machine.CancelDefinitively(current, actor); err != nil {
		return Result{}, err
	}
	evt, err := outbox.NewAppointmentEvent(OpDeleted, current.ID, newEventPayload(OpDeleted, *current, actor))
	if err != nil {
		return Result{}, err
	}
	if err := s.appts.Delete(ctx, current.ChurchID, current.ID, current.Version, evt); err != nil {
		return Result{}, s.storeErr(OpDeleted, err)
	}
	s.committed(OpDeleted, *current, actor)
	return s.result(actor, *current), nil
}

// Transfer reassigns a confirmed appointment to another counselor of the
// same church who is free at that time. Only the audit trail records it.
func (s *Service) Transfer(ctx context.Context, actor model.Actor, id, toCounselorID, reason string) (Result, error) {
	if toCounselorID == "" {
		return Result{}, lifecycle.Validationf("transferir: selecione o conselheiro de destino")
	}
	target, err := s.loadCounselor(ctx, actor.ChurchID, toCounselorID)
	if err != nil {
		return Result{}, err
	}
	_, a, err := s.mutate(ctx, actor, id, OpTransferred, func(d *model.Appointment) error {
		if err := s.machine.Transfer(d, actor, *target, reason); err != nil {
			return err
		}
		return s.requireNoCollision(ctx, *target, d.Date, d.ID)
	})
	if err != nil {
		return Result{}, err
	}
	return s.result(actor, a), nil
}

// Claim lets the acting counselor take a queued request.
func (s *Service) Claim(ctx context.Context, actor model.Actor, id string) (Result, error) {
	counselor, err := s.loadCounselor(ctx, actor.ChurchID, actor.ID)
	if err != nil {
		if lifecycle.IsKind(err, lifecycle.KindNotFound) {
			return Result{}, lifecycle.Forbiddenf("apenas conselheiros podem assumir atendimentos")
		}
		return Result{}, err
	}
	return s.assignTo(ctx, actor, id, *counselor, OpClaimed, func(d *model.Appointment) error {
		return s.machine.Claim(d, actor, *counselor)
	})
}

// Assign is the supervisor's way of routing a queued or pending request.
func (s *Service) Assign(ctx context.Context, actor model.Actor, id, counselorID string) (Result, error) {
	counselor, err := s.loadCounselor(ctx, actor.ChurchID, counselorID)
	if err != nil {
		return Result{}, err
	}
	return s.assignTo(ctx, actor, id, *counselor, OpAssigned, func(d *model.Appointment) error {
		return s.machine.Assign(d, actor, *counselor)
	})
}

func (s *Service) assignTo(ctx context.Context, actor model.Actor, id string, counselor model.Counselor, op string, transition func(*model.Appointment) error) (Result, error) {
	_, a, err := s.mutate(ctx, actor, id, op, func(d *model.Appointment) error {
		if err := transition(d); err != nil {
			return err
		}
		return s.requireNoCollision(ctx, counselor, d.Date, d.ID)
	})
	if err != nil {
		return Result{}, err
	}
	res := s.result(actor, a)
	if a.HasValidDate() && !counselor.Identifies(actor) {
		s.email(ctx, &res, counselor.Email, notify.TemplateNewRequestCounselor, s.messageData(a, time.Time{}, ""))
	}
	return res, nil
}

func (s *Service) Start(ctx context.Context, actor model.Actor, id string) (Result, error) {
	_, a, err := s.mutate(ctx, actor, id, OpStarted, func(d *model.Appointment) error {
		return s.machine.Start(d, actor)
	})
	if err != nil {
		return Result{}, err
	}
	return s.result(actor, a), nil
}

// SetStatus is the manual status dropdown. It bypasses the transition table
// but still writes one activity.
func (s *Service) SetStatus(ctx context.Context, actor model.Actor, id string, to model.Status) (Result, error) {
	_, a, err := s.mutate(ctx, actor, id, OpStatusOverride, func(d *model.Appointment) error {
		return s.machine.Override(d, actor, to)
	})
	if err != nil {
		return Result{}, err
	}
	return s.result(actor, a), nil
}

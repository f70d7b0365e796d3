package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/scheduling"
	"github.com/segmentio/kafka-go"
)

const SourceIntake = "intake"

// IntakeRequest is a counseling request forwarded by the welcome pipeline.
type IntakeRequest struct {
	ChurchID            string `json:"church_id"`
	MemberName          string `json:"member_name"`
	MemberEmail         string `json:"member_email"`
	MemberPhone         string `json:"member_phone"`
	MemberAge           string `json:"member_age"`
	MemberMaritalStatus string `json:"member_marital_status"`
	Topic               string `json:"topic"`
	Details             string `json:"details"`
	CounselorID         string `json:"counselor_id"`
	Date                string `json:"date"`
	ForwardedBy         string `json:"forwarded_by"`
}

type Submitter interface {
	Submit(ctx context.Context, actor model.Actor, in scheduling.SubmitInput) (scheduling.Result, error)
}

// IntakeHandler turns intake messages into submitted requests. Naive dates
// are read in loc. When the preferred counselor cannot take the request
// (unknown, inactive, unavailable or already booked) the request is
// resubmitted without a counselor and lands in the queue.
func IntakeHandler(svc Submitter, loc *time.Location, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var req IntakeRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			return lifecycle.Validationf("intake: payload inválido: %v", err)
		}
		in := scheduling.SubmitInput{
			Request: lifecycle.Request{
				ChurchID:            req.ChurchID,
				MemberName:          req.MemberName,
				MemberEmail:         req.MemberEmail,
				MemberPhone:         req.MemberPhone,
				MemberAge:           req.MemberAge,
				MemberMaritalStatus: req.MemberMaritalStatus,
				Topic:               req.Topic,
				Details:             req.Details,
				Source:              SourceIntake,
			},
			CounselorID: strings.TrimSpace(req.CounselorID),
		}
		if req.Date != "" {
			at, ok := model.ParseDate(req.Date, loc)
			if !ok {
				return lifecycle.Validationf("intake: data inválida %q", req.Date)
			}
			in.Date = at
		}
		if in.CounselorID != "" && in.Date.IsZero() {
			// Without a time the counselor preference cannot be honored.
			in.CounselorID = ""
		}
		name := strings.TrimSpace(req.ForwardedBy)
		if name == "" {
			name = "Integração"
		}
		actor := model.Actor{ID: SourceIntake, Name: name, ChurchID: req.ChurchID}
		_, err := svc.Submit(ctx, actor, in)
		if err == nil || in.CounselorID == "" || !preferenceFailed(err) {
			return err
		}
		logger.Info("intake preference not honored; queueing request",
			"church_id", req.ChurchID, "counselor_id", in.CounselorID, "err", err)
		in.CounselorID = ""
		in.Date = time.Time{}
		_, err = svc.Submit(ctx, actor, in)
		return err
	}
}

func preferenceFailed(err error) bool {
	switch lifecycle.KindOf(err) {
	case lifecycle.KindValidation, lifecycle.KindConflict, lifecycle.KindNotFound:
		return true
	}
	return false
}

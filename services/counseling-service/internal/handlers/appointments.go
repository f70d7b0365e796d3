package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/pastoralcare/libs/httpx"
	otelx "github.com/md-rashed-zaman/pastoralcare/libs/otel"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/scheduling"
)

type submitRequest struct {
	MemberName          string `json:"memberName"`
	MemberEmail         string `json:"memberEmail"`
	MemberPhone         string `json:"memberPhone"`
	MemberAge           string `json:"memberAge"`
	MemberMaritalStatus string `json:"memberMaritalStatus"`
	Topic               string `json:"topic"`
	Details             string `json:"details"`
	Date                string `json:"date"`
	CounselorID         string `json:"counselorId"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type rescheduleRequest struct {
	Date string `json:"date"`
}

type transferRequest struct {
	CounselorID string `json:"counselorId"`
	Reason      string `json:"reason"`
}

type assignRequest struct {
	CounselorID string `json:"counselorId"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type meetingRequest struct {
	Date           string `json:"date"`
	Topic          string `json:"topic"`
	Notes          string `json:"notes"`
	NextSteps      string `json:"nextSteps"`
	IsConfidential bool   `json:"isConfidential"`
}

type whatsAppRequest struct {
	Message string `json:"message"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := h.optionalDate(w, req.Date)
	if !ok {
		return
	}
	actor := actorFrom(r.Context())
	res, err := h.svc.Submit(r.Context(), actor, scheduling.SubmitInput{
		Request: lifecycle.Request{
			ChurchID:            actor.ChurchID,
			MemberName:          req.MemberName,
			MemberEmail:         req.MemberEmail,
			MemberPhone:         req.MemberPhone,
			MemberAge:           req.MemberAge,
			MemberMaritalStatus: req.MemberMaritalStatus,
			Topic:               req.Topic,
			Details:             req.Details,
			Date:                date,
			Source:              "web",
		},
		CounselorID: strings.TrimSpace(req.CounselorID),
	})
	h.writeResult(w, r, http.StatusCreated, res, err)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.List(r.Context(), actorFrom(r.Context()))
	h.writeList(w, r, views, err)
}

func (h *Handler) queue(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.Queue(r.Context(), actorFrom(r.Context()))
	h.writeList(w, r, views, err)
}

func (h *Handler) mySchedule(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.MySchedule(r.Context(), actorFrom(r.Context()))
	h.writeList(w, r, views, err)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Detail(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Approve(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Reject(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], req.Reason)
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	to, ok := h.optionalDate(w, req.Date)
	if !ok {
		return
	}
	res, err := h.svc.Reschedule(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], to)
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) returnToQueue(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.ReturnToQueue(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], req.Reason)
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Cancel(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], req.Reason)
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) cancelDefinitively(w http.ResponseWriter, r *http.Request) {
	_, err := h.svc.CancelDefinitively(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Transfer(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], strings.TrimSpace(req.CounselorID), req.Reason)
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) transferTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.svc.TransferTargets(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if targets == nil {
		targets = []model.Counselor{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"counselors": targets})
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Claim(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Assign(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], strings.TrimSpace(req.CounselorID))
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Start(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.SetStatus(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], model.Status(req.Status))
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) meetingInput(w http.ResponseWriter, r *http.Request) (lifecycle.MeetingInput, bool) {
	var req meetingRequest
	if !h.decode(w, r, &req) {
		return lifecycle.MeetingInput{}, false
	}
	date, ok := h.optionalDate(w, req.Date)
	if !ok {
		return lifecycle.MeetingInput{}, false
	}
	return lifecycle.MeetingInput{
		Date:           date,
		Topic:          req.Topic,
		Notes:          req.Notes,
		NextSteps:      req.NextSteps,
		IsConfidential: req.IsConfidential,
	}, true
}

func (h *Handler) registerMeeting(w http.ResponseWriter, r *http.Request) {
	in, ok := h.meetingInput(w, r)
	if !ok {
		return
	}
	res, err := h.svc.RegisterMeeting(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], in)
	h.writeResult(w, r, http.StatusCreated, res, err)
}

func (h *Handler) editMeeting(w http.ResponseWriter, r *http.Request) {
	in, ok := h.meetingInput(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	res, err := h.svc.EditMeeting(r.Context(), actorFrom(r.Context()), vars["id"], vars["meetingID"], in)
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) sendWhatsApp(w http.ResponseWriter, r *http.Request) {
	var req whatsAppRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.SendWhatsApp(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], req.Message)
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) changes(w http.ResponseWriter, r *http.Request) {
	if !httpx.IsWebSocketUpgrade(r) {
		httpx.WriteError(w, http.StatusBadRequest, string(lifecycle.KindValidation), "websocket upgrade required")
		return
	}
	h.feed.Serve(w, r, actorFrom(r.Context()).ChurchID)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(lifecycle.KindValidation), err.Error())
		return false
	}
	return true
}

// optionalDate parses s in the church zone. Empty is the zero time.
func (h *Handler) optionalDate(w http.ResponseWriter, s string) (time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, true
	}
	t, ok := model.ParseDate(s, h.loc)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, string(lifecycle.KindValidation), "data inválida: "+s)
		return time.Time{}, false
	}
	return t, true
}

func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, status int, res scheduling.Result, err error) {
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	httpx.WriteJSON(w, status, res)
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request, views []scheduling.View, err error) {
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if views == nil {
		views = []scheduling.View{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": views})
}

var kindStatus = map[lifecycle.Kind]int{
	lifecycle.KindValidation: http.StatusBadRequest,
	lifecycle.KindForbidden:  http.StatusForbidden,
	lifecycle.KindNotFound:   http.StatusNotFound,
	lifecycle.KindConflict:   http.StatusConflict,
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var le *lifecycle.Error
	if errors.As(err, &le) {
		httpx.WriteError(w, kindStatus[le.Kind], string(le.Kind), le.Msg)
		return
	}
	h.logger.Error("request failed",
		"err", err,
		"path", r.URL.Path,
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"trace_id", otelx.TraceID(r.Context()),
	)
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "erro interno; tente novamente")
}

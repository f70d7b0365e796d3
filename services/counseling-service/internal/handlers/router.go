package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/pastoralcare/libs/auth"
	"github.com/md-rashed-zaman/pastoralcare/libs/httpx"
	"github.com/md-rashed-zaman/pastoralcare/libs/metrics"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/availability"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/scheduling"
)

// Scheduler is the operation surface the HTTP layer drives.
type Scheduler interface {
	Submit(ctx context.Context, actor model.Actor, in scheduling.SubmitInput) (scheduling.Result, error)
	Approve(ctx context.Context, actor model.Actor, id string) (scheduling.Result, error)
	Reject(ctx context.Context, actor model.Actor, id, reason string) (scheduling.Result, error)
	Reschedule(ctx context.Context, actor model.Actor, id string, to time.Time) (scheduling.Result, error)
	ReturnToQueue(ctx context.Context, actor model.Actor, id, reason string) (scheduling.Result, error)
	Cancel(ctx context.Context, actor model.Actor, id, reason string) (scheduling.Result, error)
	CancelDefinitively(ctx context.Context, actor model.Actor, id string) (scheduling.Result, error)
	Transfer(ctx context.Context, actor model.Actor, id, toCounselorID, reason string) (scheduling.Result, error)
	Claim(ctx context.Context, actor model.Actor, id string) (scheduling.Result, error)
	Assign(ctx context.Context, actor model.Actor, id, counselorID string) (scheduling.Result, error)
	Start(ctx context.Context, actor model.Actor, id string) (scheduling.Result, error)
	SetStatus(ctx context.Context, actor model.Actor, id string, to model.Status) (scheduling.Result, error)
	RegisterMeeting(ctx context.Context, actor model.Actor, id string, in lifecycle.MeetingInput) (scheduling.Result, error)
	EditMeeting(ctx context.Context, actor model.Actor, id, meetingID string, in lifecycle.MeetingInput) (scheduling.Result, error)
	SendWhatsApp(ctx context.Context, actor model.Actor, id, text string) (scheduling.Result, error)

	Slots(ctx context.Context, actor model.Actor, counselorID string, date time.Time) ([]availability.Slot, error)
	TransferTargets(ctx context.Context, actor model.Actor, id string) ([]model.Counselor, error)
	Counselors(ctx context.Context, actor model.Actor) ([]model.Counselor, error)
	UpdateAvailability(ctx context.Context, actor model.Actor, counselorID string, weekly map[string][]string) (model.Counselor, error)
	Queue(ctx context.Context, actor model.Actor) ([]scheduling.View, error)
	List(ctx context.Context, actor model.Actor) ([]scheduling.View, error)
	MySchedule(ctx context.Context, actor model.Actor) ([]scheduling.View, error)
	Detail(ctx context.Context, actor model.Actor, id string) (scheduling.View, error)
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

type Feed interface {
	Serve(w http.ResponseWriter, r *http.Request, churchID string)
}

type Config struct {
	Scheduler Scheduler
	Verifier  TokenVerifier
	Feed      Feed
	Metrics   *metrics.Collector
	Logger    *slog.Logger
	// Location is used to read naive dates sent by clients.
	Location *time.Location
}

type Handler struct {
	svc      Scheduler
	verifier TokenVerifier
	feed     Feed
	metrics  *metrics.Collector
	logger   *slog.Logger
	loc      *time.Location
}

const prefix = "/api/v1/counseling"

// NewRouter mounts every counseling endpoint behind bearer authentication.
func NewRouter(cfg Config) *mux.Router {
	h := &Handler{
		svc:      cfg.Scheduler,
		verifier: cfg.Verifier,
		feed:     cfg.Feed,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		loc:      cfg.Location,
	}
	if h.loc == nil {
		h.loc = time.Local
	}

	r := mux.NewRouter()
	r.Use(h.observe)
	api := r.PathPrefix(prefix).Subrouter()
	api.Use(h.requireAuth)

	api.HandleFunc("/appointments", h.submit).Methods(http.MethodPost)
	api.HandleFunc("/appointments", h.list).Methods(http.MethodGet)
	api.HandleFunc("/appointments/queue", h.queue).Methods(http.MethodGet)
	api.HandleFunc("/appointments/mine", h.mySchedule).Methods(http.MethodGet)
	api.HandleFunc("/appointments/{id}", h.detail).Methods(http.MethodGet)
	api.HandleFunc("/appointments/{id}", h.cancelDefinitively).Methods(http.MethodDelete)
	api.HandleFunc("/appointments/{id}/approve", h.approve).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}/reject", h.reject).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}/reschedule", h.reschedule).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}/return", h.returnToQueue).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}/cancel", h.cancel).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}/transfer", h.transfer).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}/transfer-targets", h.transferTargets).Methods(http.MethodGet)
	api.HandleFunc("/appointments/{id}/claim", h.claim).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}/assign", h.assign).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}/start", h.start).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}/status", h.setStatus).Methods(http.MethodPut)
	api.HandleFunc("/appointments/{id}/meetings", h.registerMeeting).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}/meetings/{meetingID}", h.editMeeting).Methods(http.MethodPut)
	api.HandleFunc("/appointments/{id}/whatsapp", h.sendWhatsApp).Methods(http.MethodPost)
	api.HandleFunc("/counselors", h.counselors).Methods(http.MethodGet)
	api.HandleFunc("/counselors/{id}/slots", h.slots).Methods(http.MethodGet)
	api.HandleFunc("/counselors/{id}/availability", h.updateAvailability).Methods(http.MethodPut)
	if h.feed != nil {
		api.HandleFunc("/changes", h.changes).Methods(http.MethodGet)
	}
	return r
}

// observe records request metrics labeled with the route template.
func (h *Handler) observe(next http.Handler) http.Handler {
	if h.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw, status := httpx.RecordStatus(w)
		next.ServeHTTP(rw, r)
		route := ""
		if cur := mux.CurrentRoute(r); cur != nil {
			route, _ = cur.GetPathTemplate()
		}
		h.metrics.ObserveRequest(r.Method, route, status(), time.Since(start))
	})
}

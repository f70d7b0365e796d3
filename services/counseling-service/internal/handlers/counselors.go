package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/pastoralcare/libs/httpx"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/availability"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
)

type availabilityRequest struct {
	Availability map[string][]string `json:"availability"`
}

func (h *Handler) counselors(w http.ResponseWriter, r *http.Request) {
	roster, err := h.svc.Counselors(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if roster == nil {
		roster = []model.Counselor{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"counselors": roster})
}

// slots expects ?date=YYYY-MM-DD, read as a day in the church zone.
func (h *Handler) slots(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	day, err := time.ParseInLocation("2006-01-02", raw, h.loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(lifecycle.KindValidation), "date deve estar no formato AAAA-MM-DD")
		return
	}
	slots, err := h.svc.Slots(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], day)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if slots == nil {
		slots = []availability.Slot{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"date": raw, "slots": slots})
}

func (h *Handler) updateAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.svc.UpdateAvailability(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"], req.Availability)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

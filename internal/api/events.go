package api

import (
	"net/http"

	"github.com/LeventeLantos/event-messaging/internal/service"
)

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	ev, err := h.events.CreateEvent(r.Context(), service.NewEvent{
		WorkspaceID:    req.WorkspaceID,
		Title:          req.Title,
		Date:           req.Date,
		TimeStr:        req.TimeStr,
		Venue:          req.Venue,
		InviteImageURL: req.InviteImageURL,
		Timezone:       req.Timezone,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) AddGuest(w http.ResponseWriter, r *http.Request) {
	var req addGuestRequest
	if !h.decode(w, r, &req) {
		return
	}

	g, err := h.events.AddGuest(r.Context(), r.PathValue("id"), service.NewGuest{
		Name:     req.Name,
		Phone:    req.Phone,
		Relation: req.Relation,
		Side:     req.Side,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

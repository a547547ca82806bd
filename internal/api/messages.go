package api

import (
	"net/http"
	"time"

	"github.com/LeventeLantos/event-messaging/internal/model"
	"github.com/LeventeLantos/event-messaging/internal/service"
)

func (h *Handler) SendNow(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.messages.CreateAndDispatchNow(r.Context(), service.SendRequest{
		EventID:  r.PathValue("id"),
		BodyText: req.BodyText,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	var at time.Time
	if req.ScheduledAt != nil {
		at = *req.ScheduledAt
	}

	res, err := h.messages.CreateAndSchedule(r.Context(), service.SendRequest{
		EventID:  r.PathValue("id"),
		BodyText: req.BodyText,
		ImageURL: req.ImageURL,
	}, at)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) ListEventMessages(w http.ResponseWriter, r *http.Request) {
	items, err := h.messages.ListEventMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messages.GetMessage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

package api

import (
	"net/http"

	"github.com/LeventeLantos/event-messaging/internal/model"
)

func (h *Handler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if !h.decode(w, r, &req) {
		return
	}

	ws, err := h.workspaces.CreateWorkspace(r.Context(), req.Name, req.OwnerPhone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspaces.GetWorkspace(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *Handler) AddCredits(w http.ResponseWriter, r *http.Request) {
	var req addCreditsRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.workspaces.AddCredits(r.Context(), r.PathValue("id"), req.Amount, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry":   entry,
		"balance": entry.BalanceAfter,
	})
}

func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.workspaces.ListLedger(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) SetActiveEvent(w http.ResponseWriter, r *http.Request) {
	var req setActiveEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	ws, err := h.workspaces.SetActiveEvent(r.Context(), r.PathValue("id"), req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

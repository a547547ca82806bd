package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/LeventeLantos/event-messaging/internal/model"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient_credits"},
	{model.ErrWorkspaceNotFound, http.StatusNotFound, "workspace_not_found"},
	{model.ErrEventNotFound, http.StatusNotFound, "event_not_found"},
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
	{model.ErrDuplicateGuest, http.StatusConflict, "duplicate_guest"},
	{model.ErrNoPendingGuests, http.StatusBadRequest, "no_pending_guests"},
	{model.ErrInvalidSchedule, http.StatusBadRequest, "invalid_schedule"},
	{model.ErrInvalidBody, http.StatusBadRequest, "invalid_body"},
	{model.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{model.ErrInvalidPhone, http.StatusBadRequest, "invalid_phone"},
	{model.ErrEventNotInWorkspace, http.StatusBadRequest, "event_not_in_workspace"},
}

// writeError maps domain errors to a status and a stable code. Anything
// unrecognized is logged and reported as internal_error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeJSON(w, e.status, errorBody{Error: e.code, Message: err.Error()})
			return
		}
	}

	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
}

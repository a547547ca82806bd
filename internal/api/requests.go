package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type createWorkspaceRequest struct {
	Name       string `json:"name" validate:"required,max=200"`
	OwnerPhone string `json:"ownerPhone" validate:"omitempty,max=32"`
}

type addCreditsRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"omitempty,oneof=manual_topup purchase"`
}

type setActiveEventRequest struct {
	EventID string `json:"eventId" validate:"required"`
}

type createEventRequest struct {
	WorkspaceID    string     `json:"workspaceId" validate:"required"`
	Title          string     `json:"title" validate:"required,max=200"`
	Date           *time.Time `json:"date"`
	TimeStr        *string    `json:"timeStr" validate:"omitempty,max=32"`
	Venue          *string    `json:"venue" validate:"omitempty,max=300"`
	InviteImageURL *string    `json:"inviteImageUrl" validate:"omitempty,max=2048"`
	Timezone       *string    `json:"timezone" validate:"omitempty,max=64"`
}

type addGuestRequest struct {
	Name     string  `json:"name" validate:"required,max=200"`
	Phone    string  `json:"phone" validate:"required,max=32"`
	Relation *string `json:"relation" validate:"omitempty,max=100"`
	Side     *string `json:"side" validate:"omitempty,max=100"`
}

type sendMessageRequest struct {
	BodyText string `json:"bodyText"`
	ImageURL string `json:"imageUrl" validate:"omitempty,max=2048"`
}

type scheduleMessageRequest struct {
	BodyText    string     `json:"bodyText"`
	ImageURL    string     `json:"imageUrl" validate:"omitempty,max=2048"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

// decode reads a JSON body into dst and validates it, writing a 400 and
// returning false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json", Message: err.Error()})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Message: describeValidation(err)})
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

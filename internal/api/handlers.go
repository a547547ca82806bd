package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/LeventeLantos/event-messaging/internal/scheduler"
	"github.com/LeventeLantos/event-messaging/internal/service"
	"github.com/LeventeLantos/event-messaging/internal/webhook"
)

const maxBodyBytes = 1 << 20

type Deps struct {
	Scheduler  *scheduler.Scheduler
	Workspaces *service.Workspaces
	Events     *service.Events
	Messages   *service.Messages
	Webhook    *webhook.Processor

	// WebhookTimeout bounds processing of one webhook delivery.
	WebhookTimeout time.Duration
}

type Handler struct {
	sched      *scheduler.Scheduler
	workspaces *service.Workspaces
	events     *service.Events
	messages   *service.Messages
	webhook    *webhook.Processor

	webhookTimeout time.Duration
	validate       *validator.Validate
}

func NewHandler(d Deps) *Handler {
	if d.WebhookTimeout <= 0 {
		d.WebhookTimeout = 30 * time.Second
	}
	return &Handler{
		sched:          d.Scheduler,
		workspaces:     d.Workspaces,
		events:         d.Events,
		messages:       d.Messages,
		webhook:        d.Webhook,
		webhookTimeout: d.WebhookTimeout,
		validate:       validator.New(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.schedulerState())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, h.schedulerState())
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, h.schedulerState())
}

func (h *Handler) schedulerState() map[string]any {
	return map[string]any{
		"running":  h.sched.IsRunning(),
		"interval": h.sched.Interval().String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)

	mux.HandleFunc("POST /v1/workspaces", h.CreateWorkspace)
	mux.HandleFunc("GET /v1/workspaces/{id}", h.GetWorkspace)
	mux.HandleFunc("POST /v1/workspaces/{id}/credits", h.AddCredits)
	mux.HandleFunc("GET /v1/workspaces/{id}/ledger", h.ListLedger)
	mux.HandleFunc("POST /v1/workspaces/{id}/active-event", h.SetActiveEvent)

	mux.HandleFunc("POST /v1/events", h.CreateEvent)
	mux.HandleFunc("GET /v1/events/{id}", h.GetEvent)
	mux.HandleFunc("POST /v1/events/{id}/guests", h.AddGuest)
	mux.HandleFunc("POST /v1/events/{id}/messages/send-now", h.SendNow)
	mux.HandleFunc("POST /v1/events/{id}/messages/schedule", h.Schedule)
	mux.HandleFunc("GET /v1/events/{id}/messages", h.ListEventMessages)

	mux.HandleFunc("GET /v1/messages/{id}", h.GetMessage)

	mux.HandleFunc("GET /webhooks/whatsapp", h.VerifyWebhook)
	mux.HandleFunc("POST /webhooks/whatsapp", h.ReceiveWebhook)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("event-messaging"))
	})

	return mux
}

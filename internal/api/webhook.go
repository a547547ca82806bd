package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/LeventeLantos/event-messaging/internal/webhook"
)

func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := h.webhook.Verify(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// ReceiveWebhook acknowledges any well-formed delivery with 200. Processing
// failures are logged, not returned, so the provider does not redeliver.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_body", Message: err.Error()})
		return
	}

	if !h.webhook.VerifySignature(body, r.Header.Get(webhook.SignatureHeader)) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid_signature"})
		return
	}

	var payload webhook.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json", Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.webhookTimeout)
	defer cancel()

	report := h.webhook.Process(ctx, &payload)
	slog.Info("webhook processed",
		"messages", report.Messages,
		"guests_added", report.GuestsAdded,
		"guest_duplicates", report.GuestDuplicates,
		"statuses_applied", report.StatusesApplied,
	)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

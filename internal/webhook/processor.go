// Package webhook reconciles inbound WhatsApp traffic with stored state:
// contact shares become guests, "set <keyword>" switches the active event and
// delivery statuses advance message targets.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/event-messaging/internal/client"
	"github.com/LeventeLantos/event-messaging/internal/model"
)

const (
	replyNoActiveEvent = "No active event found for importing contacts. Create an event and set it as active."
	replyImported      = "Added %d contacts to the event.\nDuplicates: %d."
	replyActiveSet     = "Active event updated: %s"
	replyNoMatch       = "No event matches the keyword: %s"
)

type Store interface {
	GetWorkspace(ctx context.Context, id string) (*model.Workspace, error)
	FindWorkspaceByOwnerPhone(ctx context.Context, phone string) (*model.Workspace, error)
	SetActiveEvent(ctx context.Context, workspaceID, eventID string) error
	AdoptActiveEvent(ctx context.Context, workspaceID, eventID string) (bool, error)

	LatestEvent(ctx context.Context, workspaceID string) (*model.Event, error)
	FindEventByKeyword(ctx context.Context, workspaceID, keyword string) (*model.Event, error)
	CreateGuest(ctx context.Context, g *model.Guest) (bool, error)

	ApplyTargetStatus(ctx context.Context, providerMessageID string, status model.TargetStatus, at time.Time) (bool, error)
}

type Config struct {
	VerifyToken string
	AppSecret   string
	Now         func() time.Time
}

type Processor struct {
	store   Store
	replier client.Sender

	verifyToken string
	appSecret   string
	now         func() time.Time
}

// Report summarizes one Process call.
type Report struct {
	Messages        int `json:"messages"`
	Ignored         int `json:"ignored"`
	GuestsAdded     int `json:"guestsAdded"`
	GuestDuplicates int `json:"guestDuplicates"`
	ActiveEventSet  int `json:"activeEventSet"`
	StatusesApplied int `json:"statusesApplied"`
	StatusesSkipped int `json:"statusesSkipped"`
}

func NewProcessor(store Store, replier client.Sender, cfg Config) *Processor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Processor{
		store:       store,
		replier:     replier,
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		now:         cfg.Now,
	}
}

// Verify answers the subscription handshake. An unset verify token rejects
// every request.
func (p *Processor) Verify(mode, token, challenge string) (string, bool) {
	if p.verifyToken == "" || mode != "subscribe" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(p.verifyToken)) != 1 {
		return "", false
	}
	return challenge, true
}

// VerifySignature accepts everything when no app secret is configured.
func (p *Processor) VerifySignature(body []byte, header string) bool {
	if p.appSecret == "" {
		return true
	}
	return ValidSignature(p.appSecret, body, header)
}

// Process applies every message and status in the payload. Failures are
// logged per item and never abort the rest.
func (p *Processor) Process(ctx context.Context, payload *Payload) Report {
	var r Report
	for _, entry := range payload.Entry {
		for _, ch := range entry.Changes {
			for _, m := range ch.Value.Messages {
				r.Messages++
				p.handleMessage(ctx, m, &r)
			}
			for _, st := range ch.Value.Statuses {
				if p.applyStatus(ctx, st) {
					r.StatusesApplied++
				} else {
					r.StatusesSkipped++
				}
			}
		}
	}
	return r
}

func (p *Processor) handleMessage(ctx context.Context, m InboundMessage, r *Report) {
	from := model.NormalizePhone(m.From)
	if from == "" {
		r.Ignored++
		return
	}

	ws, err := p.store.FindWorkspaceByOwnerPhone(ctx, from)
	if errors.Is(err, model.ErrWorkspaceNotFound) {
		r.Ignored++
		return
	}
	if err != nil {
		slog.Error("webhook: find workspace", "from", from, "err", err)
		return
	}

	eventID, err := p.resolveEvent(ctx, ws)
	if errors.Is(err, model.ErrEventNotFound) {
		p.reply(ctx, from, replyNoActiveEvent)
		return
	}
	if err != nil {
		slog.Error("webhook: resolve event", "workspace_id", ws.ID, "err", err)
		return
	}

	switch m.Type {
	case "contacts":
		added, dups := p.importContacts(ctx, eventID, m.Contacts)
		r.GuestsAdded += added
		r.GuestDuplicates += dups
		p.reply(ctx, from, fmt.Sprintf(replyImported, added, dups))
	case "text":
		if m.Text == nil {
			return
		}
		if keyword, ok := setCommand(m.Text.Body); ok {
			if p.setActive(ctx, ws.ID, from, keyword) {
				r.ActiveEventSet++
			}
		}
	}
}

// resolveEvent returns the workspace's active event, adopting the newest event
// when none is active.
func (p *Processor) resolveEvent(ctx context.Context, ws *model.Workspace) (string, error) {
	if ws.ActiveEventID != nil {
		return *ws.ActiveEventID, nil
	}

	latest, err := p.store.LatestEvent(ctx, ws.ID)
	if err != nil {
		return "", err
	}

	adopted, err := p.store.AdoptActiveEvent(ctx, ws.ID, latest.ID)
	if err != nil {
		return "", fmt.Errorf("adopt active event: %w", err)
	}
	if adopted {
		return latest.ID, nil
	}

	// Someone else set an active event in between.
	cur, err := p.store.GetWorkspace(ctx, ws.ID)
	if err != nil {
		return "", err
	}
	if cur.ActiveEventID == nil {
		return latest.ID, nil
	}
	return *cur.ActiveEventID, nil
}

func (p *Processor) importContacts(ctx context.Context, eventID string, contacts []SharedContact) (added, duplicates int) {
	now := p.now().UTC()
	for _, c := range contacts {
		name := c.displayName()
		for _, ph := range c.Phones {
			phone := model.NormalizePhone(ph.Phone)
			if phone == "" {
				continue
			}
			created, err := p.store.CreateGuest(ctx, &model.Guest{
				ID:        uuid.NewString(),
				EventID:   eventID,
				Name:      name,
				Phone:     phone,
				Status:    model.GuestPending,
				CreatedAt: now,
			})
			if err != nil {
				slog.Error("webhook: create guest", "event_id", eventID, "phone", phone, "err", err)
				continue
			}
			if created {
				added++
			} else {
				duplicates++
			}
		}
	}
	return added, duplicates
}

func setCommand(body string) (string, bool) {
	t := strings.TrimSpace(body)
	if len(t) < 4 || !strings.EqualFold(t[:4], "set ") {
		return "", false
	}
	keyword := strings.TrimSpace(t[4:])
	return keyword, keyword != ""
}

func (p *Processor) setActive(ctx context.Context, workspaceID, from, keyword string) bool {
	ev, err := p.store.FindEventByKeyword(ctx, workspaceID, keyword)
	if errors.Is(err, model.ErrEventNotFound) {
		p.reply(ctx, from, fmt.Sprintf(replyNoMatch, keyword))
		return false
	}
	if err != nil {
		slog.Error("webhook: find event", "workspace_id", workspaceID, "keyword", keyword, "err", err)
		return false
	}

	if err := p.store.SetActiveEvent(ctx, workspaceID, ev.ID); err != nil {
		slog.Error("webhook: set active event", "workspace_id", workspaceID, "event_id", ev.ID, "err", err)
		return false
	}
	p.reply(ctx, from, fmt.Sprintf(replyActiveSet, ev.Title))
	return true
}

func (p *Processor) applyStatus(ctx context.Context, st Status) bool {
	status, ok := model.ParseCallbackStatus(st.Status)
	if !ok || st.ID == "" {
		return false
	}

	at := p.now().UTC()
	if secs, err := strconv.ParseInt(st.Timestamp, 10, 64); err == nil {
		at = time.Unix(secs, 0).UTC()
	}

	changed, err := p.store.ApplyTargetStatus(ctx, st.ID, status, at)
	if err != nil {
		slog.Error("webhook: apply status", "provider_message_id", st.ID, "status", st.Status, "err", err)
		return false
	}
	return changed
}

func (p *Processor) reply(ctx context.Context, to, text string) {
	if _, err := p.replier.Send(ctx, to, text, ""); err != nil {
		slog.Warn("webhook: reply failed", "to", to, "err", err)
	}
}

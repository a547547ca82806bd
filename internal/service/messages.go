package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/LeventeLantos/event-messaging/internal/ledger"
	"github.com/LeventeLantos/event-messaging/internal/model"
	"github.com/LeventeLantos/event-messaging/internal/repo"
)

// Enqueuer accepts message ids for asynchronous dispatch.
type Enqueuer interface {
	TryEnqueue(id string) bool
}

type SendRequest struct {
	EventID  string
	BodyText string
	ImageURL string
}

type CreateResult struct {
	MessageID   string     `json:"messageId"`
	Targets     int        `json:"targets"`
	ImageUsed   *string    `json:"imageUsed"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	Queued      bool       `json:"queued"`
}

type MessagesConfig struct {
	ContentMax int
	Now        func() time.Time
}

type Messages struct {
	store  repo.Store
	ledger *ledger.Ledger
	queue  Enqueuer

	contentMax int
	now        func() time.Time
}

func NewMessages(store repo.Store, l *ledger.Ledger, queue Enqueuer, cfg MessagesConfig) *Messages {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Messages{
		store:      store,
		ledger:     l,
		queue:      queue,
		contentMax: cfg.ContentMax,
		now:        cfg.Now,
	}
}

// CreateAndDispatchNow debits one credit per pending guest, stores the message
// and hands it to the dispatch queue. It does not wait for delivery. When the
// queue is full the message stays pending for the scheduler.
func (s *Messages) CreateAndDispatchNow(ctx context.Context, req SendRequest) (*CreateResult, error) {
	res, err := s.create(ctx, req, nil)
	if err != nil {
		return nil, err
	}

	res.Queued = s.queue.TryEnqueue(res.MessageID)
	if !res.Queued {
		slog.Warn("dispatch queue full, leaving message to scheduler", "message_id", res.MessageID)
	}
	return res, nil
}

func (s *Messages) CreateAndSchedule(ctx context.Context, req SendRequest, scheduledAt time.Time) (*CreateResult, error) {
	if scheduledAt.IsZero() {
		return nil, model.ErrInvalidSchedule
	}
	at := scheduledAt.UTC()
	return s.create(ctx, req, &at)
}

func (s *Messages) create(ctx context.Context, req SendRequest, scheduledAt *time.Time) (*CreateResult, error) {
	event, err := s.store.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	guests, err := s.store.ListPendingGuests(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("list pending guests: %w", err)
	}
	if len(guests) == 0 {
		return nil, model.ErrNoPendingGuests
	}

	var image *string
	if u := strings.TrimSpace(req.ImageURL); u != "" {
		image = &u
	} else if event.InviteImageURL != nil && *event.InviteImageURL != "" {
		u := *event.InviteImageURL
		image = &u
	}

	if err := s.validateBody(req.BodyText, image); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	msg := &model.Message{
		ID:            uuid.NewString(),
		EventID:       event.ID,
		BodyText:      req.BodyText,
		ImageURL:      image,
		ScheduledAt:   scheduledAt,
		DispatchState: model.DispatchPending,
		CreatedAt:     now,
	}

	targets := make([]model.Target, 0, len(guests))
	for _, g := range guests {
		targets = append(targets, model.Target{
			ID:        uuid.NewString(),
			MessageID: msg.ID,
			GuestID:   g.ID,
			Phone:     g.Phone,
			Status:    model.TargetPending,
			CreatedAt: now,
		})
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		if _, err := s.ledger.Debit(ctx, tx, event.WorkspaceID, int64(len(targets)), ledger.ReasonSendDebit, msg.ID); err != nil {
			return err
		}
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if err := tx.InsertTargets(ctx, targets); err != nil {
			return fmt.Errorf("insert targets: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("message created",
		"message_id", msg.ID,
		"event_id", event.ID,
		"targets", len(targets),
		"scheduled", scheduledAt != nil,
	)

	return &CreateResult{
		MessageID:   msg.ID,
		Targets:     len(targets),
		ImageUsed:   image,
		ScheduledAt: scheduledAt,
	}, nil
}

func (s *Messages) validateBody(body string, image *string) error {
	if strings.TrimSpace(body) == "" && image == nil {
		return fmt.Errorf("%w: body or image required", model.ErrInvalidBody)
	}
	if s.contentMax > 0 && utf8.RuneCountInString(body) > s.contentMax {
		return fmt.Errorf("%w: body exceeds %d chars", model.ErrInvalidBody, s.contentMax)
	}
	return nil
}

func (s *Messages) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	return s.store.GetMessage(ctx, id)
}

func (s *Messages) ListEventMessages(ctx context.Context, eventID string) ([]model.Message, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListEventMessages(ctx, eventID)
}

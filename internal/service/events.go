package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/event-messaging/internal/model"
	"github.com/LeventeLantos/event-messaging/internal/repo"
)

type NewEvent struct {
	WorkspaceID    string
	Title          string
	Date           *time.Time
	TimeStr        *string
	Venue          *string
	InviteImageURL *string
	Timezone       *string
}

type NewGuest struct {
	Name     string
	Phone    string
	Relation *string
	Side     *string
}

type Events struct {
	store repo.Store
	now   func() time.Time
}

func NewEvents(store repo.Store, now func() time.Time) *Events {
	if now == nil {
		now = time.Now
	}
	return &Events{store: store, now: now}
}

// CreateEvent stores the event and makes it the workspace's active event when
// none is set yet.
func (s *Events) CreateEvent(ctx context.Context, in NewEvent) (*model.Event, error) {
	if _, err := s.store.GetWorkspace(ctx, in.WorkspaceID); err != nil {
		return nil, err
	}

	ev := &model.Event{
		ID:             uuid.NewString(),
		WorkspaceID:    in.WorkspaceID,
		Title:          strings.TrimSpace(in.Title),
		Date:           in.Date,
		TimeStr:        in.TimeStr,
		Venue:          in.Venue,
		InviteImageURL: in.InviteImageURL,
		Timezone:       in.Timezone,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	adopted, err := s.store.AdoptActiveEvent(ctx, in.WorkspaceID, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("adopt active event: %w", err)
	}
	if adopted {
		slog.Info("event set as active", "workspace_id", in.WorkspaceID, "event_id", ev.ID)
	}
	return ev, nil
}

// EventDetail is the event with its full guest list and every message sent
// for it, targets included.
type EventDetail struct {
	*model.Event
	Guests   []model.Guest   `json:"guests"`
	Messages []model.Message `json:"messages"`
}

func (s *Events) GetEvent(ctx context.Context, id string) (*EventDetail, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	guests, err := s.store.ListGuests(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list guests: %w", err)
	}
	msgs, err := s.store.ListEventMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if guests == nil {
		guests = []model.Guest{}
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return &EventDetail{Event: ev, Guests: guests, Messages: msgs}, nil
}

func (s *Events) AddGuest(ctx context.Context, eventID string, in NewGuest) (*model.Guest, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	phone := model.NormalizePhone(in.Phone)
	if phone == "" {
		return nil, model.ErrInvalidPhone
	}

	g := &model.Guest{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Name:      strings.TrimSpace(in.Name),
		Phone:     phone,
		Relation:  in.Relation,
		Side:      in.Side,
		Status:    model.GuestPending,
		CreatedAt: s.now().UTC(),
	}
	created, err := s.store.CreateGuest(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("create guest: %w", err)
	}
	if !created {
		return nil, model.ErrDuplicateGuest
	}
	return g, nil
}

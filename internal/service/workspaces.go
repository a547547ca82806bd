package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/event-messaging/internal/ledger"
	"github.com/LeventeLantos/event-messaging/internal/model"
	"github.com/LeventeLantos/event-messaging/internal/repo"
)

type Workspaces struct {
	store          repo.Store
	ledger         *ledger.Ledger
	initialCredits int64
	now            func() time.Time
}

func NewWorkspaces(store repo.Store, l *ledger.Ledger, initialCredits int64, now func() time.Time) *Workspaces {
	if now == nil {
		now = time.Now
	}
	return &Workspaces{store: store, ledger: l, initialCredits: initialCredits, now: now}
}

// CreateWorkspace opens a workspace funded with the configured initial
// credits, booked as a purchase.
func (s *Workspaces) CreateWorkspace(ctx context.Context, name, ownerPhone string) (*model.Workspace, error) {
	ws := &model.Workspace{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		CreatedAt: s.now().UTC(),
	}
	if raw := strings.TrimSpace(ownerPhone); raw != "" {
		phone := model.NormalizePhone(raw)
		if phone == "" {
			return nil, model.ErrInvalidPhone
		}
		ws.OwnerPhone = &phone
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		if err := tx.InsertWorkspace(ctx, ws); err != nil {
			return fmt.Errorf("insert workspace: %w", err)
		}
		if s.initialCredits <= 0 {
			return nil
		}
		e, err := s.ledger.Credit(ctx, tx, ws.ID, s.initialCredits, ledger.ReasonPurchase)
		if err != nil {
			return err
		}
		ws.CreditBalance = e.BalanceAfter
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (s *Workspaces) GetWorkspace(ctx context.Context, id string) (*model.Workspace, error) {
	return s.store.GetWorkspace(ctx, id)
}

// AddCredits tops up a workspace. An empty reason is booked as a manual top-up.
func (s *Workspaces) AddCredits(ctx context.Context, workspaceID string, amount int64, reason string) (*model.LedgerEntry, error) {
	if reason == "" {
		reason = ledger.ReasonManualTopUp
	}

	var entry *model.LedgerEntry
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		e, err := s.ledger.Credit(ctx, tx, workspaceID, amount, reason)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Workspaces) ListLedger(ctx context.Context, workspaceID string) ([]model.LedgerEntry, error) {
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	return s.store.ListLedgerEntries(ctx, workspaceID)
}

func (s *Workspaces) SetActiveEvent(ctx context.Context, workspaceID, eventID string) (*model.Workspace, error) {
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.WorkspaceID != workspaceID {
		return nil, model.ErrEventNotInWorkspace
	}
	if err := s.store.SetActiveEvent(ctx, workspaceID, eventID); err != nil {
		return nil, err
	}
	return s.store.GetWorkspace(ctx, workspaceID)
}

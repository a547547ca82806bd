package repo

import (
	"context"
	"time"

	"github.com/LeventeLantos/event-messaging/internal/model"
)

type MessageRepository interface {
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	ListEventMessages(ctx context.Context, eventID string) ([]model.Message, error)

	// ListDue returns ids of unprocessed messages due at now whose dispatch
	// state is pending or whose claim is older than staleBefore.
	ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]string, error)

	// ClaimMessage moves a claimable message to dispatching. It reports false
	// when another dispatcher holds a live claim or the message is done.
	ClaimMessage(ctx context.Context, id string, now, staleBefore time.Time) (bool, error)

	// ClaimTarget moves a pending target to sending. Only the caller that wins
	// the claim may call the provider for it.
	ClaimTarget(ctx context.Context, targetID string, now time.Time) (bool, error)
	// ReclaimTarget takes over a sending target whose claim is older than
	// staleBefore. The previous send may or may not have reached the provider.
	ReclaimTarget(ctx context.Context, targetID string, now, staleBefore time.Time) (bool, error)

	// MarkTargetSent accepts pending, sending and interrupted targets.
	// MarkTargetFailed only touches pending or sending targets.
	MarkTargetSent(ctx context.Context, targetID, providerMessageID string, sentAt time.Time) error
	MarkTargetFailed(ctx context.Context, targetID, errorCode string) error

	MarkProcessed(ctx context.Context, id string, at time.Time) error

	// ApplyTargetStatus updates the target carrying providerMessageID unless
	// the update would regress its status. It reports whether a row changed.
	ApplyTargetStatus(ctx context.Context, providerMessageID string, status model.TargetStatus, at time.Time) (bool, error)
}

type EventRepository interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	LatestEvent(ctx context.Context, workspaceID string) (*model.Event, error)
	FindEventByKeyword(ctx context.Context, workspaceID, keyword string) (*model.Event, error)

	ListGuests(ctx context.Context, eventID string) ([]model.Guest, error)
	ListPendingGuests(ctx context.Context, eventID string) ([]model.Guest, error)
	// CreateGuest inserts g unless (event, phone) exists, reporting whether it
	// was created. Uniqueness is enforced by the store, not by a prior read.
	CreateGuest(ctx context.Context, g *model.Guest) (bool, error)
}

type WorkspaceRepository interface {
	GetWorkspace(ctx context.Context, id string) (*model.Workspace, error)
	FindWorkspaceByOwnerPhone(ctx context.Context, phone string) (*model.Workspace, error)
	SetActiveEvent(ctx context.Context, workspaceID, eventID string) error
	// AdoptActiveEvent sets the active event only when none is set.
	AdoptActiveEvent(ctx context.Context, workspaceID, eventID string) (bool, error)
	ListLedgerEntries(ctx context.Context, workspaceID string) ([]model.LedgerEntry, error)
}

// Tx is the write surface available inside a transaction.
type Tx interface {
	InsertWorkspace(ctx context.Context, ws *model.Workspace) error
	DebitBalance(ctx context.Context, workspaceID string, amount int64) (int64, error)
	CreditBalance(ctx context.Context, workspaceID string, amount int64) (int64, error)
	InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error
	InsertMessage(ctx context.Context, m *model.Message) error
	InsertTargets(ctx context.Context, targets []model.Target) error
}

type TxRunner interface {
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Store interface {
	MessageRepository
	EventRepository
	WorkspaceRepository
	TxRunner
}

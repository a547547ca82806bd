// Package ledger keeps workspace credit balances and their audit trail in
// step. Every balance change goes through Debit or Credit, which write the
// balance update and the ledger entry inside the caller's transaction.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/event-messaging/internal/model"
)

const (
	ReasonSendDebit   = "send_debit"
	ReasonPurchase    = "purchase"
	ReasonManualTopUp = "manual_topup"
)

// Tx is the part of a store transaction the ledger writes through.
type Tx interface {
	DebitBalance(ctx context.Context, workspaceID string, amount int64) (int64, error)
	CreditBalance(ctx context.Context, workspaceID string, amount int64) (int64, error)
	InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error
}

type Ledger struct {
	now func() time.Time
}

func New(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

// Debit removes amount from the workspace balance. It fails with
// model.ErrInsufficientCredits, leaving no entry behind, when the balance does
// not cover amount.
func (l *Ledger) Debit(ctx context.Context, tx Tx, workspaceID string, amount int64, reason, referenceID string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, model.ErrInvalidAmount
	}

	balance, err := tx.DebitBalance(ctx, workspaceID, amount)
	if err != nil {
		return nil, fmt.Errorf("debit %d from workspace %s: %w", amount, workspaceID, err)
	}
	return l.append(ctx, tx, workspaceID, -amount, reason, referenceID, balance)
}

func (l *Ledger) Credit(ctx context.Context, tx Tx, workspaceID string, amount int64, reason string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, model.ErrInvalidAmount
	}

	balance, err := tx.CreditBalance(ctx, workspaceID, amount)
	if err != nil {
		return nil, fmt.Errorf("credit %d to workspace %s: %w", amount, workspaceID, err)
	}
	return l.append(ctx, tx, workspaceID, amount, reason, "", balance)
}

func (l *Ledger) append(ctx context.Context, tx Tx, workspaceID string, delta int64, reason, referenceID string, balance int64) (*model.LedgerEntry, error) {
	e := &model.LedgerEntry{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		Delta:        delta,
		Reason:       reason,
		BalanceAfter: balance,
		CreatedAt:    l.now().UTC(),
	}
	if referenceID != "" {
		ref := referenceID
		e.ReferenceID = &ref
	}
	if err := tx.InsertLedgerEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return e, nil
}

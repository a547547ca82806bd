package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/LeventeLantos/event-messaging/internal/model"
)

type postgresTx struct {
	q querier
}

func (t *postgresTx) InsertWorkspace(ctx context.Context, ws *model.Workspace) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, owner_phone, credit_balance, active_event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ws.ID, ws.Name, nullString(ws.OwnerPhone), ws.CreditBalance, nullString(ws.ActiveEventID), ws.CreatedAt)
	return err
}

// DebitBalance decrements only when the balance covers amount, so concurrent
// debits can never drive it negative.
func (t *postgresTx) DebitBalance(ctx context.Context, workspaceID string, amount int64) (int64, error) {
	var balance int64
	err := t.q.QueryRowContext(ctx, `
		UPDATE workspaces
		SET credit_balance = credit_balance - $2
		WHERE id = $1
		  AND credit_balance >= $2
		RETURNING credit_balance
	`, workspaceID, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var exists int
	err = t.q.QueryRowContext(ctx, `SELECT 1 FROM workspaces WHERE id = $1`, workspaceID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrWorkspaceNotFound
	}
	if err != nil {
		return 0, err
	}
	return 0, model.ErrInsufficientCredits
}

func (t *postgresTx) CreditBalance(ctx context.Context, workspaceID string, amount int64) (int64, error) {
	var balance int64
	err := t.q.QueryRowContext(ctx, `
		UPDATE workspaces
		SET credit_balance = credit_balance + $2
		WHERE id = $1
		RETURNING credit_balance
	`, workspaceID, amount).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrWorkspaceNotFound
	}
	return balance, err
}

func (t *postgresTx) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO credit_ledger (id, workspace_id, delta, reason, reference_id, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.WorkspaceID, e.Delta, e.Reason, nullString(e.ReferenceID), e.BalanceAfter, e.CreatedAt)
	return err
}

func (t *postgresTx) InsertMessage(ctx context.Context, m *model.Message) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO messages (id, event_id, body_text, image_url, scheduled_at, dispatch_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.EventID, m.BodyText, nullString(m.ImageURL), nullTime(m.ScheduledAt), string(m.DispatchState), m.CreatedAt)
	return err
}

func (t *postgresTx) InsertTargets(ctx context.Context, targets []model.Target) error {
	for _, tg := range targets {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO message_targets (id, message_id, guest_id, phone, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, tg.ID, tg.MessageID, tg.GuestID, tg.Phone, string(tg.Status), tg.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

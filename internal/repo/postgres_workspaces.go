package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/LeventeLantos/event-messaging/internal/model"
)

const workspaceColumns = `id, name, owner_phone, credit_balance, active_event_id, created_at`

func scanWorkspace(row rowScanner) (*model.Workspace, error) {
	var ws model.Workspace
	var ownerPhone, activeEvent sql.NullString

	err := row.Scan(&ws.ID, &ws.Name, &ownerPhone, &ws.CreditBalance, &activeEvent, &ws.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrWorkspaceNotFound
		}
		return nil, err
	}
	ws.OwnerPhone = stringPtr(ownerPhone)
	ws.ActiveEventID = stringPtr(activeEvent)
	return &ws, nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, id string) (*model.Workspace, error) {
	return scanWorkspace(s.db.QueryRowContext(ctx, `
		SELECT `+workspaceColumns+`
		FROM workspaces
		WHERE id = $1
	`, id))
}

func (s *PostgresStore) FindWorkspaceByOwnerPhone(ctx context.Context, phone string) (*model.Workspace, error) {
	return scanWorkspace(s.db.QueryRowContext(ctx, `
		SELECT `+workspaceColumns+`
		FROM workspaces
		WHERE owner_phone = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, phone))
}

func (s *PostgresStore) SetActiveEvent(ctx context.Context, workspaceID, eventID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE workspaces
		SET active_event_id = $2
		WHERE id = $1
	`, workspaceID, eventID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrWorkspaceNotFound
	}
	return nil
}

func (s *PostgresStore) AdoptActiveEvent(ctx context.Context, workspaceID, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE workspaces
		SET active_event_id = $2
		WHERE id = $1
		  AND active_event_id IS NULL
	`, workspaceID, eventID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) ListLedgerEntries(ctx context.Context, workspaceID string) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, delta, reason, reference_id, balance_after, created_at
		FROM credit_ledger
		WHERE workspace_id = $1
		ORDER BY created_at ASC, id ASC
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var ref sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.Delta, &e.Reason, &ref, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ReferenceID = stringPtr(ref)
		out = append(out, e)
	}
	return out, rows.Err()
}

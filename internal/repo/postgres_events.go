package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/LeventeLantos/event-messaging/internal/model"
)

const eventColumns = `id, workspace_id, title, event_date, time_str, venue, invite_image_url, timezone, created_at`

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	var date sql.NullTime
	var timeStr, venue, image, tz sql.NullString

	err := row.Scan(&e.ID, &e.WorkspaceID, &e.Title, &date, &timeStr, &venue, &image, &tz, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, err
	}
	e.Date = timePtr(date)
	e.TimeStr = stringPtr(timeStr)
	e.Venue = stringPtr(venue)
	e.InviteImageURL = stringPtr(image)
	e.Timezone = stringPtr(tz)
	return &e, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, workspace_id, title, event_date, time_str, venue, invite_image_url, timezone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.WorkspaceID, e.Title, nullTime(e.Date), nullString(e.TimeStr), nullString(e.Venue),
		nullString(e.InviteImageURL), nullString(e.Timezone), e.CreatedAt)
	return err
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return scanEvent(s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE id = $1
	`, id))
}

func (s *PostgresStore) LatestEvent(ctx context.Context, workspaceID string) (*model.Event, error) {
	return scanEvent(s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, workspaceID))
}

func (s *PostgresStore) FindEventByKeyword(ctx context.Context, workspaceID, keyword string) (*model.Event, error) {
	return scanEvent(s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE workspace_id = $1
		  AND (id = $2 OR title ILIKE $3)
		ORDER BY created_at DESC
		LIMIT 1
	`, workspaceID, keyword, containsPattern(keyword)))
}

const guestColumns = `id, event_id, name, phone, relation, side, status, created_at`

func (s *PostgresStore) ListGuests(ctx context.Context, eventID string) ([]model.Guest, error) {
	return s.queryGuests(ctx, `
		SELECT `+guestColumns+`
		FROM guests
		WHERE event_id = $1
		ORDER BY created_at ASC, id ASC
	`, eventID)
}

func (s *PostgresStore) ListPendingGuests(ctx context.Context, eventID string) ([]model.Guest, error) {
	return s.queryGuests(ctx, `
		SELECT `+guestColumns+`
		FROM guests
		WHERE event_id = $1
		  AND status = 'pending'
		ORDER BY created_at ASC, id ASC
	`, eventID)
}

func (s *PostgresStore) queryGuests(ctx context.Context, query string, args ...any) ([]model.Guest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Guest
	for rows.Next() {
		var g model.Guest
		var relation, side sql.NullString
		var status string
		if err := rows.Scan(&g.ID, &g.EventID, &g.Name, &g.Phone, &relation, &side, &status, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.Relation = stringPtr(relation)
		g.Side = stringPtr(side)
		g.Status = model.GuestStatus(status)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateGuest(ctx context.Context, g *model.Guest) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO guests (id, event_id, name, phone, relation, side, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id, phone) DO NOTHING
	`, g.ID, g.EventID, g.Name, g.Phone, nullString(g.Relation), nullString(g.Side), string(g.Status), g.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

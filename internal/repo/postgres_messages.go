package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LeventeLantos/event-messaging/internal/model"
)

const messageColumns = `id, event_id, body_text, image_url, scheduled_at, processed_at, dispatch_state, claimed_at, created_at`

const targetColumns = `id, message_id, guest_id, phone, status, provider_message_id,
		       sent_at, delivered_at, read_at, error_code, claimed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var m model.Message
	var imageURL sql.NullString
	var scheduledAt, processedAt, claimedAt sql.NullTime
	var state string

	if err := row.Scan(
		&m.ID,
		&m.EventID,
		&m.BodyText,
		&imageURL,
		&scheduledAt,
		&processedAt,
		&state,
		&claimedAt,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}

	m.ImageURL = stringPtr(imageURL)
	m.ScheduledAt = timePtr(scheduledAt)
	m.ProcessedAt = timePtr(processedAt)
	m.ClaimedAt = timePtr(claimedAt)
	m.DispatchState = model.DispatchState(state)
	return &m, nil
}

func scanTarget(row rowScanner) (*model.Target, error) {
	var t model.Target
	var status string
	var providerID, errorCode sql.NullString
	var sentAt, deliveredAt, readAt, claimedAt sql.NullTime

	if err := row.Scan(
		&t.ID,
		&t.MessageID,
		&t.GuestID,
		&t.Phone,
		&status,
		&providerID,
		&sentAt,
		&deliveredAt,
		&readAt,
		&errorCode,
		&claimedAt,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}

	t.Status = model.TargetStatus(status)
	t.ProviderMessageID = stringPtr(providerID)
	t.SentAt = timePtr(sentAt)
	t.DeliveredAt = timePtr(deliveredAt)
	t.ReadAt = timePtr(readAt)
	t.ErrorCode = stringPtr(errorCode)
	t.ClaimedAt = timePtr(claimedAt)
	return &t, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	targets, err := s.listTargets(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Targets = targets
	return m, nil
}

func (s *PostgresStore) listTargets(ctx context.Context, messageID string) ([]model.Target, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+targetColumns+`
		FROM message_targets
		WHERE message_id = $1
		ORDER BY created_at ASC, id ASC
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListEventMessages(ctx context.Context, eventID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE event_id = $1
		ORDER BY created_at DESC
	`, eventID)
	if err != nil {
		return nil, err
	}

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		targets, err := s.listTargets(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Targets = targets
	}
	return out, nil
}

func (s *PostgresStore) ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM messages
		WHERE processed_at IS NULL
		  AND COALESCE(scheduled_at, created_at) <= $1
		  AND (dispatch_state = 'pending'
		       OR (dispatch_state = 'dispatching' AND (claimed_at IS NULL OR claimed_at < $2)))
		ORDER BY COALESCE(scheduled_at, created_at) ASC
		LIMIT $3
	`, now, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) ClaimMessage(ctx context.Context, id string, now, staleBefore time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET dispatch_state = 'dispatching',
		    claimed_at = $2
		WHERE id = $1
		  AND processed_at IS NULL
		  AND (dispatch_state = 'pending'
		       OR (dispatch_state = 'dispatching' AND (claimed_at IS NULL OR claimed_at < $3)))
	`, id, now, staleBefore)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) ClaimTarget(ctx context.Context, targetID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE message_targets
		SET status = 'sending',
		    claimed_at = $2
		WHERE id = $1
		  AND status = 'pending'
	`, targetID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) ReclaimTarget(ctx context.Context, targetID string, now, staleBefore time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE message_targets
		SET claimed_at = $2
		WHERE id = $1
		  AND status = 'sending'
		  AND (claimed_at IS NULL OR claimed_at < $3)
	`, targetID, now, staleBefore)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) MarkTargetSent(ctx context.Context, targetID, providerMessageID string, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE message_targets
		SET status = 'sent',
		    sent_at = $3,
		    provider_message_id = $2,
		    error_code = NULL
		WHERE id = $1
		  AND (status IN ('pending', 'sending')
		       OR (status = 'failed' AND error_code = $4))
	`, targetID, providerMessageID, sentAt, model.ErrorCodeInterrupted)
	return err
}

func (s *PostgresStore) MarkTargetFailed(ctx context.Context, targetID, errorCode string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE message_targets
		SET status = 'failed',
		    error_code = $2
		WHERE id = $1
		  AND status IN ('pending', 'sending')
	`, targetID, errorCode)
	return err
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET processed_at = $2,
		    dispatch_state = 'done'
		WHERE id = $1
		  AND processed_at IS NULL
	`, id, at)
	return err
}

func (s *PostgresStore) ApplyTargetStatus(ctx context.Context, providerMessageID string, status model.TargetStatus, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE message_targets
		SET status = $2::text,
		    delivered_at = CASE WHEN $2::text = 'delivered' THEN $3 ELSE delivered_at END,
		    read_at = CASE WHEN $2::text = 'read' THEN $3 ELSE read_at END
		WHERE provider_message_id = $1
		  AND (CASE status
		           WHEN 'pending' THEN 0
		           WHEN 'sending' THEN 0
		           WHEN 'sent' THEN 1
		           WHEN 'delivered' THEN 2
		           WHEN 'read' THEN 3
		           ELSE 4
		       END) < $4
	`, providerMessageID, string(status), at, status.CallbackPrecedence())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

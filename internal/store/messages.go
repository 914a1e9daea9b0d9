package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

const messageColumns = `id, prospect_id, account_id, sent_by, content, kind, external_id, sent_at`

// RecordMessage stores a conversation message. Messages carrying an
// external id are deduplicated on it, so syncing the same chat twice is
// harmless. Reports whether a row was actually inserted.
func (s *Store) RecordMessage(ctx context.Context, m *domain.Message) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (prospect_id, account_id, sent_by, content, kind, external_id, sent_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)
		ON CONFLICT(external_id) DO NOTHING
	`,
		m.ProspectID, m.AccountID, string(m.SentBy), m.Content, m.Kind, m.ExternalID, m.SentAt.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 && m.ID == 0 {
		if id, err := res.LastInsertId(); err == nil {
			m.ID = id
		}
	}
	return n > 0, nil
}

// Conversation returns a prospect's messages oldest first
func (s *Store) Conversation(ctx context.Context, prospectID int64) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE prospect_id = ? ORDER BY sent_at ASC, id ASC
	`, prospectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LastInbound returns the prospect's most recent message, nil when the
// prospect never wrote.
func (s *Store) LastInbound(ctx context.Context, prospectID int64) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE prospect_id = ? AND sent_by = 'prospect'
		ORDER BY sent_at DESC, id DESC LIMIT 1
	`, prospectID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// LastMessage returns the newest message in the conversation, nil when
// there is none.
func (s *Store) LastMessage(ctx context.Context, prospectID int64) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE prospect_id = ? ORDER BY sent_at DESC, id DESC LIMIT 1
	`, prospectID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMessage(row rowScanner) (domain.Message, error) {
	var (
		m          domain.Message
		sentBy     string
		content    sql.NullString
		kind       sql.NullString
		externalID sql.NullString
	)
	err := row.Scan(&m.ID, &m.ProspectID, &m.AccountID, &sentBy, &content, &kind, &externalID, &m.SentAt)
	if err != nil {
		return domain.Message{}, err
	}
	m.SentBy = domain.Sender(sentBy)
	m.Content = content.String
	m.Kind = kind.String
	m.ExternalID = externalID.String
	return m, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

const prospectColumns = `id, account_id, identifier, attendee_id, first_name, last_name,
	headline, job_title, company, avatar_url, status, avatar_match, rejection_count,
	closed_reason, created_at, updated_at`

// UpsertProspect inserts a prospect or refreshes its profile fields,
// keyed on (account, identifier). Lifecycle fields (status, avatar
// verdict, rejections) are never touched by an upsert. Returns the row id.
func (s *Store) UpsertProspect(ctx context.Context, p *domain.Prospect) (int64, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prospects (account_id, identifier, attendee_id, first_name, last_name,
			headline, job_title, company, avatar_url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, identifier) DO UPDATE SET
			attendee_id = CASE WHEN excluded.attendee_id != '' THEN excluded.attendee_id ELSE attendee_id END,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			headline = excluded.headline,
			job_title = CASE WHEN excluded.job_title != '' THEN excluded.job_title ELSE job_title END,
			company = CASE WHEN excluded.company != '' THEN excluded.company ELSE company END,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at
	`,
		p.AccountID, p.Identifier, p.AttendeeID, p.FirstName, p.LastName,
		p.Headline, p.JobTitle, p.Company, p.AvatarURL,
		string(statusOrPending(p.Status)), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("upserting prospect %s: %w", p.Identifier, err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM prospects WHERE account_id = ? AND identifier = ?
	`, p.AccountID, p.Identifier).Scan(&id)
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

func statusOrPending(st domain.ProspectStatus) domain.ProspectStatus {
	if st == "" {
		return domain.ProspectPending
	}
	return st
}

// GetProspect retrieves a prospect by id
func (s *Store) GetProspect(ctx context.Context, id int64) (*domain.Prospect, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE id = ?`, id)
	p, err := scanProspect(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prospect %d not found", id)
	}
	return p, err
}

// GetProspectByAttendee finds the prospect behind a provider attendee id
func (s *Store) GetProspectByAttendee(ctx context.Context, accountID int64, attendeeID string) (*domain.Prospect, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+prospectColumns+` FROM prospects WHERE account_id = ? AND attendee_id = ?
	`, accountID, attendeeID)
	p, err := scanProspect(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// SetProspectStatus updates the lifecycle status, recording the reason
// for terminal states.
func (s *Store) SetProspectStatus(ctx context.Context, id int64, status domain.ProspectStatus, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE prospects SET status = ?, closed_reason = ?, updated_at = ? WHERE id = ?
	`, string(status), reason, time.Now().UTC(), id)
	return err
}

// SetAvatarMatch records the classifier verdict for a prospect
func (s *Store) SetAvatarMatch(ctx context.Context, id int64, match bool, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE prospects SET avatar_match = ?, avatar_reason = ?, updated_at = ? WHERE id = ?
	`, match, reason, time.Now().UTC(), id)
	return err
}

// IncrementRejection bumps the rejection counter and returns the new count
func (s *Store) IncrementRejection(ctx context.Context, id int64) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE prospects SET rejection_count = rejection_count + 1, updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, `SELECT rejection_count FROM prospects WHERE id = ?`, id).Scan(&n)
	return n, err
}

// StaleProspects returns connected prospects whose conversation went
// quiet: our last message predates cutoff and the prospect never spoke
// after it.
func (s *Store) StaleProspects(ctx context.Context, accountID int64, cutoff time.Time) ([]*domain.Prospect, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prospectColumns+` FROM prospects p
		WHERE p.account_id = ? AND p.status = 'connected'
		  AND EXISTS (
			SELECT 1 FROM messages m WHERE m.prospect_id = p.id
		  )
		  AND (SELECT MAX(sent_at) FROM messages m WHERE m.prospect_id = p.id) < ?
		  AND (SELECT sent_by FROM messages m WHERE m.prospect_id = p.id
		       ORDER BY sent_at DESC LIMIT 1) = 'account'
	`, accountID, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountProspectsByStatus returns prospect totals per lifecycle status
func (s *Store) CountProspectsByStatus(ctx context.Context, accountID int64) (map[domain.ProspectStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM prospects WHERE account_id = ? GROUP BY status
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.ProspectStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[domain.ProspectStatus(status)] = n
	}
	return out, rows.Err()
}

func scanProspect(row rowScanner) (*domain.Prospect, error) {
	var (
		p            domain.Prospect
		attendee     sql.NullString
		firstName    sql.NullString
		lastName     sql.NullString
		headline     sql.NullString
		jobTitle     sql.NullString
		company      sql.NullString
		avatarURL    sql.NullString
		status       string
		avatarMatch  sql.NullBool
		closedReason sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.AccountID, &p.Identifier, &attendee, &firstName, &lastName,
		&headline, &jobTitle, &company, &avatarURL, &status, &avatarMatch,
		&p.RejectionCount, &closedReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.AttendeeID = attendee.String
	p.FirstName = firstName.String
	p.LastName = lastName.String
	p.Headline = headline.String
	p.JobTitle = jobTitle.String
	p.Company = company.String
	p.AvatarURL = avatarURL.String
	p.Status = domain.ProspectStatus(status)
	p.AvatarMatch = boolPtr(avatarMatch)
	p.ClosedReason = closedReason.String
	return &p, nil
}

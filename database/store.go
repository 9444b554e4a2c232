package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store is the PostgreSQL-backed record store for users, campaigns,
// campaign recipients and email logs. Every write is individually atomic;
// FinalizeCampaign is the only multi-row transaction.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store on an open connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, email, name, purpose, mailbox_address, protected_secret, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Purpose, &u.MailboxAddress, &u.ProtectedSecret, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureUser returns the user identified by email, creating it on first
// access. Calling it repeatedly with the same email is a no-op.
func (s *Store) EnsureUser(ctx context.Context, email, name string) (*User, error) {
	var namePtr *string
	if name != "" {
		namePtr = &name
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, name, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING `+userColumns,
		uuid.New().String(), email, namePtr)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return u, nil
}

// GetUserByEmail looks up a user by login email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SaveCredential stores the mailbox address and its protected secret.
func (s *Store) SaveCredential(ctx context.Context, userID, mailboxAddress, protectedSecret string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET mailbox_address = $2, protected_secret = $3, updated_at = NOW()
		WHERE id = $1`, userID, mailboxAddress, protectedSecret)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return expectOneRow(res)
}

// SetPurpose records what the operator uses the mailer for.
func (s *Store) SetPurpose(ctx context.Context, userID, purpose string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET purpose = $2, updated_at = NOW() WHERE id = $1`, userID, purpose)
	if err != nil {
		return fmt.Errorf("set purpose: %w", err)
	}
	return expectOneRow(res)
}

// ListUsersWithCredentials returns every user holding a stored secret.
func (s *Store) ListUsersWithCredentials(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE protected_secret IS NOT NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users with credentials: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// ClearCredential removes the stored secret so the operator is asked to
// enter it again. The mailbox address is kept.
func (s *Store) ClearCredential(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET protected_secret = NULL, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// CreateCampaign inserts a campaign row exactly as given.
func (s *Store) CreateCampaign(ctx context.Context, c *Campaign) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, user_id, name, subject, template, total_recipients, sent_count, failed_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.UserID, c.Name, c.Subject, c.Template, c.TotalRecipients,
		c.SentCount, c.FailedCount, c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// CreateRecipients inserts the pending recipient rows of one campaign in a
// single transaction.
func (s *Store) CreateRecipients(ctx context.Context, recipients []CampaignRecipient) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recipients tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign_recipients (id, campaign_id, position, email, name, custom_data, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare recipient insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recipients {
		if _, err := stmt.ExecContext(ctx, r.ID, r.CampaignID, r.Position, r.Email, r.Name, r.CustomData, r.Status); err != nil {
			return fmt.Errorf("insert recipient %d: %w", r.Position, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recipients: %w", err)
	}
	return nil
}

// InsertEmailLog appends one audit row.
func (s *Store) InsertEmailLog(ctx context.Context, l *EmailLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_logs (id, user_id, campaign_id, subject, recipient_email, status, error, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.UserID, l.CampaignID, l.Subject, l.RecipientEmail, l.Status, l.Error, l.SentAt)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// FinalizeCampaign applies the terminal outcomes to their recipient rows,
// recounts sent and failed from the recipient table and marks the campaign
// completed, all in one transaction. Because the counters are derived from
// the recipient rows, running it twice yields the same counts.
func (s *Store) FinalizeCampaign(ctx context.Context, campaignID string, outcomes []RecipientOutcome, at time.Time) (sent, failed int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin finalize tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE campaign_recipients
		SET status = $3,
		    sent_at = CASE WHEN $3 = 'sent' THEN $4::timestamptz ELSE NULL END,
		    error = $5
		WHERE id = $1 AND campaign_id = $2`)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare recipient update: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		var errMsg *string
		if o.Status == StatusFailed {
			msg := o.Error
			errMsg = &msg
		}
		if _, err := stmt.ExecContext(ctx, o.RecipientID, campaignID, string(o.Status), at, errMsg); err != nil {
			return 0, 0, fmt.Errorf("update recipient %s: %w", o.RecipientID, err)
		}
	}

	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM campaign_recipients WHERE campaign_id = $1`, campaignID).Scan(&sent, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count recipient outcomes: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE campaigns SET sent_count = $2, failed_count = $3, status = $4, updated_at = $5
		WHERE id = $1`, campaignID, sent, failed, CampaignCompleted, at)
	if err != nil {
		return 0, 0, fmt.Errorf("update campaign counters: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit finalize: %w", err)
	}
	return sent, failed, nil
}

const campaignColumns = `id, user_id, name, subject, template, total_recipients, sent_count, failed_count, status, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*Campaign, error) {
	c := &Campaign{}
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Subject, &c.Template, &c.TotalRecipients,
		&c.SentCount, &c.FailedCount, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) queryCampaigns(ctx context.Context, query string, args ...any) ([]Campaign, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return campaigns, nil
}

// GetCampaign returns one campaign owned by userID.
func (s *Store) GetCampaign(ctx context.Context, userID, id string) (*Campaign, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 AND user_id = $2`, id, userID)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns returns a page of the user's campaigns, newest first.
func (s *Store) ListCampaigns(ctx context.Context, userID string, limit, offset int) ([]Campaign, error) {
	return s.queryCampaigns(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
}

// CountCampaigns returns how many campaigns the user owns.
func (s *Store) CountCampaigns(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count campaigns: %w", err)
	}
	return n, nil
}

// ListRecipients returns the recipient rows of the given campaigns grouped
// by campaign id, each group in input order.
func (s *Store) ListRecipients(ctx context.Context, campaignIDs []string) (map[string][]CampaignRecipient, error) {
	out := make(map[string][]CampaignRecipient, len(campaignIDs))
	if len(campaignIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, position, email, name, custom_data, status, sent_at, error
		FROM campaign_recipients
		WHERE campaign_id = ANY($1)
		ORDER BY campaign_id, position`, pq.Array(campaignIDs))
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r CampaignRecipient
		if err := rows.Scan(&r.ID, &r.CampaignID, &r.Position, &r.Email, &r.Name, &r.CustomData, &r.Status, &r.SentAt, &r.Error); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out[r.CampaignID] = append(out[r.CampaignID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return out, nil
}

// ListEmailLogs returns the user's log rows newest first. A zero day lists
// across all dates; otherwise only rows sent on that UTC calendar date.
func (s *Store) ListEmailLogs(ctx context.Context, userID string, day time.Time, limit int) ([]EmailLog, error) {
	query := `SELECT id, user_id, campaign_id, subject, recipient_email, status, error, sent_at
		FROM email_logs WHERE user_id = $1`
	args := []any{userID}
	if !day.IsZero() {
		query += ` AND (sent_at AT TIME ZONE 'UTC')::date = $2::date`
		args = append(args, day.Format("2006-01-02"))
	}
	query += fmt.Sprintf(` ORDER BY sent_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query email logs: %w", err)
	}
	defer rows.Close()

	logs := []EmailLog{}
	for rows.Next() {
		var l EmailLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.CampaignID, &l.Subject, &l.RecipientEmail, &l.Status, &l.Error, &l.SentAt); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate email logs: %w", err)
	}
	return logs, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

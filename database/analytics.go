package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LogFilter narrows an email_logs count. Zero fields are not applied; the
// time range is half-open [From, To).
type LogFilter struct {
	Status RecipientStatus
	From   time.Time
	To     time.Time
}

// DailyStat is one calendar-date bucket of email_logs rows.
type DailyStat struct {
	Date   string `json:"date"`
	Total  int    `json:"total"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

// CampaignTotals aggregates every campaign a user owns.
type CampaignTotals struct {
	TotalCampaigns  int `json:"totalCampaigns"`
	TotalRecipients int `json:"totalRecipients"`
	TotalSent       int `json:"totalSent"`
	TotalFailed     int `json:"totalFailed"`
}

// TemplateStat holds the raw per-template averages over a set of campaigns.
type TemplateStat struct {
	Template      string
	CampaignCount int
	AvgSent       float64
	AvgFailed     float64
	AvgRecipients float64
}

// CountEmailLogs counts the user's log rows matching the filter.
func (s *Store) CountEmailLogs(ctx context.Context, userID string, f LogFilter) (int, error) {
	query := `SELECT COUNT(*) FROM email_logs WHERE user_id = $1`
	args := []any{userID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND sent_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND sent_at < $%d", len(args))
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count email logs: %w", err)
	}
	return count, nil
}

// DailyStats buckets the user's log rows since the given instant by UTC
// calendar date, oldest first. Dates without activity are absent.
func (s *Store) DailyStats(ctx context.Context, userID string, since time.Time) ([]DailyStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT (sent_at AT TIME ZONE 'UTC')::date AS log_date,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM email_logs
		WHERE user_id = $1 AND sent_at >= $2
		GROUP BY log_date
		ORDER BY log_date ASC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	defer rows.Close()

	stats := []DailyStat{}
	for rows.Next() {
		var day time.Time
		var st DailyStat
		if err := rows.Scan(&day, &st.Total, &st.Sent, &st.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats row: %w", err)
		}
		st.Date = day.Format("2006-01-02")
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over daily stats rows: %w", err)
	}
	return stats, nil
}

// CampaignsSince returns the user's campaigns created at or after since,
// newest first.
func (s *Store) CampaignsSince(ctx context.Context, userID string, since time.Time) ([]Campaign, error) {
	return s.queryCampaigns(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`, userID, since)
}

// TopCampaigns returns the user's n campaigns with the most sent messages.
func (s *Store) TopCampaigns(ctx context.Context, userID string, n int) ([]Campaign, error) {
	return s.queryCampaigns(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE user_id = $1
		ORDER BY sent_count DESC, created_at DESC
		LIMIT $2`, userID, n)
}

// LastCampaign returns the user's most recent campaign, or nil when there
// is none.
func (s *Store) LastCampaign(ctx context.Context, userID string) (*Campaign, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, userID)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last campaign: %w", err)
	}
	return c, nil
}

// CampaignTotals sums the counters of every campaign the user owns.
func (s *Store) CampaignTotals(ctx context.Context, userID string) (CampaignTotals, error) {
	var t CampaignTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total_recipients), 0),
		       COALESCE(SUM(sent_count), 0),
		       COALESCE(SUM(failed_count), 0)
		FROM campaigns WHERE user_id = $1`, userID).
		Scan(&t.TotalCampaigns, &t.TotalRecipients, &t.TotalSent, &t.TotalFailed)
	if err != nil {
		return CampaignTotals{}, fmt.Errorf("failed to get campaign totals: %w", err)
	}
	return t, nil
}

// TemplatePerformance groups the user's campaigns created since the given
// instant by their serialized template and averages their counters.
func (s *Store) TemplatePerformance(ctx context.Context, userID string, since time.Time) ([]TemplateStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT template,
		       COUNT(*),
		       COALESCE(AVG(sent_count), 0)::float8,
		       COALESCE(AVG(failed_count), 0)::float8,
		       COALESCE(AVG(total_recipients), 0)::float8
		FROM campaigns
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY template
		ORDER BY COUNT(*) DESC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get template performance: %w", err)
	}
	defer rows.Close()

	stats := []TemplateStat{}
	for rows.Next() {
		var st TemplateStat
		if err := rows.Scan(&st.Template, &st.CampaignCount, &st.AvgSent, &st.AvgFailed, &st.AvgRecipients); err != nil {
			return nil, fmt.Errorf("failed to scan template performance row: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over template performance rows: %w", err)
	}
	return stats, nil
}

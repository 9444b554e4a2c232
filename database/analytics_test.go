package database

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountEmailLogsBuildsFilter(t *testing.T) {
	store, mock := newMockStore(t)
	from := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND status = $2 AND sent_at >= $3 AND sent_at < $4")).
		WithArgs("user-1", "sent", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM email_logs WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	n, err := store.CountEmailLogs(context.Background(), "user-1", LogFilter{Status: StatusSent, From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = store.CountEmailLogs(context.Background(), "user-1", LogFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyStats(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY log_date")).
		WithArgs("user-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"log_date", "total", "sent", "failed"}).
			AddRow(time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), 3, 2, 1).
			AddRow(time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC), 1, 1, 0))

	stats, err := store.DailyStats(context.Background(), "user-1", since)
	require.NoError(t, err)
	assert.Equal(t, []DailyStat{
		{Date: "2024-04-02", Total: 3, Sent: 2, Failed: 1},
		{Date: "2024-04-05", Total: 1, Sent: 1, Failed: 0},
	}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyStatsEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY log_date")).
		WillReturnRows(sqlmock.NewRows([]string{"log_date", "total", "sent", "failed"}))

	stats, err := store.DailyStats(context.Background(), "user-1", time.Now())
	require.NoError(t, err)
	assert.NotNil(t, stats)
	assert.Empty(t, stats)
}

func TestLastCampaignNone(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 1")).
		WithArgs("user-1").
		WillReturnError(sql.ErrNoRows)

	c, err := store.LastCampaign(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopCampaigns(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY sent_count DESC, created_at DESC LIMIT $2")).
		WithArgs("user-1", 5).
		WillReturnRows(sqlmock.NewRows(campaignRowColumns).
			AddRow("c-2", "user-1", "Big", "Hi", "{}", 10, 9, 1, "completed", now, now).
			AddRow("c-1", "user-1", "Small", "Hi", "{}", 2, 2, 0, "completed", now, now))

	top, err := store.TopCampaigns(context.Background(), "user-1", 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Big", top[0].Name)
	assert.Equal(t, 90, top[0].SuccessRate())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignTotals(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(total_recipients), 0)")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "recipients", "sent", "failed"}).AddRow(0, 0, 0, 0))

	totals, err := store.CampaignTotals(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, CampaignTotals{}, totals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplatePerformance(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY template")).
		WithArgs("user-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"template", "count", "avg_sent", "avg_failed", "avg_recipients"}).
			AddRow(`{"subject":"a","body":"b"}`, 2, 2.5, 0.5, 3.0))

	stats, err := store.TemplatePerformance(context.Background(), "user-1", since)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, TemplateStat{
		Template:      `{"subject":"a","body":"b"}`,
		CampaignCount: 2,
		AvgSent:       2.5,
		AvgFailed:     0.5,
		AvgRecipients: 3,
	}, stats[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-mailer/database"
)

// fakeAnalyticsStore counts logs in memory and returns canned aggregates.
type fakeAnalyticsStore struct {
	logs      []database.EmailLog
	daily     []database.DailyStat
	campaigns []database.Campaign
	templates []database.TemplateStat
	totals    database.CampaignTotals
	last      *database.Campaign
	top       []database.Campaign
	err       error

	topN int
}

func (f *fakeAnalyticsStore) CountEmailLogs(_ context.Context, _ string, filter database.LogFilter) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for _, l := range f.logs {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && l.SentAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !l.SentAt.Before(filter.To) {
			continue
		}
		n++
	}
	return n, nil
}

func (f *fakeAnalyticsStore) DailyStats(context.Context, string, time.Time) ([]database.DailyStat, error) {
	return f.daily, f.err
}

func (f *fakeAnalyticsStore) CampaignsSince(context.Context, string, time.Time) ([]database.Campaign, error) {
	return f.campaigns, f.err
}

func (f *fakeAnalyticsStore) TemplatePerformance(context.Context, string, time.Time) ([]database.TemplateStat, error) {
	return f.templates, f.err
}

func (f *fakeAnalyticsStore) CampaignTotals(context.Context, string) (database.CampaignTotals, error) {
	return f.totals, f.err
}

func (f *fakeAnalyticsStore) LastCampaign(context.Context, string) (*database.Campaign, error) {
	return f.last, f.err
}

func (f *fakeAnalyticsStore) TopCampaigns(_ context.Context, _ string, n int) ([]database.Campaign, error) {
	f.topN = n
	return f.top, f.err
}

var analyticsNow = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func logAt(status database.RecipientStatus, y int, m time.Month, d int) database.EmailLog {
	return database.EmailLog{Status: status, SentAt: time.Date(y, m, d, 9, 0, 0, 0, time.UTC)}
}

func newAnalyticsFixture(store *fakeAnalyticsStore) *AnalyticsService {
	svc := NewAnalyticsService(store, 30)
	svc.now = func() time.Time { return analyticsNow }
	return svc
}

func populatedAnalyticsStore() *fakeAnalyticsStore {
	return &fakeAnalyticsStore{
		logs: []database.EmailLog{
			logAt(database.StatusSent, 2024, time.January, 1),
			logAt(database.StatusSent, 2024, time.April, 20),
			logAt(database.StatusFailed, 2024, time.April, 25),
			logAt(database.StatusSent, 2024, time.May, 10),
			logAt(database.StatusSent, 2024, time.May, 14),
			logAt(database.StatusFailed, 2024, time.May, 15),
		},
		daily: []database.DailyStat{{Date: "2024-05-15", Total: 1, Failed: 1}},
		campaigns: []database.Campaign{
			{Name: "May", TotalRecipients: 3, SentCount: 2, FailedCount: 1, CreatedAt: analyticsNow},
		},
		templates: []database.TemplateStat{
			{Template: `{"subject":"s","body":"b"}`, CampaignCount: 2, AvgSent: 2.5, AvgFailed: 0.5, AvgRecipients: 3},
		},
		totals: database.CampaignTotals{TotalCampaigns: 2, TotalRecipients: 6, TotalSent: 4, TotalFailed: 2},
		last:   &database.Campaign{Name: "May"},
		top: []database.Campaign{
			{Name: "May", TotalRecipients: 3, SentCount: 2, FailedCount: 1},
			{Name: "Empty", TotalRecipients: 0},
		},
	}
}

func TestDashboardEmptyHistory(t *testing.T) {
	svc := newAnalyticsFixture(&fakeAnalyticsStore{})

	stats, err := svc.Dashboard(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Zero(t, stats.TotalEmailsSent)
	assert.Zero(t, stats.TotalEmailsFailed)
	assert.Zero(t, stats.SuccessRate)
	assert.Nil(t, stats.LastCampaign)
	assert.Equal(t, database.CampaignTotals{}, stats.CampaignStats)
	assert.Zero(t, stats.RecentActivity)
	assert.Zero(t, stats.MonthlyActivity)
	assert.Empty(t, stats.TopCampaigns)
}

func TestDashboardPopulated(t *testing.T) {
	store := populatedAnalyticsStore()
	svc := newAnalyticsFixture(store)

	stats, err := svc.Dashboard(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalEmailsSent)
	assert.Equal(t, 2, stats.TotalEmailsFailed)
	assert.Equal(t, 67, stats.SuccessRate)
	assert.Equal(t, "May", stats.LastCampaign.Name)
	assert.Equal(t, 3, stats.RecentActivity)
	assert.Equal(t, 5, stats.MonthlyActivity)
	assert.Equal(t, 5, store.topN)
	require.Len(t, stats.TopCampaigns, 2)
	assert.Equal(t, 67, stats.TopCampaigns[0].SuccessRate)
	assert.Zero(t, stats.TopCampaigns[1].SuccessRate)
}

func TestAnalyticsEmptyHistory(t *testing.T) {
	svc := newAnalyticsFixture(&fakeAnalyticsStore{})

	report, err := svc.Analytics(context.Background(), "user-1", 30)
	require.NoError(t, err)

	assert.Equal(t, 30, report.Period)
	assert.Equal(t, OverallStats{}, report.OverallStats)
	assert.NotNil(t, report.DailyStats)
	assert.Empty(t, report.DailyStats)
	assert.Empty(t, report.DeliveryRates)
	assert.Empty(t, report.TemplatePerformance)
}

func TestAnalyticsPopulated(t *testing.T) {
	svc := newAnalyticsFixture(populatedAnalyticsStore())

	report, err := svc.Analytics(context.Background(), "user-1", 30)
	require.NoError(t, err)

	assert.Equal(t, OverallStats{
		TotalEmails:          5,
		TotalSent:            3,
		TotalFailed:          2,
		SuccessRate:          60,
		RecentActivity:       3,
		MonthOverMonthGrowth: 50,
	}, report.OverallStats)

	require.Len(t, report.DeliveryRates, 1)
	assert.Equal(t, DeliveryRate{
		Date:            analyticsNow,
		Name:            "May",
		TotalRecipients: 3,
		SentCount:       2,
		FailedCount:     1,
		SuccessRate:     67,
	}, report.DeliveryRates[0])

	require.Len(t, report.TemplatePerformance, 1)
	assert.Equal(t, TemplatePerformance{
		Template:           `{"subject":"s","body":"b"}`,
		AverageSent:        3,
		AverageFailed:      1,
		AverageRecipients:  3,
		CampaignCount:      2,
		AverageSuccessRate: 83,
	}, report.TemplatePerformance[0])
	assert.Len(t, report.DailyStats, 1)
}

func TestAnalyticsDefaultPeriod(t *testing.T) {
	svc := newAnalyticsFixture(&fakeAnalyticsStore{})
	svc.defaultDays = 14

	report, err := svc.Analytics(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 14, report.Period)
}

func TestAnalyticsPropagatesStoreErrors(t *testing.T) {
	svc := newAnalyticsFixture(&fakeAnalyticsStore{err: errors.New("db down")})

	_, err := svc.Analytics(context.Background(), "user-1", 7)
	assert.EqualError(t, err, "db down")
	_, err = svc.Dashboard(context.Background(), "user-1")
	assert.EqualError(t, err, "db down")
}

func TestMonthBoundsAcrossYear(t *testing.T) {
	this, last := monthBounds(time.Date(2024, 1, 3, 1, 0, 0, 0, time.FixedZone("X", 5*3600)))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), this)
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), last)
}

package services

import (
	"context"
	"time"

	"campaign-mailer/database"
	"campaign-mailer/utils"
)

const (
	recentActivityDays  = 7
	monthlyActivityDays = 30
	topCampaignCount    = 5
)

// AnalyticsStore is the read side the reporting projections are built on.
type AnalyticsStore interface {
	CountEmailLogs(ctx context.Context, userID string, f database.LogFilter) (int, error)
	DailyStats(ctx context.Context, userID string, since time.Time) ([]database.DailyStat, error)
	CampaignsSince(ctx context.Context, userID string, since time.Time) ([]database.Campaign, error)
	TemplatePerformance(ctx context.Context, userID string, since time.Time) ([]database.TemplateStat, error)
	CampaignTotals(ctx context.Context, userID string) (database.CampaignTotals, error)
	LastCampaign(ctx context.Context, userID string) (*database.Campaign, error)
	TopCampaigns(ctx context.Context, userID string, n int) ([]database.Campaign, error)
}

// AnalyticsService answers the read-only dashboard and analytics queries.
// Every projection tolerates an empty history.
type AnalyticsService struct {
	store       AnalyticsStore
	defaultDays int
	now         func() time.Time
}

// NewAnalyticsService creates the reporting service. defaultDays is the
// lookback used when a caller does not supply one.
func NewAnalyticsService(store AnalyticsStore, defaultDays int) *AnalyticsService {
	if defaultDays < 1 {
		defaultDays = 30
	}
	return &AnalyticsService{store: store, defaultDays: defaultDays, now: time.Now}
}

// RankedCampaign is a campaign annotated with its success rate.
type RankedCampaign struct {
	database.Campaign
	SuccessRate int `json:"successRate"`
}

// DashboardStats is the all-time summary shown on the dashboard.
type DashboardStats struct {
	TotalEmailsSent   int                     `json:"totalEmailsSent"`
	TotalEmailsFailed int                     `json:"totalEmailsFailed"`
	SuccessRate       int                     `json:"successRate"`
	LastCampaign      *database.Campaign      `json:"lastCampaign"`
	CampaignStats     database.CampaignTotals `json:"campaignStats"`
	RecentActivity    int                     `json:"recentActivity"`
	MonthlyActivity   int                     `json:"monthlyActivity"`
	TopCampaigns      []RankedCampaign        `json:"topCampaigns"`
}

// Dashboard builds the dashboard summary for one user.
func (s *AnalyticsService) Dashboard(ctx context.Context, userID string) (*DashboardStats, error) {
	now := s.now()

	sent, err := s.store.CountEmailLogs(ctx, userID, database.LogFilter{Status: database.StatusSent})
	if err != nil {
		return nil, err
	}
	failed, err := s.store.CountEmailLogs(ctx, userID, database.LogFilter{Status: database.StatusFailed})
	if err != nil {
		return nil, err
	}
	last, err := s.store.LastCampaign(ctx, userID)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.CampaignTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.CountEmailLogs(ctx, userID, database.LogFilter{From: now.AddDate(0, 0, -recentActivityDays)})
	if err != nil {
		return nil, err
	}
	monthly, err := s.store.CountEmailLogs(ctx, userID, database.LogFilter{From: now.AddDate(0, 0, -monthlyActivityDays)})
	if err != nil {
		return nil, err
	}
	top, err := s.store.TopCampaigns(ctx, userID, topCampaignCount)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedCampaign, len(top))
	for i, c := range top {
		ranked[i] = RankedCampaign{Campaign: c, SuccessRate: c.SuccessRate()}
	}

	return &DashboardStats{
		TotalEmailsSent:   sent,
		TotalEmailsFailed: failed,
		SuccessRate:       utils.SuccessRate(sent, sent+failed),
		LastCampaign:      last,
		CampaignStats:     totals,
		RecentActivity:    recent,
		MonthlyActivity:   monthly,
		TopCampaigns:      ranked,
	}, nil
}

// OverallStats summarises the lookback window.
type OverallStats struct {
	TotalEmails          int `json:"totalEmails"`
	TotalSent            int `json:"totalSent"`
	TotalFailed          int `json:"totalFailed"`
	SuccessRate          int `json:"successRate"`
	RecentActivity       int `json:"recentActivity"`
	MonthOverMonthGrowth int `json:"monthOverMonthGrowth"`
}

// DeliveryRate is one campaign's delivery outcome in the window.
type DeliveryRate struct {
	Date            time.Time `json:"date"`
	Name            string    `json:"name"`
	TotalRecipients int       `json:"totalRecipients"`
	SentCount       int       `json:"sentCount"`
	FailedCount     int       `json:"failedCount"`
	SuccessRate     int       `json:"successRate"`
}

// TemplatePerformance is the average outcome of campaigns sharing one
// serialized template.
type TemplatePerformance struct {
	Template           string `json:"template"`
	AverageSent        int    `json:"averageSent"`
	AverageFailed      int    `json:"averageFailed"`
	AverageRecipients  int    `json:"averageRecipients"`
	CampaignCount      int    `json:"campaignCount"`
	AverageSuccessRate int    `json:"averageSuccessRate"`
}

// AnalyticsReport is the time-windowed analytics view.
type AnalyticsReport struct {
	Period              int                   `json:"period"`
	OverallStats        OverallStats          `json:"overallStats"`
	DailyStats          []database.DailyStat  `json:"dailyStats"`
	DeliveryRates       []DeliveryRate        `json:"deliveryRates"`
	TemplatePerformance []TemplatePerformance `json:"templatePerformance"`
}

// Analytics builds the report over the last days days. A non-positive days
// selects the default lookback.
func (s *AnalyticsService) Analytics(ctx context.Context, userID string, days int) (*AnalyticsReport, error) {
	if days < 1 {
		days = s.defaultDays
	}
	now := s.now()
	start := now.AddDate(0, 0, -days)

	daily, err := s.store.DailyStats(ctx, userID, start)
	if err != nil {
		return nil, err
	}
	if daily == nil {
		daily = []database.DailyStat{}
	}
	campaigns, err := s.store.CampaignsSince(ctx, userID, start)
	if err != nil {
		return nil, err
	}
	templates, err := s.store.TemplatePerformance(ctx, userID, start)
	if err != nil {
		return nil, err
	}
	overall, err := s.overallStats(ctx, userID, start, now)
	if err != nil {
		return nil, err
	}

	rates := make([]DeliveryRate, len(campaigns))
	for i, c := range campaigns {
		rates[i] = DeliveryRate{
			Date:            c.CreatedAt,
			Name:            c.Name,
			TotalRecipients: c.TotalRecipients,
			SentCount:       c.SentCount,
			FailedCount:     c.FailedCount,
			SuccessRate:     c.SuccessRate(),
		}
	}

	perf := make([]TemplatePerformance, len(templates))
	for i, t := range templates {
		perf[i] = TemplatePerformance{
			Template:           t.Template,
			AverageSent:        utils.RoundAverage(t.AvgSent),
			AverageFailed:      utils.RoundAverage(t.AvgFailed),
			AverageRecipients:  utils.RoundAverage(t.AvgRecipients),
			CampaignCount:      t.CampaignCount,
			AverageSuccessRate: utils.AverageRate(t.AvgSent, t.AvgRecipients),
		}
	}

	return &AnalyticsReport{
		Period:              days,
		OverallStats:        *overall,
		DailyStats:          daily,
		DeliveryRates:       rates,
		TemplatePerformance: perf,
	}, nil
}

func (s *AnalyticsService) overallStats(ctx context.Context, userID string, start, now time.Time) (*OverallStats, error) {
	total, err := s.store.CountEmailLogs(ctx, userID, database.LogFilter{From: start})
	if err != nil {
		return nil, err
	}
	sent, err := s.store.CountEmailLogs(ctx, userID, database.LogFilter{Status: database.StatusSent, From: start})
	if err != nil {
		return nil, err
	}
	failed, err := s.store.CountEmailLogs(ctx, userID, database.LogFilter{Status: database.StatusFailed, From: start})
	if err != nil {
		return nil, err
	}
	recent, err := s.store.CountEmailLogs(ctx, userID, database.LogFilter{From: now.AddDate(0, 0, -recentActivityDays)})
	if err != nil {
		return nil, err
	}

	thisMonthStart, lastMonthStart := monthBounds(now)
	thisMonth, err := s.store.CountEmailLogs(ctx, userID, database.LogFilter{From: thisMonthStart})
	if err != nil {
		return nil, err
	}
	lastMonth, err := s.store.CountEmailLogs(ctx, userID, database.LogFilter{From: lastMonthStart, To: thisMonthStart})
	if err != nil {
		return nil, err
	}

	return &OverallStats{
		TotalEmails:          total,
		TotalSent:            sent,
		TotalFailed:          failed,
		SuccessRate:          utils.SuccessRate(sent, total),
		RecentActivity:       recent,
		MonthOverMonthGrowth: utils.GrowthPercent(thisMonth, lastMonth),
	}, nil
}

// monthBounds returns the UTC starts of the current and previous calendar
// months.
func monthBounds(now time.Time) (thisMonth, lastMonth time.Time) {
	now = now.UTC()
	thisMonth = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return thisMonth, thisMonth.AddDate(0, -1, 0)
}

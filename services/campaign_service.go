package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"campaign-mailer/database"
	"campaign-mailer/utils"
)

// CampaignStore is the persistence the campaign service needs.
type CampaignStore interface {
	EmailLogWriter
	CreateCampaign(ctx context.Context, c *database.Campaign) error
	CreateRecipients(ctx context.Context, recipients []database.CampaignRecipient) error
	FinalizeCampaign(ctx context.Context, campaignID string, outcomes []database.RecipientOutcome, at time.Time) (sent, failed int, err error)
	ListCampaigns(ctx context.Context, userID string, limit, offset int) ([]database.Campaign, error)
	CountCampaigns(ctx context.Context, userID string) (int, error)
	ListRecipients(ctx context.Context, campaignIDs []string) (map[string][]database.CampaignRecipient, error)
}

// SendRequest is an operator's request to dispatch one campaign.
type SendRequest struct {
	Template     Template    `json:"template"`
	Recipients   []Recipient `json:"recipients"`
	Theme        string      `json:"emailTemplate"`
	CampaignName string      `json:"campaignName"`
}

// CampaignStats are the final counters returned with a dispatch.
type CampaignStats struct {
	TotalRecipients int `json:"totalRecipients"`
	SentCount       int `json:"sentCount"`
	FailedCount     int `json:"failedCount"`
}

// SendResponse is the outcome of a dispatch request.
type SendResponse struct {
	Results       []DispatchResult `json:"results"`
	CampaignID    string           `json:"campaignId"`
	CampaignStats CampaignStats    `json:"campaignStats"`
}

// CampaignService opens campaigns, dispatches them and keeps the campaign
// and recipient records consistent with the outcomes.
type CampaignService struct {
	store      CampaignStore
	codec      *CredentialCodec
	dispatcher *Dispatcher
	now        func() time.Time
}

// NewCampaignService wires the campaign service.
func NewCampaignService(store CampaignStore, codec *CredentialCodec, dispatcher *Dispatcher) *CampaignService {
	return &CampaignService{
		store:      store,
		codec:      codec,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// ValidateRecipients rejects an empty list and any recipient whose email
// does not look like local@domain.tld, naming every offender at once.
func ValidateRecipients(recipients []Recipient) error {
	if len(recipients) == 0 {
		return invalid("No recipients provided")
	}
	var bad []string
	for _, r := range recipients {
		if !utils.IsValidEmail(r.Email()) {
			bad = append(bad, r.Email())
		}
	}
	if len(bad) > 0 {
		return invalid("Invalid email addresses found: " + strings.Join(bad, ", "))
	}
	return nil
}

// Send validates the request, opens a campaign and dispatches it with the
// user's stored mailbox credential. Individual delivery failures are
// reported in the results and never fail the call.
func (s *CampaignService) Send(ctx context.Context, user *database.User, req SendRequest) (*SendResponse, error) {
	if !user.HasMailboxConfig() {
		return nil, ErrCredentialMissing
	}
	if err := ValidateRecipients(req.Recipients); err != nil {
		return nil, err
	}
	secret, err := s.codec.Reveal(*user.ProtectedSecret)
	if err != nil {
		return nil, err
	}

	campaign, err := s.OpenCampaign(ctx, user.ID, req.CampaignName, req.Template, len(req.Recipients))
	if err != nil {
		return nil, err
	}
	rows, err := s.RegisterRecipients(ctx, campaign.ID, req.Recipients)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	log.Printf("[campaign] %s: dispatching to %d recipients", campaign.ID, len(req.Recipients))
	results, err := s.dispatcher.Dispatch(ctx, DispatchRequest{
		UserID:         user.ID,
		MailboxAddress: *user.MailboxAddress,
		Secret:         secret,
		Template:       req.Template,
		Theme:          ParseTheme(req.Theme),
		Recipients:     req.Recipients,
		RecipientIDs:   ids,
		CampaignID:     campaign.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch campaign %s: %w", campaign.ID, err)
	}

	sent, failed, err := s.Finalize(context.WithoutCancel(ctx), campaign.ID, results)
	if err != nil {
		return nil, err
	}
	log.Printf("[campaign] %s: completed, %d sent, %d failed", campaign.ID, sent, failed)

	return &SendResponse{
		Results:    results,
		CampaignID: campaign.ID,
		CampaignStats: CampaignStats{
			TotalRecipients: len(req.Recipients),
			SentCount:       sent,
			FailedCount:     failed,
		},
	}, nil
}

// OpenCampaign records a new campaign in sending state with zero counters.
func (s *CampaignService) OpenCampaign(ctx context.Context, userID, name string, tpl Template, recipientCount int) (*database.Campaign, error) {
	now := s.now()
	if name == "" {
		name = "Campaign " + now.Format("2006-01-02")
	}
	serialized, err := json.Marshal(tpl)
	if err != nil {
		return nil, fmt.Errorf("serialize template: %w", err)
	}

	c := &database.Campaign{
		ID:              uuid.New().String(),
		UserID:          userID,
		Name:            name,
		Subject:         tpl.Subject,
		Template:        string(serialized),
		TotalRecipients: recipientCount,
		Status:          database.CampaignSending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RegisterRecipients records one pending row per recipient, in input order,
// each carrying the full recipient record.
func (s *CampaignService) RegisterRecipients(ctx context.Context, campaignID string, recipients []Recipient) ([]database.CampaignRecipient, error) {
	rows := make([]database.CampaignRecipient, len(recipients))
	for i, r := range recipients {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("serialize recipient %d: %w", i, err)
		}
		row := database.CampaignRecipient{
			ID:         uuid.New().String(),
			CampaignID: campaignID,
			Position:   i,
			Email:      r.Email(),
			CustomData: string(data),
			Status:     database.StatusPending,
		}
		if name, ok := r["name"]; ok {
			row.Name = &name
		}
		rows[i] = row
	}
	if err := s.store.CreateRecipients(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Finalize applies each result to its recipient row and completes the
// campaign with counters recomputed from the recipient rows.
func (s *CampaignService) Finalize(ctx context.Context, campaignID string, results []DispatchResult) (sent, failed int, err error) {
	outcomes := make([]database.RecipientOutcome, 0, len(results))
	for _, r := range results {
		if r.RecipientID == "" {
			continue
		}
		outcomes = append(outcomes, database.RecipientOutcome{
			RecipientID: r.RecipientID,
			Status:      r.Status,
			Error:       r.Error,
		})
	}
	return s.store.FinalizeCampaign(ctx, campaignID, outcomes, s.now())
}

// CampaignView is a campaign with its derived counters and recipients.
type CampaignView struct {
	database.Campaign
	SuccessRate  int                          `json:"successRate"`
	PendingCount int                          `json:"pendingCount"`
	Recipients   []database.CampaignRecipient `json:"recipients"`
}

// Pagination describes one page of a list.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// CampaignPage is one page of a user's campaigns, newest first.
type CampaignPage struct {
	Campaigns  []CampaignView `json:"campaigns"`
	Pagination Pagination     `json:"pagination"`
}

// List returns a page of the user's campaigns. page is 1-based.
func (s *CampaignService) List(ctx context.Context, userID string, page, limit int) (*CampaignPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	campaigns, err := s.store.ListCampaigns(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountCampaigns(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(campaigns))
	for i, c := range campaigns {
		ids[i] = c.ID
	}
	recipients, err := s.store.ListRecipients(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]CampaignView, len(campaigns))
	for i, c := range campaigns {
		rs := recipients[c.ID]
		if rs == nil {
			rs = []database.CampaignRecipient{}
		}
		views[i] = CampaignView{
			Campaign:     c,
			SuccessRate:  c.SuccessRate(),
			PendingCount: c.PendingCount(),
			Recipients:   rs,
		}
	}

	return &CampaignPage{
		Campaigns: views,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

package database

import (
	"errors"
	"time"

	"campaign-mailer/utils"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("record not found")

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
)

// RecipientStatus is the delivery state of a single recipient or log row.
type RecipientStatus string

const (
	StatusPending RecipientStatus = "pending"
	StatusSent    RecipientStatus = "sent"
	StatusFailed  RecipientStatus = "failed"
)

// User represents a row in the users table
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            *string   `json:"name,omitempty"`
	Purpose         *string   `json:"purpose,omitempty"`
	MailboxAddress  *string   `json:"mailboxAddress,omitempty"`
	ProtectedSecret *string   `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// HasMailboxConfig reports whether both a mailbox address and a stored
// secret are present.
func (u *User) HasMailboxConfig() bool {
	return u.MailboxAddress != nil && *u.MailboxAddress != "" &&
		u.ProtectedSecret != nil && *u.ProtectedSecret != ""
}

// Campaign represents a row in the campaigns table
type Campaign struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	Name            string         `json:"name"`
	Subject         string         `json:"subject"`
	Template        string         `json:"template,omitempty"` // serialized {subject, body}
	TotalRecipients int            `json:"totalRecipients"`
	SentCount       int            `json:"sentCount"`
	FailedCount     int            `json:"failedCount"`
	Status          CampaignStatus `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// SuccessRate is the rounded percentage of recipients that were sent.
func (c *Campaign) SuccessRate() int {
	return utils.SuccessRate(c.SentCount, c.TotalRecipients)
}

// PendingCount is derived, never stored.
func (c *Campaign) PendingCount() int {
	return utils.PendingCount(c.TotalRecipients, c.SentCount, c.FailedCount)
}

// CampaignRecipient represents a row in the campaign_recipients table
type CampaignRecipient struct {
	ID         string          `json:"id"`
	CampaignID string          `json:"campaignId"`
	Position   int             `json:"-"`
	Email      string          `json:"email"`
	Name       *string         `json:"name,omitempty"`
	CustomData string          `json:"-"` // full recipient record as JSON
	Status     RecipientStatus `json:"status"`
	SentAt     *time.Time      `json:"sentAt,omitempty"`
	Error      *string         `json:"error,omitempty"`
}

// RecipientOutcome is the terminal result applied to one campaign recipient row.
type RecipientOutcome struct {
	RecipientID string
	Status      RecipientStatus
	Error       string
}

// EmailLog represents a row in the email_logs table. Rows are append-only.
type EmailLog struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	CampaignID     *string         `json:"campaignId,omitempty"`
	Subject        string          `json:"subject"`
	RecipientEmail string          `json:"recipientEmail"`
	Status         RecipientStatus `json:"status"`
	Error          *string         `json:"error,omitempty"`
	SentAt         time.Time       `json:"sentAt"`
}

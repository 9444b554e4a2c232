package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"
	"unicode/utf8"

	"campaign-mailer/database"
	"campaign-mailer/utils"
)

// appPasswordLength is the length of a Gmail app password with its spaces
// removed.
const appPasswordLength = 16

var validPurposes = map[string]bool{
	"Student":      true,
	"Company":      true,
	"Professional": true,
}

// UserStore is the persistence the setup flow needs.
type UserStore interface {
	SaveCredential(ctx context.Context, userID, mailboxAddress, protectedSecret string) error
	SetPurpose(ctx context.Context, userID, purpose string) error
	ListUsersWithCredentials(ctx context.Context) ([]database.User, error)
	ClearCredential(ctx context.Context, userID string) error
}

// SetupService configures an operator's mailbox credential and profile.
type SetupService struct {
	store     UserStore
	codec     *CredentialCodec
	transport Transport
}

// NewSetupService wires the setup service.
func NewSetupService(store UserStore, codec *CredentialCodec, transport Transport) *SetupService {
	return &SetupService{store: store, codec: codec, transport: transport}
}

// SetupMailbox validates the mailbox credential, proves it can authenticate
// and stores it protected. Nothing is stored when any step fails.
func (s *SetupService) SetupMailbox(ctx context.Context, userID, mailboxAddress, secret string) error {
	if !utils.IsGmailAddress(mailboxAddress) {
		return invalid("Please enter a valid Gmail address")
	}
	if utf8.RuneCountInString(secret) != appPasswordLength || strings.IndexFunc(secret, unicode.IsSpace) >= 0 {
		return invalid("App password must be exactly 16 characters with no spaces")
	}
	if !VerifyReachable(ctx, s.transport, mailboxAddress, secret) {
		return invalid("Failed to authenticate with Gmail. Please check your email and app password.")
	}

	protected, err := s.codec.Protect(secret)
	if err != nil {
		return fmt.Errorf("protect mailbox secret: %w", err)
	}
	if err := s.store.SaveCredential(ctx, userID, mailboxAddress, protected); err != nil {
		return err
	}
	log.Printf("[setup] mailbox %s configured", utils.RedactEmail(mailboxAddress))
	return nil
}

// SetPurpose records the operator's declared use of the mailer.
func (s *SetupService) SetPurpose(ctx context.Context, userID, purpose string) error {
	if !validPurposes[purpose] {
		return invalid("Invalid purpose")
	}
	return s.store.SetPurpose(ctx, userID, purpose)
}

// SetupStatus summarises what the operator has configured.
type SetupStatus struct {
	HasMailboxConfig bool    `json:"hasMailboxConfig"`
	MailboxAddress   *string `json:"mailboxAddress,omitempty"`
	Purpose          *string `json:"purpose,omitempty"`
}

// Status reports the user's configuration without touching the secret.
func (s *SetupService) Status(user *database.User) SetupStatus {
	return SetupStatus{
		HasMailboxConfig: user.HasMailboxConfig(),
		MailboxAddress:   user.MailboxAddress,
		Purpose:          user.Purpose,
	}
}

// MigrateLegacyCredentials clears every stored secret that predates
// reversible protection so the operator is prompted to enter it again.
// Reversible values are left untouched. It returns how many were cleared.
func (s *SetupService) MigrateLegacyCredentials(ctx context.Context) (int, error) {
	users, err := s.store.ListUsersWithCredentials(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("[setup] found %d users with stored app passwords", len(users))

	cleared := 0
	for _, u := range users {
		if u.ProtectedSecret == nil || !IsLegacyCredential(*u.ProtectedSecret) {
			continue
		}
		if err := s.store.ClearCredential(ctx, u.ID); err != nil {
			return cleared, fmt.Errorf("clear legacy credential of user %s: %w", u.ID, err)
		}
		cleared++
		log.Printf("[setup] user %s: legacy app password cleared", utils.RedactEmail(u.Email))
	}
	return cleared, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"campaign-mailer/database"
)

const testEncryptionKey = "test-encryption-key-for-unit-tests"

// fakeTransport records every message and fails the recipients listed in failFor.
type fakeTransport struct {
	mu        sync.Mutex
	failFor   map[string]error
	hangFor   map[string]bool
	openErr   error
	verifyErr error
	opened    int
	closed    int
	sent      []Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failFor: map[string]error{}, hangFor: map[string]bool{}}
}

func (t *fakeTransport) Open(_ context.Context, _, _ string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opened++
	if t.openErr != nil {
		return nil, t.openErr
	}
	return &fakeSession{t: t}, nil
}

func (t *fakeTransport) Verify(_ context.Context, _, _ string) error {
	return t.verifyErr
}

func (t *fakeTransport) sentTo() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	for i, m := range t.sent {
		out[i] = m.To
	}
	return out
}

type fakeSession struct {
	t *fakeTransport
}

func (s *fakeSession) Send(ctx context.Context, msg Message) error {
	s.t.mu.Lock()
	hang := s.t.hangFor[msg.To]
	s.t.mu.Unlock()
	if hang {
		<-ctx.Done()
		return fmt.Errorf("%w: %v", ErrSessionBroken, ctx.Err())
	}

	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if err := s.t.failFor[msg.To]; err != nil {
		return err
	}
	s.t.sent = append(s.t.sent, msg)
	return nil
}

func (s *fakeSession) Close() error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.t.closed++
	return nil
}

// memStore is an in-memory CampaignStore and UserStore.
type memStore struct {
	mu         sync.Mutex
	campaigns  map[string]*database.Campaign
	recipients map[string]*database.CampaignRecipient
	logs       []database.EmailLog
	users      map[string]*database.User
	logErr     error
}

func newMemStore() *memStore {
	return &memStore{
		campaigns:  map[string]*database.Campaign{},
		recipients: map[string]*database.CampaignRecipient{},
		users:      map[string]*database.User{},
	}
}

func (m *memStore) InsertEmailLog(_ context.Context, l *database.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logErr != nil {
		return m.logErr
	}
	m.logs = append(m.logs, *l)
	return nil
}

func (m *memStore) CreateCampaign(_ context.Context, c *database.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *memStore) CreateRecipients(_ context.Context, rs []database.CampaignRecipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rs {
		cp := r
		m.recipients[r.ID] = &cp
	}
	return nil
}

func (m *memStore) FinalizeCampaign(_ context.Context, campaignID string, outcomes []database.RecipientOutcome, at time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return 0, 0, database.ErrNotFound
	}
	for _, o := range outcomes {
		r, ok := m.recipients[o.RecipientID]
		if !ok || r.CampaignID != campaignID {
			continue
		}
		r.Status = o.Status
		r.SentAt, r.Error = nil, nil
		if o.Status == database.StatusSent {
			ts := at
			r.SentAt = &ts
		}
		if o.Status == database.StatusFailed {
			msg := o.Error
			r.Error = &msg
		}
	}
	sent, failed := 0, 0
	for _, r := range m.recipients {
		if r.CampaignID != campaignID {
			continue
		}
		switch r.Status {
		case database.StatusSent:
			sent++
		case database.StatusFailed:
			failed++
		}
	}
	c.SentCount, c.FailedCount, c.Status, c.UpdatedAt = sent, failed, database.CampaignCompleted, at
	return sent, failed, nil
}

func (m *memStore) ListCampaigns(_ context.Context, userID string, limit, offset int) ([]database.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Campaign
	for _, c := range m.campaigns {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []database.Campaign{}, nil
	}
	end := min(offset+limit, len(out))
	return out[offset:end], nil
}

func (m *memStore) CountCampaigns(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.campaigns {
		if c.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListRecipients(_ context.Context, campaignIDs []string) (map[string][]database.CampaignRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]database.CampaignRecipient{}
	for _, id := range campaignIDs {
		for _, r := range m.recipients {
			if r.CampaignID == id {
				out[id] = append(out[id], *r)
			}
		}
		sort.Slice(out[id], func(i, j int) bool { return out[id][i].Position < out[id][j].Position })
	}
	return out, nil
}

func (m *memStore) recipientsOf(campaignID string) []database.CampaignRecipient {
	out, _ := m.ListRecipients(context.Background(), []string{campaignID})
	return out[campaignID]
}

func (m *memStore) SaveCredential(_ context.Context, userID, mailbox, protected string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return database.ErrNotFound
	}
	u.MailboxAddress = &mailbox
	u.ProtectedSecret = &protected
	return nil
}

func (m *memStore) SetPurpose(_ context.Context, userID, purpose string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return database.ErrNotFound
	}
	u.Purpose = &purpose
	return nil
}

func (m *memStore) ListUsersWithCredentials(_ context.Context) ([]database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.User
	for _, u := range m.users {
		if u.ProtectedSecret != nil {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memStore) ClearCredential(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return database.ErrNotFound
	}
	u.ProtectedSecret = nil
	return nil
}

var errSMTPRejected = errors.New("550 mailbox unavailable")

func strPtr(s string) *string { return &s }

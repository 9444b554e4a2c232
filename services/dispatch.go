package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"campaign-mailer/database"
	"campaign-mailer/utils"
)

// errDispatchCancelled is recorded for recipients not attempted because the
// caller gave up on the batch.
var errDispatchCancelled = errors.New("dispatch cancelled")

// DispatchResult is the outcome of one recipient's delivery attempt.
type DispatchResult struct {
	Email       string                   `json:"email"`
	Status      database.RecipientStatus `json:"status"`
	Error       string                   `json:"error,omitempty"`
	RecipientID string                   `json:"-"`
}

// EmailLogWriter persists the append-only audit row of a send attempt.
type EmailLogWriter interface {
	InsertEmailLog(ctx context.Context, l *database.EmailLog) error
}

// DispatchRequest is one batch: who sends, what, to whom.
type DispatchRequest struct {
	UserID         string
	MailboxAddress string
	Secret         string
	Template       Template
	Theme          Theme
	Recipients     []Recipient
	// RecipientIDs, when set, holds the campaign recipient row id of each
	// entry of Recipients at the same index.
	RecipientIDs []string
	CampaignID   string
}

// Dispatcher sends one personalised message per recipient and classifies
// each attempt as sent or failed. Failures never stop the batch.
type Dispatcher struct {
	transport   Transport
	logs        EmailLogWriter
	workers     int
	sendTimeout time.Duration
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher. workers bounds how many recipients are
// in flight at once, each worker holding its own mail session; 1 keeps the
// strictly sequential order. A zero sendTimeout disables the per-recipient
// deadline.
func NewDispatcher(t Transport, logs EmailLogWriter, workers int, sendTimeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		transport:   t,
		logs:        logs,
		workers:     workers,
		sendTimeout: sendTimeout,
		now:         time.Now,
	}
}

// workerSlot is the lazily opened session owned by one worker.
type workerSlot struct {
	session Session
	openErr error
}

// Dispatch attempts delivery to every recipient and returns one result per
// recipient in input order. Every attempt, including those skipped after
// ctx is cancelled, is logged exactly once. The returned error is only set
// when an audit row could not be written; the results are then incomplete.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) ([]DispatchResult, error) {
	results := make([]DispatchResult, len(req.Recipients))
	if len(req.Recipients) == 0 {
		return results, nil
	}

	workers := min(d.workers, len(req.Recipients))
	slots := make(chan *workerSlot, workers)
	for i := 0; i < workers; i++ {
		slots <- &workerSlot{}
	}

	// Audit rows must be written even when the caller has cancelled.
	persistCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(persistCtx)
	g.SetLimit(workers)

	for i, rcpt := range req.Recipients {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			slot := <-slots
			defer func() { slots <- slot }()

			res, subject := d.deliver(ctx, slot, req, rcpt)
			if i < len(req.RecipientIDs) {
				res.RecipientID = req.RecipientIDs[i]
			}
			results[i] = res
			return d.record(gctx, req, subject, res)
		})
	}
	err := g.Wait()

	close(slots)
	for slot := range slots {
		if slot.session != nil {
			if cerr := slot.session.Close(); cerr != nil {
				log.Printf("[dispatch] closing mail session: %v", cerr)
			}
		}
	}
	return results, err
}

func (d *Dispatcher) deliver(ctx context.Context, slot *workerSlot, req DispatchRequest, rcpt Recipient) (DispatchResult, string) {
	subject, html := RenderMessage(req.Template, rcpt, req.Theme)
	res := DispatchResult{Email: rcpt.Email()}

	fail := func(err error) (DispatchResult, string) {
		res.Status = database.StatusFailed
		res.Error = err.Error()
		log.Printf("[dispatch] send to %s failed: %v", utils.RedactEmail(res.Email), err)
		return res, subject
	}

	if ctx.Err() != nil {
		return fail(errDispatchCancelled)
	}

	if slot.session == nil {
		// An authentication failure is not retried for the rest of this
		// worker's share of the batch.
		if slot.openErr != nil {
			return fail(slot.openErr)
		}
		sess, err := d.transport.Open(ctx, req.MailboxAddress, req.Secret)
		if err != nil {
			if ctx.Err() != nil {
				return fail(errDispatchCancelled)
			}
			slot.openErr = err
			return fail(err)
		}
		slot.session = sess
	}

	sendCtx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	err := slot.session.Send(sendCtx, Message{
		From:    req.MailboxAddress,
		To:      rcpt.Email(),
		Subject: subject,
		HTML:    html,
	})
	if errors.Is(err, ErrSessionBroken) {
		slot.session.Close()
		slot.session = nil
	}
	if err != nil {
		return fail(err)
	}

	res.Status = database.StatusSent
	return res, subject
}

func (d *Dispatcher) record(ctx context.Context, req DispatchRequest, subject string, res DispatchResult) error {
	entry := &database.EmailLog{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		Subject:        subject,
		RecipientEmail: res.Email,
		Status:         res.Status,
		SentAt:         d.now(),
	}
	if req.CampaignID != "" {
		campaignID := req.CampaignID
		entry.CampaignID = &campaignID
	}
	if res.Status == database.StatusFailed {
		msg := res.Error
		entry.Error = &msg
	}
	return d.logs.InsertEmailLog(ctx, entry)
}

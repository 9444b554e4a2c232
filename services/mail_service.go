package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"campaign-mailer/config"

	mail "gopkg.in/gomail.v2"
)

// ErrSessionBroken marks a session that must not be used again, typically
// because a send outlived its deadline while still holding the connection.
var ErrSessionBroken = errors.New("mail session broken")

// Message is a fully rendered outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Session is an authenticated connection to the mail server. A session is
// not safe for concurrent use.
type Session interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Transport opens authenticated sessions on behalf of a mailbox.
type Transport interface {
	// Open dials and authenticates. The error is an authentication or
	// connectivity failure.
	Open(ctx context.Context, mailboxAddress, secret string) (Session, error)
	// Verify authenticates and disconnects without sending anything.
	Verify(ctx context.Context, mailboxAddress, secret string) error
}

// GomailTransport talks SMTP (STARTTLS or implicit TLS, depending on the
// port) to a single mail hub.
type GomailTransport struct {
	host          string
	port          int
	skipTLSVerify bool
}

// NewGomailTransport parses cfg.MailHub as host:port.
func NewGomailTransport(cfg *config.Config) (*GomailTransport, error) {
	parts := strings.Split(cfg.MailHub, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid MAILHUB format: %s. Expected host:port", cfg.MailHub)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid port in MAILHUB: %w", err)
	}
	if cfg.SkipTLSVerify {
		log.Println("[mail] WARNING: TLS certificate verification is DISABLED.")
	}
	return &GomailTransport{host: parts[0], port: port, skipTLSVerify: cfg.SkipTLSVerify}, nil
}

func (t *GomailTransport) dialer(mailboxAddress, secret string) *mail.Dialer {
	d := mail.NewDialer(t.host, t.port, mailboxAddress, secret)
	d.TLSConfig = &tls.Config{
		ServerName:         t.host,
		InsecureSkipVerify: t.skipTLSVerify,
	}
	return d
}

// dial runs the blocking gomail dial but gives up when ctx ends first. A dial
// that completes after the caller gave up is closed in the background.
func (t *GomailTransport) dial(ctx context.Context, mailboxAddress, secret string) (mail.SendCloser, error) {
	type dialResult struct {
		sc  mail.SendCloser
		err error
	}
	done := make(chan dialResult, 1)
	go func() {
		sc, err := t.dialer(mailboxAddress, secret).Dial()
		done <- dialResult{sc, err}
	}()

	select {
	case res := <-done:
		return res.sc, res.err
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				res.sc.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Open implements Transport.
func (t *GomailTransport) Open(ctx context.Context, mailboxAddress, secret string) (Session, error) {
	sc, err := t.dial(ctx, mailboxAddress, secret)
	if err != nil {
		return nil, fmt.Errorf("could not open mail session: %w", err)
	}
	return &gomailSession{sc: sc}, nil
}

// Verify implements Transport.
func (t *GomailTransport) Verify(ctx context.Context, mailboxAddress, secret string) error {
	sc, err := t.dial(ctx, mailboxAddress, secret)
	if err != nil {
		return err
	}
	return sc.Close()
}

type gomailSession struct {
	sc     mail.SendCloser
	broken bool
}

// Send delivers msg over the open connection. If ctx ends before the server
// accepts the message the session is marked broken, because the SMTP
// conversation may still be in progress.
func (s *gomailSession) Send(ctx context.Context, msg Message) error {
	if s.broken {
		return ErrSessionBroken
	}

	m := mail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	done := make(chan error, 1)
	go func() { done <- mail.Send(s.sc, m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("could not send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.broken = true
		go func() {
			<-done
			s.sc.Close()
		}()
		return fmt.Errorf("%w: %v", ErrSessionBroken, ctx.Err())
	}
}

func (s *gomailSession) Close() error {
	if s.broken {
		return nil
	}
	return s.sc.Close()
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"
)

// Message is one email, rendered in both HTML and plain text.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer is the outbound email transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers messages through an SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	gm := mail.NewMsg()
	if err := gm.From(m.cfg.From); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := gm.To(msg.To); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	gm.Subject(msg.Subject)
	gm.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		gm.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, gm); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them.
// Used when no SMTP relay is configured.
type LogMailer struct {
	Log *slog.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	l := m.Log
	if l == nil {
		l = slog.Default()
	}
	l.Info("email not sent (no smtp relay)", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Notifier delivers messages fire-and-log: failures are logged and returned
// for bookkeeping, never retried here.
type Notifier struct {
	mailer Mailer
	log    *slog.Logger
}

func NewNotifier(m Mailer, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{mailer: m, log: log}
}

func (n *Notifier) Deliver(ctx context.Context, msg Message) error {
	if err := n.mailer.Send(ctx, msg); err != nil {
		n.log.Warn("email delivery failed", "subject", msg.Subject, "err", err)
		return err
	}
	n.log.Debug("email delivered", "subject", msg.Subject)
	return nil
}

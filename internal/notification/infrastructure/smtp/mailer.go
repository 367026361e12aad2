package smtp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/dmehra2102/vinyl-storefront/internal/notification/domain"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Mailer struct {
	log    *slog.Logger
	client *mail.Client
	from   string
}

func NewMailer(log *slog.Logger, cfg Config) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &Mailer{log: log, client: client, from: cfg.From}, nil
}

func (m *Mailer) Send(ctx context.Context, email domain.Email) error {
	msg, err := m.message(email)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		m.log.Error("failed to send email", "to", email.To, "subject", email.Subject, "err", err)
		return err
	}
	m.log.Debug("email sent", "to", email.To, "subject", email.Subject)
	return nil
}

func (m *Mailer) message(email domain.Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("from address %q: %w", m.from, err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, fmt.Errorf("recipient address %q: %w", email.To, err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextHTML, email.HTML)
	return msg, nil
}

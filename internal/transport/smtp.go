package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host       string `env:"SMTP_HOST"`
	Port       int    `env:"SMTP_PORT" envDefault:"587"`
	Username   string `env:"SMTP_USER"`
	Password   string `env:"SMTP_PASS"`
	Encryption string `env:"SMTP_ENCRYPTION" envDefault:"starttls"` // "none", "starttls", "ssl_tls"
}

// SMTPSender delivers email through an SMTP relay using go-mail.
type SMTPSender struct {
	config SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: SMTP host is required", ErrInvalidConfig)
	}
	return &SMTPSender{config: cfg}, nil
}

// SendEmail sends the text body with the HTML body as an alternative part.
func (s *SMTPSender) SendEmail(ctx context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}

	m, err := s.buildMsg(email)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.config.Port),
		mail.WithTLSPolicy(tlsPolicyFromEncryption(s.config.Encryption)),
	}
	if s.config.Encryption == "ssl_tls" {
		opts = append(opts, mail.WithSSL())
	}
	if s.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password),
		)
	}

	c, err := mail.NewClient(s.config.Host, opts...)
	if err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}

func (s *SMTPSender) buildMsg(email Email) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(email.From); err != nil {
		return nil, errors.Join(ErrInvalidParams, fmt.Errorf("from address: %w", err))
	}
	if err := m.To(email.To); err != nil {
		return nil, errors.Join(ErrInvalidParams, fmt.Errorf("recipient %q: %w", email.To, err))
	}
	m.Subject(email.Subject)
	m.SetBodyString(mail.TypeTextPlain, email.Text)
	if email.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, email.HTML)
	}
	return m, nil
}

func tlsPolicyFromEncryption(enc string) mail.TLSPolicy {
	switch enc {
	case "ssl_tls":
		return mail.TLSMandatory
	case "starttls":
		return mail.TLSOpportunistic
	default:
		return mail.NoTLS
	}
}

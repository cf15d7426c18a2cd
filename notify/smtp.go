package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/gomail.v2"
)

// SMTPConfig holds SMTP settings. LoadSMTPConfig reads them from
// GOIDENTITY_SMTP_* variables.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

// LoadSMTPConfig parses SMTPConfig from the environment.
func LoadSMTPConfig() (SMTPConfig, error) {
	return env.ParseAsWithOptions[SMTPConfig](env.Options{Prefix: "GOIDENTITY_"})
}

func (c SMTPConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("missing SMTP host")
	}
	if c.Port <= 0 {
		return fmt.Errorf("missing SMTP port")
	}
	if c.From == "" {
		return fmt.Errorf("missing SMTP from address")
	}
	return nil
}

// SMTPNotifier sends plain-text mail through an SMTP relay.
type SMTPNotifier struct {
	from string
	send func(*gomail.Message) error
}

// NewSMTPNotifier validates cfg and returns a notifier that dials per
// message.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTPNotifier{from: cfg.From, send: func(m *gomail.Message) error {
		return dialer.DialAndSend(m)
	}}, nil
}

// NewSenderNotifier sends through an existing gomail.Sender, for example a
// pooled connection or a gomail.SendFunc.
func NewSenderNotifier(from string, sender gomail.Sender) *SMTPNotifier {
	return &SMTPNotifier{from: from, send: func(m *gomail.Message) error {
		return gomail.Send(sender, m)
	}}
}

// Send implements goIdentity.Notifier. The SMTP exchange itself is not
// cancellable; ctx is checked before dialing.
func (n *SMTPNotifier) Send(ctx context.Context, email, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("no recipient specified")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	return n.send(msg)
}

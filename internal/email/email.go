// Package email delivers account mails through a configurable provider.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultSendTimeout = 30 * time.Second
	plainFallback      = "Open this message in an HTML capable mail client."
)

// Sender delivers one HTML mail and reports whether the provider accepted it.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) bool
}

// Config selects and configures the provider. Provider is one of smtp,
// mailgun, sendgrid or log.
type Config struct {
	Provider string
	From     string
	Timeout  time.Duration
	SMTP     SMTPConfig
	Mailgun  MailgunConfig
	SendGrid SendGridConfig
}

// New returns the Sender named by cfg.Provider. An empty provider logs mails
// instead of sending them.
func New(cfg Config, log logrus.FieldLogger) (Sender, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSendTimeout
	}
	log = log.WithField("component", "email")
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "log":
		return &LogSender{log: log}, nil
	case "smtp":
		return newSMTPSender(cfg, log)
	case "mailgun":
		return newMailgunSender(cfg, log)
	case "sendgrid":
		return newSendGridSender(cfg, log)
	default:
		return nil, fmt.Errorf("email: unknown provider %q", cfg.Provider)
	}
}

// LogSender records mails in the log and never fails.
type LogSender struct {
	log logrus.FieldLogger
}

func NewLogSender(log logrus.FieldLogger) *LogSender {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, to, subject, _ string) bool {
	s.log.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("email not sent: no provider configured")
	return true
}

func requireFrom(cfg Config) error {
	if strings.TrimSpace(cfg.From) == "" {
		return errors.New("email: from address is required")
	}
	return nil
}

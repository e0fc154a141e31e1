package email

import (
	"context"
	"errors"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/sirupsen/logrus"
)

// MailgunConfig holds the configuration for Mailgun.
type MailgunConfig struct {
	Domain string
	APIKey string
}

// MailgunSender delivers through the Mailgun API.
type MailgunSender struct {
	mg      *mailgun.MailgunImpl
	from    string
	timeout time.Duration
	log     logrus.FieldLogger
}

func newMailgunSender(cfg Config, log logrus.FieldLogger) (*MailgunSender, error) {
	if err := requireFrom(cfg); err != nil {
		return nil, err
	}
	if cfg.Mailgun.Domain == "" || cfg.Mailgun.APIKey == "" {
		return nil, errors.New("email: mailgun domain and api key are required")
	}
	return &MailgunSender{
		mg:      mailgun.NewMailgun(cfg.Mailgun.Domain, cfg.Mailgun.APIKey),
		from:    cfg.From,
		timeout: cfg.Timeout,
		log:     log,
	}, nil
}

func (s *MailgunSender) Send(ctx context.Context, to, subject, htmlBody string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	message := s.mg.NewMessage(s.from, subject, "")
	message.SetHtml(htmlBody)
	if err := message.AddRecipient(to); err != nil {
		s.log.WithError(err).Error("mailgun recipient rejected")
		return false
	}
	_, id, err := s.mg.Send(ctx, message)
	if err != nil {
		s.log.WithError(err).WithField("subject", subject).Error("mailgun send failed")
		return false
	}
	s.log.WithField("message_id", id).Debug("mailgun message queued")
	return true
}

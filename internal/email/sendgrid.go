package email

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// SendGridConfig holds the configuration for SendGrid. Host overrides the API
// host and is meant for tests.
type SendGridConfig struct {
	APIKey string
	Host   string
}

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	client  *sendgrid.Client
	from    *mail.Email
	timeout time.Duration
	log     logrus.FieldLogger
}

func newSendGridSender(cfg Config, log logrus.FieldLogger) (*SendGridSender, error) {
	if err := requireFrom(cfg); err != nil {
		return nil, err
	}
	if cfg.SendGrid.APIKey == "" {
		return nil, errors.New("email: sendgrid api key is required")
	}
	client := sendgrid.NewSendClient(cfg.SendGrid.APIKey)
	if cfg.SendGrid.Host != "" {
		req := sendgrid.GetRequest(cfg.SendGrid.APIKey, "/v3/mail/send", cfg.SendGrid.Host)
		req.Method = http.MethodPost
		client = &sendgrid.Client{Request: req}
	}
	return &SendGridSender{
		client:  client,
		from:    mail.NewEmail("", cfg.From),
		timeout: cfg.Timeout,
		log:     log,
	}, nil
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, htmlBody string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	message := mail.NewSingleEmail(s.from, subject, mail.NewEmail("", to), plainFallback, htmlBody)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.log.WithError(err).WithField("subject", subject).Error("sendgrid send failed")
		return false
	}
	if resp.StatusCode != http.StatusAccepted {
		s.log.WithField("status", resp.StatusCode).WithField("subject", subject).Error("sendgrid rejected message")
		return false
	}
	return true
}

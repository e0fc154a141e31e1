package email

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SMTPConfig holds the configuration for plain SMTP delivery.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
}

// SMTPSender delivers through an SMTP relay.
type SMTPSender struct {
	addr    string
	auth    smtp.Auth
	from    string
	timeout time.Duration
	log     logrus.FieldLogger
	send    func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func newSMTPSender(cfg Config, log logrus.FieldLogger) (*SMTPSender, error) {
	if err := requireFrom(cfg); err != nil {
		return nil, err
	}
	if cfg.SMTP.Host == "" || cfg.SMTP.Port == "" {
		return nil, errors.New("email: smtp host and port are required")
	}
	var auth smtp.Auth
	if cfg.SMTP.Username != "" {
		auth = smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Host)
	}
	return &SMTPSender{
		addr:    net.JoinHostPort(cfg.SMTP.Host, cfg.SMTP.Port),
		auth:    auth,
		from:    cfg.From,
		timeout: cfg.Timeout,
		log:     log,
		send:    smtp.SendMail,
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := buildMessage(s.from, to, subject, htmlBody)
	done := make(chan error, 1)
	go func() { done <- s.send(s.addr, s.auth, s.from, []string{to}, msg) }()
	select {
	case err := <-done:
		if err != nil {
			s.log.WithError(err).WithField("subject", subject).Error("smtp send failed")
			return false
		}
		return true
	case <-ctx.Done():
		s.log.WithError(ctx.Err()).WithField("subject", subject).Error("smtp send aborted")
		return false
	}
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

package notify

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"gopkg.in/gomail.v2"
)

type Sender interface {
	Send(ctx context.Context, to string, subject string, html string) error
	ProviderID() string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender delivers HTML email through an SMTP relay. Without credentials
// it talks plain SMTP, which is what Mailpit expects in development.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@pastoralcare.local"
	}
	if name := strings.TrimSpace(cfg.FromName); name != "" {
		from = (&mail.Address{Name: name, Address: from}).String()
	}
	port := cfg.Port
	if port == 0 {
		port = 25
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(strings.TrimSpace(cfg.Host), port, cfg.Username, cfg.Password),
		from:   from,
	}
}

func (s *SMTPSender) ProviderID() string {
	return "smtp"
}

func (s *SMTPSender) Send(ctx context.Context, to string, subject string, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

type NoopSender struct{}

func (NoopSender) ProviderID() string {
	return "noop"
}

func (NoopSender) Send(context.Context, string, string, string) error {
	return nil
}

// ValidAddress reports whether s is a single bare email address.
func ValidAddress(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s
}

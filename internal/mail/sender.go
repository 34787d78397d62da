// Package mail sends outbound email over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"gopkg.in/gomail.v2"
)

// Dialer delivers composed messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends plain-text email as a fixed From address.
type SMTPSender struct {
	dialer Dialer
	from   string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	FromName string
}

// NewSMTPSender dials host:port with username/password. Port 465 uses
// implicit TLS; other ports use STARTTLS when the server offers it.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.Port == 465
	return NewSenderWithDialer(d, formatFrom(cfg.FromName, cfg.Username))
}

func NewSenderWithDialer(d Dialer, from string) *SMTPSender {
	return &SMTPSender{dialer: d, from: from}
}

func formatFrom(name, addr string) string {
	if name == "" {
		return addr
	}
	return (&mail.Address{Name: name, Address: addr}).String()
}

// Send delivers one message. A nil error means the server accepted it.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to == "" {
		return errors.New("sending email: empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("sending email to %s: %w", to, err)
	}
	return nil
}

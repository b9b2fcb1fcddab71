// Package mail sends email over SMTP using gomail.
package mail

import (
	"log"

	gomail "gopkg.in/gomail.v2"
)

type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	SenderName  string
	SenderEmail string
}

// Sender sends one email. Implementations must be safe for concurrent use.
type Sender interface {
	Send(to, subject, htmlBody string) error
}

type SMTPSender struct {
	cfg    Config
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (s *SMTPSender) Send(to, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.SenderEmail, s.cfg.SenderName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)
	return s.dialer.DialAndSend(m)
}

// MockSender logs instead of sending. Used when SMTP is not configured.
type MockSender struct{}

func (MockSender) Send(to, subject, htmlBody string) error {
	log.Printf("[Mail:mock] to=%s subject=%q", to, subject)
	return nil
}

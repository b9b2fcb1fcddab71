package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"letmaster-backend/internal/config"
	"letmaster-backend/internal/mail"
	"letmaster-backend/internal/models"
	"letmaster-backend/internal/sms"
)

// messageStore records every notification attempt for audit.
type messageStore interface {
	Create(ctx context.Context, m *models.UserMessage) error
}

// NotificationService renders templates and pushes them out over SMS and
// email. Every attempt is logged to the audit table, delivered or not.
// Notification failures never propagate to callers; payments and billing
// must not fail because a message did not go out.
type NotificationService struct {
	sms       sms.Provider
	mail      mail.Sender
	messages  messageStore
	templates config.Templates
}

func NewNotificationService(smsProvider sms.Provider, mailSender mail.Sender, messages messageStore, templates config.Templates) *NotificationService {
	return &NotificationService{sms: smsProvider, mail: mailSender, messages: messages, templates: templates}
}

// SendSMS sends one text and records the attempt. A blank phone or empty
// body is a silent no-op.
func (s *NotificationService) SendSMS(ctx context.Context, phone, body string) {
	if phone == "" || body == "" {
		return
	}
	err := s.sms.Send(ctx, phone, body)
	if err != nil {
		log.Printf("[Notify] sms to %s failed: %v", phone, err)
	}
	s.audit(ctx, &models.UserMessage{
		MessageMode:      models.MessageModeSMS,
		MessageRecipient: sms.CleanPhone(phone),
		MessageBody:      body,
		Delivered:        err == nil,
	})
}

// SendEmail sends one email and records the attempt.
func (s *NotificationService) SendEmail(ctx context.Context, to, subject, body string) {
	if to == "" || body == "" {
		return
	}
	err := s.mail.Send(to, subject, body)
	if err != nil {
		log.Printf("[Notify] email to %s failed: %v", to, err)
	}
	s.audit(ctx, &models.UserMessage{
		MessageMode:      models.MessageModeEmail,
		MessageRecipient: to,
		MessageSubject:   subject,
		MessageBody:      body,
		Delivered:        err == nil,
	})
}

func (s *NotificationService) audit(ctx context.Context, m *models.UserMessage) {
	if s.messages == nil {
		return
	}
	if err := s.messages.Create(ctx, m); err != nil {
		log.Printf("[Notify] audit log write failed: %v", err)
	}
}

// PaymentReceipt sends the payment-received text for a confirmed
// collection. An empty template disables the receipt.
func (s *NotificationService) PaymentReceipt(ctx context.Context, c *models.AccountContact, amount, balance decimal.Decimal) {
	tpl := s.templates.PaymentReceivedSMS
	if tpl == "" {
		return
	}
	body := strings.NewReplacer(
		"{FULLNAME}", c.TenantName,
		"{AMT}", amount.StringFixed(0),
		"{BAL}", balance.StringFixed(0),
		"{ACC}", c.Label(),
	).Replace(tpl)
	s.SendSMS(ctx, contactPhone(c), body)
}

// ArrearsReminder sends the arrears SMS and email for one tenant, covering
// all their accounts in arrears.
func (s *NotificationService) ArrearsReminder(ctx context.Context, t *models.ArrearsTenant) {
	if tpl := s.templates.ArrearsSMS; tpl != "" {
		var parts []string
		for _, a := range t.Accounts {
			parts = append(parts, fmt.Sprintf("%s (%s): UGX %s", a.PropertyName, a.UnitName, a.CurrentBalance.StringFixed(0)))
		}
		body := strings.NewReplacer(
			"{FULLNAME}", t.Tenant.Name,
			"{SUMMARY}", strings.Join(parts, "; "),
		).Replace(tpl)
		phone := t.Tenant.MobileNumber
		if phone == "" {
			phone = t.Tenant.PhoneNumber
		}
		s.SendSMS(ctx, phone, body)
	}

	if tpl := s.templates.ArrearsEmail; tpl != "" && t.Tenant.Email != "" {
		var rows []string
		for _, a := range t.Accounts {
			rows = append(rows, fmt.Sprintf("<li>%s (%s): UGX %s</li>", a.PropertyName, a.UnitName, a.CurrentBalance.StringFixed(0)))
		}
		body := strings.NewReplacer(
			"{FULLNAME}", t.Tenant.Name,
			"{ACCOUNTS}", "<ul>"+strings.Join(rows, "")+"</ul>",
		).Replace(tpl) + s.templates.EmailFooter
		s.SendEmail(ctx, t.Tenant.Email, "Rent arrears notice", body)
	}
}

func contactPhone(c *models.AccountContact) string {
	if c.MobileNumber != "" {
		return c.MobileNumber
	}
	return c.PhoneNumber
}

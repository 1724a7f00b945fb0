package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/schoolfeedback/feedbackd/internal/config"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	gomail "gopkg.in/mail.v2"
)

// Email is one outbound message. Addresses come from configuration, never
// from the request.
type Email struct {
	To      string
	From    string
	Subject string
	Text    string
}

// Mailer delivers an Email through a mail transport.
type Mailer interface {
	Send(ctx context.Context, email *Email) error
	Provider() string
}

// NewMailer validates cfg and builds the transport for cfg.Provider.
// A missing SendGrid key is reported as *config.MissingSecretError.
func NewMailer(cfg *config.MailConfig) (Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "smtp":
		return NewSMTPMailer(&cfg.SMTP), nil
	default:
		return NewSendGridMailer(cfg.APIKey, cfg.BaseURL), nil
	}
}

// SendGridMailer sends through the SendGrid v3 mail send API. It is safe for
// concurrent use: every Send builds its own request.
type SendGridMailer struct {
	apiKey string
	host   string
}

// NewSendGridMailer builds a mailer for host (empty means
// https://api.sendgrid.com).
func NewSendGridMailer(apiKey, host string) *SendGridMailer {
	return &SendGridMailer{apiKey: apiKey, host: host}
}

func (m *SendGridMailer) Provider() string { return "sendgrid" }

func (m *SendGridMailer) Send(ctx context.Context, email *Email) error {
	message := sgmail.NewSingleEmail(
		sgmail.NewEmail("", email.From),
		email.Subject,
		sgmail.NewEmail("", email.To),
		email.Text,
		"",
	)

	request := sendgrid.GetRequest(m.apiKey, "/v3/mail/send", m.host)
	request.Method = rest.Post
	request.Body = sgmail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg *config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (m *SMTPMailer) Provider() string { return "smtp" }

func (m *SMTPMailer) Send(ctx context.Context, email *Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(buildSMTPMessage(email)); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	return nil
}

func buildSMTPMessage(email *Email) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", email.From)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", email.Text)
	return msg
}

package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"access-gate/internal/config"
)

// mailSender is the part of *mail.Client used here.
type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type EmailSender struct {
	client mailSender
	from   string
	ttl    time.Duration
}

func NewEmailSender(cfg *config.Config) (*EmailSender, error) {
	smtp := cfg.SMTP
	if smtp.Host == "" || smtp.From == "" {
		return nil, &DeliveryError{Channel: "email", Type: ErrTypeConfig, Message: "SMTP_HOST and SMTP_FROM are required"}
	}

	opts := []mail.Option{
		mail.WithPort(smtp.Port),
		mail.WithTimeout(10 * time.Second),
	}
	if smtp.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(smtp.Username),
			mail.WithPassword(smtp.Password),
		)
	}
	if cfg.IsProduction() {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(smtp.Host, opts...)
	if err != nil {
		return nil, &DeliveryError{Channel: "email", Type: ErrTypeConfig, Message: "invalid SMTP settings", Cause: err}
	}

	return &EmailSender{client: client, from: smtp.From, ttl: cfg.Gate.CodeTTL}, nil
}

func (s *EmailSender) SendCode(ctx context.Context, contact, code, site string) error {
	msg, err := s.buildMessage(contact, code)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return &DeliveryError{Channel: "email", Type: ErrTypeNetwork, Message: "smtp send failed", Cause: err}
	}
	return nil
}

func (s *EmailSender) buildMessage(contact, code string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, &DeliveryError{Channel: "email", Type: ErrTypeConfig, Message: "invalid sender address", Cause: err}
	}
	if err := msg.To(contact); err != nil {
		return nil, &DeliveryError{Channel: "email", Type: ErrTypeValidation, Message: "invalid recipient", Cause: err}
	}
	msg.Subject("Your access code")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Your access code is %s. It expires in %s.\n\nIf you didn't request this, please ignore this email.",
		code, validFor(s.ttl)))
	msg.AddAlternativeString(mail.TypeTextHTML, fmt.Sprintf(`<h2>Your Access Code</h2>
<p>Your code is:</p>
<h1 style="color: #007bff; letter-spacing: 5px;">%s</h1>
<p>This code will expire in %s.</p>
<p><small>If you didn't request this, please ignore this email.</small></p>`, code, validFor(s.ttl)))
	return msg, nil
}

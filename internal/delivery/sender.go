// Package delivery sends verification codes over email and SMS.
package delivery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"access-gate/internal/model"
	"access-gate/internal/util"
)

// Sender delivers a code to one contact.
type Sender interface {
	SendCode(ctx context.Context, contact, code, site string) error
}

// Dispatcher picks a Sender by contact type and retries transient failures.
type Dispatcher struct {
	senders map[model.ContactType]Sender
	retry   *RetryConfig
}

func NewDispatcher(retry *RetryConfig) *Dispatcher {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &Dispatcher{
		senders: make(map[model.ContactType]Sender),
		retry:   retry,
	}
}

// Register installs s for t, replacing any previous sender.
func (d *Dispatcher) Register(t model.ContactType, s Sender) {
	d.senders[t] = s
}

func (d *Dispatcher) Has(t model.ContactType) bool {
	_, ok := d.senders[t]
	return ok
}

func (d *Dispatcher) Send(ctx context.Context, t model.ContactType, contact, code, site string) error {
	s, ok := d.senders[t]
	if !ok {
		return &DeliveryError{Channel: string(t), Type: ErrTypeConfig, Message: "no sender configured"}
	}

	start := time.Now()
	err := RetryWithBackoff(ctx, d.retry, func(ctx context.Context) error {
		return s.SendCode(ctx, contact, code, site)
	})
	if err != nil {
		util.Error("Code delivery failed",
			zap.String("channel", string(t)),
			zap.String("site", site),
			zap.Error(err))
		return err
	}

	util.Info("Code delivered",
		zap.String("channel", string(t)),
		zap.String("site", site),
		zap.Duration("took", time.Since(start)))
	return nil
}

// LogSender writes codes to the log instead of sending them. Development only.
type LogSender struct {
	Channel string
}

func (s *LogSender) SendCode(_ context.Context, contact, code, site string) error {
	util.Warn("Development delivery: code not sent",
		zap.String("channel", s.Channel),
		zap.String("contact", maskFor(s.Channel, contact)),
		zap.String("site", site),
		zap.String("code", code))
	return nil
}

func maskFor(channel, contact string) string {
	if channel == string(model.ContactTypeSMS) {
		return util.MaskPhone(contact)
	}
	return util.MaskEmail(contact)
}

func validFor(ttl time.Duration) string {
	mins := int(ttl.Round(time.Minute) / time.Minute)
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}

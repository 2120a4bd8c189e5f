package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"access-gate/internal/config"
)

// messageCreator is the part of the Twilio REST API used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type SMSSender struct {
	api  messageCreator
	from string
	ttl  time.Duration
}

func NewSMSSender(cfg *config.Config) (*SMSSender, error) {
	tw := cfg.Twilio
	if tw.AccountSID == "" || tw.AuthToken == "" || tw.FromNumber == "" {
		return nil, &DeliveryError{Channel: "sms", Type: ErrTypeConfig, Message: "TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER are required"}
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: tw.AccountSID,
		Password: tw.AuthToken,
	})

	return &SMSSender{api: client.Api, from: tw.FromNumber, ttl: cfg.Gate.CodeTTL}, nil
}

// SendCode ignores ctx cancellation once the request is in flight; the
// Twilio client has no context-aware call.
func (s *SMSSender) SendCode(ctx context.Context, contact, code, site string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(contact)
	params.SetFrom(s.from)
	params.SetBody(fmt.Sprintf("Your access code: %s. Valid for %s.", code, validFor(s.ttl)))

	if _, err := s.api.CreateMessage(params); err != nil {
		return classifyTwilioError(err)
	}
	return nil
}

func classifyTwilioError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		switch {
		case restErr.Status == http.StatusTooManyRequests:
			return &DeliveryError{Channel: "sms", Type: ErrTypeRateLimit, Code: restErr.Status, Message: restErr.Message, Cause: err}
		case restErr.Status == http.StatusUnauthorized || restErr.Status == http.StatusForbidden:
			return &DeliveryError{Channel: "sms", Type: ErrTypeConfig, Code: restErr.Status, Message: restErr.Message, Cause: err}
		case restErr.Status >= 400 && restErr.Status < 500:
			return &DeliveryError{Channel: "sms", Type: ErrTypeValidation, Code: restErr.Status, Message: restErr.Message, Cause: err}
		default:
			return &DeliveryError{Channel: "sms", Type: ErrTypeProvider, Code: restErr.Status, Message: restErr.Message, Cause: err}
		}
	}
	return &DeliveryError{Channel: "sms", Type: ErrTypeNetwork, Message: "twilio request failed", Cause: err}
}

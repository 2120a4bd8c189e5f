package delivery

import "fmt"

type ErrorType string

const (
	ErrTypeConfig     ErrorType = "CONFIG"
	ErrTypeNetwork    ErrorType = "NETWORK"
	ErrTypeProvider   ErrorType = "PROVIDER"
	ErrTypeRateLimit  ErrorType = "RATE_LIMIT"
	ErrTypeValidation ErrorType = "VALIDATION"
)

// DeliveryError describes a failed send. Config and validation errors are
// never retried.
type DeliveryError struct {
	Channel string
	Type    ErrorType
	Code    int
	Message string
	Cause   error
}

func (e *DeliveryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s error: %s (caused by: %v)", e.Channel, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s error: %s", e.Channel, e.Type, e.Message)
}

func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

func (e *DeliveryError) Retryable() bool {
	return e.Type != ErrTypeConfig && e.Type != ErrTypeValidation
}

package service

import "errors"

// Each public operation returns one of these, wrapped with detail via %w.
var (
	ErrValidation     = errors.New("invalid request")
	ErrInvalidCode    = errors.New("invalid or expired code")
	ErrSessionInvalid = errors.New("invalid session")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrDelivery       = errors.New("failed to send code")
	ErrPersistence    = errors.New("storage unavailable")
)

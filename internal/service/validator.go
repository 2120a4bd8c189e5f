package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"access-gate/internal/model"
)

const (
	reasonInvalid = "invalid session"
	reasonExpired = "session expired"
)

type SessionStatus struct {
	Valid       bool
	RemainingMs int64
	IsAdmin     bool
	ExpiresAt   time.Time
	Reason      string
}

// Validate reports whether token grants access to site. An expired session
// is persisted as inactive before it is reported expired.
func (s *GateService) Validate(ctx context.Context, token, site string) (*SessionStatus, error) {
	status, _, err := s.checkSession(ctx, token, site)
	return status, err
}

func (s *GateService) checkSession(ctx context.Context, token, site string) (*SessionStatus, *model.Session, error) {
	if token == "" || site == "" {
		return &SessionStatus{Reason: reasonInvalid}, nil, nil
	}

	session, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return &SessionStatus{Reason: reasonInvalid}, nil, nil
		}
		s.logPersistence("get_session", err)
		return nil, nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if session.Site != site || !session.Active {
		return &SessionStatus{Reason: reasonInvalid}, nil, nil
	}

	now := s.clock.Now()
	if now.After(session.ExpiresAt) {
		if err := s.sessions.DeactivateSession(ctx, token); err != nil {
			s.logPersistence("deactivate_session", err)
			return nil, nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		return &SessionStatus{Reason: reasonExpired, ExpiresAt: session.ExpiresAt}, nil, nil
	}

	return &SessionStatus{
		Valid:       true,
		RemainingMs: session.ExpiresAt.Sub(now).Milliseconds(),
		IsAdmin:     session.IsAdmin,
		ExpiresAt:   session.ExpiresAt,
	}, session, nil
}

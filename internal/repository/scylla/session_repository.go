package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"access-gate/internal/model"
	"access-gate/internal/util"
)

type SessionRepository struct {
	client *ScyllaClient
	codec  model.FieldCodec
}

func NewSessionRepository(client *ScyllaClient, codec model.FieldCodec) *SessionRepository {
	return &SessionRepository{
		client: client,
		codec:  codec,
	}
}

func (r *SessionRepository) CreateSession(ctx context.Context, session *model.Session) error {
	session.CreatedAt = session.CreatedAt.UTC().Truncate(time.Millisecond)
	session.ExpiresAt = session.ExpiresAt.UTC().Truncate(time.Millisecond)

	contactEnc, err := r.codec.Encrypt(ctx, session.Contact)
	if err != nil {
		return fmt.Errorf("failed to encrypt contact: %w", err)
	}
	ipEnc, err := r.codec.Encrypt(ctx, session.IPAddress)
	if err != nil {
		return fmt.Errorf("failed to encrypt ip: %w", err)
	}

	applied, err := r.client.Query(ctx, r.client.Stmts.InsertSession,
		session.Token, session.Site, session.ContactHash, contactEnc, string(session.ContactType), ipEnc,
		session.CreatedAt, session.ExpiresAt, session.IsAdmin,
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to create access session",
			zap.String("site", session.Site),
			zap.Error(err))
		return fmt.Errorf("failed to create access session: %w", err)
	}
	if !applied {
		return fmt.Errorf("access session token collision")
	}

	util.Debug("Access session stored",
		zap.String("site", session.Site),
		zap.Time("expires_at", session.ExpiresAt))
	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, token string) (*model.Session, error) {
	session := &model.Session{Token: token}
	var contactEnc, ipEnc, contactType string

	err := r.client.ScanWithRetry(ctx, r.client.Query(ctx, r.client.Stmts.SelectSession, token),
		&session.Site, &session.ContactHash, &contactEnc, &contactType, &ipEnc,
		&session.CreatedAt, &session.ExpiresAt, &session.Active, &session.IsAdmin)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		util.Error("Failed to read access session", zap.Error(err))
		return nil, fmt.Errorf("failed to read access session: %w", err)
	}

	session.ContactType = model.ContactType(contactType)
	if session.Contact, err = r.codec.Decrypt(ctx, contactEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt session contact: %w", err)
	}
	if session.IPAddress, err = r.codec.Decrypt(ctx, ipEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt session ip: %w", err)
	}
	return session, nil
}

// DeactivateSession is conditional on active = true, so an already inactive
// or missing token is left untouched.
func (r *SessionRepository) DeactivateSession(ctx context.Context, token string) error {
	applied, err := r.client.Query(ctx, r.client.Stmts.DeactivateSession, token).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to deactivate access session", zap.Error(err))
		return fmt.Errorf("failed to deactivate access session: %w", err)
	}
	util.Debug("Access session deactivation", zap.Bool("applied", applied))
	return nil
}

func (r *SessionRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

var _ model.SessionStore = (*SessionRepository)(nil)

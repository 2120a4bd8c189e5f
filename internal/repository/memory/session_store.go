package memory

import (
	"context"
	"fmt"
	"sync"

	"access-gate/internal/model"
)

type SessionStore struct {
	mu       sync.RWMutex
	codec    model.FieldCodec
	sessions map[string]*storedSession
}

type storedSession struct {
	rec        model.Session
	contactEnc string
	ipEnc      string
}

func NewSessionStore(codec model.FieldCodec) *SessionStore {
	return &SessionStore{
		codec:    codecOrPlain(codec),
		sessions: make(map[string]*storedSession),
	}
}

func (s *SessionStore) CreateSession(ctx context.Context, session *model.Session) error {
	contactEnc, err := s.codec.Encrypt(ctx, session.Contact)
	if err != nil {
		return fmt.Errorf("encrypt contact: %w", err)
	}
	ipEnc, err := s.codec.Encrypt(ctx, session.IPAddress)
	if err != nil {
		return fmt.Errorf("encrypt ip: %w", err)
	}

	ss := &storedSession{rec: *session, contactEnc: contactEnc, ipEnc: ipEnc}
	ss.rec.Contact, ss.rec.IPAddress = "", ""

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.Token]; exists {
		return fmt.Errorf("session token collision")
	}
	s.sessions[session.Token] = ss
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, token string) (*model.Session, error) {
	s.mu.RLock()
	ss, ok := s.sessions[token]
	var cp storedSession
	if ok {
		cp = *ss
	}
	s.mu.RUnlock()

	if !ok {
		return nil, model.ErrNotFound
	}

	rec := cp.rec
	var err error
	if rec.Contact, err = s.codec.Decrypt(ctx, cp.contactEnc); err != nil {
		return nil, fmt.Errorf("decrypt contact: %w", err)
	}
	if rec.IPAddress, err = s.codec.Decrypt(ctx, cp.ipEnc); err != nil {
		return nil, fmt.Errorf("decrypt ip: %w", err)
	}
	return &rec, nil
}

// DeactivateSession never reactivates and ignores unknown tokens.
func (s *SessionStore) DeactivateSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss, ok := s.sessions[token]; ok {
		ss.rec.Active = false
	}
	return nil
}

func (s *SessionStore) HealthCheck(context.Context) error { return nil }

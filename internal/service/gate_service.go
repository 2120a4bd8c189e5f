package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"access-gate/internal/audit"
	"access-gate/internal/config"
	"access-gate/internal/hashing"
	"access-gate/internal/model"
	"access-gate/internal/util"
)

// CodeHasher hashes codes for storage and checks submitted codes.
type CodeHasher interface {
	HashCode(code string) (*hashing.HashResult, error)
	VerifyCode(code string, hashResult *hashing.HashResult) (bool, error)
}

// CodeDispatcher delivers a code over the channel for its contact type.
type CodeDispatcher interface {
	Send(ctx context.Context, t model.ContactType, contact, code, site string) error
}

// GateService implements the code and session lifecycle: issue, verify,
// validate, and the admin views over the code log.
type GateService struct {
	cfg        config.GateConfig
	codes      model.CodeStore
	sessions   model.SessionStore
	hasher     CodeHasher
	dispatcher CodeDispatcher
	attempts   model.AttemptPolicy
	recorder   *audit.Recorder
	clock      clockwork.Clock

	sites       map[string]struct{}
	adminEmails map[string]struct{}
	adminPhones map[string]struct{}
}

type Option func(*GateService)

func WithClock(c clockwork.Clock) Option {
	return func(s *GateService) { s.clock = c }
}

// WithAttemptPolicy enables the failed-attempt cap on Verify.
func WithAttemptPolicy(p model.AttemptPolicy) Option {
	return func(s *GateService) { s.attempts = p }
}

func WithRecorder(r *audit.Recorder) Option {
	return func(s *GateService) { s.recorder = r }
}

func NewGateService(
	cfg *config.Config,
	codes model.CodeStore,
	sessions model.SessionStore,
	hasher CodeHasher,
	dispatcher CodeDispatcher,
	opts ...Option,
) *GateService {
	s := &GateService{
		cfg:         cfg.Gate,
		codes:       codes,
		sessions:    sessions,
		hasher:      hasher,
		dispatcher:  dispatcher,
		clock:       clockwork.NewRealClock(),
		sites:       make(map[string]struct{}),
		adminEmails: make(map[string]struct{}),
		adminPhones: make(map[string]struct{}),
	}
	for _, site := range cfg.Gate.Sites {
		s.sites[site] = struct{}{}
	}
	for _, e := range cfg.Gate.AdminEmails {
		s.adminEmails[util.NormalizeEmail(e)] = struct{}{}
	}
	for _, p := range cfg.Gate.AdminPhones {
		s.adminPhones[util.NormalizePhone(p)] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GateService) siteAllowed(site string) bool {
	_, ok := s.sites[site]
	return ok
}

// isAdminContact checks the allow-list for the contact's own type only.
func (s *GateService) isAdminContact(contact string, t model.ContactType) bool {
	switch t {
	case model.ContactTypeEmail:
		_, ok := s.adminEmails[contact]
		return ok
	case model.ContactTypeSMS:
		_, ok := s.adminPhones[contact]
		return ok
	}
	return false
}

// normalizeContact infers the contact type when the caller does not send one.
func normalizeContact(contact string) (string, model.ContactType) {
	if strings.Contains(contact, "@") {
		return util.NormalizeEmail(contact), model.ContactTypeEmail
	}
	return util.NormalizePhone(contact), model.ContactTypeSMS
}

func maskContact(contact string, t model.ContactType) string {
	if t == model.ContactTypeSMS {
		return util.MaskPhone(contact)
	}
	return util.MaskEmail(contact)
}

var codeRange = big.NewInt(900000)

// generateCode returns a uniform code in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *GateService) record(ctx context.Context, ev *audit.Event) {
	s.recorder.Record(ctx, ev)
}

func (s *GateService) newEvent(t audit.EventType, site string) *audit.Event {
	return audit.NewEvent(t, site, s.clock.Now())
}

// HealthCheck reports the first failing store.
func (s *GateService) HealthCheck(ctx context.Context) error {
	if err := s.codes.HealthCheck(ctx); err != nil {
		return fmt.Errorf("code store: %w", err)
	}
	if err := s.sessions.HealthCheck(ctx); err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}

func (s *GateService) logPersistence(op string, err error) {
	util.Error("Gate storage failure", zap.String("op", op), zap.Error(err))
}

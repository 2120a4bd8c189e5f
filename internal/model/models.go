package model

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

type ContactType string

const (
	ContactTypeEmail ContactType = "email"
	ContactTypeSMS   ContactType = "sms"
)

func (t ContactType) Valid() bool {
	return t == ContactTypeEmail || t == ContactTypeSMS
}

// -------------------- VERIFICATION CODE --------------------

// VerificationCode is one issued code. Contact, IP and the raw code are held
// in plaintext in memory; stores pass them through a FieldCodec on write.
type VerificationCode struct {
	ID             string      `json:"id"`
	Code           string      `json:"-"`
	CodeHash       string      `json:"-"`
	CodeSalt       string      `json:"-"`
	PepperVersion  int         `json:"-"`
	Contact        string      `json:"contact"`
	ContactHash    string      `json:"-"`
	ContactType    ContactType `json:"contact_type"`
	Site           string      `json:"site"`
	IPAddress      string      `json:"ip_address"`
	CreatedAt      time.Time   `json:"created_at"`
	Used           bool        `json:"used"`
	UsedAt         *time.Time  `json:"used_at,omitempty"`
	UsedFromIP     string      `json:"used_from_ip,omitempty"`
	IsAdminContact bool        `json:"is_admin_contact"`
}

// CodeStats aggregates the code log for the admin dashboard.
type CodeStats struct {
	TotalRequests  int `json:"total_requests"`
	VerifiedAccess int `json:"verified_access"`
	UniqueVisitors int `json:"unique_visitors"`
}

// -------------------- SESSION --------------------

type Session struct {
	Token       string      `json:"-"`
	Site        string      `json:"site"`
	Contact     string      `json:"-"`
	ContactHash string      `json:"-"`
	ContactType ContactType `json:"contact_type"`
	IPAddress   string      `json:"-"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
	Active      bool        `json:"active"`
	IsAdmin     bool        `json:"is_admin"`
}

// ValidAt reports whether the session grants access at now. The expiry
// instant itself is still valid.
func (s *Session) ValidAt(now time.Time) bool {
	return s.Active && !now.After(s.ExpiresAt)
}

// -------------------- STORE INTERFACES --------------------

// CodeStore persists verification codes. Records are append-only apart from
// the single used=false -> used=true transition.
type CodeStore interface {
	CreateCode(ctx context.Context, code *VerificationCode) error
	// FindUnusedCodes returns unused codes for a contact hash created at or
	// after since, newest first. A zero since returns every unused code.
	FindUnusedCodes(ctx context.Context, contactHash string, since time.Time) ([]*VerificationCode, error)
	// MarkCodeUsed flips used to true only if it is still false. applied is
	// false when another caller already consumed the code.
	MarkCodeUsed(ctx context.Context, code *VerificationCode, usedAt time.Time, usedFromIP string) (applied bool, err error)
	ListRecentCodes(ctx context.Context, limit int) ([]*VerificationCode, error)
	CodeStats(ctx context.Context) (*CodeStats, error)
	HealthCheck(ctx context.Context) error
}

// SessionStore persists access sessions. Sessions are never reactivated.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	// DeactivateSession sets active=false; calling it on an inactive session
	// is a no-op.
	DeactivateSession(ctx context.Context, token string) error
	HealthCheck(ctx context.Context) error
}

// FieldCodec transforms sensitive fields at the persistence boundary.
type FieldCodec interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// AttemptPolicy limits failed verification attempts per contact.
type AttemptPolicy interface {
	// Allowed reports whether the contact may attempt verification.
	Allowed(ctx context.Context, contactHash string) (bool, error)
	RecordFailure(ctx context.Context, contactHash string) (int, error)
	Reset(ctx context.Context, contactHash string) error
}

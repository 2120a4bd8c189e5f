// Package audit publishes gate events to analytics sinks. Publishing is best
// effort: sink failures are logged and never reach the caller.
package audit

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCodeIssued   EventType = "code_issued"
	EventCodeVerified EventType = "code_verified"
	EventCodeRejected EventType = "code_rejected"
	EventVisit        EventType = "visit"
	EventAdminAccess  EventType = "admin_access"
)

// Event never carries a plaintext contact or IP; MaskedContact is the only
// human-readable form.
type Event struct {
	ID            string    `json:"event_id"`
	Type          EventType `json:"event_type"`
	Site          string    `json:"site"`
	ContactHash   string    `json:"contact_hash,omitempty"`
	ContactType   string    `json:"contact_type,omitempty"`
	MaskedContact string    `json:"masked_contact,omitempty"`
	IsAdmin       bool      `json:"is_admin"`
	Outcome       string    `json:"outcome,omitempty"`
	Browser       string    `json:"browser,omitempty"`
	OS            string    `json:"os,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewEvent(t EventType, site string, at time.Time) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       t,
		Site:       site,
		OccurredAt: at.UTC(),
	}
}

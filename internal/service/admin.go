package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"access-gate/internal/audit"
	"access-gate/internal/model"
	"access-gate/internal/util"
)

// LogEntry is a decrypted code record for the admin view.
type LogEntry struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	Contact       string     `json:"contact"`
	ContactType   string     `json:"contact_type"`
	Site          string     `json:"site"`
	IPAddress     string     `json:"ip_address"`
	CreatedAt     time.Time  `json:"created_at"`
	Used          bool       `json:"used"`
	UsedAt        *time.Time `json:"accessed_at,omitempty"`
	UsedFromIP    string     `json:"accessed_from_ip,omitempty"`
	IsAdminAccess bool       `json:"is_admin_access"`
}

type SiteInfo struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// authorizeAdmin requires both an allow-listed contact and a live admin
// session belonging to that contact.
func (s *GateService) authorizeAdmin(ctx context.Context, token, adminContact string) (*model.Session, error) {
	contact, t := normalizeContact(adminContact)
	if contact == "" || !s.isAdminContact(contact, t) {
		util.Warn("Admin access refused: contact not allow-listed")
		return nil, ErrUnauthorized
	}
	if token == "" {
		return nil, ErrUnauthorized
	}

	session, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		s.logPersistence("get_session", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if !session.IsAdmin || session.ContactHash != util.HashContact(contact) || !session.Active {
		util.Warn("Admin access refused: session mismatch", zap.String("contact", maskContact(contact, t)))
		return nil, ErrUnauthorized
	}

	if !session.ValidAt(s.clock.Now()) {
		if err := s.sessions.DeactivateSession(ctx, token); err != nil {
			util.Warn("Failed to deactivate expired admin session", zap.Error(err))
		}
		return nil, ErrUnauthorized
	}

	return session, nil
}

func (s *GateService) FetchLogs(ctx context.Context, token, adminContact string) ([]*LogEntry, error) {
	session, err := s.authorizeAdmin(ctx, token, adminContact)
	if err != nil {
		return nil, err
	}

	records, err := s.codes.ListRecentCodes(ctx, s.cfg.AdminLogLimit)
	if err != nil {
		s.logPersistence("list_codes", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	logs := make([]*LogEntry, 0, len(records))
	for _, r := range records {
		logs = append(logs, &LogEntry{
			ID:            r.ID,
			Code:          r.Code,
			Contact:       r.Contact,
			ContactType:   string(r.ContactType),
			Site:          r.Site,
			IPAddress:     r.IPAddress,
			CreatedAt:     r.CreatedAt,
			Used:          r.Used,
			UsedAt:        r.UsedAt,
			UsedFromIP:    r.UsedFromIP,
			IsAdminAccess: r.IsAdminContact,
		})
	}

	s.recordAdmin(ctx, session, "access_logs")
	return logs, nil
}

func (s *GateService) Sites(ctx context.Context, token, adminContact string) ([]SiteInfo, error) {
	session, err := s.authorizeAdmin(ctx, token, adminContact)
	if err != nil {
		return nil, err
	}

	sites := make([]SiteInfo, 0, len(s.cfg.Sites))
	for _, id := range s.cfg.Sites {
		sites = append(sites, SiteInfo{ID: id, RedirectURL: s.cfg.SiteRedirects[id]})
	}

	s.recordAdmin(ctx, session, "sites")
	return sites, nil
}

func (s *GateService) Stats(ctx context.Context, token, adminContact string) (*model.CodeStats, error) {
	session, err := s.authorizeAdmin(ctx, token, adminContact)
	if err != nil {
		return nil, err
	}

	stats, err := s.codes.CodeStats(ctx)
	if err != nil {
		s.logPersistence("code_stats", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.recordAdmin(ctx, session, "stats")
	return stats, nil
}

func (s *GateService) recordAdmin(ctx context.Context, session *model.Session, view string) {
	ev := s.newEvent(audit.EventAdminAccess, session.Site)
	ev.ContactHash = session.ContactHash
	ev.ContactType = string(session.ContactType)
	ev.MaskedContact = maskContact(session.Contact, session.ContactType)
	ev.IsAdmin = true
	ev.Outcome = view
	s.record(ctx, ev)
}

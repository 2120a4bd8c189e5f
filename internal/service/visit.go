package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"access-gate/internal/audit"
	"access-gate/internal/util"
)

type VisitRequest struct {
	Token     string
	Site      string
	IPAddress string
	UserAgent string
}

type VisitResult struct {
	Browser string
	OS      string
}

// LogVisit records a page view by a session holder. Only the session check
// can fail the call; analytics writes are best effort.
func (s *GateService) LogVisit(ctx context.Context, req VisitRequest) (*VisitResult, error) {
	status, session, err := s.checkSession(ctx, req.Token, req.Site)
	if err != nil {
		return nil, err
	}
	if !status.Valid {
		return nil, fmt.Errorf("%w: %s", ErrSessionInvalid, status.Reason)
	}

	browser, os := ParseUserAgent(req.UserAgent)

	ev := s.newEvent(audit.EventVisit, req.Site)
	ev.ContactHash = session.ContactHash
	ev.ContactType = string(session.ContactType)
	ev.MaskedContact = maskContact(session.Contact, session.ContactType)
	ev.IsAdmin = session.IsAdmin
	ev.Browser = browser
	ev.OS = os
	ev.UserAgent = req.UserAgent
	s.record(ctx, ev)

	util.Debug("Visit logged",
		zap.String("site", req.Site),
		zap.String("browser", browser),
		zap.String("os", os))

	return &VisitResult{Browser: browser, OS: os}, nil
}

// ParseUserAgent maps a User-Agent header to coarse browser and OS names.
// Order matters: Edge and Opera also claim Chrome, Chrome also claims
// Safari, iOS claims Mac OS X and Android claims Linux.
func ParseUserAgent(ua string) (browser, os string) {
	browser, os = "unknown", "unknown"

	switch {
	case strings.Contains(ua, "Edg/") || strings.Contains(ua, "Edge/"):
		browser = "Edge"
	case strings.Contains(ua, "OPR/") || strings.Contains(ua, "Opera"):
		browser = "Opera"
	case strings.Contains(ua, "Firefox/"):
		browser = "Firefox"
	case strings.Contains(ua, "Chrome/") || strings.Contains(ua, "CriOS/"):
		browser = "Chrome"
	case strings.Contains(ua, "Safari/"):
		browser = "Safari"
	}

	switch {
	case strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad"):
		os = "iOS"
	case strings.Contains(ua, "Android"):
		os = "Android"
	case strings.Contains(ua, "Windows"):
		os = "Windows"
	case strings.Contains(ua, "Mac OS X") || strings.Contains(ua, "Macintosh"):
		os = "macOS"
	case strings.Contains(ua, "Linux"):
		os = "Linux"
	}

	return browser, os
}

package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"access-gate/internal/audit"
	"access-gate/internal/hashing"
	"access-gate/internal/model"
	"access-gate/internal/util"
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

type VerifyRequest struct {
	Code      string
	Contact   string
	Site      string
	IPAddress string
}

type VerifyResult struct {
	Token       string
	ExpiresIn   int
	ExpiresAt   time.Time
	IsAdmin     bool
	RedirectURL string
}

// Verify redeems a code for a session. Wrong, expired, cross-site and
// already-used codes all fail with the same ErrInvalidCode.
func (s *GateService) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if !codePattern.MatchString(req.Code) {
		return nil, fmt.Errorf("%w: code must be 6 digits", ErrValidation)
	}
	if req.Contact == "" || req.Site == "" {
		return nil, fmt.Errorf("%w: contact and site are required", ErrValidation)
	}
	if !s.siteAllowed(req.Site) {
		return nil, fmt.Errorf("%w: unknown site", ErrValidation)
	}

	contact, _ := normalizeContact(req.Contact)
	contactHash := util.HashContact(contact)

	if s.attempts != nil {
		allowed, err := s.attempts.Allowed(ctx, contactHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if !allowed {
			s.reject(ctx, req.Site, contactHash, "locked")
			return nil, ErrInvalidCode
		}
	}

	now := s.clock.Now().UTC()
	candidates, err := s.codes.FindUnusedCodes(ctx, contactHash, now.Add(-s.cfg.CodeTTL))
	if err != nil {
		s.logPersistence("find_codes", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	match := s.matchCode(req.Code, req.Site, now, candidates)
	if match == nil {
		s.fail(ctx, req.Site, contactHash, "no_match")
		return nil, ErrInvalidCode
	}

	applied, err := s.codes.MarkCodeUsed(ctx, match, now, req.IPAddress)
	if err != nil {
		s.logPersistence("mark_code_used", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !applied {
		s.reject(ctx, req.Site, contactHash, "already_used")
		return nil, ErrInvalidCode
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	session := &model.Session{
		Token:       token,
		Site:        req.Site,
		Contact:     contact,
		ContactHash: contactHash,
		ContactType: match.ContactType,
		IPAddress:   req.IPAddress,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.SessionTTL),
		Active:      true,
		IsAdmin:     match.IsAdminContact,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		s.logPersistence("create_session", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, contactHash); err != nil {
			util.Warn("Failed to reset verify attempts", zap.Error(err))
		}
	}

	ev := s.newEvent(audit.EventCodeVerified, req.Site)
	ev.ContactHash = contactHash
	ev.ContactType = string(match.ContactType)
	ev.MaskedContact = maskContact(contact, match.ContactType)
	ev.IsAdmin = session.IsAdmin
	ev.Outcome = "granted"
	s.record(ctx, ev)

	util.Info("Access code verified",
		zap.String("code_id", match.ID),
		zap.String("site", req.Site),
		zap.Bool("is_admin", session.IsAdmin))

	return &VerifyResult{
		Token:       token,
		ExpiresIn:   int(s.cfg.SessionTTL.Seconds()),
		ExpiresAt:   session.ExpiresAt,
		IsAdmin:     session.IsAdmin,
		RedirectURL: s.cfg.SiteRedirects[req.Site],
	}, nil
}

// matchCode returns the newest live candidate for site whose hash matches
// code. Candidates arrive newest first. Expired and cross-site candidates are
// skipped before hashing.
func (s *GateService) matchCode(code, site string, now time.Time, candidates []*model.VerificationCode) *model.VerificationCode {
	for _, c := range candidates {
		if c.Site != site || now.Sub(c.CreatedAt) > s.cfg.CodeTTL {
			continue
		}
		ok, err := s.hasher.VerifyCode(code, &hashing.HashResult{
			Hash:          c.CodeHash,
			Salt:          c.CodeSalt,
			PepperVersion: c.PepperVersion,
		})
		if err != nil {
			if !errors.Is(err, hashing.ErrIncompatibleVersion) {
				util.Warn("Stored code hash unreadable", zap.String("code_id", c.ID), zap.Error(err))
			}
			continue
		}
		if ok {
			return c
		}
	}
	return nil
}

// fail counts a failed attempt against the contact and records the rejection.
func (s *GateService) fail(ctx context.Context, site, contactHash, reason string) {
	if s.attempts != nil {
		if n, err := s.attempts.RecordFailure(ctx, contactHash); err != nil {
			util.Warn("Failed to record verify attempt", zap.Error(err))
		} else {
			util.Debug("Verify attempt failed", zap.Int("attempts", n), zap.String("reason", reason))
		}
	}
	s.reject(ctx, site, contactHash, reason)
}

func (s *GateService) reject(ctx context.Context, site, contactHash, reason string) {
	ev := s.newEvent(audit.EventCodeRejected, site)
	ev.ContactHash = contactHash
	ev.Outcome = reason
	s.record(ctx, ev)
}

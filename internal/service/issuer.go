package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"access-gate/internal/audit"
	"access-gate/internal/model"
	"access-gate/internal/util"
)

type IssueRequest struct {
	Contact     string
	ContactType model.ContactType
	Site        string
	IPAddress   string
}

type IssueResult struct {
	MaskedContact string
	ExpiresIn     int
}

// Issue stores a new code and sends it. The code is persisted before
// delivery; if delivery fails the stored code is left to expire.
func (s *GateService) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if !s.siteAllowed(req.Site) {
		return nil, fmt.Errorf("%w: unknown site", ErrValidation)
	}
	if req.Contact == "" || req.ContactType == "" {
		return nil, fmt.Errorf("%w: contact and contact_type are required", ErrValidation)
	}
	if !req.ContactType.Valid() {
		return nil, fmt.Errorf("%w: contact_type must be email or sms", ErrValidation)
	}

	var contact string
	switch req.ContactType {
	case model.ContactTypeEmail:
		contact = util.NormalizeEmail(req.Contact)
		if !util.ValidEmail(contact) {
			return nil, fmt.Errorf("%w: invalid email address", ErrValidation)
		}
	case model.ContactTypeSMS:
		contact = util.NormalizePhone(req.Contact)
		if !util.ValidPhone(contact) {
			return nil, fmt.Errorf("%w: invalid phone number", ErrValidation)
		}
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	hashed, err := s.hasher.HashCode(code)
	if err != nil {
		return nil, fmt.Errorf("failed to hash code: %w", err)
	}

	isAdmin := s.isAdminContact(contact, req.ContactType)
	record := &model.VerificationCode{
		ID:             uuid.NewString(),
		Code:           code,
		CodeHash:       hashed.Hash,
		CodeSalt:       hashed.Salt,
		PepperVersion:  hashed.PepperVersion,
		Contact:        contact,
		ContactHash:    util.HashContact(contact),
		ContactType:    req.ContactType,
		Site:           req.Site,
		IPAddress:      req.IPAddress,
		CreatedAt:      s.clock.Now().UTC(),
		IsAdminContact: isAdmin,
	}

	if err := s.codes.CreateCode(ctx, record); err != nil {
		s.logPersistence("create_code", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	masked := maskContact(contact, req.ContactType)

	if err := s.dispatcher.Send(ctx, req.ContactType, contact, code, req.Site); err != nil {
		util.Warn("Code stored but not delivered",
			zap.String("code_id", record.ID),
			zap.String("contact", masked),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	ev := s.newEvent(audit.EventCodeIssued, req.Site)
	ev.ContactHash = record.ContactHash
	ev.ContactType = string(req.ContactType)
	ev.MaskedContact = masked
	ev.IsAdmin = isAdmin
	s.record(ctx, ev)

	util.Info("Access code issued",
		zap.String("code_id", record.ID),
		zap.String("site", req.Site),
		zap.String("contact", masked),
		zap.Bool("is_admin", isAdmin))

	return &IssueResult{
		MaskedContact: masked,
		ExpiresIn:     int(s.cfg.CodeTTL.Seconds()),
	}, nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"access-gate/internal/model"
)

// CodeStore keeps codes in memory. Contact, IP and the raw code go through
// the field codec on write, the same way the Scylla store handles them.
type CodeStore struct {
	mu    sync.RWMutex
	codec model.FieldCodec
	codes []*storedCode
	byID  map[string]*storedCode
}

type storedCode struct {
	rec        model.VerificationCode
	codeEnc    string
	contactEnc string
	ipEnc      string
	usedIPEnc  string
}

func NewCodeStore(codec model.FieldCodec) *CodeStore {
	return &CodeStore{
		codec: codecOrPlain(codec),
		byID:  make(map[string]*storedCode),
	}
}

func (s *CodeStore) CreateCode(ctx context.Context, code *model.VerificationCode) error {
	codeEnc, err := s.codec.Encrypt(ctx, code.Code)
	if err != nil {
		return fmt.Errorf("encrypt code: %w", err)
	}
	contactEnc, err := s.codec.Encrypt(ctx, code.Contact)
	if err != nil {
		return fmt.Errorf("encrypt contact: %w", err)
	}
	ipEnc, err := s.codec.Encrypt(ctx, code.IPAddress)
	if err != nil {
		return fmt.Errorf("encrypt ip: %w", err)
	}

	sc := &storedCode{rec: *code, codeEnc: codeEnc, contactEnc: contactEnc, ipEnc: ipEnc}
	sc.rec.Code, sc.rec.Contact, sc.rec.IPAddress, sc.rec.UsedFromIP = "", "", "", ""

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[code.ID]; exists {
		return fmt.Errorf("code %s already exists", code.ID)
	}
	s.codes = append(s.codes, sc)
	s.byID[code.ID] = sc
	return nil
}

func (s *CodeStore) FindUnusedCodes(ctx context.Context, contactHash string, since time.Time) ([]*model.VerificationCode, error) {
	s.mu.RLock()
	var matches []*storedCode
	for _, sc := range s.codes {
		if sc.rec.ContactHash == contactHash && !sc.rec.Used && !sc.rec.CreatedAt.Before(since) {
			cp := *sc
			matches = append(matches, &cp)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matches)
	return s.decodeAll(ctx, matches)
}

// MarkCodeUsed applies used=false -> true only once per code.
func (s *CodeStore) MarkCodeUsed(ctx context.Context, code *model.VerificationCode, usedAt time.Time, usedFromIP string) (bool, error) {
	ipEnc, err := s.codec.Encrypt(ctx, usedFromIP)
	if err != nil {
		return false, fmt.Errorf("encrypt ip: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.byID[code.ID]
	if !ok {
		return false, model.ErrNotFound
	}
	if sc.rec.Used {
		return false, nil
	}
	t := usedAt
	sc.rec.Used = true
	sc.rec.UsedAt = &t
	sc.usedIPEnc = ipEnc
	return true, nil
}

func (s *CodeStore) ListRecentCodes(ctx context.Context, limit int) ([]*model.VerificationCode, error) {
	s.mu.RLock()
	all := make([]*storedCode, 0, len(s.codes))
	for _, sc := range s.codes {
		cp := *sc
		all = append(all, &cp)
	}
	s.mu.RUnlock()

	sortNewestFirst(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return s.decodeAll(ctx, all)
}

func (s *CodeStore) CodeStats(_ context.Context) (*model.CodeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &model.CodeStats{TotalRequests: len(s.codes)}
	contacts := make(map[string]struct{})
	for _, sc := range s.codes {
		if sc.rec.Used {
			stats.VerifiedAccess++
		}
		contacts[sc.rec.ContactHash] = struct{}{}
	}
	stats.UniqueVisitors = len(contacts)
	return stats, nil
}

func (s *CodeStore) HealthCheck(context.Context) error { return nil }

func sortNewestFirst(in []*storedCode) {
	sort.SliceStable(in, func(i, j int) bool {
		return in[i].rec.CreatedAt.After(in[j].rec.CreatedAt)
	})
}

func (s *CodeStore) decodeAll(ctx context.Context, in []*storedCode) ([]*model.VerificationCode, error) {
	out := make([]*model.VerificationCode, 0, len(in))
	for _, sc := range in {
		rec := sc.rec
		var err error
		if rec.Code, err = s.codec.Decrypt(ctx, sc.codeEnc); err != nil {
			return nil, fmt.Errorf("decrypt code: %w", err)
		}
		if rec.Contact, err = s.codec.Decrypt(ctx, sc.contactEnc); err != nil {
			return nil, fmt.Errorf("decrypt contact: %w", err)
		}
		if rec.IPAddress, err = s.codec.Decrypt(ctx, sc.ipEnc); err != nil {
			return nil, fmt.Errorf("decrypt ip: %w", err)
		}
		if rec.UsedFromIP, err = s.codec.Decrypt(ctx, sc.usedIPEnc); err != nil {
			return nil, fmt.Errorf("decrypt ip: %w", err)
		}
		if rec.UsedAt != nil {
			t := *rec.UsedAt
			rec.UsedAt = &t
		}
		out = append(out, &rec)
	}
	return out, nil
}

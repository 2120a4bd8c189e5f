package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"access-gate/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reverseCodec stands in for encryption: stored values are reversed and prefixed.
type reverseCodec struct{}

func (reverseCodec) Encrypt(_ context.Context, s string) (string, error) {
	if s == "" {
		return "", nil
	}
	return "enc:" + reverse(s), nil
}

func (reverseCodec) Decrypt(_ context.Context, s string) (string, error) {
	if s == "" {
		return "", nil
	}
	return reverse(strings.TrimPrefix(s, "enc:")), nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// countingCodec counts Decrypt calls on plain values.
type countingCodec struct {
	decrypts int32
}

func (c *countingCodec) Encrypt(_ context.Context, s string) (string, error) { return s, nil }

func (c *countingCodec) Decrypt(_ context.Context, s string) (string, error) {
	atomic.AddInt32(&c.decrypts, 1)
	return s, nil
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newCode(id, contactHash string, at time.Time) *model.VerificationCode {
	return &model.VerificationCode{
		ID:          id,
		Code:        "482913",
		Contact:     "ab@example.com",
		ContactHash: contactHash,
		ContactType: model.ContactTypeEmail,
		Site:        "atlas",
		IPAddress:   "203.0.113.7",
		CreatedAt:   at,
	}
}

func TestCodeStoreEncryptsAtRest(t *testing.T) {
	s := NewCodeStore(reverseCodec{})
	ctx := context.Background()
	require.NoError(t, s.CreateCode(ctx, newCode("c1", "h1", base)))

	assert.Equal(t, "enc:"+reverse("ab@example.com"), s.byID["c1"].contactEnc)
	assert.Empty(t, s.byID["c1"].rec.Contact)

	got, err := s.FindUnusedCodes(ctx, "h1", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ab@example.com", got[0].Contact)
	assert.Equal(t, "482913", got[0].Code)
	assert.Equal(t, "203.0.113.7", got[0].IPAddress)
}

func TestFindUnusedCodesNewestFirst(t *testing.T) {
	s := NewCodeStore(nil)
	ctx := context.Background()
	require.NoError(t, s.CreateCode(ctx, newCode("old", "h1", base)))
	require.NoError(t, s.CreateCode(ctx, newCode("new", "h1", base.Add(time.Minute))))
	require.NoError(t, s.CreateCode(ctx, newCode("other", "h2", base.Add(2*time.Minute))))

	got, err := s.FindUnusedCodes(ctx, "h1", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[1].ID)
}

func TestFindUnusedCodesSince(t *testing.T) {
	s := NewCodeStore(nil)
	ctx := context.Background()
	require.NoError(t, s.CreateCode(ctx, newCode("stale", "h1", base)))
	require.NoError(t, s.CreateCode(ctx, newCode("edge", "h1", base.Add(time.Minute))))
	require.NoError(t, s.CreateCode(ctx, newCode("fresh", "h1", base.Add(2*time.Minute))))

	got, err := s.FindUnusedCodes(ctx, "h1", base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "fresh", got[0].ID)
	assert.Equal(t, "edge", got[1].ID)
}

func TestListRecentCodesDecodesOnlyThePage(t *testing.T) {
	codec := &countingCodec{}
	s := NewCodeStore(codec)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, s.CreateCode(ctx, newCode(fmt.Sprintf("c%02d", i), "h1", base.Add(time.Duration(i)*time.Second))))
	}

	got, err := s.ListRecentCodes(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c49", "c48", "c47"}, []string{got[0].ID, got[1].ID, got[2].ID})
	// four sensitive fields per returned code
	assert.Equal(t, int32(12), atomic.LoadInt32(&codec.decrypts))
}

func TestMarkCodeUsedOnce(t *testing.T) {
	s := NewCodeStore(nil)
	ctx := context.Background()
	c := newCode("c1", "h1", base)
	require.NoError(t, s.CreateCode(ctx, c))

	applied, err := s.MarkCodeUsed(ctx, c, base.Add(time.Minute), "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.MarkCodeUsed(ctx, c, base.Add(2*time.Minute), "198.51.100.2")
	require.NoError(t, err)
	assert.False(t, applied)

	unused, err := s.FindUnusedCodes(ctx, "h1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, unused)

	recent, err := s.ListRecentCodes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].Used)
	assert.Equal(t, "198.51.100.1", recent[0].UsedFromIP)
	require.NotNil(t, recent[0].UsedAt)
	assert.Equal(t, base.Add(time.Minute), *recent[0].UsedAt)
}

func TestMarkCodeUsedConcurrent(t *testing.T) {
	s := NewCodeStore(nil)
	ctx := context.Background()
	c := newCode("c1", "h1", base)
	require.NoError(t, s.CreateCode(ctx, c))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := s.MarkCodeUsed(ctx, c, base, "ip")
			if err == nil && applied {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestMarkCodeUsedUnknown(t *testing.T) {
	s := NewCodeStore(nil)
	_, err := s.MarkCodeUsed(context.Background(), newCode("missing", "h", base), base, "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListRecentAndStats(t *testing.T) {
	s := NewCodeStore(nil)
	ctx := context.Background()
	for i, h := range []string{"h1", "h2", "h1", "h3"} {
		require.NoError(t, s.CreateCode(ctx, newCode(string(rune('a'+i)), h, base.Add(time.Duration(i)*time.Minute))))
	}
	_, err := s.MarkCodeUsed(ctx, &model.VerificationCode{ID: "b"}, base, "")
	require.NoError(t, err)

	recent, err := s.ListRecentCodes(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "d", recent[0].ID)
	assert.Equal(t, "b", recent[2].ID)

	stats, err := s.CodeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &model.CodeStats{TotalRequests: 4, VerifiedAccess: 1, UniqueVisitors: 3}, stats)
}

func TestSessionStoreLifecycle(t *testing.T) {
	s := NewSessionStore(reverseCodec{})
	ctx := context.Background()

	sess := &model.Session{
		Token:     "tok",
		Site:      "atlas",
		Contact:   "ab@example.com",
		IPAddress: "203.0.113.7",
		CreatedAt: base,
		ExpiresAt: base.Add(20 * time.Minute),
		Active:    true,
	}
	require.NoError(t, s.CreateSession(ctx, sess))
	assert.Error(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "ab@example.com", got.Contact)
	assert.True(t, got.Active)

	require.NoError(t, s.DeactivateSession(ctx, "tok"))
	require.NoError(t, s.DeactivateSession(ctx, "tok"))
	require.NoError(t, s.DeactivateSession(ctx, "unknown"))

	got, err = s.GetSession(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = s.GetSession(ctx, "unknown")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

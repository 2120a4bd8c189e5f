//go:build integration

package scylla

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"access-gate/internal/bucketing"
	"access-gate/internal/config"
	"access-gate/internal/model"
	"access-gate/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainCodec struct{}

func (plainCodec) Encrypt(_ context.Context, s string) (string, error) { return s, nil }
func (plainCodec) Decrypt(_ context.Context, s string) (string, error) { return s, nil }

// newIntegrationRepos connects to the cluster in SCYLLA_NODES and applies the
// schema to a throwaway keyspace.
func newIntegrationRepos(t *testing.T) (*CodeRepository, *SessionRepository) {
	t.Helper()
	nodes := os.Getenv("SCYLLA_NODES")
	if nodes == "" {
		t.Skip("SCYLLA_NODES not set")
	}

	cfg := &config.Config{
		Environment: "development",
		Scylla: config.ScyllaConfig{
			Nodes:        strings.Split(nodes, ","),
			Keyspace:     "access_gate_it",
			CreateSchema: true,
		},
		Bucketing: config.BucketingConfig{LogBuckets: 4},
	}
	client, err := NewScyllaClient(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return NewCodeRepository(client, plainCodec{}, bucketing.NewBucketingManager(cfg)),
		NewSessionRepository(client, plainCodec{})
}

func integrationCode(contactHash string, at time.Time) *model.VerificationCode {
	return &model.VerificationCode{
		ID:            uuid.NewString(),
		Code:          "482913",
		CodeHash:      "hash",
		CodeSalt:      "salt",
		PepperVersion: 1,
		Contact:       "ab@example.com",
		ContactHash:   contactHash,
		ContactType:   model.ContactTypeEmail,
		Site:          "atlas",
		IPAddress:     "203.0.113.7",
		CreatedAt:     at,
	}
}

func TestIntegrationMarkCodeUsedOnce(t *testing.T) {
	codes, _ := newIntegrationRepos(t)
	ctx := context.Background()
	contactHash := util.HashContact(uuid.NewString())

	code := integrationCode(contactHash, time.Now())
	require.NoError(t, codes.CreateCode(ctx, code))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := codes.MarkCodeUsed(ctx, code, time.Now(), "198.51.100.1")
			if err == nil && applied {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)

	unused, err := codes.FindUnusedCodes(ctx, contactHash, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, unused)
}

func TestIntegrationFindUnusedCodesSince(t *testing.T) {
	codes, _ := newIntegrationRepos(t)
	ctx := context.Background()
	contactHash := util.HashContact(uuid.NewString())
	now := time.Now().UTC()

	stale := integrationCode(contactHash, now.Add(-time.Hour))
	fresh := integrationCode(contactHash, now)
	require.NoError(t, codes.CreateCode(ctx, stale))
	require.NoError(t, codes.CreateCode(ctx, fresh))

	got, err := codes.FindUnusedCodes(ctx, contactHash, now.Add(-20*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fresh.ID, got[0].ID)
}

func TestIntegrationCreateCodeRejectsDuplicate(t *testing.T) {
	codes, _ := newIntegrationRepos(t)
	ctx := context.Background()

	code := integrationCode(util.HashContact(uuid.NewString()), time.Now())
	require.NoError(t, codes.CreateCode(ctx, code))
	assert.Error(t, codes.CreateCode(ctx, code))
}

func TestIntegrationDeactivateSession(t *testing.T) {
	_, sessions := newIntegrationRepos(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	s := &model.Session{
		Token:       uuid.NewString(),
		Site:        "atlas",
		Contact:     "ab@example.com",
		ContactHash: util.HashContact("ab@example.com"),
		ContactType: model.ContactTypeEmail,
		CreatedAt:   now,
		ExpiresAt:   now.Add(20 * time.Minute),
		Active:      true,
	}
	require.NoError(t, sessions.CreateSession(ctx, s))

	require.NoError(t, sessions.DeactivateSession(ctx, s.Token))
	require.NoError(t, sessions.DeactivateSession(ctx, s.Token))

	got, err := sessions.GetSession(ctx, s.Token)
	require.NoError(t, err)
	assert.False(t, got.Active)

	require.NoError(t, sessions.DeactivateSession(ctx, "missing-"+s.Token))
	_, err = sessions.GetSession(ctx, "missing-"+s.Token)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestIntegrationListRecentCodesAcrossBuckets(t *testing.T) {
	codes, _ := newIntegrationRepos(t)
	ctx := context.Background()
	contactHash := util.HashContact(uuid.NewString())
	future := time.Now().UTC().Add(24 * time.Hour)

	var ids []string
	for i := 0; i < 6; i++ {
		c := integrationCode(contactHash, future.Add(time.Duration(i)*time.Second))
		require.NoError(t, codes.CreateCode(ctx, c))
		ids = append(ids, c.ID)
	}

	got, err := codes.ListRecentCodes(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{ids[5], ids[4], ids[3]}, []string{got[0].ID, got[1].ID, got[2].ID})
}

package factory

import (
	"context"
	"testing"
	"time"

	"access-gate/internal/config"
	"access-gate/internal/model"
	"access-gate/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Environment: "development",
		Gate: config.GateConfig{
			Sites:             config.DefaultSites(),
			SiteRedirects:     config.DefaultSiteRedirects(),
			AdminEmails:       []string{"admin@example.com"},
			CodeTTL:           20 * time.Minute,
			SessionTTL:        20 * time.Minute,
			AdminLogLimit:     500,
			MaxVerifyAttempts: 5,
		},
		Store: config.StoreConfig{Backend: "memory"},
		Encryption: config.EncryptionConfig{
			Key: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Pepper:            "factory-pepper",
			PepperVersion:     1,
		},
		Bucketing: config.BucketingConfig{LogBuckets: 4},
	}
}

func TestNewWithMemoryBackend(t *testing.T) {
	f, err := New(memoryConfig())
	require.NoError(t, err)
	defer f.Close()

	assert.Nil(t, f.TLSManager())
	assert.Nil(t, f.attempts, "the attempt cap needs Redis")
	assert.Equal(t, []string{"log"}, f.Recorder().Sinks())
	assert.True(t, f.Dispatcher().Has(model.ContactTypeEmail))
	assert.True(t, f.Dispatcher().Has(model.ContactTypeSMS))

	assert.NoError(t, f.Ready(context.Background()))
	assert.Empty(t, f.HealthCheck(context.Background()))
}

func TestServiceFactoryRoundTrip(t *testing.T) {
	f, err := New(memoryConfig())
	require.NoError(t, err)
	defer f.Close()

	gate := f.ServiceFactory().GateService()
	assert.Same(t, gate, f.ServiceFactory().GateService())

	res, err := gate.Issue(context.Background(), service.IssueRequest{
		Contact:     "ab@example.com",
		ContactType: model.ContactTypeEmail,
		Site:        "atlas",
	})
	require.NoError(t, err)
	assert.Equal(t, "ab***@example.com", res.MaskedContact)

	_, err = gate.Verify(context.Background(), service.VerifyRequest{Code: "000000", Contact: "ab@example.com", Site: "atlas"})
	assert.ErrorIs(t, err, service.ErrInvalidCode)
}

func TestUnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Backend = "postgres"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestProductionLeavesUnconfiguredChannelsEmpty(t *testing.T) {
	cfg := memoryConfig()
	cfg.Environment = "production"
	f, err := New(cfg)
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, f.Dispatcher().Has(model.ContactTypeEmail))
	assert.False(t, f.Dispatcher().Has(model.ContactTypeSMS))
}

func TestCloseIsIdempotent(t *testing.T) {
	f, err := New(memoryConfig())
	require.NoError(t, err)

	assert.NoError(t, f.Close())
	assert.NoError(t, f.Close())
	f.WaitForClose()
}

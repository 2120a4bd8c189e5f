package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Gate: GateConfig{
			Sites:         DefaultSites(),
			CodeTTL:       20 * time.Minute,
			SessionTTL:    20 * time.Minute,
			AdminLogLimit: 500,
		},
		Store:     StoreConfig{Backend: "memory"},
		Bucketing: BucketingConfig{LogBuckets: 8},
	}
}

func TestValidate(t *testing.T) {
	t.Run("development defaults pass", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("attempt cap requires redis", func(t *testing.T) {
		cfg := validConfig()
		cfg.Gate.MaxVerifyAttempts = 5
		assert.Error(t, cfg.Validate())

		cfg.Redis.Enabled = true
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.Store.Backend = "firestore"
		assert.Error(t, cfg.Validate())
	})

	t.Run("production requires secrets", func(t *testing.T) {
		cfg := validConfig()
		cfg.Environment = "production"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CODE_PEPPER")
		assert.Contains(t, err.Error(), "STORE_BACKEND=scylla")

		cfg.Store.Backend = "scylla"
		cfg.Encryption.Key = "00"
		cfg.Hashing.Pepper = "pepper"
		cfg.Gate.AdminEmails = []string{"admin@example.com"}
		assert.NoError(t, cfg.Validate())
	})
}

func TestEnvParsing(t *testing.T) {
	t.Setenv("GATE_SITES", " atlas, cubix ,,")
	t.Setenv("GATE_SITE_REDIRECTS", "atlas=https://atlas.example,broken")
	t.Setenv("GATE_CODE_TTL", "15m")
	t.Setenv("REDIS_ENABLED", "not-a-bool")

	assert.Equal(t, []string{"atlas", "cubix"}, getEnvAsSlice("GATE_SITES", nil))
	assert.Equal(t, map[string]string{"atlas": "https://atlas.example"}, getEnvAsMap("GATE_SITE_REDIRECTS", nil))
	assert.Equal(t, 15*time.Minute, getEnvAsDuration("GATE_CODE_TTL", time.Minute))
	assert.True(t, getEnvAsBool("REDIS_ENABLED", true))
}

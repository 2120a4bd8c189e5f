package hashing

import (
	"testing"
	"time"

	"access-gate/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "development",
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Pepper:            "test-pepper",
			PepperVersion:     3,
		},
	}
}

func TestHashAndVerifyCode(t *testing.T) {
	h, err := NewHasher(testConfig())
	require.NoError(t, err)

	res, err := h.HashCode("482913")
	require.NoError(t, err)
	assert.Equal(t, 3, res.PepperVersion)
	assert.NotContains(t, res.Hash, "482913")

	ok, err := h.VerifyCode("482913", res)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyCode("482914", res)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBenchmark(t *testing.T) {
	h, err := NewHasher(testConfig())
	require.NoError(t, err)

	assert.Greater(t, h.Benchmark(3), time.Duration(0))
}

func TestSaltsDiffer(t *testing.T) {
	h, err := NewHasher(testConfig())
	require.NoError(t, err)

	a, err := h.HashCode("123456")
	require.NoError(t, err)
	b, err := h.HashCode("123456")
	require.NoError(t, err)
	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestPepperMatters(t *testing.T) {
	h1, err := NewHasher(testConfig())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Hashing.Pepper = "other-pepper"
	h2, err := NewHasher(cfg)
	require.NoError(t, err)

	res, err := h1.HashCode("654321")
	require.NoError(t, err)
	ok, err := h2.VerifyCode("654321", res)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVersionMismatch(t *testing.T) {
	h, err := NewHasher(testConfig())
	require.NoError(t, err)

	res, err := h.HashCode("111111")
	require.NoError(t, err)
	res.PepperVersion = 1

	_, err = h.VerifyCode("111111", res)
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestMalformedHash(t *testing.T) {
	h, err := NewHasher(testConfig())
	require.NoError(t, err)

	_, err = h.VerifyCode("111111", &HashResult{Hash: "***", Salt: "abc", PepperVersion: 3})
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestProductionRequiresPepper(t *testing.T) {
	cfg := testConfig()
	cfg.Environment = "production"
	cfg.Hashing.Pepper = ""
	_, err := NewHasher(cfg)
	assert.Error(t, err)

	cfg.Environment = "development"
	h, err := NewHasher(cfg)
	require.NoError(t, err)
	res, err := h.HashCode("222222")
	require.NoError(t, err)
	ok, err := h.VerifyCode("222222", res)
	require.NoError(t, err)
	assert.True(t, ok)
}

package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"access-gate/internal/config"
	"access-gate/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible pepper version")
)

const codeContext = "access-code"

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Pepper struct {
	Value   string
	Version int
}

// Hasher hashes verification codes with argon2id and a server-side pepper so
// a leaked code table does not reveal redeemable codes.
type Hasher struct {
	params Argon2Params
	pepper Pepper
}

type HashResult struct {
	Hash          string `json:"hash"`
	Salt          string `json:"salt"`
	PepperVersion int    `json:"pepper_version"`
	Algorithm     string `json:"algorithm"`
}

func NewHasher(cfg *config.Config) (*Hasher, error) {
	params := Argon2Params{
		Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
		Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
		Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
		SaltLength:  16,
		KeyLength:   32,
	}
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("argon2 parameters must be positive")
	}

	pepper := Pepper{Value: cfg.Hashing.Pepper, Version: cfg.Hashing.PepperVersion}
	if pepper.Value == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("CODE_PEPPER is required in production")
		}
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("failed to generate pepper: %w", err)
		}
		pepper.Value = base64.RawURLEncoding.EncodeToString(b)
		util.Warn("CODE_PEPPER not set - using an ephemeral pepper, issued codes will not survive a restart")
	}

	return &Hasher{params: params, pepper: pepper}, nil
}

// HashCode hashes a verification code with a fresh salt.
func (h *Hasher) HashCode(code string) (*HashResult, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := h.derive(code, salt, h.params.KeyLength)

	return &HashResult{
		Hash:          base64.RawURLEncoding.EncodeToString(hash),
		Salt:          base64.RawURLEncoding.EncodeToString(salt),
		PepperVersion: h.pepper.Version,
		Algorithm:     "argon2id-v1",
	}, nil
}

// VerifyCode compares a submitted code with a stored hash in constant time.
func (h *Hasher) VerifyCode(code string, hashResult *HashResult) (bool, error) {
	if hashResult.PepperVersion != h.pepper.Version {
		return false, fmt.Errorf("%w: %d", ErrIncompatibleVersion, hashResult.PepperVersion)
	}

	salt, err := base64.RawURLEncoding.DecodeString(hashResult.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}
	expectedHash, err := base64.RawURLEncoding.DecodeString(hashResult.Hash)
	if err != nil || len(expectedHash) == 0 {
		return false, ErrInvalidHash
	}

	computedHash := h.derive(code, salt, uint32(len(expectedHash)))
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1, nil
}

func (h *Hasher) derive(code string, salt []byte, keyLen uint32) []byte {
	contextualData := code + h.pepper.Value + codeContext
	return argon2.IDKey(
		[]byte(contextualData),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		keyLen,
	)
}

// Benchmark reports how long n hashes take with the configured parameters.
func (h *Hasher) Benchmark(iterations int) time.Duration {
	start := time.Now()
	for i := 0; i < iterations; i++ {
		if _, err := h.HashCode(fmt.Sprintf("%06d", i)); err != nil {
			util.Error("Benchmark failed", zap.Error(err))
			return 0
		}
	}
	return time.Since(start)
}

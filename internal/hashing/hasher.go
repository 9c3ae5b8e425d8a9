package hashing

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"moment-mint/internal/config"
	"moment-mint/internal/model"
	"moment-mint/internal/util"
)

const algorithm = "argon2id-v1"

var (
	ErrInvalidHash     = errors.New("invalid hash format")
	ErrUnknownPepper   = errors.New("pepper version not found")
	ErrUnsupportedHash = errors.New("unsupported hash algorithm")
)

// keptPeppers is how many retired peppers stay valid for verification.
const keptPeppers = 2

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Pepper struct {
	Value     string
	CreatedAt time.Time
	Version   int
}

// Hasher hashes one-time codes with argon2id, a random salt and a rotating
// server-side pepper.
type Hasher struct {
	params         Argon2Params
	rotateInterval time.Duration

	mu            sync.RWMutex
	currentPepper *Pepper
	oldPeppers    []*Pepper
}

func NewHasher(cfg config.HashingConfig) (*Hasher, error) {
	params := Argon2Params{
		Memory:      uint32(cfg.Argon2MemoryCost),
		Iterations:  uint32(cfg.Argon2TimeCost),
		Parallelism: uint8(cfg.Argon2Parallelism),
		SaltLength:  16,
		KeyLength:   32,
	}
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("argon2 parameters must be positive: %+v", params)
	}

	h := &Hasher{
		params:         params,
		rotateInterval: time.Duration(cfg.PepperRotationDays) * 24 * time.Hour,
	}
	if err := h.rotatePepper(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Hasher) rotatePepper() error {
	pepperBytes := make([]byte, 32)
	if _, err := rand.Read(pepperBytes); err != nil {
		return fmt.Errorf("failed to generate pepper: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	version := 1
	if h.currentPepper != nil {
		version = h.currentPepper.Version + 1
		h.oldPeppers = append(h.oldPeppers, h.currentPepper)
		if len(h.oldPeppers) > keptPeppers {
			h.oldPeppers = h.oldPeppers[len(h.oldPeppers)-keptPeppers:]
		}
	}
	h.currentPepper = &Pepper{
		Value:     base64.RawURLEncoding.EncodeToString(pepperBytes),
		CreatedAt: time.Now(),
		Version:   version,
	}

	util.Info("Pepper rotated",
		zap.Int("version", version),
		zap.Time("created_at", h.currentPepper.CreatedAt),
	)
	return nil
}

// StartPepperRotation rotates the pepper every configured interval until ctx
// is done. A zero interval disables rotation.
func (h *Hasher) StartPepperRotation(ctx context.Context) {
	if h.rotateInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.rotateInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.rotatePepper(); err != nil {
					util.Error("Pepper rotation failed", zap.Error(err))
				}
			}
		}
	}()
}

// PepperVersion returns the version new hashes are made with.
func (h *Hasher) PepperVersion() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentPepper.Version
}

// HashOTP hashes otp with the current pepper.
func (h *Hasher) HashOTP(otp string) (*model.OTPRecord, error) {
	h.mu.RLock()
	pepper := h.currentPepper
	h.mu.RUnlock()

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	// the purpose suffix keeps otp hashes from being reused elsewhere
	hash := argon2.IDKey(
		[]byte(otp+pepper.Value+"otp"),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return &model.OTPRecord{
		Hash:          base64.RawURLEncoding.EncodeToString(hash),
		Salt:          base64.RawURLEncoding.EncodeToString(salt),
		PepperVersion: pepper.Version,
		Algorithm:     algorithm,
		IssuedAt:      time.Now().UTC(),
	}, nil
}

// VerifyOTP reports whether otp matches rec, in constant time.
func (h *Hasher) VerifyOTP(otp string, rec *model.OTPRecord) (bool, error) {
	if rec == nil {
		return false, ErrInvalidHash
	}
	if rec.Algorithm != algorithm {
		return false, ErrUnsupportedHash
	}
	pepper, err := h.getPepper(rec.PepperVersion)
	if err != nil {
		return false, err
	}
	salt, err := base64.RawURLEncoding.DecodeString(rec.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawURLEncoding.DecodeString(rec.Hash)
	if err != nil || len(expected) == 0 {
		return false, ErrInvalidHash
	}

	computed := argon2.IDKey(
		[]byte(otp+pepper+"otp"),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		uint32(len(expected)),
	)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func (h *Hasher) getPepper(version int) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.currentPepper != nil && h.currentPepper.Version == version {
		return h.currentPepper.Value, nil
	}
	for _, p := range h.oldPeppers {
		if p.Version == version {
			return p.Value, nil
		}
	}
	return "", fmt.Errorf("%w: %d", ErrUnknownPepper, version)
}

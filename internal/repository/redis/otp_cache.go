package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"moment-mint/internal/client"
	"moment-mint/internal/model"
	"moment-mint/internal/util"
)

const (
	otpPrefix        = "otp:"
	otpAttemptPrefix = "otp_attempts:"
	otpLockPrefix    = "otp_lock:"
)

var ErrOTPNotFound = errors.New("no otp issued or otp expired")

// OTPCache keeps the hashed code, the failed-attempt counter and the lock
// for each mobile number.
type OTPCache struct {
	client *client.RedisClient
	prefix string
}

func NewOTPCache(c *client.RedisClient, keyPrefix string) *OTPCache {
	return &OTPCache{client: c, prefix: keyPrefix}
}

func (c *OTPCache) key(kind, mobile string) string {
	return c.prefix + kind + mobile
}

// SetOTP stores rec for ttl and resets the attempt counter.
func (c *OTPCache) SetOTP(ctx context.Context, mobile string, rec *model.OTPRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode otp record: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.key(otpPrefix, mobile), data, ttl)
	pipe.Del(ctx, c.key(otpAttemptPrefix, mobile))
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to set OTP in cache", zap.String("mobile", util.MaskPhone(mobile)), zap.Duration("ttl", ttl), zap.Error(err))
		return fmt.Errorf("failed to set otp in cache: %w", err)
	}
	util.Debug("OTP cached", zap.String("mobile", util.MaskPhone(mobile)), zap.Duration("ttl", ttl))
	return nil
}

func (c *OTPCache) GetOTP(ctx context.Context, mobile string) (*model.OTPRecord, error) {
	raw, err := c.client.Get(ctx, c.key(otpPrefix, mobile))
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, ErrOTPNotFound
		}
		util.Error("Failed to get OTP from cache", zap.String("mobile", util.MaskPhone(mobile)), zap.Error(err))
		return nil, fmt.Errorf("failed to get otp from cache: %w", err)
	}
	var rec model.OTPRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode otp record: %w", err)
	}
	return &rec, nil
}

// DeleteOTP removes the code and its attempt counter.
func (c *OTPCache) DeleteOTP(ctx context.Context, mobile string) error {
	if err := c.client.Del(ctx, c.key(otpPrefix, mobile), c.key(otpAttemptPrefix, mobile)); err != nil {
		util.Error("Failed to delete OTP from cache", zap.String("mobile", util.MaskPhone(mobile)), zap.Error(err))
		return fmt.Errorf("failed to delete otp from cache: %w", err)
	}
	return nil
}

// IncrementAttempts counts a failed verification. The counter expires with
// the window started by the first failure.
func (c *OTPCache) IncrementAttempts(ctx context.Context, mobile string, ttl time.Duration) (int, error) {
	count, err := c.client.IncrWithExpire(ctx, c.key(otpAttemptPrefix, mobile), ttl)
	if err != nil {
		return 0, fmt.Errorf("failed to increment otp attempts: %w", err)
	}
	return int(count), nil
}

// SetOTPLock blocks verification and new codes for mobile during ttl.
func (c *OTPCache) SetOTPLock(ctx context.Context, mobile string, ttl time.Duration) error {
	if _, err := c.client.SetNX(ctx, c.key(otpLockPrefix, mobile), "locked", ttl); err != nil {
		util.Error("Failed to set OTP lock", zap.String("mobile", util.MaskPhone(mobile)), zap.Error(err))
		return fmt.Errorf("failed to set otp lock: %w", err)
	}
	util.Warn("OTP locked", zap.String("mobile", util.MaskPhone(mobile)), zap.Duration("ttl", ttl))
	return nil
}

func (c *OTPCache) IsOTPLocked(ctx context.Context, mobile string) (bool, error) {
	locked, err := c.client.Exists(ctx, c.key(otpLockPrefix, mobile))
	if err != nil {
		return false, fmt.Errorf("failed to check otp lock: %w", err)
	}
	return locked, nil
}

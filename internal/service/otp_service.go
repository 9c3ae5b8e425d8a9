package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"moment-mint/internal/config"
	"moment-mint/internal/hashing"
	"moment-mint/internal/model"
	redisrepo "moment-mint/internal/repository/redis"
	"moment-mint/internal/util"
)

var (
	ErrInvalidMobileNumber = errors.New("invalid mobile number")
	ErrInvalidOTPFormat    = errors.New("otp must be 6 digits")
	ErrRateLimited         = errors.New("too many otp requests")
	ErrOTPLocked           = errors.New("otp verification locked")
	ErrOTPExpired          = errors.New("otp expired or not requested")
	ErrOTPMismatch         = errors.New("otp does not match")
	ErrUnauthorized        = errors.New("invalid or expired session")
)

const deliveryChannel = "whatsapp"

// RateLimitError is returned when a number exceeds the send limit. It
// matches ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v, retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// OTPService issues and verifies one-time codes and the session tokens
// that follow a successful verification.
type OTPService struct {
	otps       *redisrepo.OTPCache
	limits     *redisrepo.RateLimitCache
	sessions   *redisrepo.SessionCache
	hasher     *hashing.Hasher
	dispatcher Dispatcher
	cfg        config.OTPConfig
	sessionTTL time.Duration
	logger     *zap.Logger

	generate func() (string, error)
}

func NewOTPService(
	otps *redisrepo.OTPCache,
	limits *redisrepo.RateLimitCache,
	sessions *redisrepo.SessionCache,
	hasher *hashing.Hasher,
	dispatcher Dispatcher,
	cfg config.OTPConfig,
	sessionCfg config.SessionConfig,
	logger *zap.Logger,
) *OTPService {
	return &OTPService{
		otps:       otps,
		limits:     limits,
		sessions:   sessions,
		hasher:     hasher,
		dispatcher: dispatcher,
		cfg:        cfg,
		sessionTTL: sessionCfg.TTL,
		logger:     logger,
		generate:   generateCode,
	}
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// CheckMobileNumber generates, stores and dispatches a new code for mobile.
// It returns the dispatch request id.
func (s *OTPService) CheckMobileNumber(ctx context.Context, mobile string) (string, error) {
	if !util.IsE164(mobile) {
		return "", ErrInvalidMobileNumber
	}

	locked, err := s.otps.IsOTPLocked(ctx, mobile)
	if err != nil {
		return "", err
	}
	if locked {
		return "", ErrOTPLocked
	}

	limitKey := "send:" + mobile
	sent, err := s.limits.IncrementCounter(ctx, limitKey, s.cfg.SendWindow)
	if err != nil {
		return "", err
	}
	if sent > s.cfg.SendLimit {
		retry, err := s.limits.RetryAfter(ctx, limitKey)
		if err != nil {
			s.logger.Warn("Failed to read send window", zap.Error(err))
		}
		s.logger.Warn("OTP send limit reached",
			zap.String("mobile", util.MaskPhone(mobile)),
			zap.Int("count", sent),
			zap.Duration("retry_after", retry),
		)
		return "", &RateLimitError{RetryAfter: retry}
	}

	code, err := s.generate()
	if err != nil {
		return "", err
	}
	rec, err := s.hasher.HashOTP(code)
	if err != nil {
		return "", fmt.Errorf("failed to hash otp: %w", err)
	}
	if err := s.otps.SetOTP(ctx, mobile, rec, s.cfg.TTL); err != nil {
		return "", err
	}

	msg := model.OTPDispatch{
		RequestID:    uuid.NewString(),
		MobileNumber: mobile,
		Code:         code,
		Channel:      deliveryChannel,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		if delErr := s.otps.DeleteOTP(ctx, mobile); delErr != nil {
			s.logger.Error("Failed to roll back undelivered OTP", zap.Error(delErr))
		}
		return "", err
	}

	s.logger.Info("OTP issued",
		zap.String("mobile", util.MaskPhone(mobile)),
		zap.String("request_id", msg.RequestID),
		zap.Int("pepper_version", rec.PepperVersion),
	)
	return msg.RequestID, nil
}

// VerifyOTP checks code against the stored hash. Each mismatch counts
// against the attempt limit; reaching it locks the number.
func (s *OTPService) VerifyOTP(ctx context.Context, mobile, code string) (*model.SessionRecord, error) {
	if !util.IsE164(mobile) {
		return nil, ErrInvalidMobileNumber
	}
	if !util.IsOTPCode(code) {
		return nil, ErrInvalidOTPFormat
	}

	var (
		locked bool
		rec    *model.OTPRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		locked, err = s.otps.IsOTPLocked(gctx, mobile)
		return err
	})
	g.Go(func() error {
		var err error
		rec, err = s.otps.GetOTP(gctx, mobile)
		if errors.Is(err, redisrepo.ErrOTPNotFound) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if locked {
		return nil, ErrOTPLocked
	}
	if rec == nil {
		return nil, ErrOTPExpired
	}

	ok, err := s.hasher.VerifyOTP(code, rec)
	if err != nil {
		if errors.Is(err, hashing.ErrUnknownPepper) {
			return nil, ErrOTPExpired
		}
		return nil, fmt.Errorf("failed to verify otp: %w", err)
	}
	if !ok {
		return nil, s.recordMismatch(ctx, mobile)
	}

	if err := s.otps.DeleteOTP(ctx, mobile); err != nil {
		return nil, err
	}
	session := &model.SessionRecord{
		Token:        uuid.NewString(),
		MobileNumber: mobile,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.sessions.SetSession(ctx, session, s.sessionTTL); err != nil {
		return nil, err
	}

	s.logger.Info("OTP verified", zap.String("mobile", util.MaskPhone(mobile)))
	return session, nil
}

func (s *OTPService) recordMismatch(ctx context.Context, mobile string) error {
	attempts, err := s.otps.IncrementAttempts(ctx, mobile, s.cfg.TTL)
	if err != nil {
		return err
	}
	if attempts < s.cfg.MaxAttempts {
		s.logger.Info("OTP mismatch", zap.String("mobile", util.MaskPhone(mobile)), zap.Int("attempts", attempts))
		return ErrOTPMismatch
	}

	if err := s.otps.SetOTPLock(ctx, mobile, s.cfg.LockDuration); err != nil {
		return err
	}
	if err := s.otps.DeleteOTP(ctx, mobile); err != nil {
		return err
	}
	return ErrOTPLocked
}

// Authenticate resolves a bearer token to its session.
func (s *OTPService) Authenticate(ctx context.Context, token string) (*model.SessionRecord, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	session, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, redisrepo.ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return session, nil
}

// Logout invalidates token. Unknown tokens are ignored.
func (s *OTPService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	if err := s.sessions.InvalidateSession(ctx, token); err != nil {
		return err
	}
	s.logger.Info("Session invalidated")
	return nil
}

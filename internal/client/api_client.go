package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"moment-mint/internal/config"
	"moment-mint/internal/model"
)

const defaultAPITimeout = 10 * time.Second

// TokenSource supplies the stored session token, if any, for outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// HTTPError is returned when the backend answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Message    string // user-facing text for the status
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("api: status=%d: %s", e.StatusCode, e.Message)
}

// StatusMessage maps an HTTP status to the message shown to the user.
func StatusMessage(status int, detail string) string {
	switch status {
	case http.StatusUnauthorized:
		return "Unauthorized! Please log in again."
	case http.StatusNotFound:
		return "Resource not found."
	case http.StatusInternalServerError:
		return "Server error, please try again later."
	default:
		return "An unexpected error occurred:" + detail
	}
}

// APIClient talks to the Backend Auth API. A TokenSource, when set, attaches
// "Authorization: Bearer <token>" to every request that has a token available.
type APIClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenSource
	logger     *zap.Logger
}

// NewAPIClient builds a client from the API section of cfg.
func NewAPIClient(cfg config.APIConfig, tokens TokenSource, logger *zap.Logger) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIClient{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		Tokens:     tokens,
		logger:     logger,
	}
}

// CheckMobileNumber asks the backend to send an OTP to mobileNumber (dial code + digits).
func (c *APIClient) CheckMobileNumber(ctx context.Context, mobileNumber string) (*model.APIResponse, error) {
	return c.Post(ctx, "/checkMobileNumber", model.CheckMobileNumberRequest{MobileNumber: mobileNumber})
}

// VerifyOTP submits otp for mobileNumber. On success the response carries the session token.
func (c *APIClient) VerifyOTP(ctx context.Context, mobileNumber, otp string) (*model.APIResponse, error) {
	return c.Post(ctx, "/verifyOtp", model.VerifyOTPRequest{MobileNumber: mobileNumber, OTP: otp})
}

// Logout invalidates the current session token on the backend.
func (c *APIClient) Logout(ctx context.Context) (*model.APIResponse, error) {
	return c.Post(ctx, "/logout", struct{}{})
}

// Post sends body as JSON to path and decodes the response envelope.
func (c *APIClient) Post(ctx context.Context, path string, body interface{}) (*model.APIResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("api: encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(raw))
}

// Get fetches path and decodes the response envelope.
func (c *APIClient) Get(ctx context.Context, path string) (*model.APIResponse, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, body io.Reader) (*model.APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.Tokens != nil {
		token, err := c.Tokens.Token(ctx)
		if err != nil {
			// A store failure must not block pre-auth calls.
			c.logger.Warn("token lookup failed", zap.String("path", path), zap.Error(err))
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.logger.Warn("api request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("api: read response: %w", err)
	}

	c.logger.Debug("api request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    StatusMessage(resp.StatusCode, http.StatusText(resp.StatusCode)),
			Body:       string(payload),
		}
	}

	var out model.APIResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("api: decode response: %w", err)
	}
	return &out, nil
}

// IsHTTPStatus reports whether err is an HTTPError with the given status.
func IsHTTPStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}

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

const sessionDataPrefix = "session_data:"

var ErrSessionNotFound = errors.New("session not found or expired")

// SessionCache maps issued tokens to session records.
type SessionCache struct {
	client *client.RedisClient
	prefix string
}

func NewSessionCache(c *client.RedisClient, keyPrefix string) *SessionCache {
	return &SessionCache{client: c, prefix: keyPrefix + sessionDataPrefix}
}

func (c *SessionCache) SetSession(ctx context.Context, rec *model.SessionRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+rec.Token, data, ttl); err != nil {
		util.Error("Failed to store session", zap.String("mobile", util.MaskPhone(rec.MobileNumber)), zap.Error(err))
		return fmt.Errorf("failed to store session: %w", err)
	}
	util.Debug("Session stored", zap.String("mobile", util.MaskPhone(rec.MobileNumber)), zap.Duration("ttl", ttl))
	return nil
}

func (c *SessionCache) GetSession(ctx context.Context, token string) (*model.SessionRecord, error) {
	raw, err := c.client.Get(ctx, c.prefix+token)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var rec model.SessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &rec, nil
}

// InvalidateSession deletes token. Unknown tokens are not an error.
func (c *SessionCache) InvalidateSession(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, c.prefix+token); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

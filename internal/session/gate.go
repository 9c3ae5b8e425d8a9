// Package session decides where the app starts and owns the stored token.
package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"moment-mint/internal/storage"
)

// Route is the first screen shown after start-up.
type Route string

const (
	RouteMainTabs           Route = "MainTabs"
	RouteMobileVerification Route = "MobileVerification"
)

// Gate reads and clears the session token kept in a Store.
type Gate struct {
	store  storage.Store
	key    string
	logger *zap.Logger
}

func NewGate(store storage.Store, key string, logger *zap.Logger) *Gate {
	if key == "" {
		key = "token"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, key: key, logger: logger}
}

// InitialRoute returns RouteMainTabs when a token is stored. Read failures
// are logged and route to verification.
func (g *Gate) InitialRoute(ctx context.Context) Route {
	token, err := g.Token(ctx)
	if err != nil {
		g.logger.Warn("Failed to read session token", zap.Error(err))
		return RouteMobileVerification
	}
	if token == "" {
		return RouteMobileVerification
	}
	return RouteMainTabs
}

// Token returns the stored token, or "" when none is stored.
func (g *Gate) Token(ctx context.Context) (string, error) {
	token, ok, err := g.store.Get(ctx, g.key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", g.key, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// Logout deletes the stored token.
func (g *Gate) Logout(ctx context.Context) error {
	if err := g.store.Delete(ctx, g.key); err != nil {
		return fmt.Errorf("delete %s: %w", g.key, err)
	}
	g.logger.Info("Session token removed")
	return nil
}

package factory

import (
	"fmt"

	"go.uber.org/zap"

	"moment-mint/internal/client"
	"moment-mint/internal/config"
	redisrepo "moment-mint/internal/repository/redis"
	"moment-mint/internal/session"
	"moment-mint/internal/storage"
	"moment-mint/internal/verification"
)

// ClientFactory wires the verification flow for the terminal client.
type ClientFactory struct {
	config *config.Config
	logger *zap.Logger

	redisClient *client.RedisClient
	store       storage.Store
	gate        *session.Gate
	api         *client.APIClient
	countries   *client.CountryClient
}

// NewClientFactory opens the configured store and builds the HTTP clients.
func NewClientFactory(cfg *config.Config, logger *zap.Logger) (*ClientFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &ClientFactory{config: cfg, logger: logger}

	store, err := f.openStore()
	if err != nil {
		f.Close()
		return nil, err
	}
	f.store = store
	f.gate = session.NewGate(store, cfg.Storage.TokenKey, logger)
	f.api = client.NewAPIClient(cfg.API, f.gate, logger)
	f.countries = client.NewCountryClient(cfg.Countries, logger)

	logger.Debug("Client factory initialized",
		zap.String("store", cfg.Storage.Backend),
		zap.String("api", cfg.API.BaseURL),
	)
	return f, nil
}

func (f *ClientFactory) openStore() (storage.Store, error) {
	switch f.config.Storage.Backend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "redis":
		rc, err := client.NewRedisClient(f.config.Redis, f.logger)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		f.redisClient = rc
		return redisrepo.NewKVStore(rc, f.config.Redis.KeyPrefix), nil
	default:
		fs, err := storage.NewFileStore(f.config.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		return fs, nil
	}
}

// NewController builds a verification controller over the factory's
// collaborators. notifier, navigator and onTick may be nil.
func (f *ClientFactory) NewController(notifier verification.Notifier, navigator verification.Navigator, onTick func(int)) (*verification.Controller, error) {
	return verification.NewController(verification.Dependencies{
		Directory: f.countries,
		API:       f.api,
		Store:     f.store,
		Notifier:  notifier,
		Navigator: navigator,
		Logger:    f.logger,
	}, verification.Options{
		PreferredCountry: f.config.Countries.DefaultCode,
		ResendCooldown:   f.config.Verification.ResendCooldown,
		TokenKey:         f.config.Storage.TokenKey,
		OnCooldownTick:   onTick,
	})
}

func (f *ClientFactory) Gate() *session.Gate {
	return f.gate
}

func (f *ClientFactory) API() *client.APIClient {
	return f.api
}

func (f *ClientFactory) Config() *config.Config {
	return f.config
}

func (f *ClientFactory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}

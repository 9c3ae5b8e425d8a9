package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"moment-mint/internal/client"
	"moment-mint/internal/config"
	"moment-mint/internal/handler"
	"moment-mint/internal/hashing"
	redisrepo "moment-mint/internal/repository/redis"
	"moment-mint/internal/service"
	"moment-mint/internal/util"
)

// Factory manages the lifecycle of the dev backend's dependencies.
type Factory struct {
	config *config.Config

	// Clients
	redisClient   *client.RedisClient
	kafkaProducer *client.KafkaProducer

	hasher     *hashing.Hasher
	dispatcher service.Dispatcher
	otpService *service.OTPService

	cancelRotation context.CancelFunc
	closeOnce      sync.Once
}

// NewFactory loads configuration, initializes the global logger and
// connects to Redis (and Kafka when OTP_CHANNEL=kafka).
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	util.InitWithOutput(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)

	f := &Factory{config: cfg}

	if err := f.initializeClients(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeManagers(); err != nil {
		f.Close()
		return nil, err
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("otp_channel", cfg.OTP.Channel),
	)
	return f, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rc, err := client.NewRedisClient(f.config.Redis, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = rc
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	util.Info("Redis client initialized and healthy")

	switch f.config.OTP.Channel {
	case "kafka":
		producer, err := client.NewKafkaProducer(f.config.Kafka, util.Get())
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		f.kafkaProducer = producer
		if err := producer.HealthCheck(ctx); err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("kafka health check: %w", err)
			}
			util.Warn("Kafka not reachable yet, continuing", util.ErrorField(err))
		}
		f.dispatcher = service.NewKafkaDispatcher(producer)
	default:
		util.Warn("OTP codes are written to the log; do not use outside development")
		f.dispatcher = service.NewLogDispatcher(util.Get())
	}
	return nil
}

func (f *Factory) initializeManagers() error {
	h, err := hashing.NewHasher(f.config.Hashing)
	if err != nil {
		return fmt.Errorf("hasher: %w", err)
	}
	f.hasher = h

	ctx, cancel := context.WithCancel(context.Background())
	f.cancelRotation = cancel
	f.hasher.StartPepperRotation(ctx)

	util.Info("Hasher initialized", util.Int("pepper_version", f.hasher.PepperVersion()))
	return nil
}

// OTPService returns the OTP service (singleton).
func (f *Factory) OTPService() *service.OTPService {
	if f.otpService == nil {
		prefix := f.config.Redis.KeyPrefix
		f.otpService = service.NewOTPService(
			redisrepo.NewOTPCache(f.redisClient, prefix),
			redisrepo.NewRateLimitCache(f.redisClient, prefix),
			redisrepo.NewSessionCache(f.redisClient, prefix),
			f.hasher,
			f.dispatcher,
			f.config.OTP,
			f.config.Session,
			util.Get(),
		)
	}
	return f.otpService
}

// AuthHandler returns the HTTP handler for the auth endpoints.
func (f *Factory) AuthHandler() *handler.AuthHandler {
	return handler.NewAuthHandler(f.OTPService(), util.Get())
}

// HealthCheck reports per-dependency errors. Kafka is only checked when it
// is the dispatch channel.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.hasher == nil {
		healthErrors["hasher"] = fmt.Errorf("hasher not initialized")
	}
	return healthErrors
}

// Ready is a handler.HealthFunc over HealthCheck.
func (f *Factory) Ready(ctx context.Context) error {
	for name, err := range f.HealthCheck(ctx) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.cancelRotation != nil {
			f.cancelRotation()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})
	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

// Package config loads client and dev-backend configuration from the environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment  string
	Server       ServerConfig
	API          APIConfig
	Countries    CountriesConfig
	Verification VerificationConfig
	Storage      StorageConfig
	Redis        RedisConfig
	OTP          OTPConfig
	Session      SessionConfig
	Kafka        KafkaConfig
	Hashing      HashingConfig
	Logging      LoggingConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

// APIConfig configures the Backend Auth API client.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type CountriesConfig struct {
	URL         string
	DefaultCode string
	Timeout     time.Duration
}

type VerificationConfig struct {
	ResendCooldown int // seconds
}

// StorageConfig selects the persistent key-value store used by the client.
type StorageConfig struct {
	Backend  string // "file", "redis" or "memory"
	Path     string
	TokenKey string
}

type RedisConfig struct {
	URL       string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

type OTPConfig struct {
	TTL          time.Duration
	MaxAttempts  int
	LockDuration time.Duration
	SendLimit    int
	SendWindow   time.Duration
	Channel      string // "log" or "kafka"
}

type SessionConfig struct {
	TTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type HashingConfig struct {
	Argon2MemoryCost   int
	Argon2TimeCost     int
	Argon2Parallelism  int
	PepperRotationDays int
}

type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// LoadConfig reads .env (if present) and builds Config from the environment.
// Environment variables win over .env entries.
func LoadConfig() *Config {
	_ = godotenv.Load() // missing .env is fine

	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 7012),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			CORSOrigins:  getEnvSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		API: APIConfig{
			BaseURL: strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:7012/api"), "/"),
			Timeout: getEnvDuration("API_TIMEOUT", 10*time.Second),
		},
		Countries: CountriesConfig{
			URL:         getEnv("COUNTRIES_URL", "https://restcountries.com/v3.1/all?fields=name,idd,cca2"),
			DefaultCode: strings.ToUpper(getEnv("COUNTRY_DEFAULT_CODE", "IN")),
			Timeout:     getEnvDuration("COUNTRIES_TIMEOUT", 10*time.Second),
		},
		Verification: VerificationConfig{
			ResendCooldown: getEnvInt("VERIFY_RESEND_COOLDOWN", 60),
		},
		Storage: StorageConfig{
			Backend:  getEnv("STORE_BACKEND", "file"),
			Path:     getEnv("STORE_PATH", defaultStorePath()),
			TokenKey: getEnv("STORE_TOKEN_KEY", "token"),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			PoolSize:  getEnvInt("REDIS_POOL_SIZE", 20),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "momentmint:"),
		},
		OTP: OTPConfig{
			TTL:          getEnvDuration("OTP_TTL", 5*time.Minute),
			MaxAttempts:  getEnvInt("OTP_MAX_ATTEMPTS", 5),
			LockDuration: getEnvDuration("OTP_LOCK_DURATION", 15*time.Minute),
			SendLimit:    getEnvInt("OTP_SEND_LIMIT", 5),
			SendWindow:   getEnvDuration("OTP_SEND_WINDOW", time.Hour),
			Channel:      getEnv("OTP_CHANNEL", "log"),
		},
		Session: SessionConfig{
			TTL: getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("OTP_DISPATCH_TOPIC", "otp-dispatch"),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:   getEnvInt("ARGON2_MEMORY_COST", 64*1024),
			Argon2TimeCost:     getEnvInt("ARGON2_TIME_COST", 1),
			Argon2Parallelism:  getEnvInt("ARGON2_PARALLELISM", 2),
			PepperRotationDays: getEnvInt("PEPPER_ROTATION_DAYS", 7),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}
}

// Validate reports the first configuration value that cannot be used.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("config: API_BASE_URL must be set")
	}
	if c.Verification.ResendCooldown < 0 {
		return errors.New("config: VERIFY_RESEND_COOLDOWN must not be negative")
	}
	switch c.Storage.Backend {
	case "file":
		if c.Storage.Path == "" {
			return errors.New("config: STORE_PATH must be set for the file store")
		}
	case "redis", "memory":
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.Storage.Backend)
	}
	if c.Storage.TokenKey == "" {
		return errors.New("config: STORE_TOKEN_KEY must be set")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("config: OTP_MAX_ATTEMPTS must be positive")
	}
	switch c.OTP.Channel {
	case "log":
		if c.IsProduction() {
			return errors.New("config: OTP_CHANNEL=log must not be used when APP_ENV=production")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("config: KAFKA_BROKERS must be set when OTP_CHANNEL=kafka")
		}
	default:
		return fmt.Errorf("config: unknown OTP_CHANNEL %q", c.OTP.Channel)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GetServerAddress returns the dev backend listen address.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".momentmint", "store.json")
	}
	return filepath.Join(home, ".momentmint", "store.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

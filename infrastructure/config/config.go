package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperr "github.com/onboarding/onboarding-service/domain/error"
)

const (
	KeyJWTSecret       = "JwtSettings.Secret"
	KeyJWTIssuer       = "JwtSettings.Issuer"
	KeyJWTAudience     = "JwtSettings.Audience"
	KeyJWTExpiryInDays = "JwtSettings.ExpiryInDays"

	EnvKafkaBootstrapServers = "KAFKA_BOOTSTRAP_SERVERS"
	EnvKafkaSASLUsername     = "KAFKA_SASL_USERNAME"
	EnvKafkaSASLPassword     = "KAFKA_SASL_PASSWORD"

	DefaultNotificationTopic = "email-notify"
)

type Config struct {
	Signing SigningConfig
	Kafka   KafkaConfig

	ServerPort  string
	ServerHost  string
	Environment string

	LogLevel  string
	LogFormat string

	CORSEnabled          bool
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	RateLimitEnabled  bool
	RateLimitRedisURL string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// SigningConfig is loaded once at startup and never changes afterwards.
type SigningConfig struct {
	SecretKey      []byte
	Issuer         string
	Audience       string
	ExpiryDuration time.Duration
}

// KafkaConfig carries the broker credentials and the delivery guarantees of
// the notification publisher.
type KafkaConfig struct {
	BootstrapServers []string
	SASLUsername     string
	SASLPassword     string
	TLSEnabled       bool
	Topic            string

	MaxInFlight  int
	MaxRetries   int
	RetryBackoff time.Duration
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	FlushTimeout time.Duration

	// LedgerRedisURL enables the delivery ledger when set.
	LedgerRedisURL string
	LedgerTTL      time.Duration
}

var (
	ErrMissingJWTSecret   = errors.New("JwtSettings.Secret is required")
	ErrMissingJWTIssuer   = errors.New("JwtSettings.Issuer is required")
	ErrMissingJWTAudience = errors.New("JwtSettings.Audience is required")
	ErrMissingJWTExpiry   = errors.New("JwtSettings.ExpiryInDays is required")
	ErrInvalidTokenTTL    = errors.New("JwtSettings.ExpiryInDays must be a positive integer")

	ErrMissingKafkaBootstrapServers = errors.New("KAFKA_BOOTSTRAP_SERVERS is required")
	ErrMissingKafkaSASLUsername     = errors.New("KAFKA_SASL_USERNAME is required")
	ErrMissingKafkaSASLPassword     = errors.New("KAFKA_SASL_PASSWORD is required")
	ErrInvalidKafkaSetting          = errors.New("invalid kafka setting")
)

// Load reads the whole process configuration. It is meant to be called once
// from main; nothing reads the environment after it returns.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	signing, err := LoadSigningConfig(EnvSource{})
	if err != nil {
		return nil, apperr.ErrConfigurationError("JwtSettings", err)
	}

	kafka, err := LoadKafkaConfig()
	if err != nil {
		return nil, apperr.ErrConfigurationError("Kafka", err)
	}

	return &Config{
		Signing:              signing,
		Kafka:                kafka,
		ServerPort:           getEnvOrDefault("SERVER_PORT", "8080"),
		ServerHost:           getEnvOrDefault("SERVER_HOST", "localhost"),
		Environment:          getEnvOrDefault("ENV", "development"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		CORSEnabled:          getEnvOrDefaultBool("CORS_ENABLED", true),
		CORSAllowCredentials: getEnvOrDefaultBool("CORS_ALLOW_CREDENTIALS", true),
		CORSAllowedOrigins:   parseList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "")),
		RateLimitEnabled:     getEnvOrDefaultBool("RATE_LIMIT_ENABLED", false),
		RateLimitRedisURL:    getEnvOrDefault("RATE_LIMIT_REDIS_URL", kafka.LedgerRedisURL),
		RateLimitRequests:    getEnvOrDefaultInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:      getEnvOrDefaultDuration("RATE_LIMIT_WINDOW", time.Minute),
	}, nil
}

// LoadSigning is Load for tools that only mint or inspect tokens and have no
// broker credentials.
func LoadSigning() (SigningConfig, error) {
	_ = godotenv.Load()
	signing, err := LoadSigningConfig(EnvSource{})
	if err != nil {
		return SigningConfig{}, apperr.ErrConfigurationError("JwtSettings", err)
	}
	return signing, nil
}

// LoadSigningConfig reads the JwtSettings section. Every key is mandatory.
func LoadSigningConfig(src Source) (SigningConfig, error) {
	secret, ok := src.Lookup(KeyJWTSecret)
	if !ok {
		return SigningConfig{}, ErrMissingJWTSecret
	}
	issuer, ok := src.Lookup(KeyJWTIssuer)
	if !ok {
		return SigningConfig{}, ErrMissingJWTIssuer
	}
	audience, ok := src.Lookup(KeyJWTAudience)
	if !ok {
		return SigningConfig{}, ErrMissingJWTAudience
	}
	rawExpiry, ok := src.Lookup(KeyJWTExpiryInDays)
	if !ok {
		return SigningConfig{}, ErrMissingJWTExpiry
	}
	days, err := strconv.Atoi(strings.TrimSpace(rawExpiry))
	if err != nil || days <= 0 {
		return SigningConfig{}, ErrInvalidTokenTTL
	}

	return SigningConfig{
		SecretKey:      []byte(secret),
		Issuer:         issuer,
		Audience:       audience,
		ExpiryDuration: time.Duration(days) * 24 * time.Hour,
	}, nil
}

// DefaultKafkaConfig returns the delivery settings without credentials.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		TLSEnabled:   true,
		Topic:        DefaultNotificationTopic,
		MaxInFlight:  5,
		MaxRetries:   2,
		RetryBackoff: time.Second,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		FlushTimeout: 10 * time.Second,
		LedgerTTL:    24 * time.Hour,
	}
}

// LoadKafkaConfig reads broker credentials and tunables from the
// environment.
func LoadKafkaConfig() (KafkaConfig, error) {
	cfg := DefaultKafkaConfig()
	cfg.BootstrapServers = parseList(os.Getenv(EnvKafkaBootstrapServers))
	cfg.SASLUsername = os.Getenv(EnvKafkaSASLUsername)
	cfg.SASLPassword = os.Getenv(EnvKafkaSASLPassword)
	cfg.TLSEnabled = getEnvOrDefaultBool("KAFKA_TLS_ENABLED", cfg.TLSEnabled)
	cfg.Topic = getEnvOrDefault("KAFKA_TOPIC", cfg.Topic)
	cfg.MaxInFlight = getEnvOrDefaultInt("KAFKA_MAX_IN_FLIGHT", cfg.MaxInFlight)
	cfg.MaxRetries = getEnvOrDefaultInt("KAFKA_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryBackoff = getEnvOrDefaultDuration("KAFKA_RETRY_BACKOFF", cfg.RetryBackoff)
	cfg.BatchTimeout = getEnvOrDefaultDuration("KAFKA_BATCH_TIMEOUT", cfg.BatchTimeout)
	cfg.WriteTimeout = getEnvOrDefaultDuration("KAFKA_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.FlushTimeout = getEnvOrDefaultDuration("KAFKA_FLUSH_TIMEOUT", cfg.FlushTimeout)
	cfg.LedgerRedisURL = os.Getenv("NOTIFY_LEDGER_REDIS_URL")
	cfg.LedgerTTL = getEnvOrDefaultDuration("NOTIFY_LEDGER_TTL", cfg.LedgerTTL)

	if err := cfg.Validate(); err != nil {
		return KafkaConfig{}, err
	}
	return cfg, nil
}

// Validate reports the first missing credential or out-of-range tunable.
func (c KafkaConfig) Validate() error {
	if len(c.BootstrapServers) == 0 {
		return ErrMissingKafkaBootstrapServers
	}
	if strings.TrimSpace(c.SASLUsername) == "" {
		return ErrMissingKafkaSASLUsername
	}
	if c.SASLPassword == "" {
		return ErrMissingKafkaSASLPassword
	}
	if strings.TrimSpace(c.Topic) == "" {
		return fmt.Errorf("%w: topic is empty", ErrInvalidKafkaSetting)
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("%w: max in-flight must be positive, got %d", ErrInvalidKafkaSetting, c.MaxInFlight)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidKafkaSetting, c.MaxRetries)
	}
	if c.RetryBackoff < 0 || c.FlushTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: backoff, write and flush timeouts must be positive", ErrInvalidKafkaSetting)
	}
	return nil
}

// DeliveryTimeout bounds one record from submission to acknowledgement,
// every retry and backoff included.
func (c KafkaConfig) DeliveryTimeout() time.Duration {
	return c.WriteTimeout*time.Duration(c.MaxRetries+1) + c.RetryBackoff*time.Duration(c.MaxRetries)
}

// PublishTimeout bounds a whole publish call: one WriteTimeout of waiting for
// in-flight capacity, then the delivery itself.
func (c KafkaConfig) PublishTimeout() time.Duration {
	return c.WriteTimeout + c.DeliveryTimeout()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// bare numbers are milliseconds
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * time.Millisecond
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return d
	}
	return defaultValue
}

func parseList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}

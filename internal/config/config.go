package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

// Config holds application configuration
type Config struct {
	HTTPPort     int
	GRPCPort     int
	MetricsPort  int
	GinMode      string
	LogLevel     string
	Environment  string
	OTLPEndpoint string
	StoreBackend string
	SeedAccounts bool

	DB       DBConfig
	Redis    RedisConfig
	DynamoDB DynamoDBConfig
	Retry    RetryConfig
}

type DBConfig struct {
	DSN string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DynamoDBConfig struct {
	Table    string
	Endpoint string // empty means the regional AWS endpoint
	Region   string
}

// RetryConfig feeds the transfer retry coordinator
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      bool
}

// Load reads the configuration from environment variables, falling back to defaults
func Load() (*Config, error) {
	var errs []error

	cfg := &Config{
		HTTPPort:     getEnvInt("HTTP_PORT", 8080, &errs),
		GRPCPort:     getEnvInt("GRPC_PORT", 9000, &errs),
		MetricsPort:  getEnvInt("METRICS_PORT", 9090, &errs),
		GinMode:      getEnv("GIN_MODE", "release"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Environment:  getEnv("ENVIRONMENT", "development"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		StoreBackend: getEnv("STORE_BACKEND", BackendMemory),
		SeedAccounts: getEnvBool("SEED_DEMO_ACCOUNTS", false, &errs),
		DB: DBConfig{
			DSN: databaseDSN(),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0, &errs),
		},
		DynamoDB: DynamoDBConfig{
			Table:    getEnv("DYNAMODB_TABLE", "accounts"),
			Endpoint: os.Getenv("DYNAMODB_ENDPOINT"),
			Region:   getEnv("AWS_REGION", "eu-west-3"),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3, &errs),
			Delay:       getEnvDuration("RETRY_DELAY", 100*time.Millisecond, &errs),
			Multiplier:  getEnvFloat("RETRY_MULTIPLIER", 1, &errs),
			MaxDelay:    getEnvDuration("RETRY_MAX_DELAY", 2*time.Second, &errs),
			Jitter:      getEnvBool("RETRY_JITTER", false, &errs),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendPostgres, BackendRedis, BackendDynamoDB:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be a positive integer, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("RETRY_DELAY cannot be negative, got %s", c.Retry.Delay)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("RETRY_MULTIPLIER must be at least 1, got %v", c.Retry.Multiplier)
	}

	return nil
}

// databaseDSN prefers DB_CONN_STR and otherwise builds it from individual vars (Docker friendly)
func databaseDSN() string {
	if dsn := os.Getenv("DB_CONN_STR"); dsn != "" {
		return dsn
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "transfers"),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64, errs *[]error) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool, errs *[]error) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return v
}

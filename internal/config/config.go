package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database   DatabaseConfig
	JWT        JWTConfig
	App        AppConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Settlement SettlementConfig
	Worker     WorkerConfig
	RateLimit  RateLimitConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxConns      int32
	MinConns      int32
	RunMigrations bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port           int
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

// RedisConfig is optional. An empty Addr disables the in-flight guard.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// KafkaConfig is optional. Empty Brokers leaves outbox rows pending.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type SettlementConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

type WorkerConfig struct {
	AuditInterval      time.Duration
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxRetries   int
	OutboxRetention    time.Duration
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded, using process environment", "error", err)
	}

	config := &Config{}

	// Database configuration
	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	maxConns, err := getEnvInt("DB_MAX_CONNS", 25)
	if err != nil {
		return nil, err
	}
	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, err
	}

	config.Database = DatabaseConfig{
		Host:          getEnv("DB_HOST", "localhost"),
		Port:          dbPort,
		User:          getEnv("DB_USER", "postgres"),
		Password:      getEnv("DB_PASSWORD", ""),
		Name:          getEnv("DB_NAME", "cmlabs-settlement"),
		SSLMode:       getEnv("DB_SSL_MODE", "disable"),
		MaxConns:      int32(maxConns),
		MinConns:      int32(minConns),
		RunMigrations: getEnvBool("DB_RUN_MIGRATIONS", true),
	}

	// Application configuration
	appPort, err := getEnvInt("APP_PORT", 8080)
	if err != nil {
		return nil, err
	}

	config.App = AppConfig{
		Port:           appPort,
		Env:            getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", "http://localhost:3000"),
	}

	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	// Redis configuration
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	lockTTL, err := getEnvDuration("REDIS_LOCK_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	config.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       redisDB,
		LockTTL:  lockTTL,
	}

	config.Kafka = KafkaConfig{
		Brokers: getEnvSlice("KAFKA_BROKERS", ""),
		Topic:   getEnv("KAFKA_SETTLEMENT_TOPIC", "payroll.settlements"),
	}

	// Settlement engine configuration
	maxAttempts, err := getEnvInt("SETTLEMENT_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	retryBackoff, err := getEnvDuration("SETTLEMENT_RETRY_BACKOFF", 25*time.Millisecond)
	if err != nil {
		return nil, err
	}

	config.Settlement = SettlementConfig{
		MaxAttempts:  maxAttempts,
		RetryBackoff: retryBackoff,
	}

	// Worker configuration
	auditInterval, err := getEnvDuration("LEDGER_AUDIT_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	pollInterval, err := getEnvDuration("OUTBOX_POLL_INTERVAL", 3*time.Second)
	if err != nil {
		return nil, err
	}
	batchSize, err := getEnvInt("OUTBOX_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}
	maxRetries, err := getEnvInt("OUTBOX_MAX_RETRIES", 10)
	if err != nil {
		return nil, err
	}
	retention, err := getEnvDuration("OUTBOX_RETENTION", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	config.Worker = WorkerConfig{
		AuditInterval:      auditInterval,
		OutboxPollInterval: pollInterval,
		OutboxBatchSize:    batchSize,
		OutboxMaxRetries:   maxRetries,
		OutboxRetention:    retention,
	}

	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	burst, err := getEnvInt("RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, err
	}
	config.RateLimit = RateLimitConfig{
		RequestsPerSecond: rps,
		Burst:             burst,
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.Settlement.MaxAttempts < 1 {
		return fmt.Errorf("SETTLEMENT_MAX_ATTEMPTS must be at least 1")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvSlice(key, fallback string) []string {
	value := getEnv(key, fallback)
	if value == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

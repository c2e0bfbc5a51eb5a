package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Драйверы потока изменений
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis Config
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Change feed Config
	ChangefeedDriver      string        `env:"CHANGEFEED_DRIVER" envDefault:"postgres"`
	StreamMaxLen          int64         `env:"CHANGEFEED_STREAM_MAXLEN" envDefault:"10000"`
	ReseedInitialInterval time.Duration `env:"RESEED_INITIAL_INTERVAL" envDefault:"500ms"`
	ReseedMaxInterval     time.Duration `env:"RESEED_MAX_INTERVAL" envDefault:"30s"`

	// Command Config
	CommandTimeout time.Duration `env:"COMMAND_TIMEOUT" envDefault:"3s"`
	PendingTTL     time.Duration `env:"PENDING_TTL" envDefault:"2m"`
	NotifyTimeout  time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"2s"`

	// Webhook Config
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookBaseDelay  time.Duration `env:"WEBHOOK_BASE_DELAY" envDefault:"1s"`

	// Migrations
	AutoMigrate    bool   `env:"AUTO_MIGRATE" envDefault:"false"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"migrations"`

	// API Keys for authentication
	APIKeys []string `env:"API_KEYS"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvAsInt("REDIS_DB", 0),
		ChangefeedDriver:      strings.ToLower(getEnv("CHANGEFEED_DRIVER", DriverPostgres)),
		StreamMaxLen:          int64(getEnvAsInt("CHANGEFEED_STREAM_MAXLEN", 10000)),
		ReseedInitialInterval: getEnvAsDuration("RESEED_INITIAL_INTERVAL", 500*time.Millisecond),
		ReseedMaxInterval:     getEnvAsDuration("RESEED_MAX_INTERVAL", 30*time.Second),
		CommandTimeout:        getEnvAsDuration("COMMAND_TIMEOUT", 3*time.Second),
		PendingTTL:            getEnvAsDuration("PENDING_TTL", 2*time.Minute),
		NotifyTimeout:         getEnvAsDuration("NOTIFY_TIMEOUT", 2*time.Second),
		WebhookURL:            os.Getenv("WEBHOOK_URL"),
		WebhookSecret:         os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout:        getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries:     getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookBaseDelay:      getEnvAsDuration("WEBHOOK_BASE_DELAY", time.Second),
		AutoMigrate:           getEnvAsBool("AUTO_MIGRATE", false),
		MigrationsPath:        getEnv("MIGRATIONS_PATH", "migrations"),
	}

	// Загрузка API ключей
	apiKeysStr := os.Getenv("API_KEYS")
	if apiKeysStr != "" {
		for _, key := range strings.Split(apiKeysStr, ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.APIKeys = append(cfg.APIKeys, key)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	switch c.ChangefeedDriver {
	case DriverPostgres, DriverRedis:
	default:
		return fmt.Errorf("unknown CHANGEFEED_DRIVER %q", c.ChangefeedDriver)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("COMMAND_TIMEOUT must be positive")
	}
	return nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendFile   = "file"
)

// Config holds the configuration for the application.
type Config struct {
	StorageBackend  string
	DatabasePath    string
	StorageDir      string
	RedisURL        string
	DeliveryChannel string

	Port            string
	LogLevel        string
	LogFormat       string
	RenewalSchedule string

	GeminiAPIKey string
	GroqAPIKey   string

	// Ghost vendor menu feed, optional
	GhostURL        string
	GhostContentKey string
	GhostAdminKey   string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
}

// LoadDotEnv loads a .env file into the environment if one exists.
// Variables already set win.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	cfg := &Config{
		StorageBackend:  strings.ToLower(getEnv("STORAGE_BACKEND", BackendSQLite)),
		DatabasePath:    getEnv("DATABASE_PATH", "data/meal-subscription.db"),
		StorageDir:      getEnv("STORAGE_DIR", "data/kv"),
		RedisURL:        os.Getenv("REDIS_URL"),
		DeliveryChannel: getEnv("DELIVERY_CHANNEL", "delivery_updates"),
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		RenewalSchedule: getEnv("RENEWAL_SCHEDULE", "0 2 * * *"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GroqAPIKey:      os.Getenv("GROQ_API_KEY"),
		GhostURL:        os.Getenv("GHOST_API_URL"),
		GhostContentKey: os.Getenv("GHOST_CONTENT_API_KEY"),
		GhostAdminKey:   os.Getenv("GHOST_ADMIN_API_KEY"),

		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL: os.Getenv("TELEGRAM_WEBHOOK_URL"),
	}

	switch cfg.StorageBackend {
	case BackendSQLite, BackendFile:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL environment variable not set")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	if _, err := cron.ParseStandard(cfg.RenewalSchedule); err != nil {
		return nil, fmt.Errorf("invalid RENEWAL_SCHEDULE %q: %w", cfg.RenewalSchedule, err)
	}

	ids, err := parseUserIDs(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, err
	}
	cfg.TelegramAllowedUserIDs = ids

	if cfg.GhostAdminKey == "" {
		// Fallback to content key if only one is provided
		cfg.GhostAdminKey = cfg.GhostContentKey
	}

	return cfg, nil
}

// GhostEnabled reports whether the vendor menu feed is configured.
func (c *Config) GhostEnabled() bool {
	return c.GhostURL != "" && c.GhostContentKey != ""
}

// LLMEnabled reports whether the coach can call a language model.
func (c *Config) LLMEnabled() bool {
	return c.GeminiAPIKey != "" || c.GroqAPIKey != ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv  string
	Port     string
	LogLevel string
	Database DatabaseConfig
	Scanner  ScannerConfig
	Admin    AdminConfig
	PubSub   PubSubConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver      string // sqlite or postgres
	SQLitePath  string
	Host        string
	Port        string
	Username    string
	Password    string
	Database    string
	Debug       bool
	ForceMemory bool // skip the durable backend entirely
}

// ScannerConfig holds ingestion tuning
type ScannerConfig struct {
	DedupWindow   time.Duration
	DedupCapacity int
	StoreTimeout  time.Duration
}

// AdminConfig guards the administrative routes
type AdminConfig struct {
	JWTSecret    string
	PasswordHash string // bcrypt hash checked by /auth/login
}

// PubSubConfig enables the Pub/Sub ingestion source
type PubSubConfig struct {
	ProjectID      string
	SubscriptionID string
	DLQTopicID     string
	MaxOutstanding int
}

// Enabled reports whether both project and subscription are configured
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.SubscriptionID != ""
}

// Load loads configuration from environment variables.
// envFiles are passed to godotenv; a missing file is not an error.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	return &Config{
		NodeEnv:  getEnv("NODE_ENV", "development"),
		Port:     getEnv("PORT", "3000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Driver:      strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			SQLitePath:  getEnv("SQLITE_PATH", "./data/qr_scanner.db"),
			Host:        getEnv("PG_HOST", "localhost"),
			Port:        getEnv("PG_PORT", "5432"),
			Username:    getEnv("PG_USERNAME", "postgres"),
			Password:    os.Getenv("PG_PASSWORD"),
			Database:    getEnv("PG_DATABASE", "qr_scanner"),
			Debug:       getEnv("DB_DEBUG", "false") == "true",
			ForceMemory: getEnv("DB_FORCE_MEMORY", "false") == "true",
		},
		Scanner: ScannerConfig{
			DedupWindow:   time.Duration(getEnvInt("DEDUP_WINDOW_MS", 500)) * time.Millisecond,
			DedupCapacity: getEnvInt("DEDUP_CAPACITY", 1000),
			StoreTimeout:  getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		},
		Admin: AdminConfig{
			JWTSecret:    os.Getenv("ADMIN_JWT_SECRET"),
			PasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		},
		PubSub: PubSubConfig{
			ProjectID:      os.Getenv("PUBSUB_PROJECT_ID"),
			SubscriptionID: os.Getenv("PUBSUB_SUBSCRIPTION_ID"),
			DLQTopicID:     os.Getenv("PUBSUB_DLQ_TOPIC"),
			MaxOutstanding: getEnvInt("PUBSUB_MAX_OUTSTANDING", 200),
		},
	}, nil
}

// IsProduction reports whether NODE_ENV is production
func (c *Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

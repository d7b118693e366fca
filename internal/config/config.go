package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	Chain    ChainConfig
	Redis    RedisConfig
	Telegram TelegramConfig
	Jobs     JobsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string // sqlite file, used when Driver is "sqlite"
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string
	FrontendURL    string
	RateLimit      int // requests per second per IP, 0 disables
	WebhookSecret  string
	AdminKey       string
	MigrationsPath string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret           string
	IncomeOverridesFile string
	IncomeDedupByHash   bool
	ReportCacheTTL      time.Duration
}

// ChainConfig holds the contract endpoints read by the chain reader
type ChainConfig struct {
	RPCURL                      string
	RegistrationContractAddress string
	BookingContractAddress      string
	TokenDecimals               int32
	CallTimeout                 time.Duration
}

// RedisConfig holds redis settings shared by the cache, rate limiter and job queue
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TelegramConfig holds signup notification settings
type TelegramConfig struct {
	BotToken     string
	SignupChatID int64
}

// JobsConfig holds background job settings
type JobsConfig struct {
	Async             bool
	Concurrency       int
	ReconcileCron     string
	ReconcileInterval time.Duration // used when jobs run in-process
	BackfillUniqueTTL time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "matrix_sync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "matrix_sync.db"),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			FrontendURL:    getEnv("FRONTEND_URL", ""),
			RateLimit:      getEnvInt("RATE_LIMIT_PER_SECOND", 100),
			WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
			AdminKey:       getEnv("ADMIN_KEY", ""),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		App: AppConfig{
			JWTSecret:           getEnv("JWT_SECRET", ""),
			IncomeOverridesFile: getEnv("INCOME_OVERRIDES_FILE", ""),
			IncomeDedupByHash:   getEnvBool("INCOME_DEDUP_BY_HASH", true),
			ReportCacheTTL:      getEnvDuration("REPORT_CACHE_TTL", 30*time.Second),
		},
		Chain: ChainConfig{
			RPCURL:                      getEnv("CHAIN_RPC_URL", ""),
			RegistrationContractAddress: getEnv("REGISTRATION_CONTRACT_ADDRESS", ""),
			BookingContractAddress:      getEnv("BOOKING_CONTRACT_ADDRESS", ""),
			TokenDecimals:               int32(getEnvInt("CHAIN_TOKEN_DECIMALS", 18)),
			CallTimeout:                 getEnvDuration("CHAIN_CALL_TIMEOUT", 15*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Telegram: TelegramConfig{
			BotToken:     getEnv("TELEGRAM_TOKEN", ""),
			SignupChatID: int64(getEnvInt("SIGNUP_CHAT_ID", 0)),
		},
		Jobs: JobsConfig{
			Async:             getEnvBool("JOBS_ASYNC", true),
			Concurrency:       getEnvInt("JOBS_CONCURRENCY", 4),
			ReconcileCron:     getEnv("RECONCILE_CRON", "@every 6h"),
			ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 6*time.Hour),
			BackfillUniqueTTL: getEnvDuration("BACKFILL_UNIQUE_TTL", time.Minute),
		},
	}

	// Validate required fields
	if config.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if config.Chain.RPCURL == "" {
		return nil, fmt.Errorf("CHAIN_RPC_URL is required")
	}

	if config.Chain.RegistrationContractAddress == "" || config.Chain.BookingContractAddress == "" {
		return nil, fmt.Errorf("REGISTRATION_CONTRACT_ADDRESS and BOOKING_CONTRACT_ADDRESS are required")
	}

	// asynq needs redis
	if config.Redis.Addr == "" {
		config.Jobs.Async = false
	}

	return config, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

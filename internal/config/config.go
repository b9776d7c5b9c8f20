package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	Logger LoggerConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Email     EmailConfig
	Generator GeneratorConfig
	Delivery  DeliveryConfig
}

type LoggerConfig struct {
	Level string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type GeneratorConfig struct {
	RunInterval time.Duration
	BatchSize   int
}

type DeliveryConfig struct {
	Concurrency  int
	MaxAttempts  int
	BackoffBase  time.Duration
	PollInterval time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "invora"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		Logger: LoggerConfig{
			Level: getenv("LOG_LEVEL", "info"),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "invora"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "billing@invora.local"),
		},
		Generator: GeneratorConfig{
			RunInterval: getenvDuration("GENERATOR_RUN_INTERVAL", time.Hour),
			BatchSize:   getenvInt("GENERATOR_BATCH_SIZE", 50),
		},
		Delivery: DeliveryConfig{
			Concurrency:  getenvInt("DELIVERY_CONCURRENCY", 4),
			MaxAttempts:  getenvInt("DELIVERY_MAX_ATTEMPTS", 3),
			BackoffBase:  getenvDuration("DELIVERY_BACKOFF_BASE", 5*time.Second),
			PollInterval: getenvDuration("DELIVERY_POLL_INTERVAL", time.Second),
		},
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: invalid int for %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: invalid duration for %s=%q, using default %s", key, raw, fallback)
		return fallback
	}
	return v
}

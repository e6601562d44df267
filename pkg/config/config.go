package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the trading engine
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Engine
	Engine EngineConfig

	// Broker gateway
	Broker BrokerConfig

	// Database
	Database DatabaseConfig

	// Redis (mark-price cache)
	Redis RedisConfig

	// Export
	ExportDir string

	// Logging
	LogLevel  string
	LogFormat string
}

// EngineConfig holds order engine parameters
type EngineConfig struct {
	MaxRetries      int           // 주문 제출 최대 시도 횟수
	QueueSize       int           // 제출 큐 버퍼 크기
	MonitorInterval time.Duration // 체결 모니터링 주기
	EventQueueSize  int           // 콜백 디스패처 큐 크기
}

// BrokerConfig holds broker gateway configuration
type BrokerConfig struct {
	Kind      string // sim | rest
	BaseURL   string
	WSURL     string
	APIKey    string
	APISecret string
	AccountNo string
	RateLimit int // requests per second
	Timeout   time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL     string
	Enabled bool

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8087"),
		Env:  getEnv("ENV", "development"),

		Engine: EngineConfig{
			MaxRetries:      getEnvAsInt("ENGINE_MAX_RETRIES", 3),
			QueueSize:       getEnvAsInt("ENGINE_QUEUE_SIZE", 256),
			MonitorInterval: getEnvAsDuration("ENGINE_MONITOR_INTERVAL", "1s"),
			EventQueueSize:  getEnvAsInt("ENGINE_EVENT_QUEUE_SIZE", 1024),
		},

		Broker: BrokerConfig{
			Kind:      getEnv("BROKER_KIND", "sim"),
			BaseURL:   getEnv("BROKER_BASE_URL", "https://api.broker.example.com"),
			WSURL:     getEnv("BROKER_WS_URL", ""),
			APIKey:    getEnv("BROKER_API_KEY", ""),
			APISecret: getEnv("BROKER_API_SECRET", ""),
			AccountNo: getEnv("BROKER_ACCOUNT_NO", ""),
			RateLimit: getEnvAsInt("BROKER_RATE_LIMIT", 5),
			Timeout:   getEnvAsDuration("BROKER_TIMEOUT", "10s"),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Enabled:         getEnvAsBool("DATABASE_ENABLED", false),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		ExportDir: getEnv("EXPORT_DIR", "./exports"),

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Broker.Kind != "sim" && c.Broker.Kind != "rest" {
		return fmt.Errorf("BROKER_KIND must be one of: sim, rest")
	}

	// REST 게이트웨이는 자격증명 필수
	if c.Broker.Kind == "rest" {
		if c.Broker.APIKey == "" || c.Broker.APISecret == "" {
			return fmt.Errorf("BROKER_API_KEY and BROKER_API_SECRET are required for rest broker")
		}
	}

	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when DATABASE_ENABLED=true")
	}

	if c.Engine.MaxRetries < 1 {
		return fmt.Errorf("ENGINE_MAX_RETRIES must be at least 1")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"stakehouse/database"
	"stakehouse/scheduler"
	"stakehouse/service"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Redis backs room locks and the trigger queue
	RedisAddr string
	RedisDB   int

	// NATS configuration; empty disables event forwarding
	NATSServers string

	// Metrics and health endpoint
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Engine tuning
	HouseEdgeBps          int64
	StakingMinLockSeconds int64
	StakingAPRBps         int64
	SchedulerPollInterval time.Duration

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// load loads configuration from a .env file, when present, and the environment
func load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	defaults := service.DefaultEngineConfig()

	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		RedisAddr: getEnvWithDefault("REDIS_ADDR", "localhost:6379"),

		NATSServers: os.Getenv("NATS_SERVERS"),
		MetricsAddr: getEnvWithDefault("METRICS_ADDR", ":9090"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		HouseEdgeBps:          defaults.HouseEdgeBps,
		StakingMinLockSeconds: int64(defaults.StakingMinLock / time.Second),
		StakingAPRBps:         defaults.StakingAPRBps,
		SchedulerPollInterval: scheduler.DefaultWorkerConfig().PollInterval,

		Environment: os.Getenv("ENVIRONMENT"),
	}

	var err error
	if config.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if config.HouseEdgeBps, err = getEnvInt64("HOUSE_EDGE_BPS", config.HouseEdgeBps); err != nil {
		return nil, err
	}
	if config.StakingMinLockSeconds, err = getEnvInt64("STAKING_MIN_LOCK_SECONDS", config.StakingMinLockSeconds); err != nil {
		return nil, err
	}
	if config.StakingAPRBps, err = getEnvInt64("STAKING_APR_BPS", config.StakingAPRBps); err != nil {
		return nil, err
	}
	if poll := os.Getenv("SCHEDULER_POLL_INTERVAL"); poll != "" {
		d, err := time.ParseDuration(poll)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid SCHEDULER_POLL_INTERVAL %q", poll)
		}
		config.SchedulerPollInterval = d
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.HouseEdgeBps < 0 || c.HouseEdgeBps >= 10000 {
		return fmt.Errorf("HOUSE_EDGE_BPS must be in [0, 10000), got %d", c.HouseEdgeBps)
	}
	if c.StakingMinLockSeconds < 0 {
		return fmt.Errorf("STAKING_MIN_LOCK_SECONDS must not be negative, got %d", c.StakingMinLockSeconds)
	}
	if c.StakingAPRBps < 0 {
		return fmt.Errorf("STAKING_APR_BPS must not be negative, got %d", c.StakingAPRBps)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// EngineConfig builds the engine configuration from the defaults and the
// environment overrides
func (c *Config) EngineConfig() service.EngineConfig {
	cfg := service.DefaultEngineConfig()
	cfg.HouseEdgeBps = c.HouseEdgeBps
	cfg.StakingMinLock = time.Duration(c.StakingMinLockSeconds) * time.Second
	cfg.StakingAPRBps = c.StakingAPRBps
	return cfg
}

// WorkerConfig builds the scheduler worker configuration
func (c *Config) WorkerConfig() scheduler.WorkerConfig {
	cfg := scheduler.DefaultWorkerConfig()
	cfg.PollInterval = c.SchedulerPollInterval
	return cfg
}

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the global logger
func (c *Config) ConfigureLogging() {
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("level", c.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func getEnvInt64(key string, def int64) (int64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	defaults := service.DefaultEngineConfig()
	return &Config{
		RedisAddr:             "localhost:6379",
		MetricsAddr:           ":0",
		LogLevel:              "debug",
		LogFormat:             "text",
		HouseEdgeBps:          defaults.HouseEdgeBps,
		StakingMinLockSeconds: int64(defaults.StakingMinLock / time.Second),
		StakingAPRBps:         defaults.StakingAPRBps,
		SchedulerPollInterval: 50 * time.Millisecond,
		Environment:           "test",
	}
}

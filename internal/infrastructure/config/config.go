package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	HMI        HMIConfig
	Resumption ResumptionConfig
	Storage    StorageConfig
	Policy     PolicyConfig
	Logging    LogConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8087" validate:"required"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// AllowOrigins lists the CORS origins of the diagnostics UI
	AllowOrigins    []string      `envconfig:"CORS_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
}

// HMIConfig holds head-unit channel configuration.
type HMIConfig struct {
	RequestTimeout time.Duration `envconfig:"HMI_REQUEST_TIMEOUT" default:"10s" validate:"gte=0"`
}

// ResumptionConfig holds the eligibility limits and timer periods of the
// resumption controller.
type ResumptionConfig struct {
	IgnitionCycleLimit       int           `envconfig:"RESUMPTION_IGN_CYCLE_LIMIT" default:"3" validate:"gte=0"`
	DataAgeLimit             time.Duration `envconfig:"RESUMPTION_DATA_AGE_LIMIT" default:"48h" validate:"gt=0"`
	DelayAfterIgnOnLimit     time.Duration `envconfig:"RESUMPTION_DELAY_AFTER_IGN_ON" default:"30s" validate:"gte=0"`
	DelayBeforeIgnOff        time.Duration `envconfig:"RESUMPTION_DELAY_BEFORE_IGN_OFF" default:"30s" validate:"gte=0"`
	HMILevelRestoreDelay     time.Duration `envconfig:"RESUMPTION_HMI_LEVEL_DELAY" default:"3s" validate:"gte=0"`
	PersistenceFlushInterval time.Duration `envconfig:"RESUMPTION_FLUSH_INTERVAL" default:"10s" validate:"gt=0"`
}

// StorageConfig holds persistent store configuration.
type StorageConfig struct {
	Backend          string `envconfig:"STORAGE_BACKEND" default:"file" validate:"oneof=file sqlite memory"`
	Path             string `envconfig:"STORAGE_PATH" default:"/tmp/headunit/resumption.json"`
	Compress         bool   `envconfig:"STORAGE_COMPRESS" default:"false"`
	AppStorageFolder string `envconfig:"APP_STORAGE_FOLDER" default:"/tmp/headunit/apps"`
}

// PolicyConfig holds the location of the policy table.
type PolicyConfig struct {
	Path string `envconfig:"POLICY_PATH"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" validate:"gt=0"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" validate:"gt=0"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks value ranges of the loaded configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8087",
			Host:            "0.0.0.0",
			AllowOrigins:    []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		HMI: HMIConfig{
			RequestTimeout: 10 * time.Second,
		},
		Resumption: ResumptionConfig{
			IgnitionCycleLimit:       3,
			DataAgeLimit:             48 * time.Hour,
			DelayAfterIgnOnLimit:     30 * time.Second,
			DelayBeforeIgnOff:        30 * time.Second,
			HMILevelRestoreDelay:     3 * time.Second,
			PersistenceFlushInterval: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend:          "file",
			Path:             "/tmp/headunit/resumption.json",
			AppStorageFolder: "/tmp/headunit/apps",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

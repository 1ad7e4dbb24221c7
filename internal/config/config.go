package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds the relay server settings.
type Config struct {
	Port                 int    `env:"PORT" envDefault:"8080"`
	BuddyHost            string `env:"BBUDDY_HOST,required"`
	BuddyAPIKey          string `env:"BBUDDY_API_KEY,required"`
	BuddyScheme          string `env:"BBUDDY_SCHEME" envDefault:"https"`
	DatabaseURL          string `env:"DATABASE_URL,required"`
	RedisURL             string `env:"REDIS_URL,required"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
	StaticDir            string `env:"STATIC_DIR" envDefault:""`
	EnableHSTS           bool   `env:"ENABLE_HSTS" envDefault:"false"`
	ScanRateLimitPerMin  int    `env:"SCAN_RATE_LIMIT_PER_MIN" envDefault:"120"`
	HistoryRetentionDays int    `env:"HISTORY_RETENTION_DAYS" envDefault:"30"`
	ModeCacheSeconds     int    `env:"MODE_CACHE_SECONDS" envDefault:"5"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// BuddyURL builds the Barcode Buddy URL for an API path such as "/api/action/scan".
func (c *Config) BuddyURL(path string) string {
	return fmt.Sprintf("%s://%s%s", c.BuddyScheme, strings.TrimRight(c.BuddyHost, "/"), path)
}

func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

func (c *Config) ModeCacheTTL() time.Duration {
	return time.Duration(c.ModeCacheSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.BuddyScheme != "https" && c.BuddyScheme != "http" {
		return fmt.Errorf("BBUDDY_SCHEME must be http or https, got %q", c.BuddyScheme)
	}
	if strings.Contains(c.BuddyHost, "://") {
		return fmt.Errorf("BBUDDY_HOST must be a host name without scheme, got %q", c.BuddyHost)
	}
	if c.ScanRateLimitPerMin <= 0 {
		return fmt.Errorf("SCAN_RATE_LIMIT_PER_MIN must be positive")
	}
	if c.HistoryRetentionDays <= 0 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS must be positive")
	}
	if c.ModeCacheSeconds < 0 {
		return fmt.Errorf("MODE_CACHE_SECONDS must not be negative")
	}

	if c.BuddyScheme == "http" {
		log.Warn().Msg("BBUDDY_SCHEME is http: the API key is sent in clear text")
	}
	return nil
}

// ScannerConfig holds the scanning client settings.
type ScannerConfig struct {
	RelayURL       string   `env:"RELAY_URL" envDefault:"http://localhost:8080"`
	Device         string   `env:"SCANNER_DEVICE" envDefault:""`
	Facing         string   `env:"SCANNER_FACING" envDefault:"environment"`
	Baud           int      `env:"SCANNER_BAUD" envDefault:"9600"`
	CooldownMillis int      `env:"SCAN_COOLDOWN_MS" envDefault:"3000"`
	PollIntervalMS int      `env:"SCAN_POLL_INTERVAL_MS" envDefault:"40"`
	Detailed       bool     `env:"SCANNER_DETAILED" envDefault:"false"`
	Mode           int      `env:"SCANNER_MODE" envDefault:"-1"`
	Formats        []string `env:"SCANNER_FORMATS" envDefault:"ean_13,ean_8,upc_a,upc_e,code_128,code_39,qr_code" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *ScannerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMillis) * time.Millisecond
}

func (c *ScannerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c *ScannerConfig) Validate() error {
	if c.Facing != "user" && c.Facing != "environment" {
		return fmt.Errorf("SCANNER_FACING must be user or environment, got %q", c.Facing)
	}
	if c.CooldownMillis <= 0 {
		return fmt.Errorf("SCAN_COOLDOWN_MS must be positive")
	}
	if c.PollIntervalMS <= 0 {
		return fmt.Errorf("SCAN_POLL_INTERVAL_MS must be positive")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("SCANNER_BAUD must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func LoadScanner() (*ScannerConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	var cfg ScannerConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scanner config: %w", err)
	}
	return &cfg, nil
}

// loadDotEnv fills unset variables from ./.env when the file exists.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load .env: %w", err)
}

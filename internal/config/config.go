package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// HTTP
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8085"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailsearch.db"`

	// Session token store (optional; in-memory store is used when unset)
	RedisAddr  string        `env:"REDIS_ADDR"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"12h"`

	// IMAP
	IMAPDialTimeout  time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"15s"`
	SearchTimeout    time.Duration `env:"SEARCH_TIMEOUT" envDefault:"45s"`
	MaxConnections   int           `env:"MAX_IMAP_CONNECTIONS" envDefault:"25"`
	ConnRetries      int           `env:"IMAP_CONN_RETRIES" envDefault:"3"`
	ConnRetryBackoff time.Duration `env:"IMAP_CONN_RETRY_BACKOFF" envDefault:"2s"`

	// Search behaviour
	RecentWindowDays int  `env:"RECENT_WINDOW_DAYS" envDefault:"2"`
	StrictTimeWindow bool `env:"STRICT_TIME_WINDOW" envDefault:"true"`

	// Link rewriting
	LinkProxyBaseURL   string   `env:"LINK_PROXY_BASE_URL" envDefault:"/go?url="`
	TrustedLinkSenders []string `env:"TRUSTED_LINK_SENDERS" envSeparator:","`

	// Security
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate encryption key length (32 bytes for AES-256)
	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(cfg.EncryptionKey))
	}

	if cfg.MaxConnections < 1 {
		return nil, fmt.Errorf("MAX_IMAP_CONNECTIONS must be at least 1, got %d", cfg.MaxConnections)
	}
	if cfg.RecentWindowDays < 1 {
		return nil, fmt.Errorf("RECENT_WINDOW_DAYS must be at least 1, got %d", cfg.RecentWindowDays)
	}

	return cfg, nil
}

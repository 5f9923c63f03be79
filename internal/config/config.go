package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mixelka/novamailer/internal/ingest"
)

// Config application configuration
type Config struct {
	// HTTP
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8000"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Auth: token:userID pairs, e.g. "s3cret:1,other:2". Empty disables auth.
	APITokens map[string]string `env:"API_TOKENS" envSeparator:"," envKeyValSeparator:":"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/novamailer.db"`

	// Uploads
	MaxUploadSize      int64    `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"`
	EmailHeaderAliases []string `env:"EMAIL_HEADER_ALIASES" envSeparator:"|"`
	NameHeaderAliases  []string `env:"NAME_HEADER_ALIASES" envSeparator:"|"`
	IngestWorkers      int      `env:"INGEST_WORKERS" envDefault:"4"`

	// Sending
	SMTPDialTimeout time.Duration `env:"SMTP_DIAL_TIMEOUT" envDefault:"30s"`
	SendInterval    time.Duration `env:"SEND_INTERVAL" envDefault:"0s"`

	// Security
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"

	// Tokens parsed from APITokens
	Tokens map[string]int64
}

// AuthEnabled returns true if at least one API token is configured
func (c *Config) AuthEnabled() bool {
	return len(c.Tokens) > 0
}

// Ingest returns the ingestion pipeline settings
func (c *Config) Ingest() ingest.Config {
	return ingest.Config{
		MaxUploadSize: c.MaxUploadSize,
		EmailAliases:  trimAll(c.EmailHeaderAliases),
		NameAliases:   trimAll(c.NameHeaderAliases),
		Workers:       c.IngestWorkers,
	}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	// Validate encryption key length (32 bytes for AES-256)
	if len(c.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.EncryptionKey))
	}

	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %d", c.MaxUploadSize)
	}

	c.Tokens = make(map[string]int64, len(c.APITokens))
	for token, user := range c.APITokens {
		token = strings.TrimSpace(token)
		if token == "" {
			return fmt.Errorf("API_TOKENS contains an empty token")
		}
		userID, err := strconv.ParseInt(strings.TrimSpace(user), 10, 64)
		if err != nil || userID <= 0 {
			return fmt.Errorf("API_TOKENS: invalid user id %q", user)
		}
		c.Tokens[token] = userID
	}

	return nil
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

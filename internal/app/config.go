package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"

	"stockbot/internal/rhood"
)

// Config holds application configuration from env. Credential material is
// read once at process start; the tuning knobs default to the values the
// system has run with in production but are not invariants.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	BaseURL  string `env:"API_BASE_URL" envDefault:"https://api.robinhood.com" validate:"url"`

	DeviceID     string `env:"ROBINHOOD_DEVICE_ID"`
	DeviceIDFile string `env:"ROBINHOOD_DEVICE_ID_FILE"`
	ClientID     string `env:"ROBINHOOD_CLIENT_ID" envDefault:"c82SH0WZOsabOXGP2sxqcj34FxkvfnWRZBKlBjFS"`
	Username     string `env:"ROBINHOOD_USERNAME"`
	Password     string `env:"ROBINHOOD_PASSWORD"`
	TokenFile    string `env:"ROBINHOOD_TOKEN_FILE"`

	RetryAttempts    int           `env:"RETRY_ATTEMPTS" envDefault:"3" validate:"min=1,max=10"`
	ResolverPoolSize int           `env:"RESOLVER_POOL_SIZE" envDefault:"10" validate:"min=1,max=64"`
	RefreshMargin    time.Duration `env:"TOKEN_REFRESH_MARGIN" envDefault:"72h"`
	RefreshInterval  time.Duration `env:"TOKEN_REFRESH_INTERVAL" envDefault:"24h"`
	CacheMaxCost     int64         `env:"CACHE_MAX_COST" envDefault:"33554432" validate:"min=1024"`
	CacheTTL         time.Duration `env:"CACHE_TTL" envDefault:"10m"`
}

// Load reads config from environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Credentials assembles the authenticator's credential material, reading
// file-based values. Completeness is checked by the authenticator itself
// so every missing item is reported at once.
func (c *Config) Credentials() (rhood.Credentials, error) {
	deviceID := c.DeviceID
	if deviceID == "" && c.DeviceIDFile != "" {
		data, err := os.ReadFile(c.DeviceIDFile)
		if err != nil {
			return rhood.Credentials{}, fmt.Errorf("read device ID file %s: %w", c.DeviceIDFile, err)
		}
		deviceID = strings.TrimSpace(string(data))
	}
	return rhood.Credentials{
		DeviceID:  deviceID,
		ClientID:  c.ClientID,
		Username:  c.Username,
		Password:  c.Password,
		TokenFile: c.TokenFile,
	}, nil
}

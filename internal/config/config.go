package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Transports
const (
	TransportWhatsApp = "whatsapp"
	TransportConsole  = "console"
)

// Config holds the application configuration
type Config struct {
	DataDir            string   `env:"ROSTERBOT_DATA_DIR"             envDefault:"data"`
	DBDriver           string   `env:"ROSTERBOT_DB_DRIVER"            envDefault:"sqlite3"`
	Transport          string   `env:"ROSTERBOT_TRANSPORT"            envDefault:"whatsapp"`
	LogLevel           string   `env:"ROSTERBOT_LOG_LEVEL"            envDefault:"info"`
	LogFormat          string   `env:"ROSTERBOT_LOG_FORMAT"           envDefault:"console"`
	Admins             []string `env:"ROSTERBOT_ADMINS"               envSeparator:","`
	DefaultCountryCode string   `env:"ROSTERBOT_DEFAULT_COUNTRY_CODE"`
	FuzzyCutoff        float64  `env:"ROSTERBOT_FUZZY_CUTOFF"         envDefault:"0.75"`
	Prefixes           []string `env:"ROSTERBOT_PREFIXES"             envSeparator:","`
	CommandsFile       string   `env:"ROSTERBOT_COMMANDS_FILE"`
	MetricsAddr        string   `env:"ROSTERBOT_METRICS_ADDR"`
}

// LoadConfig loads configuration from environment variables or defaults
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env tags cannot express
func (c *Config) Validate() error {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	switch c.Transport {
	case TransportWhatsApp, TransportConsole:
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportWhatsApp, TransportConsole)
	}
	switch c.DBDriver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q (want sqlite3 or sqlite)", c.DBDriver)
	}
	if c.FuzzyCutoff <= 0 || c.FuzzyCutoff > 1 {
		return fmt.Errorf("fuzzy cutoff must be in (0, 1], got %v", c.FuzzyCutoff)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// DatabasePath is the roster database file
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "rosterbot.db")
}

// Level returns the configured log level
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

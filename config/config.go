// Package config loads console settings from, in increasing precedence, a
// .env file, an optional YAML file and SEAT_CONSOLE_* environment variables.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile = "SEAT_CONSOLE_CONFIG"

	defaultBaseURL        = "http://localhost:8080/api"
	defaultTimeout        = 12 * time.Second
	defaultReleaseTimeout = 2 * time.Second
	defaultLocale         = "vi"
	defaultCurrency       = "₫"
)

type Config struct {
	BaseURL    string `yaml:"base_url"`
	ShowtimeID string `yaml:"showtime"`
	// SeatAPI overrides the derived seat map URL when the server declares one.
	SeatAPI string `yaml:"seat_api"`

	Timeout        time.Duration `yaml:"timeout"`
	ReleaseTimeout time.Duration `yaml:"release_timeout"`

	Locale   string `yaml:"locale"`
	Currency string `yaml:"currency"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	Combos []Combo `yaml:"combos"`
}

// Combo is a concession offered on the checkout form.
type Combo struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
}

func Default() Config {
	return Config{
		BaseURL:        defaultBaseURL,
		Timeout:        defaultTimeout,
		ReleaseTimeout: defaultReleaseTimeout,
		Locale:         defaultLocale,
		Currency:       defaultCurrency,
		LogLevel:       "info",
	}
}

// Load builds the configuration. path may be empty, in which case
// SEAT_CONSOLE_CONFIG is consulted; a missing file named explicitly is an
// error.
func Load(path string) (Config, error) {
	const op = "config.Load"

	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%s: read %s: %w", op, path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: parse %s: %w", op, path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", op, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.BaseURL, "SEAT_CONSOLE_BASE_URL")
	setString(&c.ShowtimeID, "SEAT_CONSOLE_SHOWTIME")
	setString(&c.SeatAPI, "SEAT_CONSOLE_SEAT_API")
	setString(&c.Locale, "SEAT_CONSOLE_LOCALE")
	setString(&c.Currency, "SEAT_CONSOLE_CURRENCY")
	setString(&c.LogLevel, "SEAT_CONSOLE_LOG_LEVEL")
	setString(&c.LogFile, "SEAT_CONSOLE_LOG_FILE")

	if raw := strings.TrimSpace(os.Getenv("SEAT_CONSOLE_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid SEAT_CONSOLE_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

// Validate checks the settings needed to reach the seat-lock service.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base url %q", c.BaseURL)
	}
	if c.SeatAPI != "" {
		if u, err := url.Parse(c.SeatAPI); err != nil || u.Scheme == "" {
			return fmt.Errorf("invalid seat api url %q", c.SeatAPI)
		}
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.ReleaseTimeout <= 0 {
		return errors.New("release timeout must be positive")
	}
	for _, combo := range c.Combos {
		if strings.TrimSpace(combo.ID) == "" {
			return errors.New("combo id is required")
		}
	}
	return nil
}

// Level maps LogLevel to a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

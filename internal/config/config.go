package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is read from the environment, optionally seeded from a .env file.
type Config struct {
	Addr           string        `env:"SCHEDULER_ADDR" envDefault:"127.0.0.1:8080"`
	ServerURL      string        `env:"SCHEDULER_URL" envDefault:"http://127.0.0.1:8080"`
	Language       string        `env:"SCHEDULER_LANGUAGE" envDefault:"en"`
	Seed           bool          `env:"SCHEDULER_SEED" envDefault:"false"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	TimeZone       string        `env:"PRIMARY_TIMEZONE" envDefault:"UTC"`
	EventDuration  time.Duration `env:"EVENT_DURATION" envDefault:"1h"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`

	Google Google `envPrefix:"GOOGLE_"`
	ICloud ICloud `envPrefix:"ICLOUD_"`
}

// Google holds the settings for pushing events to Google Calendar.
type Google struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CalendarID   string `env:"CALENDAR_ID" envDefault:"primary"`
	Account      string `env:"ACCOUNT" envDefault:"default"`
}

// ICloud holds the settings for pushing events to a CalDAV calendar.
type ICloud struct {
	Endpoint     string `env:"CALDAV_ENDPOINT" envDefault:"https://caldav.icloud.com/"`
	Username     string `env:"USERNAME"`
	Password     string `env:"APP_SPECIFIC_PASSWORD"`
	CalendarName string `env:"CALENDAR_NAME"`
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	switch strings.ToLower(c.Language) {
	case "en", "ko":
	default:
		return fmt.Errorf("unsupported language: %s", c.Language)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.TimeZone, err)
	}
	if c.EventDuration <= 0 {
		return errors.New("event duration must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be > 0")
	}
	return nil
}

// Location returns the configured time zone. Validate has already checked it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks the settings required by the CalDAV target.
func (c ICloud) Validate() error {
	if c.Username == "" || c.Password == "" {
		return errors.New("ICLOUD_USERNAME and ICLOUD_APP_SPECIFIC_PASSWORD are required")
	}
	if c.CalendarName == "" {
		return errors.New("ICLOUD_CALENDAR_NAME is required")
	}
	return nil
}

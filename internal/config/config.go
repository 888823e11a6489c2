package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/punchamoorthee/mymoney/internal/dates"
)

type Config struct {
	DBSource   string `toml:"db_source"`
	Port       string `toml:"port"`
	Env        string `toml:"environment"`
	SessionDB  string `toml:"session_db"`
	WeekStart  string `toml:"week_start"`
	CloneLimit int    `toml:"clone_limit"`
	LogLevel   string `toml:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		Port:       "8080",
		Env:        "development",
		SessionDB:  "sessions.db",
		WeekStart:  "monday",
		CloneLimit: 100,
		LogLevel:   "info",
	}
}

// Load reads defaults, then the TOML file at path when it exists, then the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("DB_SOURCE"); v != "" {
		cfg.DBSource = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("SESSION_DB"); v != "" {
		cfg.SessionDB = v
	}
	if v := os.Getenv("WEEK_START"); v != "" {
		cfg.WeekStart = v
	}
	if v := os.Getenv("CLONE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("CLONE_LIMIT must be an integer: %w", err)
		}
		cfg.CloneLimit = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if cfg.DBSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}
	if _, err := cfg.Weekday(); err != nil {
		return nil, err
	}
	if cfg.CloneLimit < 0 {
		return nil, fmt.Errorf("clone limit could not be negative")
	}
	return cfg, nil
}

// Weekday is the first day of a week bucket.
func (c *Config) Weekday() (time.Weekday, error) {
	d, err := dates.ParseWeekday(c.WeekStart)
	if err != nil {
		return d, fmt.Errorf("week start: %w", err)
	}
	return d, nil
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

// Logger builds the process logger: JSON in production, text otherwise.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	if c.Production() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

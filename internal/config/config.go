package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/afero"
	yaml "go.yaml.in/yaml/v3"

	"taskboard/internal/logx"
)

// Config keeps runtime settings for the service.
type Config struct {
	DatabaseURL   string `yaml:"database_url"`
	TelegramToken string `yaml:"telegram_token"`
	// Timezone is the organization-wide zone used to decide what "today" is.
	Timezone string        `yaml:"timezone"`
	Log      logx.Config   `yaml:"log"`
	Engine   EngineConfig  `yaml:"engine"`
	Redrive  RedriveConfig `yaml:"redrive"`

	Location *time.Location `yaml:"-"`
}

// EngineConfig sizes the worker pool and the per-step retry policy.
type EngineConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	RetryMax        int           `yaml:"retry_max"`
	RetryBase       time.Duration `yaml:"retry_base"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedriveConfig controls how stuck completion events are picked up again.
type RedriveConfig struct {
	// Schedule is a cron spec with a seconds field.
	Schedule  string        `yaml:"schedule"`
	MinAge    time.Duration `yaml:"min_age"`
	MaxRuns   int           `yaml:"max_runs"`
	Batch     int           `yaml:"batch"`
	PerSecond float64       `yaml:"per_second"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DatabaseURL: "taskboard.db",
		Timezone:    "UTC",
		Log:         logx.Config{Level: "info", Format: "console"},
		Engine: EngineConfig{
			Workers:         4,
			QueueSize:       256,
			RetryMax:        3,
			RetryBase:       500 * time.Millisecond,
			RetryMaxDelay:   15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redrive: RedriveConfig{
			Schedule:  "0 */5 * * * *",
			MinAge:    2 * time.Minute,
			MaxRuns:   10,
			Batch:     100,
			PerSecond: 5,
		},
	}
}

// Load reads the optional YAML file at path, then applies environment
// overrides and validates the result.
func Load(fsys afero.Fs, path string) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		data, err := afero.ReadFile(fsys, path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return cfg, fmt.Errorf("config file %q not found", path)
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.DatabaseURL, "DATABASE_URL")
	set(&cfg.TelegramToken, "TELEGRAM_TOKEN")
	set(&cfg.Timezone, "TASKBOARD_TIMEZONE")
	set(&cfg.Log.Level, "LOG_LEVEL")
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		c.DatabaseURL = "taskboard.db"
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc

	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be positive")
	}
	if c.Engine.RetryMax <= 0 {
		return fmt.Errorf("engine.retry_max must be positive")
	}
	if c.Redrive.MaxRuns < 0 {
		return fmt.Errorf("redrive.max_runs must not be negative")
	}
	if c.Redrive.PerSecond <= 0 {
		return fmt.Errorf("redrive.per_second must be positive")
	}
	return nil
}

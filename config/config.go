/*
Package config loads the wallet configuration.

LAYERING (later wins):
  1. Default()                   built-in values
  2. TOML file                   --config path, optional
  3. SPORTWALLET_* environment   e.g. SPORTWALLET_HTTP_ADDR=:9090
  4. Validate()

EXAMPLE FILE:
  [http]
  addr = ":8080"

  [database]
  path = "sportwallet.db"

  [clock]
  timezone = "Europe/Paris"

  [earning]
  bike_seconds_per_unit = 600
  rest_days_per_week = 2
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SPORTWALLET"

type Config struct {
	HTTP      HTTP      `toml:"http"`
	Database  Database  `toml:"database"`
	Clock     Clock     `toml:"clock"`
	Admin     Admin     `toml:"admin"`
	Log       Log       `toml:"log"`
	Earning   Earning   `toml:"earning"`
	Scheduler Scheduler `toml:"scheduler"`
}

type HTTP struct {
	Addr            string        `toml:"addr" envconfig:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" envconfig:"HTTP_SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `toml:"allowed_origins" envconfig:"HTTP_ALLOWED_ORIGINS"`
	Metrics         bool          `toml:"metrics" envconfig:"HTTP_METRICS"`
}

type Database struct {
	// Path of the SQLite file. ":memory:" keeps everything in RAM.
	Path string `toml:"path" envconfig:"DB_PATH"`
}

type Clock struct {
	// IANA zone deciding where calendar days start. Empty means local.
	Timezone string `toml:"timezone" envconfig:"TIMEZONE"`
}

type Admin struct {
	// bcrypt hash of the admin secret. Empty disables the admin routes.
	PasswordHash string `toml:"password_hash" envconfig:"ADMIN_PASSWORD_HASH"`
}

type Log struct {
	Level  string `toml:"level" envconfig:"LOG_LEVEL"`
	Format string `toml:"format" envconfig:"LOG_FORMAT"` // text | json
}

type Earning struct {
	BikeSecondsPerUnit  int64 `toml:"bike_seconds_per_unit" envconfig:"BIKE_SECONDS_PER_UNIT"`
	WalkSecondsPerUnit  int64 `toml:"walk_seconds_per_unit" envconfig:"WALK_SECONDS_PER_UNIT"`
	OtherSecondsPerUnit int64 `toml:"other_seconds_per_unit" envconfig:"OTHER_SECONDS_PER_UNIT"`
	RestDaysPerWeek     int   `toml:"rest_days_per_week" envconfig:"REST_DAYS_PER_WEEK"`
}

type Scheduler struct {
	Enabled bool `toml:"enabled" envconfig:"SCHEDULER_ENABLED"`
	// Cron spec of the day rollover job, in the clock timezone.
	Spec string `toml:"spec" envconfig:"SCHEDULER_SPEC"`
}

func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:*", "http://127.0.0.1:*"},
			Metrics:         true,
		},
		Database: Database{Path: "sportwallet.db"},
		Log:      Log{Level: "info", Format: "text"},
		Earning: Earning{
			BikeSecondsPerUnit:  600,
			WalkSecondsPerUnit:  900,
			OtherSecondsPerUnit: 900,
			RestDaysPerWeek:     2,
		},
		Scheduler: Scheduler{Enabled: true, Spec: "0 0 * * *"},
	}
}

// Load applies the file at path (skipped when empty) and the environment
// on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays SPORTWALLET_* variables. Unset variables keep the
// value already in cfg.
func applyEnv(cfg *Config) error {
	sections := []struct {
		name string
		ptr  any
	}{
		{"http", &cfg.HTTP},
		{"database", &cfg.Database},
		{"clock", &cfg.Clock},
		{"admin", &cfg.Admin},
		{"log", &cfg.Log},
		{"earning", &cfg.Earning},
		{"scheduler", &cfg.Scheduler},
	}
	for _, s := range sections {
		if err := envconfig.Process(EnvPrefix, s.ptr); err != nil {
			return fmt.Errorf("config: env %s: %w", s.name, err)
		}
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr must not be empty"))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must be > 0"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path must not be empty"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Earning.BikeSecondsPerUnit <= 0 || c.Earning.WalkSecondsPerUnit <= 0 || c.Earning.OtherSecondsPerUnit <= 0 {
		errs = append(errs, errors.New("earning rates must be > 0"))
	}
	if c.Earning.RestDaysPerWeek < 0 || c.Earning.RestDaysPerWeek > 7 {
		errs = append(errs, errors.New("earning.rest_days_per_week must be within [0,7]"))
	}
	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Spec); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.spec: %w", err))
		}
	}
	if h := c.Admin.PasswordHash; h != "" && !strings.HasPrefix(h, "$2") {
		errs = append(errs, errors.New("admin.password_hash must be a bcrypt hash"))
	}
	return errors.Join(errs...)
}

// Location resolves the clock timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Clock.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Clock.Timezone)
	if err != nil {
		return nil, fmt.Errorf("clock.timezone: %w", err)
	}
	return loc, nil
}

// AdminEnabled reports whether the admin routes should be served.
func (c Config) AdminEnabled() bool { return c.Admin.PasswordHash != "" }

// =============================================================================
// LOGGER
// =============================================================================

// NewLogger builds a logrus logger writing to stdout.
func NewLogger(c Log) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(level)
	switch c.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return log, nil
}

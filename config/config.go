package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. FEATURES_SQLITE_PATH.
const Prefix = "FEATURES"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Storage
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"data/market.db" validate:"required"`
	RedisAddr     string `envconfig:"REDIS_ADDR"` // empty disables the Redis sink
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0" validate:"min=0,max=15"`
	RedisMaxLen   int64  `envconfig:"REDIS_STREAM_MAXLEN" default:"5000" validate:"min=1"`

	ClickHouseAddr     string `envconfig:"CLICKHOUSE_ADDR"` // empty disables the warehouse sink
	ClickHouseDatabase string `envconfig:"CLICKHOUSE_DATABASE" default:"market"`
	ClickHouseUser     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	ClickHousePassword string `envconfig:"CLICKHOUSE_PASSWORD"`
	ClickHouseTable    string `envconfig:"CLICKHOUSE_TABLE" default:"feature_rows" validate:"required"`

	// Indicator profile
	ProfileFile string   `envconfig:"PROFILE_FILE" default:"config/profiles.yaml"`
	Profile     string   `envconfig:"PROFILE" default:"daily" validate:"required"`
	Indicators  []string `envconfig:"INDICATORS"` // overrides the profile's indicator list
	Source      string   `envconfig:"SOURCE"`     // overrides the profile's data source label

	// Batch
	Symbols       []string      `envconfig:"SYMBOLS"` // empty means every symbol in the bar store
	Workers       int           `envconfig:"WORKERS" default:"4" validate:"min=1,max=64"`
	HistoryWindow time.Duration `envconfig:"HISTORY_WINDOW" default:"0s" validate:"min=0"`
	Schedule      string        `envconfig:"SCHEDULE" default:"@every 1h"`
	RunOnStart    bool          `envconfig:"RUN_ON_START" default:"false"`

	// Serving
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":9095" validate:"required"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Alerts
	AlertWebhookURL       string `envconfig:"ALERT_WEBHOOK_URL" validate:"omitempty,url"`
	FailureAlertThreshold int    `envconfig:"FAILURE_ALERT_THRESHOLD" default:"1" validate:"min=1"`
}

// Load reads configuration from environment variables with defaults and
// validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Symbols = NormalizeSymbols(cfg.Symbols)
	cfg.Indicators = NormalizeIndicators(cfg.Indicators)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// RedisEnabled reports whether a Redis sink is configured.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// ClickHouseEnabled reports whether a ClickHouse sink is configured.
func (c *Config) ClickHouseEnabled() bool { return c.ClickHouseAddr != "" }

// NormalizeSymbols trims, upper-cases and drops empty entries.
func NormalizeSymbols(in []string) []string { return normalizeList(in, strings.ToUpper) }

// NormalizeIndicators trims, lower-cases and drops empty entries.
func NormalizeIndicators(in []string) []string { return normalizeList(in, strings.ToLower) }

func normalizeList(in []string, f func(string) string) []string {
	out := in[:0]
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, f(s))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

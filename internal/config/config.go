package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/blackbear10000/price-monitor/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Subjects   []SubjectSeed    `mapstructure:"subjects"`
	Rules      RuleSeeds        `mapstructure:"rules"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// FeedConfig covers the upstream price API and refresh cadence.
type FeedConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Quote          string        `mapstructure:"quote"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Interval       time.Duration `mapstructure:"interval"`
	MaxConcurrent  int           `mapstructure:"max_concurrent_requests"`
	UserAgent      string        `mapstructure:"user_agent"`
	StartupDelay   time.Duration `mapstructure:"startup_delay"`
}

// EvaluationConfig governs the alert evaluation cycle.
type EvaluationConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	Workers           int           `mapstructure:"workers"`
	DedupTolerancePct float64       `mapstructure:"dedup_tolerance_pct"`
	DedupWindow       time.Duration `mapstructure:"dedup_window"`
	// AdvisoryLockKey guards against concurrent evaluators; 0 disables locking.
	AdvisoryLockKey int64 `mapstructure:"advisory_lock_key"`
}

// AlertingConfig defines notification delivery behaviour.
type AlertingConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	QueueSize      int            `mapstructure:"queue_size"`
	MaxRetries     int            `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration  `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration  `mapstructure:"retry_max_delay"`
	FallbackDir    string         `mapstructure:"fallback_dir"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatIDs        []string      `mapstructure:"chat_ids"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RetentionConfig sets how long historical data is kept.
type RetentionConfig struct {
	Days          int           `mapstructure:"days"`
	FallbackDays  int           `mapstructure:"fallback_days"`
	CleanupPeriod time.Duration `mapstructure:"cleanup_period"`
}

// MetricsConfig exposes the Prometheus listener.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// SubjectSeed declares a monitored asset to upsert at startup.
type SubjectSeed struct {
	ID          string `mapstructure:"id"`
	Symbol      string `mapstructure:"symbol"`
	Description string `mapstructure:"description"`
	Priority    int    `mapstructure:"priority"`
}

// RuleSeeds groups startup rule definitions.
type RuleSeeds struct {
	Global  []RuleSeed            `mapstructure:"global"`
	Subject map[string][]RuleSeed `mapstructure:"subject"`
}

// RuleSeed declares an alert rule to upsert at startup.
type RuleSeed struct {
	ID          string        `mapstructure:"id"`
	Type        string        `mapstructure:"type"`
	Condition   string        `mapstructure:"condition"`
	Value       float64       `mapstructure:"value"`
	Lookback    time.Duration `mapstructure:"lookback"`
	OneShot     bool          `mapstructure:"one_shot"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
	Priority    string        `mapstructure:"priority"`
	Description string        `mapstructure:"description"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "price-monitor")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("feed.quote", "USD")
	v.SetDefault("feed.request_timeout", "5s")
	v.SetDefault("feed.interval", "5m")
	v.SetDefault("feed.max_concurrent_requests", 10)
	v.SetDefault("feed.user_agent", "price-monitor/1.0")
	v.SetDefault("feed.startup_delay", "0s")

	v.SetDefault("evaluation.interval", "1m")
	v.SetDefault("evaluation.workers", 4)
	v.SetDefault("evaluation.dedup_tolerance_pct", 3.0)
	v.SetDefault("evaluation.dedup_window", "24h")
	v.SetDefault("evaluation.advisory_lock_key", 740031002)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.queue_size", 256)
	v.SetDefault("alerting.max_retries", 3)
	v.SetDefault("alerting.retry_base_delay", "2s")
	v.SetDefault("alerting.retry_max_delay", "1m")
	v.SetDefault("alerting.fallback_dir", "data/alerts")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.request_timeout", "10s")

	v.SetDefault("retention.days", 90)
	v.SetDefault("retention.fallback_days", 7)
	v.SetDefault("retention.cleanup_period", "24h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Feed.Interval <= 0 {
		return fmt.Errorf("feed.interval must be greater than zero")
	}
	if c.Feed.MaxConcurrent <= 0 {
		return fmt.Errorf("feed.max_concurrent_requests must be greater than zero")
	}
	if c.Evaluation.Interval <= 0 {
		return fmt.Errorf("evaluation.interval must be greater than zero")
	}
	if c.Evaluation.Workers <= 0 {
		return fmt.Errorf("evaluation.workers must be greater than zero")
	}
	if c.Evaluation.DedupTolerancePct < 0 {
		return fmt.Errorf("evaluation.dedup_tolerance_pct cannot be negative")
	}
	if c.Alerting.QueueSize <= 0 {
		return fmt.Errorf("alerting.queue_size must be greater than zero")
	}
	if c.Alerting.MaxRetries < 0 {
		return fmt.Errorf("alerting.max_retries cannot be negative")
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if len(c.Alerting.Telegram.ChatIDs) == 0 {
			return fmt.Errorf("alerting.telegram.chat_ids 必须配置")
		}
	}
	return nil
}

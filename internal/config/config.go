package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig    `yaml:"log"`
	Exchanges []ExchangeConfig `yaml:"exchanges"`
	Strategy  StrategyConfig   `yaml:"strategy"`
	Ledger    LedgerConfig     `yaml:"ledger"`
	Timescale TimescaleConfig  `yaml:"timescale"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Telegram  TelegramConfig   `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type ExchangeConfig struct {
	ID      string `yaml:"id"`
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Secret  string `yaml:"secret"`
}

type StrategyConfig struct {
	Name string `yaml:"name"`
	// CheckMinute is the minute of every hour the coordinator fires on.
	CheckMinute *int `yaml:"check_minute"`
	// RateThreshold is the minimum absolute funding rate, as a fraction.
	RateThreshold float64 `yaml:"rate_threshold"`
	NotionalUSD   float64 `yaml:"notional_usd"`
	// OpenOffset is how long before settlement the opening order fires.
	OpenOffset time.Duration `yaml:"open_offset"`
	// CloseOffset is how long after settlement the closing order fires. Kept
	// small: it must clear venue processing latency without going stale.
	CloseOffset   time.Duration `yaml:"close_offset"`
	QuoteCurrency string        `yaml:"quote_currency"`
}

type LedgerConfig struct {
	SQLitePath  string `yaml:"sqlite_path"`
	JournalPath string `yaml:"journal_path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func (s StrategyConfig) CheckMinuteValue() int {
	if s.CheckMinute == nil {
		return 58
	}
	return *s.CheckMinute
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Strategy.Name == "" {
		cfg.Strategy.Name = "funding_rate_arb"
	}
	if cfg.Strategy.RateThreshold == 0 {
		cfg.Strategy.RateThreshold = 0.0025
	}
	if cfg.Strategy.NotionalUSD == 0 {
		cfg.Strategy.NotionalUSD = 50
	}
	if cfg.Strategy.OpenOffset == 0 {
		cfg.Strategy.OpenOffset = 2 * time.Second
	}
	if cfg.Strategy.CloseOffset == 0 {
		cfg.Strategy.CloseOffset = 10 * time.Millisecond
	}
	if cfg.Strategy.QuoteCurrency == "" {
		cfg.Strategy.QuoteCurrency = "USDT"
	}
	if cfg.Ledger.SQLitePath == "" {
		cfg.Ledger.SQLitePath = "data/funding-arb-bot.db"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if len(cfg.EnabledExchanges()) == 0 {
		return errors.New("at least one enabled exchange is required")
	}
	seen := make(map[string]struct{}, len(cfg.Exchanges))
	for _, ex := range cfg.Exchanges {
		if ex.ID == "" {
			return errors.New("exchange id is required")
		}
		if _, dup := seen[ex.ID]; dup {
			return fmt.Errorf("exchange %s configured twice", ex.ID)
		}
		seen[ex.ID] = struct{}{}
	}
	if minute := cfg.Strategy.CheckMinuteValue(); minute < 0 || minute > 59 {
		return fmt.Errorf("strategy.check_minute must be in [0, 59], got %d", minute)
	}
	if cfg.Strategy.RateThreshold <= 0 {
		return errors.New("strategy.rate_threshold must be > 0")
	}
	if cfg.Strategy.NotionalUSD <= 0 {
		return errors.New("strategy.notional_usd must be > 0")
	}
	if cfg.Strategy.OpenOffset < 0 {
		return errors.New("strategy.open_offset must be >= 0")
	}
	if cfg.Strategy.CloseOffset < 0 {
		return errors.New("strategy.close_offset must be >= 0")
	}
	if cfg.Timescale.Enabled && cfg.Timescale.DSN == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

// EnabledExchanges returns the enabled exchange ids in configuration order.
func (c *Config) EnabledExchanges() []string {
	var ids []string
	for _, ex := range c.Exchanges {
		if ex.Enabled {
			ids = append(ids, ex.ID)
		}
	}
	return ids
}

// ExchangeByID returns the configuration block for one exchange id.
func (c *Config) ExchangeByID(id string) (ExchangeConfig, bool) {
	for _, ex := range c.Exchanges {
		if ex.ID == id {
			return ex, true
		}
	}
	return ExchangeConfig{}, false
}

package config

import (
	"testing"
	"time"
)

func minimalConfig() *Config {
	return &Config{
		Exchanges: []ExchangeConfig{{ID: "binance", Enabled: true}},
	}
}

func TestStrategyDefaults(t *testing.T) {
	cfg := minimalConfig()
	applyDefaults(cfg)
	if cfg.Strategy.CheckMinuteValue() != 58 {
		t.Fatalf("expected check minute default 58, got %d", cfg.Strategy.CheckMinuteValue())
	}
	if cfg.Strategy.RateThreshold != 0.0025 {
		t.Fatalf("expected rate threshold default 0.0025, got %v", cfg.Strategy.RateThreshold)
	}
	if cfg.Strategy.NotionalUSD != 50 {
		t.Fatalf("expected notional default 50, got %v", cfg.Strategy.NotionalUSD)
	}
	if cfg.Strategy.OpenOffset != 2*time.Second {
		t.Fatalf("expected open offset default 2s, got %v", cfg.Strategy.OpenOffset)
	}
	if cfg.Strategy.CloseOffset != 10*time.Millisecond {
		t.Fatalf("expected close offset default 10ms, got %v", cfg.Strategy.CloseOffset)
	}
	if cfg.Strategy.QuoteCurrency != "USDT" {
		t.Fatalf("expected quote currency default USDT, got %q", cfg.Strategy.QuoteCurrency)
	}
	if cfg.Strategy.Name != "funding_rate_arb" {
		t.Fatalf("expected strategy name default, got %q", cfg.Strategy.Name)
	}
}

func TestCheckMinuteZeroIsRespected(t *testing.T) {
	zero := 0
	cfg := minimalConfig()
	cfg.Strategy.CheckMinute = &zero
	applyDefaults(cfg)
	if cfg.Strategy.CheckMinuteValue() != 0 {
		t.Fatalf("explicit minute 0 must not be replaced by the default")
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("minute 0 should validate, got %v", err)
	}
}

func TestValidateRequiresEnabledExchange(t *testing.T) {
	cfg := &Config{Exchanges: []ExchangeConfig{{ID: "binance", Enabled: false}}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error with no enabled exchanges")
	}
}

func TestValidateRejectsDuplicateExchange(t *testing.T) {
	cfg := &Config{Exchanges: []ExchangeConfig{
		{ID: "binance", Enabled: true},
		{ID: "binance", Enabled: true},
	}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for duplicate exchange id")
	}
}

func TestValidateRejectsBadMinute(t *testing.T) {
	minute := 60
	cfg := minimalConfig()
	cfg.Strategy.CheckMinute = &minute
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for minute out of range")
	}
}

func TestValidateRejectsNonPositiveThreshold(t *testing.T) {
	cfg := minimalConfig()
	applyDefaults(cfg)
	cfg.Strategy.RateThreshold = -0.001
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for negative threshold")
	}
}

func TestValidateTimescaleNeedsDSN(t *testing.T) {
	cfg := minimalConfig()
	applyDefaults(cfg)
	cfg.Timescale.Enabled = true
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for enabled timescale without dsn")
	}
}

func TestEnabledExchangesKeepsConfigOrder(t *testing.T) {
	cfg := &Config{Exchanges: []ExchangeConfig{
		{ID: "okx", Enabled: true},
		{ID: "binance", Enabled: false},
		{ID: "bybit", Enabled: true},
	}}
	ids := cfg.EnabledExchanges()
	if len(ids) != 2 || ids[0] != "okx" || ids[1] != "bybit" {
		t.Fatalf("unexpected enabled exchanges: %v", ids)
	}
}

func TestMetricsDefaults(t *testing.T) {
	cfg := minimalConfig()
	applyDefaults(cfg)
	if cfg.Metrics.EnabledValue() {
		t.Fatalf("metrics should default to disabled")
	}
	if cfg.Metrics.Address != "127.0.0.1:9001" {
		t.Fatalf("expected metrics address default, got %q", cfg.Metrics.Address)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("expected metrics path default, got %q", cfg.Metrics.Path)
	}
}

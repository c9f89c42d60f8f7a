package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFileWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := `{
		"trading": {"symbol": "ETHUSDT"},
		"risk": {"initial_balance": 25000, "leverage": 3},
		"server": {"enabled": true, "port": 9090}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.TradingConfig.Symbol != "ETHUSDT" {
		t.Errorf("symbol = %q, want ETHUSDT", cfg.TradingConfig.Symbol)
	}
	if cfg.RiskConfig.InitialBalance != 25000 || cfg.RiskConfig.Leverage != 3 {
		t.Errorf("risk config not applied: %+v", cfg.RiskConfig)
	}
	if cfg.ServerConfig.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.ServerConfig.Port)
	}

	// Unset sections fall back to defaults.
	if cfg.BinanceConfig.BaseURL != "https://api.binance.com" {
		t.Errorf("base url default = %q", cfg.BinanceConfig.BaseURL)
	}
	if cfg.TradingConfig.FastTimeframe != "15m" || cfg.TradingConfig.ExecTimeframe != "5m" {
		t.Errorf("timeframe defaults = %+v", cfg.TradingConfig)
	}
	if cfg.SessionConfig.Timezone != "America/New_York" {
		t.Errorf("timezone default = %q", cfg.SessionConfig.Timezone)
	}
	if cfg.SessionConfig.CutoffHour != 15 || cfg.SessionConfig.CutoffMinute != 45 {
		t.Errorf("cutoff default = %02d:%02d", cfg.SessionConfig.CutoffHour, cfg.SessionConfig.CutoffMinute)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestGenerateSampleConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := GenerateSampleConfig(path); err != nil {
		t.Fatalf("GenerateSampleConfig: %v", err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.RiskConfig.MaxTradesPerDay != 1 || cfg.RiskConfig.MinRiskReward != 2 {
		t.Errorf("sample risk config = %+v", cfg.RiskConfig)
	}
	if cfg.DatabaseConfig.Port != 5432 {
		t.Errorf("sample db port = %d", cfg.DatabaseConfig.Port)
	}
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"trading": {"symbol": "BTCUSDT"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TRADING_SYMBOL", "SOLUSDT")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.TradingConfig.Symbol != "SOLUSDT" {
		t.Errorf("symbol = %q, want env override SOLUSDT", cfg.TradingConfig.Symbol)
	}
	if cfg.LoggingConfig.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LoggingConfig.Level)
	}
	if !cfg.RedisConfig.Enabled || cfg.RedisConfig.Addr != "redis:6379" {
		t.Errorf("redis config = %+v", cfg.RedisConfig)
	}
}

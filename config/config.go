package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config is the full bot configuration, loaded from config.json with
// environment variable overrides.
type Config struct {
	BinanceConfig      BinanceConfig      `json:"binance"`
	TradingConfig      TradingConfig      `json:"trading"`
	SessionConfig      SessionConfig      `json:"session"`
	RiskConfig         RiskConfig         `json:"risk"`
	SignalConfig       SignalConfig       `json:"signal"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	NotificationConfig NotificationConfig `json:"notifications"`
	ServerConfig       ServerConfig       `json:"server"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// BinanceConfig holds market data endpoints. No credentials are needed:
// the bot only reads public klines and simulates execution.
type BinanceConfig struct {
	BaseURL   string `json:"base_url"`
	StreamURL string `json:"stream_url"`
	MockMode  bool   `json:"mock_mode"`
}

// TradingConfig selects the instrument and analysis timeframes.
type TradingConfig struct {
	Symbol        string `json:"symbol"`
	FastTimeframe string `json:"fast_timeframe"`
	SlowTimeframe string `json:"slow_timeframe"`
	ExecTimeframe string `json:"exec_timeframe"`
}

// SessionConfig pins the trading calendar. Times are interpreted in the
// configured timezone.
type SessionConfig struct {
	Timezone      string `json:"timezone"`
	CutoffHour    int    `json:"cutoff_hour"`
	CutoffMinute  int    `json:"cutoff_minute"`
	KillzonesOnly bool   `json:"killzones_only"`
}

// RiskConfig mirrors the risk manager settings. Percentages are fractions
// (0.02 = 2%).
type RiskConfig struct {
	InitialBalance  float64 `json:"initial_balance"`
	Leverage        float64 `json:"leverage"`
	KillSwitchPct   float64 `json:"kill_switch_pct"`
	WeeklyLossPct   float64 `json:"weekly_loss_pct"`
	DailyLossPct    float64 `json:"daily_loss_pct"`
	MaxTradesPerDay int     `json:"max_trades_per_day"`
	MinRiskReward   float64 `json:"min_risk_reward"`
}

// SignalConfig tunes setup detection thresholds.
type SignalConfig struct {
	MinSweepScore int     `json:"min_sweep_score"`
	MinConfidence int     `json:"min_confidence"`
	StopBufferPct float64 `json:"stop_buffer_pct"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings for position state snapshots.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NotificationConfig holds alert channel settings.
type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Enabled        bool   `json:"enabled"`
	Port           int    `json:"port"`
	AllowedOrigins string `json:"allowed_origins"`
	JWTSecret      string `json:"jwt_secret"`
	AuthEnabled    bool   `json:"auth_enabled"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level      string `json:"level"`
	JSONFormat bool   `json:"json_format"`
}

// Load reads config.json if present, then applies environment overrides
// and fills defaults.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path string) (*Config, error) {
	cfg, err := loadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &config, nil
}

// applyEnvOverrides applies environment variable overrides. These take
// precedence over the config file.
func applyEnvOverrides(cfg *Config) {
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.StreamURL = getEnvOrDefault("BINANCE_STREAM_URL", cfg.BinanceConfig.StreamURL)
	if os.Getenv("MOCK_MODE") != "" {
		cfg.BinanceConfig.MockMode = os.Getenv("MOCK_MODE") == "true"
	}

	cfg.TradingConfig.Symbol = getEnvOrDefault("TRADING_SYMBOL", cfg.TradingConfig.Symbol)

	cfg.RiskConfig.InitialBalance = getEnvFloatOrDefault("RISK_INITIAL_BALANCE", cfg.RiskConfig.InitialBalance)
	cfg.RiskConfig.Leverage = getEnvFloatOrDefault("RISK_LEVERAGE", cfg.RiskConfig.Leverage)

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	if os.Getenv("DB_ENABLED") != "" {
		cfg.DatabaseConfig.Enabled = os.Getenv("DB_ENABLED") == "true"
	}

	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	if os.Getenv("REDIS_ENABLED") != "" {
		cfg.RedisConfig.Enabled = os.Getenv("REDIS_ENABLED") == "true"
	}

	if os.Getenv("NOTIFICATIONS_ENABLED") != "" {
		cfg.NotificationConfig.Enabled = os.Getenv("NOTIFICATIONS_ENABLED") == "true"
	}
	if os.Getenv("TELEGRAM_ENABLED") != "" {
		cfg.NotificationConfig.Telegram.Enabled = os.Getenv("TELEGRAM_ENABLED") == "true"
	}
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	if os.Getenv("DISCORD_ENABLED") != "" {
		cfg.NotificationConfig.Discord.Enabled = os.Getenv("DISCORD_ENABLED") == "true"
	}
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.ServerConfig.JWTSecret)
	if os.Getenv("AUTH_ENABLED") != "" {
		cfg.ServerConfig.AuthEnabled = os.Getenv("AUTH_ENABLED") == "true"
	}
	if os.Getenv("SERVER_ENABLED") != "" {
		cfg.ServerConfig.Enabled = os.Getenv("SERVER_ENABLED") == "true"
	}

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if os.Getenv("LOG_JSON") != "" {
		cfg.LoggingConfig.JSONFormat = os.Getenv("LOG_JSON") == "true"
	}
}

func applyDefaults(cfg *Config) {
	if cfg.BinanceConfig.BaseURL == "" {
		cfg.BinanceConfig.BaseURL = "https://api.binance.com"
	}
	if cfg.BinanceConfig.StreamURL == "" {
		cfg.BinanceConfig.StreamURL = "wss://stream.binance.com:9443"
	}
	if cfg.TradingConfig.Symbol == "" {
		cfg.TradingConfig.Symbol = "BTCUSDT"
	}
	if cfg.TradingConfig.FastTimeframe == "" {
		cfg.TradingConfig.FastTimeframe = "15m"
	}
	if cfg.TradingConfig.SlowTimeframe == "" {
		cfg.TradingConfig.SlowTimeframe = "4h"
	}
	if cfg.TradingConfig.ExecTimeframe == "" {
		cfg.TradingConfig.ExecTimeframe = "5m"
	}
	if cfg.SessionConfig.Timezone == "" {
		cfg.SessionConfig.Timezone = "America/New_York"
	}
	if cfg.SessionConfig.CutoffHour == 0 && cfg.SessionConfig.CutoffMinute == 0 {
		cfg.SessionConfig.CutoffHour = 15
		cfg.SessionConfig.CutoffMinute = 45
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
}

// GenerateSampleConfig writes a starter config file with the defaults
// filled in.
func GenerateSampleConfig(filename string) error {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.RiskConfig = RiskConfig{
		InitialBalance:  10000,
		Leverage:        5,
		KillSwitchPct:   0.15,
		WeeklyLossPct:   0.05,
		DailyLossPct:    0.02,
		MaxTradesPerDay: 1,
		MinRiskReward:   2,
	}
	cfg.DatabaseConfig = DatabaseConfig{
		Host: "localhost", Port: 5432, User: "postgres", Database: "smcbot", SSLMode: "disable",
	}
	cfg.RedisConfig = RedisConfig{Addr: "localhost:6379"}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling sample config: %w", err)
	}
	return os.WriteFile(filename, data, 0o600)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/EdsonSilvaCastro/trading-bot-three/config"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/api"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/binance"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/bot"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/database"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/events"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/notification"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "gencfg" {
		if err := config.GenerateSampleConfig("config.json"); err != nil {
			panic(err)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := buildLogger(cfg.LoggingConfig)
	logger.Info().Str("symbol", cfg.TradingConfig.Symbol).Msg("starting smc trading bot")

	var client binance.MarketData
	var stream *binance.KlineStream
	if cfg.BinanceConfig.MockMode {
		logger.Warn().Msg("mock market data mode, no live feed")
		client = binance.NewMockClient()
	} else {
		client = binance.NewClient(cfg.BinanceConfig.BaseURL, logger)
		stream = binance.NewKlineStream(cfg.BinanceConfig.StreamURL, cfg.TradingConfig.Symbol,
			[]market.Timeframe{
				market.Timeframe(cfg.TradingConfig.ExecTimeframe),
				market.Timeframe(cfg.TradingConfig.FastTimeframe),
				market.Timeframe(cfg.TradingConfig.SlowTimeframe),
			}, logger)
	}

	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		defer db.Close()
		if err := db.RunMigrations(context.Background()); err != nil {
			logger.Fatal().Err(err).Msg("database migrations failed")
		}
		repo = database.NewRepository(db)
	}

	var stateStore *database.StateStore
	if cfg.RedisConfig.Enabled {
		stateStore = database.NewStateStore(database.RedisConfig{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		}, logger)
		defer stateStore.Close()
	}

	var notifier *notification.Manager
	if cfg.NotificationConfig.Enabled {
		notifier = notification.NewManager(logger)
		notifier.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
			Enabled:  cfg.NotificationConfig.Telegram.Enabled,
			BotToken: cfg.NotificationConfig.Telegram.BotToken,
			ChatID:   cfg.NotificationConfig.Telegram.ChatID,
		}))
		notifier.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
			Enabled:    cfg.NotificationConfig.Discord.Enabled,
			WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
		}))
	}

	bus := events.NewBus()
	bus.SubscribeAll(func(e events.Event) {
		logger.Debug().Str("event", string(e.Type)).Interface("data", e.Data).Msg("event")
	})

	tradingBot, err := bot.NewBot(cfg, bot.Deps{
		Client:   client,
		Stream:   stream,
		Repo:     repo,
		State:    stateStore,
		Bus:      bus,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("bot initialization failed")
	}
	if err := tradingBot.Start(); err != nil {
		logger.Fatal().Err(err).Msg("bot start failed")
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(api.ServerConfig{
			Port:           cfg.ServerConfig.Port,
			AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
			JWTSecret:      cfg.ServerConfig.JWTSecret,
			AuthEnabled:    cfg.ServerConfig.AuthEnabled,
			ProductionMode: true,
		}, tradingBot, repo, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("http server failed")
			}
		}()
		if tm := server.Tokens(); tm != nil {
			if token, err := tm.Generate("operator"); err == nil {
				logger.Info().Str("token", token).Msg("operator api token issued")
			}
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	tradingBot.Stop()
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("http shutdown error")
		}
	}
	logger.Info().Msg("shutdown complete")
}

func buildLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.JSONFormat {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

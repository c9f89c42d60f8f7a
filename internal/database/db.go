package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database connection settings.
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// NewDB opens a pooled connection and verifies it.
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "database").Logger()
	log.Info().Str("database", cfg.Database).Msg("connected to postgres")
	return &DB{Pool: pool, logger: log}, nil
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations creates the schema if missing.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id UUID PRIMARY KEY,
			signal_id UUID,
			gap_id VARCHAR(128),
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(5) NOT NULL,
			status VARCHAR(20) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			fill_price DECIMAL(20, 8),
			stop_loss DECIMAL(20, 8) NOT NULL,
			tp1 DECIMAL(20, 8) NOT NULL,
			tp2 DECIMAL(20, 8) NOT NULL,
			size DECIMAL(20, 8) NOT NULL,
			leverage DECIMAL(10, 2) NOT NULL DEFAULT 1,
			pnl DECIMAL(20, 8),
			rr_achieved DECIMAL(10, 4),
			confidence INTEGER,
			created_at TIMESTAMPTZ NOT NULL,
			filled_at TIMESTAMPTZ,
			closed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades(created_at)`,

		`CREATE TABLE IF NOT EXISTS swings (
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(5) NOT NULL,
			swing_time TIMESTAMPTZ NOT NULL,
			swing_type VARCHAR(4) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			PRIMARY KEY (symbol, timeframe, swing_time, swing_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_swings_lookup ON swings(symbol, timeframe, swing_time)`,

		`CREATE TABLE IF NOT EXISTS candles (
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(5) NOT NULL,
			open_time TIMESTAMPTZ NOT NULL,
			open DECIMAL(20, 8) NOT NULL,
			high DECIMAL(20, 8) NOT NULL,
			low DECIMAL(20, 8) NOT NULL,
			close DECIMAL(20, 8) NOT NULL,
			volume DECIMAL(20, 8) NOT NULL,
			PRIMARY KEY (symbol, timeframe, open_time)
		)`,
	}

	for i, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	db.logger.Info().Msg("migrations complete")
	return nil
}

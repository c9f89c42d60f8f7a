package database

import (
	"context"
	"time"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/analysis"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/execution"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

// Repository persists trades, swings, and candles. All writes are
// best-effort from the caller's point of view: a failed persist is logged
// upstream and never blocks the trading cycle.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// SaveTrade upserts the trade by id, so repeated saves across the lifecycle
// converge on the final state.
func (r *Repository) SaveTrade(ctx context.Context, symbol string, t *execution.Trade) error {
	query := `
		INSERT INTO trades (id, signal_id, gap_id, symbol, side, status, entry_price, fill_price,
			stop_loss, tp1, tp2, size, leverage, pnl, rr_achieved, confidence,
			created_at, filled_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			fill_price = EXCLUDED.fill_price,
			stop_loss = EXCLUDED.stop_loss,
			pnl = EXCLUDED.pnl,
			rr_achieved = EXCLUDED.rr_achieved,
			filled_at = EXCLUDED.filled_at,
			closed_at = EXCLUDED.closed_at
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		t.ID, t.SignalID, t.GapID, symbol, t.Side, t.Status, t.Entry, t.FillPrice,
		t.StopLoss, t.TP1, t.TP2, t.Size, t.Leverage, t.RealizedPnL, t.RRAchieved, t.Confidence,
		t.CreatedAt, t.FilledAt, t.ClosedAt,
	)
	return err
}

// RecentTrades returns closed and live trades, newest first.
func (r *Repository) RecentTrades(ctx context.Context, symbol string, limit int) ([]execution.Trade, error) {
	query := `
		SELECT id, signal_id, gap_id, side, status, entry_price, fill_price,
			stop_loss, tp1, tp2, size, leverage, pnl, rr_achieved, confidence,
			created_at, filled_at, closed_at
		FROM trades WHERE symbol = $1
		ORDER BY created_at DESC LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []execution.Trade
	for rows.Next() {
		var t execution.Trade
		err := rows.Scan(
			&t.ID, &t.SignalID, &t.GapID, &t.Side, &t.Status, &t.Entry, &t.FillPrice,
			&t.StopLoss, &t.TP1, &t.TP2, &t.Size, &t.Leverage, &t.RealizedPnL, &t.RRAchieved, &t.Confidence,
			&t.CreatedAt, &t.FilledAt, &t.ClosedAt,
		)
		if err != nil {
			return nil, err
		}
		t.OrigStop = t.StopLoss
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveSwings upserts a batch of swings for cold-start recovery.
func (r *Repository) SaveSwings(ctx context.Context, symbol string, swings []analysis.Swing) error {
	query := `
		INSERT INTO swings (symbol, timeframe, swing_time, swing_type, price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, timeframe, swing_time, swing_type) DO NOTHING
	`
	for _, s := range swings {
		if _, err := r.db.Pool.Exec(ctx, query, symbol, s.Timeframe, s.Time, s.Type, s.Price); err != nil {
			return err
		}
	}
	return nil
}

// LoadSwings returns persisted swings for a timeframe, ascending by time.
func (r *Repository) LoadSwings(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]analysis.Swing, error) {
	query := `
		SELECT timeframe, swing_time, swing_type, price
		FROM (
			SELECT timeframe, swing_time, swing_type, price
			FROM swings WHERE symbol = $1 AND timeframe = $2
			ORDER BY swing_time DESC LIMIT $3
		) recent
		ORDER BY swing_time ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swings []analysis.Swing
	for rows.Next() {
		var s analysis.Swing
		if err := rows.Scan(&s.Timeframe, &s.Time, &s.Type, &s.Price); err != nil {
			return nil, err
		}
		swings = append(swings, s)
	}
	return swings, rows.Err()
}

// SaveCandles upserts closed candles.
func (r *Repository) SaveCandles(ctx context.Context, symbol string, candles []market.Candle) error {
	query := `
		INSERT INTO candles (symbol, timeframe, open_time, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, open_time) DO UPDATE SET
			high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume
	`
	for _, c := range candles {
		if _, err := r.db.Pool.Exec(ctx, query,
			symbol, c.Timeframe, c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return err
		}
	}
	return nil
}

// LoadCandles returns persisted candles for a timeframe, ascending,
// newest limit rows.
func (r *Repository) LoadCandles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	query := `
		SELECT timeframe, open_time, open, high, low, close, volume
		FROM (
			SELECT timeframe, open_time, open, high, low, close, volume
			FROM candles WHERE symbol = $1 AND timeframe = $2
			ORDER BY open_time DESC LIMIT $3
		) recent
		ORDER BY open_time ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.Timeframe, &c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// PruneCandles drops candle rows older than the retention window.
func (r *Repository) PruneCandles(ctx context.Context, symbol string, before time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM candles WHERE symbol = $1 AND open_time < $2`, symbol, before)
	return err
}

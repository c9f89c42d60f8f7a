package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

// MarketData is the read-only market access the bot consumes. The live
// client and the mock both satisfy it.
type MarketData interface {
	GetKlines(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

const (
	maxFetchRetries  = 3
	initialBackoff   = 500 * time.Millisecond
	requestTimeout   = 10 * time.Second
	defaultKlineSize = 500
)

// Client is a read-only Binance spot REST client. Fetches are retried with
// exponential backoff; a failed tick is skipped, never fatal.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(baseURL string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With().Str("component", "binance").Logger(),
	}
}

// GetKlines fetches up to limit most recent candles for the timeframe,
// ascending by open time. The still-forming last candle is included; callers
// decide whether to use it.
func (c *Client) GetKlines(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = defaultKlineSize
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(tf))
	params.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	body, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching %s klines: %w", tf, err)
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s klines: %w", tf, err)
	}

	candles := make([]market.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		openMs, ok := row[0].(float64)
		if !ok {
			continue
		}
		candles = append(candles, market.Candle{
			Timeframe: tf,
			OpenTime:  time.UnixMilli(int64(openMs)).UTC(),
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
		})
	}
	return candles, nil
}

// GetPrice fetches the current ticker price.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.baseURL, url.QueryEscape(symbol))
	body, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return 0, fmt.Errorf("fetching price: %w", err)
	}

	var ticker struct {
		Price float64 `json:"price,string"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("parsing price: %w", err)
	}
	return ticker.Price, nil
}

func (c *Client) getWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxFetchRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("retrying fetch")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, err := c.get(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func parseFloat(v any) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

package binance

import (
	"context"
	"fmt"
	"sync"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

// MockClient serves canned candles for tests and dry runs.
type MockClient struct {
	mu      sync.RWMutex
	candles map[market.Timeframe][]market.Candle
	price   float64
	failErr error
}

func NewMockClient() *MockClient {
	return &MockClient{candles: make(map[market.Timeframe][]market.Candle)}
}

// SetCandles loads the canned series for a timeframe.
func (m *MockClient) SetCandles(tf market.Timeframe, candles []market.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[tf] = candles
	if n := len(candles); n > 0 {
		m.price = candles[n-1].Close
	}
}

// SetPrice overrides the ticker price.
func (m *MockClient) SetPrice(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price = price
}

// FailWith makes every call return err until cleared with nil.
func (m *MockClient) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *MockClient) GetKlines(_ context.Context, _ string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	series, ok := m.candles[tf]
	if !ok {
		return nil, fmt.Errorf("no canned candles for %s", tf)
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]market.Candle, len(series))
	copy(out, series)
	return out, nil
}

func (m *MockClient) GetPrice(context.Context, string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failErr != nil {
		return 0, m.failErr
	}
	return m.price, nil
}

package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

const klinesPayload = `[
  [1717315200000,"100.0","101.5","99.5","101.0","1200.0",1717315499999,"0",0,"0","0","0"],
  [1717315500000,"101.0","102.0","100.5","101.8","900.0",1717315799999,"0",0,"0","0","0"]
]`

func TestGetKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("interval"); got != "5m" {
			t.Errorf("interval = %s", got)
		}
		w.Write([]byte(klinesPayload))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	candles, err := c.GetKlines(context.Background(), "BTCUSDT", market.Timeframe5m, 10)
	if err != nil {
		t.Fatalf("GetKlines: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	first := candles[0]
	if first.Timeframe != market.Timeframe5m {
		t.Errorf("timeframe = %s", first.Timeframe)
	}
	if !first.OpenTime.Equal(time.UnixMilli(1717315200000).UTC()) {
		t.Errorf("open time = %s", first.OpenTime)
	}
	if first.Open != 100 || first.High != 101.5 || first.Low != 99.5 || first.Close != 101 {
		t.Errorf("ohlc = %+v", first)
	}
	if first.Volume != 1200 {
		t.Errorf("volume = %f", first.Volume)
	}
}

func TestGetKlinesRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(klinesPayload))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	candles, err := c.GetKlines(context.Background(), "BTCUSDT", market.Timeframe5m, 10)
	if err != nil {
		t.Fatalf("GetKlines after retries: %v", err)
	}
	if len(candles) != 2 {
		t.Errorf("got %d candles, want 2", len(candles))
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestGetKlinesExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	if _, err := c.GetKlines(context.Background(), "BTCUSDT", market.Timeframe5m, 10); err == nil {
		t.Fatal("want error after exhausted retries")
	}
}

func TestGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"65123.45"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	price, err := c.GetPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if price != 65123.45 {
		t.Errorf("price = %f", price)
	}
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	m.SetCandles(market.Timeframe5m, []market.Candle{
		{Timeframe: market.Timeframe5m, Close: 100},
		{Timeframe: market.Timeframe5m, Close: 101},
	})

	candles, err := m.GetKlines(context.Background(), "BTCUSDT", market.Timeframe5m, 1)
	if err != nil {
		t.Fatalf("GetKlines: %v", err)
	}
	if len(candles) != 1 || candles[0].Close != 101 {
		t.Errorf("limit should keep the most recent candle, got %+v", candles)
	}

	price, err := m.GetPrice(context.Background(), "BTCUSDT")
	if err != nil || price != 101 {
		t.Errorf("price = %f, err = %v", price, err)
	}

	boom := errors.New("boom")
	m.FailWith(boom)
	if _, err := m.GetKlines(context.Background(), "BTCUSDT", market.Timeframe5m, 1); !errors.Is(err, boom) {
		t.Errorf("err = %v, want injected failure", err)
	}
}

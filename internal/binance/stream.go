package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
)

// KlineStream pushes closed candles from the Binance kline websocket.
// It reconnects on its own; consumers just read the channel.
type KlineStream struct {
	mu      sync.RWMutex
	baseURL string
	symbol  string
	tfs     []market.Timeframe
	out     chan market.Candle
	running bool
	conn    *websocket.Conn
	logger  zerolog.Logger
}

func NewKlineStream(baseURL, symbol string, tfs []market.Timeframe, logger zerolog.Logger) *KlineStream {
	if baseURL == "" {
		baseURL = "wss://stream.binance.com:9443"
	}
	return &KlineStream{
		baseURL: baseURL,
		symbol:  symbol,
		tfs:     tfs,
		out:     make(chan market.Candle, 64),
		logger:  logger.With().Str("component", "kline_stream").Logger(),
	}
}

// Candles is the stream of closed candles, all subscribed timeframes mixed.
func (s *KlineStream) Candles() <-chan market.Candle {
	return s.out
}

func (s *KlineStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.connectLoop()
}

func (s *KlineStream) Stop() {
	s.mu.Lock()
	s.running = false
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (s *KlineStream) streamURL() string {
	streams := make([]string, 0, len(s.tfs))
	sym := strings.ToLower(s.symbol)
	for _, tf := range s.tfs {
		streams = append(streams, fmt.Sprintf("%s@kline_%s", sym, tf))
	}
	return fmt.Sprintf("%s/stream?streams=%s", s.baseURL, strings.Join(streams, "/"))
}

func (s *KlineStream) connectLoop() {
	url := s.streamURL()
	for {
		s.mu.RLock()
		running := s.running
		s.mu.RUnlock()
		if !running {
			return
		}

		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("stream connect failed, retrying in 5s")
			time.Sleep(5 * time.Second)
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.logger.Info().Str("symbol", s.symbol).Msg("kline stream connected")

		s.readLoop(conn)

		s.mu.RLock()
		running = s.running
		s.mu.RUnlock()
		if !running {
			return
		}
		s.logger.Warn().Msg("stream lost, reconnecting in 3s")
		time.Sleep(3 * time.Second)
	}
}

type klineEvent struct {
	Data struct {
		Kline struct {
			Interval string `json:"i"`
			OpenTime int64  `json:"t"`
			Open     string `json:"o"`
			High     string `json:"h"`
			Low      string `json:"l"`
			Close    string `json:"c"`
			Volume   string `json:"v"`
			Closed   bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func (s *KlineStream) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info().Msg("stream closed")
			} else {
				s.logger.Warn().Err(err).Msg("stream read error")
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *KlineStream) handleMessage(message []byte) {
	var ev klineEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		s.logger.Warn().Err(err).Msg("bad stream message")
		return
	}
	k := ev.Data.Kline
	if !k.Closed {
		return
	}

	c := market.Candle{
		Timeframe: market.Timeframe(k.Interval),
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		Open:      parseFloat(k.Open),
		High:      parseFloat(k.High),
		Low:       parseFloat(k.Low),
		Close:     parseFloat(k.Close),
		Volume:    parseFloat(k.Volume),
	}
	select {
	case s.out <- c:
	default:
		// A stalled consumer drops the oldest update, not the connection.
		s.logger.Warn().Msg("candle channel full, dropping update")
	}
}

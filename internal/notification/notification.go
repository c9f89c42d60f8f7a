package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Kind tags what a notification is about.
type Kind string

const (
	KindSignal     Kind = "signal"
	KindTradeOpen  Kind = "trade_open"
	KindTradeClose Kind = "trade_close"
	KindRiskBlock  Kind = "risk_block"
	KindBias       Kind = "bias"
	KindError      Kind = "error"
)

// Notification is one alert message.
type Notification struct {
	Kind       Kind
	Title      string
	Message    string
	Symbol     string
	Price      float64
	PnL        float64
	PnLPercent float64
	Timestamp  time.Time
}

// Notifier is one delivery channel.
type Notifier interface {
	Send(n *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans a notification out to every enabled channel. Sends are
// best-effort: a channel failure is logged and swallowed, never returned to
// the trading cycle as a failure.
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger: logger.With().Str("component", "notification").Logger(),
	}
}

func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

func (m *Manager) Send(n *Notification) error {
	var lastErr error
	for _, ch := range m.notifiers {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(n); err != nil {
			m.logger.Warn().Err(err).Str("channel", ch.Name()).Msg("notification send failed")
			lastErr = err
		}
	}
	return lastErr
}

// SendSignal announces a confirmed setup.
func (m *Manager) SendSignal(symbol, side, reason string, price, stopLoss, takeProfit float64) error {
	arrow := "▲"
	if side == "SHORT" {
		arrow = "▼"
	}
	return m.Send(&Notification{
		Kind:  KindSignal,
		Title: fmt.Sprintf("%s %s signal: %s", arrow, side, symbol),
		Message: fmt.Sprintf("Entry %.4f\nStop %.4f | Target %.4f\n%s",
			price, stopLoss, takeProfit, reason),
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now(),
	})
}

// SendTradeOpen announces a fill.
func (m *Manager) SendTradeOpen(symbol, side string, price, size float64) error {
	return m.Send(&Notification{
		Kind:      KindTradeOpen,
		Title:     fmt.Sprintf("Trade opened: %s", symbol),
		Message:   fmt.Sprintf("%s filled at %.4f, notional %.2f", side, price, size),
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now(),
	})
}

// SendTradeClose announces a full closure with its result.
func (m *Manager) SendTradeClose(symbol string, entryPrice, exitPrice, pnl, pnlPercent float64, reason string) error {
	outcome := "WIN"
	if pnl < 0 {
		outcome = "LOSS"
	}
	return m.Send(&Notification{
		Kind:  KindTradeClose,
		Title: fmt.Sprintf("Trade closed (%s): %s", outcome, symbol),
		Message: fmt.Sprintf("Entry %.4f, exit %.4f\nPnL %.4f (%.2f%%)\n%s",
			entryPrice, exitPrice, pnl, pnlPercent, reason),
		Symbol:     symbol,
		Price:      exitPrice,
		PnL:        pnl,
		PnLPercent: pnlPercent,
		Timestamp:  time.Now(),
	})
}

// SendRiskBlock surfaces an intentional risk rejection.
func (m *Manager) SendRiskBlock(symbol, reason string) error {
	return m.Send(&Notification{
		Kind:      KindRiskBlock,
		Title:     fmt.Sprintf("Signal blocked: %s", symbol),
		Message:   reason,
		Symbol:    symbol,
		Timestamp: time.Now(),
	})
}

// SendBias announces the daily bias once it is computed.
func (m *Manager) SendBias(symbol, direction, framework, phase string) error {
	return m.Send(&Notification{
		Kind:      KindBias,
		Title:     fmt.Sprintf("Daily bias: %s %s", symbol, direction),
		Message:   fmt.Sprintf("Framework %s, phase %s", framework, phase),
		Symbol:    symbol,
		Timestamp: time.Now(),
	})
}

// SendError surfaces an operational failure.
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Kind:      KindError,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// TelegramNotifier delivers via the Telegram bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
	Enabled  bool   `json:"enabled"`
}

func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) IsEnabled() bool { return t.enabled }

func (t *TelegramNotifier) Send(n *Notification) error {
	if !t.enabled {
		return nil
	}
	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", n.Title, n.Message),
		"parse_mode": "Markdown",
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram api returned status %d", resp.StatusCode)
	}
	return nil
}

// DiscordNotifier delivers via a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

type DiscordConfig struct {
	WebhookURL string `json:"webhook_url"`
	Enabled    bool   `json:"enabled"`
}

func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) IsEnabled() bool { return d.enabled }

func (d *DiscordNotifier) Send(n *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x2ECC71
	if n.Kind == KindError || n.Kind == KindRiskBlock || (n.Kind == KindTradeClose && n.PnL < 0) {
		color = 0xE74C3C
	}

	embed := map[string]any{
		"title":       n.Title,
		"description": n.Message,
		"color":       color,
		"timestamp":   n.Timestamp.Format(time.RFC3339),
	}
	if n.Symbol != "" {
		fields := []map[string]any{
			{"name": "Symbol", "value": n.Symbol, "inline": true},
		}
		if n.Price > 0 {
			fields = append(fields, map[string]any{
				"name": "Price", "value": fmt.Sprintf("%.4f", n.Price), "inline": true,
			})
		}
		if n.PnL != 0 {
			fields = append(fields, map[string]any{
				"name": "PnL", "value": fmt.Sprintf("%.4f (%.2f%%)", n.PnL, n.PnLPercent), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	jsonData, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("marshaling discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("sending discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord api returned status %d", resp.StatusCode)
	}
	return nil
}

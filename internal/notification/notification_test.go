package notification

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakeNotifier struct {
	name    string
	enabled bool
	err     error
	sent    []*Notification
}

func (f *fakeNotifier) Send(n *Notification) error {
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeNotifier) Name() string    { return f.name }
func (f *fakeNotifier) IsEnabled() bool { return f.enabled }

func TestManagerFanout(t *testing.T) {
	a := &fakeNotifier{name: "a", enabled: true}
	b := &fakeNotifier{name: "b", enabled: true}
	off := &fakeNotifier{name: "off", enabled: false}

	m := NewManager(zerolog.Nop())
	m.AddNotifier(a)
	m.AddNotifier(b)
	m.AddNotifier(off)

	if err := m.SendSignal("BTCUSDT", "LONG", "setup confirmed", 95, 93.9, 99); err != nil {
		t.Fatalf("SendSignal: %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("enabled channels got %d/%d sends, want 1/1", len(a.sent), len(b.sent))
	}
	if len(off.sent) != 0 {
		t.Error("disabled channel should not receive sends")
	}
	if a.sent[0].Kind != KindSignal {
		t.Errorf("kind = %s, want signal", a.sent[0].Kind)
	}
}

func TestManagerChannelFailureDoesNotStopOthers(t *testing.T) {
	bad := &fakeNotifier{name: "bad", enabled: true, err: errors.New("down")}
	good := &fakeNotifier{name: "good", enabled: true}

	m := NewManager(zerolog.Nop())
	m.AddNotifier(bad)
	m.AddNotifier(good)

	err := m.SendTradeClose("BTCUSDT", 95.05, 99, 26.2, 2.62, "TP2_HIT")
	if err == nil {
		t.Error("failed channel error should surface to the caller")
	}
	if len(good.sent) != 1 {
		t.Error("healthy channel should still receive the send")
	}
	if good.sent[0].PnL != 26.2 {
		t.Errorf("pnl = %f", good.sent[0].PnL)
	}
}

func TestDisabledProvidersWithoutCredentials(t *testing.T) {
	tg := NewTelegramNotifier(TelegramConfig{Enabled: true})
	if tg.IsEnabled() {
		t.Error("telegram without credentials should stay disabled")
	}
	dc := NewDiscordNotifier(DiscordConfig{Enabled: true})
	if dc.IsEnabled() {
		t.Error("discord without webhook should stay disabled")
	}
}

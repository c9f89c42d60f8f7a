package execution

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/analysis"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/risk"
)

type recordingNotifier struct {
	signals int
	opens   int
	closes  int
}

func (n *recordingNotifier) SendSignal(string, string, string, float64, float64, float64) error {
	n.signals++
	return nil
}

func (n *recordingNotifier) SendTradeOpen(string, string, float64, float64) error {
	n.opens++
	return nil
}

func (n *recordingNotifier) SendTradeClose(string, float64, float64, float64, float64, string) error {
	n.closes++
	return nil
}

func newManager(t *testing.T) (*PositionManager, *risk.Manager, *recordingNotifier) {
	t.Helper()
	rm := risk.NewManager(risk.Config{InitialBalance: 10000, Leverage: 5}, testNow)
	notifier := &recordingNotifier{}
	pm := NewPositionManager("BTCUSDT", rm, newTrader(), NewExitStrategy(), notifier, zerolog.Nop())
	return pm, rm, notifier
}

func TestSinglePositionPolicy(t *testing.T) {
	pm, _, notifier := newManager(t)

	tr, reason := pm.HandleSignal(longSignal(), testNow)
	if tr == nil {
		t.Fatalf("first signal blocked: %s", reason)
	}
	if notifier.signals != 1 {
		t.Errorf("signal alerts = %d, want 1", notifier.signals)
	}

	if second, reason := pm.HandleSignal(longSignal(), testNow.Add(time.Minute)); second != nil {
		t.Fatal("second signal should be refused while a position is live")
	} else if reason != "position already open" {
		t.Errorf("reason = %q", reason)
	}
}

func TestRiskBlockPassthrough(t *testing.T) {
	pm, rm, _ := newManager(t)
	rm.RecordClosure(-1500, testNow) // trips the kill switch

	tr, reason := pm.HandleSignal(longSignal(), testNow)
	if tr != nil {
		t.Fatal("kill-switched risk state must block the signal")
	}
	if reason == "" {
		t.Error("block should carry a reason")
	}
}

func TestFullLifecycleBooksEquity(t *testing.T) {
	pm, rm, notifier := newManager(t)

	tr, reason := pm.HandleSignal(longSignal(), testNow)
	if tr == nil {
		t.Fatalf("signal blocked: %s", reason)
	}
	if rm.State().TradesToday != 1 {
		t.Errorf("trades today = %d, want 1", rm.State().TradesToday)
	}

	// Fill, then run through both targets.
	pm.OnCandle(mkCandle(95.5, 95.6, 94.9, 95.3), ExitContext{Price: 95.3}, testNow)
	if notifier.opens != 1 {
		t.Errorf("open alerts = %d, want 1", notifier.opens)
	}
	postings := pm.OnCandle(mkCandle(96, 99.2, 95.9, 99), ExitContext{Price: 96}, testNow.Add(5*time.Minute))
	if len(postings) != 2 {
		t.Fatalf("postings = %+v, want partial then final", postings)
	}

	total := postings[0].Amount + postings[1].Amount
	if math.Abs(rm.Balance()-(10000+total)) > 1e-9 {
		t.Errorf("equity = %f, want %f", rm.Balance(), 10000+total)
	}
	if rm.State().ConsecutiveLosses != 0 {
		t.Error("winning trade should keep the streak at zero")
	}
	if pm.Current() != nil {
		t.Error("manager should be flat after the final close")
	}
	if got := pm.Recent(); len(got) != 1 || got[0].Status != TradeTP2Hit {
		t.Errorf("recent = %+v, want one TP2_HIT trade", got)
	}
}

func TestLossUpdatesStreak(t *testing.T) {
	pm, rm, _ := newManager(t)

	if tr, reason := pm.HandleSignal(longSignal(), testNow); tr == nil {
		t.Fatalf("signal blocked: %s", reason)
	}
	pm.OnCandle(mkCandle(95.5, 95.6, 94.9, 95.3), ExitContext{Price: 95.3}, testNow)
	pm.OnCandle(mkCandle(95, 95.2, 93.8, 93.9), ExitContext{Price: 94.5}, testNow.Add(5*time.Minute))

	if pm.Current() != nil {
		t.Fatal("stop-out should flatten the manager")
	}
	if rm.State().ConsecutiveLosses != 1 {
		t.Errorf("streak = %d, want 1 after a loss", rm.State().ConsecutiveLosses)
	}
	if rm.Balance() >= 10000 {
		t.Errorf("equity = %f, want below initial after a loss", rm.Balance())
	}
}

func TestStructuralOverrideClosesTrade(t *testing.T) {
	pm, _, _ := newManager(t)

	if tr, reason := pm.HandleSignal(longSignal(), testNow); tr == nil {
		t.Fatalf("signal blocked: %s", reason)
	}
	pm.OnCandle(mkCandle(95.5, 95.6, 94.9, 95.3), ExitContext{Price: 95.3}, testNow)

	postings := pm.OnCandle(mkCandle(96, 96.5, 95.8, 96.2), ExitContext{
		Price: 96.2,
		FastEvent: analysis.StructureEvent{
			Type: analysis.EventSMS, Direction: analysis.TrendBearish,
		},
	}, testNow.Add(5*time.Minute))

	if len(postings) != 1 || postings[0].Status != TradeStructural {
		t.Fatalf("postings = %+v, want a structural final close", postings)
	}
	if pm.Current() != nil {
		t.Error("manager should be flat after a structural exit")
	}
}

func TestForceCloseAllOnShutdown(t *testing.T) {
	pm, rm, _ := newManager(t)

	if tr, reason := pm.HandleSignal(longSignal(), testNow); tr == nil {
		t.Fatalf("signal blocked: %s", reason)
	}
	pm.OnCandle(mkCandle(95.5, 95.6, 94.9, 95.3), ExitContext{Price: 95.3}, testNow)

	postings := pm.ForceCloseAll(96, testNow.Add(time.Minute))
	if len(postings) != 1 || postings[0].Status != TradeManual {
		t.Fatalf("postings = %+v, want a manual final close", postings)
	}
	if pm.Current() != nil {
		t.Error("manager should be flat after shutdown close")
	}
	if rm.Balance() <= 10000 {
		t.Errorf("equity = %f, close above fill should realize a gain", rm.Balance())
	}

	// Flat manager is a no-op.
	if again := pm.ForceCloseAll(96, testNow.Add(2*time.Minute)); again != nil {
		t.Fatalf("second force close produced postings: %+v", again)
	}
}

func TestCancelledPendingFreesSlotWithoutOutcome(t *testing.T) {
	pm, rm, notifier := newManager(t)

	if tr, reason := pm.HandleSignal(longSignal(), testNow); tr == nil {
		t.Fatalf("signal blocked: %s", reason)
	}
	// Time cutoff cancels the unfilled order.
	pm.OnCandle(mkCandle(96, 96.5, 95.8, 96.2), ExitContext{Price: 96.2, PastCutoff: true}, testNow)

	if pm.Current() != nil {
		t.Fatal("cancelled pending should flatten the manager")
	}
	if rm.State().ConsecutiveLosses != 0 {
		t.Error("a cancelled pending is not an outcome")
	}
	if notifier.closes != 0 {
		t.Error("no close alert for a trade that never filled")
	}
	if got := pm.Recent(); len(got) != 1 || got[0].Status != TradeTimeExit {
		t.Errorf("recent = %+v, want one TIME_EXIT record", got)
	}
}

package events

import (
	"sync"
	"testing"
	"time"
)

func TestBusDispatch(t *testing.T) {
	b := NewBus()

	var mu sync.Mutex
	var typed, all []Event
	done := make(chan struct{}, 2)

	b.Subscribe(EventSignalGenerated, func(e Event) {
		mu.Lock()
		typed = append(typed, e)
		mu.Unlock()
		done <- struct{}{}
	})
	b.SubscribeAll(func(e Event) {
		mu.Lock()
		all = append(all, e)
		mu.Unlock()
		done <- struct{}{}
	})

	b.PublishSignal("BTCUSDT", "LONG", 95, 93.9, 99, 92)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("handler not invoked")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(typed) != 1 || len(all) != 1 {
		t.Fatalf("typed = %d, all = %d, want 1/1", len(typed), len(all))
	}
	if typed[0].Data["side"] != "LONG" {
		t.Errorf("side = %v", typed[0].Data["side"])
	}
	if typed[0].Timestamp.IsZero() {
		t.Error("publish should stamp the timestamp")
	}
}

func TestBusIgnoresUnrelatedTypes(t *testing.T) {
	b := NewBus()

	called := make(chan struct{}, 1)
	b.Subscribe(EventTradeClosed, func(Event) { called <- struct{}{} })

	b.PublishSignalBlocked("BTCUSDT", "outside killzone")

	select {
	case <-called:
		t.Fatal("handler for another type should not fire")
	case <-time.After(50 * time.Millisecond):
	}
}

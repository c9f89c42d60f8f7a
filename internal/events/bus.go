package events

import (
	"sync"
	"time"
)

// EventType tags what happened in the pipeline.
type EventType string

const (
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventBiasComputed    EventType = "BIAS_COMPUTED"
	EventSweepDetected   EventType = "SWEEP_DETECTED"
	EventStructureShift  EventType = "STRUCTURE_SHIFT"
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventSignalBlocked   EventType = "SIGNAL_BLOCKED"
	EventTradePending    EventType = "TRADE_PENDING"
	EventTradeFilled     EventType = "TRADE_FILLED"
	EventTradePartial    EventType = "TRADE_PARTIAL"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventError           EventType = "ERROR"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Subscriber handles events. Delivery is asynchronous; handlers must not
// assume ordering across event types.
type Subscriber func(Event)

// Bus is a small in-process pub/sub fanout.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[EventType][]Subscriber)}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t EventType, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], s)
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, s)
}

// Publish fans the event out. Handlers run on their own goroutines so a
// slow consumer never blocks the analysis cycle.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subscribers[event.Type] {
		go s(event)
	}
	for _, s := range b.allSubs {
		go s(event)
	}
}

// PublishBias publishes the daily bias result.
func (b *Bus) PublishBias(symbol, direction, framework, phase string) {
	b.Publish(Event{
		Type: EventBiasComputed,
		Data: map[string]any{
			"symbol":    symbol,
			"direction": direction,
			"framework": framework,
			"phase":     phase,
		},
	})
}

// PublishSignal publishes a confirmed setup.
func (b *Bus) PublishSignal(symbol, side string, entry, stopLoss, tp2 float64, confidence int) {
	b.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]any{
			"symbol":     symbol,
			"side":       side,
			"entry":      entry,
			"stop_loss":  stopLoss,
			"tp2":        tp2,
			"confidence": confidence,
		},
	})
}

// PublishSignalBlocked publishes a gate or risk rejection.
func (b *Bus) PublishSignalBlocked(symbol, reason string) {
	b.Publish(Event{
		Type: EventSignalBlocked,
		Data: map[string]any{"symbol": symbol, "reason": reason},
	})
}

// PublishTradeClosed publishes a full closure.
func (b *Bus) PublishTradeClosed(symbol, tradeID, status string, pnl, rrAchieved float64) {
	b.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]any{
			"symbol":      symbol,
			"trade_id":    tradeID,
			"status":      status,
			"pnl":         pnl,
			"rr_achieved": rrAchieved,
		},
	})
}

// PublishError publishes an operational failure.
func (b *Bus) PublishError(component string, err error) {
	b.Publish(Event{
		Type: EventError,
		Data: map[string]any{"component": component, "error": err.Error()},
	})
}

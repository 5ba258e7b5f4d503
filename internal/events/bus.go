package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventTradeOpened     EventType = "TRADE_OPENED"
	EventDCAFilled       EventType = "DCA_FILLED"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventEngineStarted   EventType = "ENGINE_STARTED"
	EventEngineStopped   EventType = "ENGINE_STOPPED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // subscribers to all events
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // run in goroutine to avoid blocking
		}
	}

	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a signal generated event
func (b *Bus) PublishSignal(symbol, action, reason string, confidence, price float64) {
	b.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"action":     action,
			"reason":     reason,
			"confidence": confidence,
			"price":      price,
		},
	})
}

// PublishTradeOpened publishes a trade opened event
func (b *Bus) PublishTradeOpened(symbol, direction, strategy string, entryPrice, quantity float64) {
	b.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"direction":   direction,
			"strategy":    strategy,
			"entry_price": entryPrice,
			"quantity":    quantity,
		},
	})
}

// PublishDCAFilled publishes a DCA fill event
func (b *Bus) PublishDCAFilled(symbol string, dcaCount int, fillPrice, addedQuantity, newEntry float64) {
	b.Publish(Event{
		Type: EventDCAFilled,
		Data: map[string]interface{}{
			"symbol":         symbol,
			"dca_count":      dcaCount,
			"fill_price":     fillPrice,
			"added_quantity": addedQuantity,
			"new_entry":      newEntry,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (b *Bus) PublishTradeClosed(symbol, reason string, entryPrice, exitPrice, quantity, pnlPercent float64) {
	b.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"reason":      reason,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"quantity":    quantity,
			"pnl_percent": pnlPercent,
		},
	})
}

// PublishError publishes an error event
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{
		Type: EventError,
		Data: data,
	})
}

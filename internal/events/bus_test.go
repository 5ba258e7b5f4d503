package events

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTestCause = errors.New("upstream timeout")

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewBus()
	received := make(chan Event, 1)
	bus.Subscribe(EventTradeOpened, func(e Event) { received <- e })

	bus.PublishTradeOpened("BTCUSDT", "LONG", "DCA", 50000, 0.01)

	e := waitFor(t, received)
	if e.Type != EventTradeOpened {
		t.Errorf("Expected TRADE_OPENED, got %s", e.Type)
	}
	if e.Data["symbol"] != "BTCUSDT" {
		t.Errorf("Expected symbol BTCUSDT, got %v", e.Data["symbol"])
	}
	if e.Timestamp.IsZero() {
		t.Error("Publish should stamp events with the current time")
	}
}

func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	bus := NewBus()
	received := make(chan Event, 1)
	bus.Subscribe(EventTradeClosed, func(e Event) { received <- e })

	bus.PublishSignal("BTCUSDT", "BUY", "test", 0.7, 50000)

	select {
	case e := <-received:
		t.Errorf("Unexpected event delivered: %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	seen := make(map[EventType]bool)
	done := make(chan struct{}, 3)

	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		seen[e.Type] = true
		mu.Unlock()
		done <- struct{}{}
	})

	bus.PublishSignal("BTCUSDT", "BUY", "test", 0.7, 50000)
	bus.PublishDCAFilled("BTCUSDT", 1, 49250, 0.015, 49700)
	bus.PublishError("manager", "tick failed", nil)

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for events")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, want := range []EventType{EventSignalGenerated, EventDCAFilled, EventError} {
		if !seen[want] {
			t.Errorf("Catch-all subscriber missed %s", want)
		}
	}
}

func TestPublishErrorIncludesCause(t *testing.T) {
	bus := NewBus()
	received := make(chan Event, 1)
	bus.Subscribe(EventError, func(e Event) { received <- e })

	bus.PublishError("scheduler", "tick panicked", errTestCause)

	e := waitFor(t, received)
	if e.Data["error"] != errTestCause.Error() {
		t.Errorf("Expected error detail %q, got %v", errTestCause.Error(), e.Data["error"])
	}
}

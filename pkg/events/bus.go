package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultHistorySize is the number of recent events retained for replay.
	DefaultHistorySize = 256

	// DefaultChannelBuffer is the buffer size for subscriber channels.
	DefaultChannelBuffer = 64
)

// Handler receives events for one subscription. Handlers run on a dedicated
// goroutine per subscription and must not block indefinitely.
type Handler func(Event)

// SubscriptionID identifies an active subscription.
type SubscriptionID string

type subscription struct {
	id        SubscriptionID
	eventType EventType // "" means all events
	handler   Handler
	ch        chan Event
	done      chan struct{}
}

// Bus is a bounded in-process pub/sub fan-out for routing events.
// Publishing never blocks a turn: a subscriber that cannot keep up has
// events dropped and counted rather than stalling the pipeline.
type Bus struct {
	mu       sync.RWMutex
	subs     map[SubscriptionID]*subscription
	byType   map[EventType]map[SubscriptionID]*subscription
	wildcard map[SubscriptionID]*subscription

	historyMu sync.RWMutex
	history   []Event
	historyN  int

	counter atomic.Uint64
	dropped atomic.Uint64
	closed  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBus creates a bus with the default history size.
func NewBus() *Bus {
	return NewBusWithHistory(DefaultHistorySize)
}

// NewBusWithHistory creates a bus retaining the last historySize events.
func NewBusWithHistory(historySize int) *Bus {
	if historySize < 0 {
		historySize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subs:     make(map[SubscriptionID]*subscription),
		byType:   make(map[EventType]map[SubscriptionID]*subscription),
		wildcard: make(map[SubscriptionID]*subscription),
		history:  make([]Event, 0, historySize),
		historyN: historySize,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe registers a handler for one event type. An empty eventType
// subscribes to all events. Returns "" if the bus is closed.
func (b *Bus) Subscribe(eventType EventType, handler Handler) SubscriptionID {
	if b.closed.Load() || handler == nil {
		return ""
	}

	id := SubscriptionID(fmt.Sprintf("sub_%d", b.counter.Add(1)))
	sub := &subscription{
		id:        id,
		eventType: eventType,
		handler:   handler,
		ch:        make(chan Event, DefaultChannelBuffer),
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[id] = sub
	if eventType == "" {
		b.wildcard[id] = sub
	} else {
		if b.byType[eventType] == nil {
			b.byType[eventType] = make(map[SubscriptionID]*subscription)
		}
		b.byType[eventType][id] = sub
	}
	b.mu.Unlock()

	b.wg.Add(1)
	go b.pump(sub)

	return id
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) SubscriptionID {
	return b.Subscribe("", handler)
}

// pump delivers events to a single subscription until it is cancelled.
func (b *Bus) pump(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case ev := <-sub.ch:
			sub.handler(ev)
		case <-sub.done:
			return
		case <-b.ctx.Done():
			return
		}
	}
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	if b.closed.Load() {
		return fmt.Errorf("event bus is closed")
	}

	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(b.subs, id)
	if sub.eventType == "" {
		delete(b.wildcard, id)
	} else if typed, ok := b.byType[sub.eventType]; ok {
		delete(typed, id)
		if len(typed) == 0 {
			delete(b.byType, sub.eventType)
		}
	}
	b.mu.Unlock()

	close(sub.done)
	return nil
}

// Publish fans an event out to matching subscribers and appends it to the
// history ring. Slow subscribers drop rather than block.
func (b *Bus) Publish(ev Event) {
	if b.closed.Load() {
		return
	}

	b.addToHistory(ev)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.wildcard {
		b.offer(sub, ev)
	}
	for _, sub := range b.byType[ev.Type] {
		b.offer(sub, ev)
	}
}

func (b *Bus) offer(sub *subscription, ev Event) {
	select {
	case sub.ch <- ev:
	default:
		b.dropped.Add(1)
	}
}

func (b *Bus) addToHistory(ev Event) {
	if b.historyN == 0 {
		return
	}
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	b.history = append(b.history, ev)
	if len(b.history) > b.historyN {
		b.history = b.history[len(b.history)-b.historyN:]
	}
}

// History returns a copy of the most recent n events, oldest first.
// n <= 0 returns the full retained history.
func (b *Bus) History(n int) []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()
	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// Dropped returns the number of events dropped for slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down and waits for subscriber goroutines to exit.
// Closing twice is an error; publishing after Close is a no-op.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("event bus already closed")
	}

	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	b.subs = make(map[SubscriptionID]*subscription)
	b.byType = make(map[EventType]map[SubscriptionID]*subscription)
	b.wildcard = make(map[SubscriptionID]*subscription)
	b.mu.Unlock()

	return nil
}

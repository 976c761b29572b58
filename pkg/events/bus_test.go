package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestTypedSubscriptionReceivesOnlyItsType(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	got := make(chan Event, 8)
	id := bus.Subscribe(EventAgentSelected, func(ev Event) { got <- ev })
	require.NotEmpty(t, id)

	bus.Publish(New(EventTurnStarted))
	ev := New(EventAgentSelected)
	ev.AgentID = "shipping"
	bus.Publish(ev)

	received := waitEvent(t, got)
	assert.Equal(t, EventAgentSelected, received.Type)
	assert.Equal(t, "shipping", received.AgentID)

	select {
	case extra := <-got:
		t.Fatalf("unexpected extra event: %v", extra.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWildcardReceivesEverything(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	got := make(chan Event, 8)
	bus.SubscribeAll(func(ev Event) { got <- ev })

	bus.Publish(New(EventTurnStarted))
	bus.Publish(New(EventNoSelection))

	types := map[EventType]bool{}
	types[waitEvent(t, got).Type] = true
	types[waitEvent(t, got).Type] = true
	assert.True(t, types[EventTurnStarted])
	assert.True(t, types[EventNoSelection])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	got := make(chan Event, 8)
	id := bus.Subscribe(EventTurnCompleted, func(ev Event) { got <- ev })

	bus.Publish(New(EventTurnCompleted))
	waitEvent(t, got)

	require.NoError(t, bus.Unsubscribe(id))
	assert.Error(t, bus.Unsubscribe(id), "second unsubscribe should fail")

	bus.Publish(New(EventTurnCompleted))
	select {
	case <-got:
		t.Fatal("received event after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHistoryRingTrims(t *testing.T) {
	bus := NewBusWithHistory(3)
	defer bus.Close()

	for i := 0; i < 5; i++ {
		ev := New(EventTurnStarted)
		ev.TurnID = string(rune('a' + i))
		bus.Publish(ev)
	}

	hist := bus.History(0)
	require.Len(t, hist, 3)
	assert.Equal(t, "c", hist[0].TurnID)
	assert.Equal(t, "e", hist[2].TurnID)

	last := bus.History(1)
	require.Len(t, last, 1)
	assert.Equal(t, "e", last[0].TurnID)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()

	release := make(chan struct{})
	bus.Subscribe(EventTurnStarted, func(Event) { <-release })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < DefaultChannelBuffer+16; i++ {
			bus.Publish(New(EventTurnStarted))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Greater(t, bus.Dropped(), uint64(0))

	close(release)
	require.NoError(t, bus.Close())
}

func TestCloseIsFinal(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventTurnStarted, func(ev Event) { got <- ev })

	require.NoError(t, bus.Close())
	assert.Error(t, bus.Close())

	bus.Publish(New(EventTurnStarted))
	select {
	case <-got:
		t.Fatal("received event after close")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, bus.Subscribe(EventTurnStarted, func(Event) {}))
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(New(EventAgentSelected))
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Subscribe(EventAgentSelected, func(Event) {})
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, bus.SubscriberCount())
}

func TestNewFillsIdentity(t *testing.T) {
	ev := New(EventTopicChanged)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Time.IsZero())
	assert.Equal(t, EventTopicChanged, ev.Type)
}

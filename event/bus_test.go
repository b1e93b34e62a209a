package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBus_Broadcast(t *testing.T) {
	bus := NewBus[int](zap.NewNop(), 16, 10*time.Millisecond)

	first := bus.Subscribe()
	second := bus.Subscribe()
	require.NotEqual(t, first.ID(), second.ID())
	require.Equal(t, 2, bus.Len())

	for i := 0; i < 10; i++ {
		bus.Publish(i)
	}
	bus.Close()

	for _, s := range []*Stream[int]{first, second} {
		var received []int
		for v := range s.Channel() {
			received = append(received, v)
		}
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, received)
	}
	assert.Equal(t, 0, bus.Len())

	late := bus.Subscribe()
	_, ok := <-late.Channel()
	assert.False(t, ok)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus[string](zap.NewNop(), 4, 10*time.Millisecond)

	kept := bus.Subscribe()
	dropped := bus.Subscribe()
	dropped.Close()
	assert.Equal(t, 1, bus.Len())

	bus.Publish("hello")
	assert.Equal(t, "hello", <-kept.Channel())
}

func TestBus_SlowSubscriberDropped(t *testing.T) {
	bus := NewBus[int](zap.NewNop(), 1, 50*time.Millisecond)

	slow := bus.Subscribe()
	fast := bus.Subscribe()

	received := make(chan int, 3)
	go func() {
		for v := range fast.Channel() {
			received <- v
		}
	}()

	bus.Publish(1)
	bus.Publish(2)
	bus.Publish(3)

	for _, want := range []int{1, 2, 3} {
		select {
		case v := <-received:
			assert.Equal(t, want, v)
		case <-time.After(time.Second):
			require.FailNow(t, "fast subscriber missed an event")
		}
	}

	assert.Equal(t, 1, bus.Len())
	assert.Equal(t, 1, <-slow.Channel())
	_, ok := <-slow.Channel()
	assert.False(t, ok)
}

func TestBus_StalledSubscribersShareTimeout(t *testing.T) {
	timeout := 100 * time.Millisecond
	bus := NewBus[int](zap.NewNop(), 1, timeout)

	var stalled []*Stream[int]
	for i := 0; i < 4; i++ {
		stalled = append(stalled, bus.Subscribe())
	}
	fast := bus.Subscribe()

	bus.Publish(1)
	assert.Equal(t, 1, <-fast.Channel())

	start := time.Now()
	bus.Publish(2)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*timeout)
	assert.Equal(t, 2, <-fast.Channel())
	assert.Equal(t, 1, bus.Len())

	for _, s := range stalled {
		assert.Equal(t, 1, <-s.Channel())
		_, ok := <-s.Channel()
		assert.False(t, ok)
	}
}

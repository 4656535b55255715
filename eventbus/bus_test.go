package eventbus

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishFanOutAllHandlersInvoked(t *testing.T) {
	bus := New(Config{}, nil)

	var calls int32
	const n = 5
	for i := 0; i < n; i++ {
		bus.Subscribe(EventStepCompleted, func(event Event) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}

	bus.Publish(NewEvent(EventStepCompleted, "test", nil, "corr-1"))

	assert.EqualValues(t, n, atomic.LoadInt32(&calls))
}

func TestBus_HandlerErrorDoesNotBlockOthers(t *testing.T) {
	bus := New(Config{}, nil)

	var ran int32
	bus.Subscribe(EventStepFailed, func(event Event) error {
		panic("boom")
	})
	bus.Subscribe(EventStepFailed, func(event Event) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	bus.Publish(NewEvent(EventStepFailed, "test", nil, ""))

	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestBus_SubscribeIdempotent(t *testing.T) {
	bus := New(Config{}, nil)

	var calls int32
	handler := func(event Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	bus.Subscribe(EventPlanReady, handler)
	bus.Subscribe(EventPlanReady, handler)

	bus.Publish(NewEvent(EventPlanReady, "test", nil, ""))

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestBus_UnsubscribeRemovesHandler(t *testing.T) {
	bus := New(Config{}, nil)

	var calls int32
	handler := func(event Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	bus.Subscribe(EventPlanReady, handler)
	bus.Unsubscribe(EventPlanReady, handler)

	bus.Publish(NewEvent(EventPlanReady, "test", nil, ""))

	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestBus_HistoryBoundedRingBuffer(t *testing.T) {
	bus := New(Config{HistorySize: 3}, nil)

	for i := 0; i < 5; i++ {
		bus.Publish(NewEvent(EventStepStarted, "test", i, ""))
	}

	history := bus.GetHistory(EventStepStarted, "", 100)
	require.Len(t, history, 3)
	assert.Equal(t, 2, history[0].Data)
	assert.Equal(t, 4, history[2].Data)
}

func TestBus_GetHistoryFiltersByCorrelationID(t *testing.T) {
	bus := New(Config{}, nil)

	bus.Publish(NewEvent(EventPlanReady, "test", nil, "corr-a"))
	bus.Publish(NewEvent(EventPlanReady, "test", nil, "corr-b"))

	history := bus.GetHistory("", "corr-a", 10)
	require.Len(t, history, 1)
	assert.Equal(t, "corr-a", history[0].CorrelationID)
}

func TestBus_PublishOrderPreservedForSequentialCaller(t *testing.T) {
	bus := New(Config{}, nil)

	var order []int
	bus.Subscribe(EventStepStarted, func(event Event) error {
		order = append(order, event.Data.(int))
		return nil
	})

	for i := 0; i < 10; i++ {
		bus.Publish(NewEvent(EventStepStarted, "test", i, ""))
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 10; i++ {
		assert.Equal(t, i, order[i])
	}
}

package eventbus

import (
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"
)

const defaultHistorySize = 1000

// Bus is a typed pub/sub fabric. The zero value is not usable; construct
// with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	history     []Event
	historyCap  int
	historyPos  int
	historyLen  int
	logger      *zap.Logger
}

// Config tunes a Bus's bounded history.
type Config struct {
	HistorySize int
}

// New creates a Bus with the given history capacity (default 1000 events).
func New(cfg Config, logger *zap.Logger) *Bus {
	cap := cfg.HistorySize
	if cap <= 0 {
		cap = defaultHistorySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subscribers: make(map[EventType][]Handler),
		history:     make([]Event, cap),
		historyCap:  cap,
		logger:      logger.With(zap.String("component", "eventbus")),
	}
}

// handlerID identifies a Handler by its function value (the closure
// object), so two closures built from the same literal are distinct
// handlers while one value subscribed twice is recognised as the same.
func handlerID(h Handler) uintptr {
	return *(*uintptr)(unsafe.Pointer(&h))
}

// Subscribe registers handler for eventType. Re-subscribing the exact same
// function value is idempotent — it will not be registered twice. Handler
// identity is the function value itself: distinct closures (even from one
// literal) and separately evaluated method values are distinct handlers.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	newPtr := handlerID(handler)
	for _, existing := range b.subscribers[eventType] {
		if handlerID(existing) == newPtr {
			return
		}
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Unsubscribe removes handler from eventType's subscriber list.
func (b *Bus) Unsubscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := handlerID(handler)
	handlers := b.subscribers[eventType]
	filtered := handlers[:0]
	for _, h := range handlers {
		if handlerID(h) != target {
			filtered = append(filtered, h)
		}
	}
	b.subscribers[eventType] = filtered
}

// Publish appends event to history and fans out to every handler
// registered for event.Type concurrently. It returns after all handlers
// complete. A handler error is logged and does not stop the others.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	b.appendHistory(event)
	// Snapshot the subscriber slice under lock so concurrent
	// Subscribe/Unsubscribe calls do not affect this in-flight fan-out.
	handlers := make([]Handler, len(b.subscribers[event.Type]))
	copy(handlers, b.subscribers[event.Type])
	b.mu.Unlock()

	if len(handlers) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(handlers))
	for _, h := range handlers {
		h := h
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						zap.String("event_type", string(event.Type)),
						zap.Any("recover", r),
					)
				}
			}()
			if err := h(event); err != nil {
				b.logger.Error("event handler returned error",
					zap.String("event_type", string(event.Type)),
					zap.String("event_id", event.ID),
					zap.Error(err),
				)
			}
		}()
	}
	wg.Wait()
}

func (b *Bus) appendHistory(event Event) {
	b.history[b.historyPos] = event
	b.historyPos = (b.historyPos + 1) % b.historyCap
	if b.historyLen < b.historyCap {
		b.historyLen++
	}
}

// GetHistory returns a filtered view of the ring buffer in arrival order.
// eventType and correlationID filters are optional (zero value matches
// all); limit defaults to 100 when <= 0.
func (b *Bus) GetHistory(eventType EventType, correlationID string, limit int) []Event {
	if limit <= 0 {
		limit = 100
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	ordered := make([]Event, 0, b.historyLen)
	start := b.historyPos - b.historyLen
	for i := 0; i < b.historyLen; i++ {
		idx := ((start+i)%b.historyCap + b.historyCap) % b.historyCap
		ordered = append(ordered, b.history[idx])
	}

	result := make([]Event, 0, limit)
	for _, e := range ordered {
		if eventType != "" && e.Type != eventType {
			continue
		}
		if correlationID != "" && e.CorrelationID != correlationID {
			continue
		}
		result = append(result, e)
		if len(result) >= limit {
			break
		}
	}
	return result
}

// String implements fmt.Stringer for debugging.
func (b *Bus) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fmt.Sprintf("eventbus.Bus{subscribers=%d, history=%d/%d}", len(b.subscribers), b.historyLen, b.historyCap)
}

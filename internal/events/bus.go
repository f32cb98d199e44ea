package events

import (
	"sync"
	"time"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Module    string      `json:"module"`
	Data      interface{} `json:"data"`
}

// Handler processes a single event. Handlers run synchronously on the
// emitter's goroutine and must not block.
type Handler func(event *Event)

// Bus is a minimal synchronous publish/subscribe hub. Subscriptions are
// expected at startup; Emit may be called from any goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler that receives every event.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Emit delivers an event to all matching handlers.
func (b *Bus) Emit(eventType EventType, module string, data interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	typed := b.handlers[eventType]
	all := b.all
	b.mu.RUnlock()

	for _, h := range typed {
		h(event)
	}
	for _, h := range all {
		h(event)
	}
}

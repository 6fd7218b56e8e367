// internal/bus/bus.go
// Description: A small synchronous pub/sub bus decoupling producers (session,
// adapters) from consumers (sinks). One bus is constructed per orchestrator
// run and dies with it, so no state leaks between sequential scrapes.

package bus

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/records"
)

// Topic names used across the pipeline.
const (
	TopicSave  = "save"
	TopicInfo  = "info"
	TopicError = "error"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Type      string
	Source    string
	Payload   interface{}
	Metadata  records.Metadata
	Timestamp time.Time
}

// Handler consumes events. Handlers run synchronously on the emitter's
// goroutine and must not block for long.
type Handler func(Event)

// Bus fans events out to subscribers. Emit delivers to a snapshot of the
// handler list, so a handler may call On/Off without deadlocking or mutating
// the list mid-delivery.
type Bus struct {
	logger *zap.Logger

	mu       sync.Mutex
	nextID   int
	handlers map[string][]subscription
}

type subscription struct {
	id int
	fn Handler
}

// New creates an empty bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{
		logger:   logger.Named("bus"),
		handlers: make(map[string][]subscription),
	}
}

// On registers a handler for a topic and returns an unsubscribe token.
func (b *Bus) On(topic string, fn Handler) (id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[topic] = append(b.handlers[topic], subscription{id: b.nextID, fn: fn})
	return b.nextID
}

// Off removes a previously registered handler.
func (b *Bus) Off(topic string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[topic]
	for i, s := range subs {
		if s.id == id {
			b.handlers[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit delivers the event to every handler registered for its type, in
// registration order, within a single synchronous pass. A panicking handler
// is contained and logged; the remaining handlers still run.
func (b *Bus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	subs := make([]subscription, len(b.handlers[ev.Type]))
	copy(subs, b.handlers[ev.Type])
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("topic", ev.Type),
				zap.String("source", ev.Source),
				zap.Any("panic", r))
		}
	}()
	s.fn(ev)
}

// Save publishes a result for sinks to persist.
func (b *Bus) Save(source string, payload interface{}, meta records.Metadata) {
	b.Emit(Event{Type: TopicSave, Source: source, Payload: payload, Metadata: meta})
}

// Info publishes a human-readable progress message.
func (b *Bus) Info(source, message string, meta records.Metadata) {
	b.Emit(Event{Type: TopicInfo, Source: source, Payload: message, Metadata: meta})
}

// Error publishes a non-fatal failure notice.
func (b *Bus) Error(source, message string, meta records.Metadata) {
	b.Emit(Event{Type: TopicError, Source: source, Payload: message, Metadata: meta})
}

package staged

import "sync"

// EventType identifies a UI event delivered to a Target's subscribers.
type EventType int

const (
	EventChange EventType = iota + 1
	EventDragEnter
	EventDragOver
	EventDragLeave
	EventDrop
)

var eventTypeNames = map[EventType]string{
	EventChange:    "change",
	EventDragEnter: "dragenter",
	EventDragOver:  "dragover",
	EventDragLeave: "dragleave",
	EventDrop:      "drop",
}

// String returns the DOM event name.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseEventType maps a DOM event name to its EventType.
func ParseEventType(name string) (EventType, bool) {
	for t, n := range eventTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// Event is a UI event with the files it carries, if any.
type Event struct {
	Type  EventType
	Files []*File

	defaultPrevented   bool
	propagationStopped bool
}

// PreventDefault suppresses the browser's default handling.
func (e *Event) PreventDefault() { e.defaultPrevented = true }

// StopPropagation stops delivery to ancestor elements.
func (e *Event) StopPropagation() { e.propagationStopped = true }

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// PropagationStopped reports whether StopPropagation was called.
func (e *Event) PropagationStopped() bool { return e.propagationStopped }

// Handler handles one event.
type Handler func(e *Event)

// Subscription is a registered handler.
type Subscription interface {
	// Unsubscribe removes the handler. Calling it twice is a no-op.
	Unsubscribe()
}

// Target is an element that delivers events to subscribers.
type Target interface {
	Subscribe(t EventType, h Handler) Subscription
}

// Emitter is an in-process Target. Handlers run synchronously on the
// goroutine that calls Emit, in subscription order.
type Emitter struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[EventType][]emitterEntry
}

type emitterEntry struct {
	id uint64
	h  Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]emitterEntry)}
}

// Subscribe registers h for events of type t.
func (em *Emitter) Subscribe(t EventType, h Handler) Subscription {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.nextID++
	id := em.nextID
	em.handlers[t] = append(em.handlers[t], emitterEntry{id: id, h: h})
	return &emitterSub{em: em, t: t, id: id}
}

// Emit delivers e to the handlers subscribed to e.Type.
func (em *Emitter) Emit(e *Event) {
	em.mu.Lock()
	entries := append([]emitterEntry(nil), em.handlers[e.Type]...)
	em.mu.Unlock()

	for _, entry := range entries {
		entry.h(e)
	}
}

// Len returns the number of handlers subscribed to t.
func (em *Emitter) Len(t EventType) int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return len(em.handlers[t])
}

func (em *Emitter) remove(t EventType, id uint64) {
	em.mu.Lock()
	defer em.mu.Unlock()
	entries := em.handlers[t]
	for i, entry := range entries {
		if entry.id == id {
			em.handlers[t] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

type emitterSub struct {
	em   *Emitter
	t    EventType
	id   uint64
	once sync.Once
}

func (s *emitterSub) Unsubscribe() {
	s.once.Do(func() { s.em.remove(s.t, s.id) })
}

package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Wizard and checkout event types.
const (
	TypeSessionStarted   = "session.started"
	TypeDateSelected     = "wizard.date_selected"
	TypeSlotSelected     = "wizard.slot_selected"
	TypeDetailsSubmitted = "wizard.details_submitted"
	TypeSlotConflict     = "booking.slot_conflict"
	TypePaymentFailed    = "booking.payment_failed"
	TypeBookingCompleted = "booking.completed"
	TypeSessionAbandoned = "session.abandoned"
)

// Event represents a lightweight domain event.
type Event struct {
	Type       string
	SessionID  string
	ProviderID string
	Payload    []byte
	CreatedAt  time.Time
}

// Handler reacts to an event.
type Handler func(event Event) error

// ErrorHandler is told about handler failures.
type ErrorHandler func(event Event, err error)

// Bus provides in-process pub/sub for events.
type Bus struct {
	subscribers map[string][]Handler
	wildcard    []Handler
	onError     ErrorHandler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus(onError ErrorHandler) *Bus {
	return &Bus{subscribers: make(map[string][]Handler), onError: onError}
}

// Subscribe registers a handler for a given event type. "*" receives every event.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if eventType == "*" {
		b.wildcard = append(b.wildcard, handler)
		return
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	// Handlers run synchronously; caller decides concurrency model.
	for _, handler := range handlers {
		if err := handler(event); err != nil && b.onError != nil {
			b.onError(event, err)
		}
	}
}

// PublishJSON marshals payload into the event before publishing.
func (b *Bus) PublishJSON(eventType, sessionID, providerID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Publish(Event{Type: eventType, SessionID: sessionID, ProviderID: providerID, Payload: data})
	return nil
}

package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventHoldCreated      = "hold_created"
	EventHoldConflict     = "hold_conflict"
	EventHoldExpired      = "hold_expired"
	EventHoldReleased     = "hold_released"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCanceled  = "booking_canceled"
	EventPaymentConfirmed = "payment_confirmed"
	EventPaymentFailed    = "payment_failed"
	EventSessionExpired   = "session_expired"
)

// HoldEventPayload describes a hold lifecycle change for event consumers.
type HoldEventPayload struct {
	SessionID   string    `json:"session_id"`
	HoldID      string    `json:"hold_id,omitempty"`
	CourtID     string    `json:"court_id"`
	Start       time.Time `json:"start,omitempty"`
	DurationMin int       `json:"duration_min,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// BookingEventPayload is the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	SessionID string    `json:"session_id"`
	BookingID string    `json:"booking_id"`
	CourtID   string    `json:"court_id"`
	Start     time.Time `json:"start"`
	Price     int64     `json:"price"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
}

// PaymentEventPayload describes a payment stage transition.
type PaymentEventPayload struct {
	SessionID string `json:"session_id"`
	PaymentID string `json:"payment_id"`
	BookingID string `json:"booking_id,omitempty"`
	Stage     string `json:"stage"`
	Reason    string `json:"reason,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

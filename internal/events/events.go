package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventDepartureCreated       = "departure_created"
	EventDepartureUpdated       = "departure_updated"
	EventDepartureStatusChanged = "departure_status_changed"
	EventHoldCreated            = "hold_created"
	EventHoldExtended           = "hold_extended"
	EventHoldReleased           = "hold_released"
	EventHoldExpired            = "hold_expired"
	EventBlockCreated           = "block_created"
	EventBlockRemoved           = "block_removed"
	EventBookingInitiated       = "booking_initiated"
	EventBookingConfirmed       = "booking_confirmed"
	EventBookingCancelled       = "booking_cancelled"
)

// AllTypes lists every event type the engine publishes.
var AllTypes = []string{
	EventDepartureCreated,
	EventDepartureUpdated,
	EventDepartureStatusChanged,
	EventHoldCreated,
	EventHoldExtended,
	EventHoldReleased,
	EventHoldExpired,
	EventBlockCreated,
	EventBlockRemoved,
	EventBookingInitiated,
	EventBookingConfirmed,
	EventBookingCancelled,
}

type DeparturePayload struct {
	DepartureID    string    `json:"departure_id"`
	ResourceID     string    `json:"resource_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	TotalCapacity  int       `json:"total_capacity"`
	StartsAt       time.Time `json:"starts_at"`
	ChangedBy      string    `json:"changed_by,omitempty"`
}

type HoldPayload struct {
	HoldID      string    `json:"hold_id"`
	DepartureID string    `json:"departure_id"`
	SeatCount   int       `json:"seat_count"`
	HoldType    string    `json:"hold_type"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expires_at"`
	ChangedBy   string    `json:"changed_by,omitempty"`
}

type BlockPayload struct {
	BlockID     string `json:"block_id"`
	DepartureID string `json:"departure_id"`
	SeatCount   int    `json:"seat_count"`
	BlockType   string `json:"block_type"`
	Reason      string `json:"reason,omitempty"`
	ChangedBy   string `json:"changed_by,omitempty"`
}

// BookingPayload is what notification consumers see on confirm and cancel.
type BookingPayload struct {
	BookingID         string `json:"booking_id"`
	DepartureID       string `json:"departure_id"`
	HoldID            string `json:"hold_id,omitempty"`
	SeatCount         int    `json:"seat_count"`
	Status            string `json:"status"`
	CustomerReference string `json:"customer_reference,omitempty"`
	CustomerContact   string `json:"customer_contact,omitempty"`
	Reason            string `json:"reason,omitempty"`
	ChangedBy         string `json:"changed_by,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
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

// SubscribeAll registers handler for every type in AllTypes.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range AllTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
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

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now().UTC()}, nil
}

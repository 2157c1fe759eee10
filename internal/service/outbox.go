package service

import (
	"seatwarden/internal/domain"

	"github.com/rs/zerolog"
)

type outboxEvent struct {
	eventType string
	payload   interface{}
}

// outbox collects events and metric updates produced inside a transaction.
// They are released only after commit; reset discards a failed attempt.
type outbox struct {
	events    []outboxEvent
	callbacks []func()
}

func (o *outbox) reset() {
	o.events = o.events[:0]
	o.callbacks = o.callbacks[:0]
}

func (o *outbox) add(eventType string, payload interface{}) {
	o.events = append(o.events, outboxEvent{eventType: eventType, payload: payload})
}

func (o *outbox) onCommit(fn func()) {
	o.callbacks = append(o.callbacks, fn)
}

func (o *outbox) flush(pub domain.EventPublisher, logger *zerolog.Logger) {
	for _, fn := range o.callbacks {
		fn()
	}
	if pub == nil {
		return
	}
	for _, e := range o.events {
		if err := pub.PublishJSON(e.eventType, e.payload); err != nil {
			logger.Error().Err(err).Str("event_type", e.eventType).Msg("publish event error")
		}
	}
}

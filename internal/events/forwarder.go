package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"seatwarden/internal/domain"

	"github.com/rs/zerolog"
)

const defaultForwarderBuffer = 256

// Forwarder copies bus events into a notification queue without blocking publishers.
// Events that do not fit in the buffer are dropped and counted.
type Forwarder struct {
	queue   domain.NotificationQueue
	logger  *zerolog.Logger
	timeout time.Duration

	ch      chan []byte
	wg      sync.WaitGroup
	dropped atomic.Int64
	sent    atomic.Int64
}

func NewForwarder(queue domain.NotificationQueue, buffer int, logger *zerolog.Logger) *Forwarder {
	if buffer <= 0 {
		buffer = defaultForwarderBuffer
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Forwarder{
		queue:   queue,
		logger:  logger,
		timeout: 2 * time.Second,
		ch:      make(chan []byte, buffer),
	}
}

// Attach subscribes the forwarder to every engine event on bus.
func (f *Forwarder) Attach(bus *EventBus) {
	bus.SubscribeAll(f.Handle)
}

// Handle is an EventHandler. It never blocks.
func (f *Forwarder) Handle(event *Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case f.ch <- raw:
	default:
		f.dropped.Add(1)
		f.logger.Warn().Str("event_type", event.Type).Str("event_id", event.ID).Msg("notification buffer full, event dropped")
	}
	return nil
}

// Start drains the buffer until ctx is cancelled, then flushes what is left.
func (f *Forwarder) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-ctx.Done():
				f.flush()
				return
			case raw := <-f.ch:
				f.push(context.Background(), raw)
			}
		}
	}()
}

// Wait blocks until the drain goroutine has exited.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}

func (f *Forwarder) flush() {
	for {
		select {
		case raw := <-f.ch:
			f.push(context.Background(), raw)
		default:
			return
		}
	}
}

func (f *Forwarder) push(ctx context.Context, raw []byte) {
	pushCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	if err := f.queue.Push(pushCtx, raw); err != nil {
		f.logger.Error().Err(err).Msg("failed to enqueue notification")
		return
	}
	f.sent.Add(1)
}

// Stats returns sent and dropped counts.
func (f *Forwarder) Stats() (sent, dropped int64) {
	return f.sent.Load(), f.dropped.Load()
}

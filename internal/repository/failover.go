package repository

import (
	"context"
	"sync/atomic"
	"time"

	"seatwarden/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverNotificationQueue writes to primary until it fails, then to fallback.
// The primary is retried once per recoveryInterval.
type FailoverNotificationQueue struct {
	primary   domain.NotificationQueue
	fallback  domain.NotificationQueue
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

var _ domain.NotificationQueue = (*FailoverNotificationQueue)(nil)

func NewFailoverNotificationQueue(primary, fallback domain.NotificationQueue, logger *zerolog.Logger) *FailoverNotificationQueue {
	return &FailoverNotificationQueue{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverNotificationQueue) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary notification queue failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

// usePrimary reports whether the primary should be tried for this call.
func (r *FailoverNotificationQueue) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	return r.now().Sub(last) > recoveryInterval
}

func (r *FailoverNotificationQueue) Push(ctx context.Context, payload []byte) error {
	if r.usePrimary() {
		err := r.primary.Push(ctx, payload)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("primary notification queue recovered")
			}
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Push(ctx, payload)
}

// Pop drains the fallback first so entries buffered during an outage are not stranded.
func (r *FailoverNotificationQueue) Pop(ctx context.Context) ([]byte, error) {
	if payload, err := r.fallback.Pop(ctx); err != nil || payload != nil {
		return payload, err
	}
	if !r.usePrimary() {
		return nil, nil
	}
	payload, err := r.primary.Pop(ctx)
	if err != nil {
		r.markDown(err)
		return nil, nil
	}
	return payload, nil
}

func (r *FailoverNotificationQueue) Len(ctx context.Context) (int64, error) {
	total, err := r.fallback.Len(ctx)
	if err != nil {
		return 0, err
	}
	if !r.usePrimary() {
		return total, nil
	}
	n, err := r.primary.Len(ctx)
	if err != nil {
		r.markDown(err)
		return total, nil
	}
	return total + n, nil
}

// Degraded reports whether writes currently go to the fallback.
func (r *FailoverNotificationQueue) Degraded() bool {
	return r.isDown.Load()
}

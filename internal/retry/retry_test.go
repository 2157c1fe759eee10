package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

func isConflict(err error) bool { return errors.Is(err, errConflict) }

func TestNextDelay(t *testing.T) {
	p := Policy{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, BackoffFactor: 2}

	assert.Equal(t, 10*time.Millisecond, p.NextDelay(0))
	assert.Equal(t, 10*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 20*time.Millisecond, p.NextDelay(2))
	assert.Equal(t, 40*time.Millisecond, p.NextDelay(3))
	assert.Equal(t, 50*time.Millisecond, p.NextDelay(4))

	assert.Equal(t, time.Millisecond, Policy{}.NextDelay(1))
}

func TestDo(t *testing.T) {
	p := Policy{MaxRetries: 2, InitialDelay: time.Millisecond}
	ctx := context.Background()

	t.Run("SucceedsAfterConflicts", func(t *testing.T) {
		calls := 0
		retries := 0
		err := Do(ctx, p, isConflict, func(int, error) { retries++ }, func(context.Context) error {
			calls++
			if calls < 3 {
				return errConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
	})

	t.Run("ExhaustsRetries", func(t *testing.T) {
		calls := 0
		err := Do(ctx, p, isConflict, nil, func(context.Context) error {
			calls++
			return errConflict
		})
		assert.ErrorIs(t, err, errConflict)
		assert.Equal(t, 3, calls)
	})

	t.Run("NonRetryableStopsImmediately", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := Do(ctx, p, isConflict, nil, func(context.Context) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("ContextCancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := Do(cctx, Policy{MaxRetries: 5, InitialDelay: time.Second}, isConflict, nil, func(context.Context) error {
			return errConflict
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

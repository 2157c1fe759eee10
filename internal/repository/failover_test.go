package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Push(ctx context.Context, payload []byte) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func (m *mockQueue) Pop(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockQueue) Len(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestFailoverNotificationQueue(t *testing.T) {
	primary := new(mockQueue)
	fallback := NewMemoryNotificationQueue(0)
	logger := zerolog.New(io.Discard)
	q := NewFailoverNotificationQueue(primary, fallback, &logger)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Push", ctx, []byte("a")).Return(nil).Once()
		require.NoError(t, q.Push(ctx, []byte("a")))
		assert.False(t, q.Degraded())
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Push", ctx, []byte("b")).Return(errors.New("connection refused")).Once()
		require.NoError(t, q.Push(ctx, []byte("b")))
		assert.True(t, q.Degraded())

		n, _ := fallback.Len(ctx)
		assert.Equal(t, int64(1), n)
		primary.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWithinRecoveryWindow", func(t *testing.T) {
		require.NoError(t, q.Push(ctx, []byte("c")))
		n, err := q.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		primary.AssertExpectations(t)
	})

	t.Run("PopDrainsFallbackFirst", func(t *testing.T) {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, "b", string(got))
		got, err = q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, "c", string(got))

		// still degraded, primary not consulted
		got, err = q.Pop(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		primary.On("Push", ctx, []byte("d")).Return(nil).Once()
		require.NoError(t, q.Push(ctx, []byte("d")))
		assert.False(t, q.Degraded())

		primary.On("Pop", ctx).Return([]byte("d"), nil).Once()
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, "d", string(got))
		primary.AssertExpectations(t)
	})

	t.Run("LenErrorMarksDown", func(t *testing.T) {
		primary.On("Len", ctx).Return(int64(0), errors.New("timeout")).Once()
		n, err := q.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
		assert.True(t, q.Degraded())
	})
}

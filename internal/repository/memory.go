package repository

import (
	"context"
	"sync"
)

// MemoryNotificationQueue is the in-process fallback queue. When full, the oldest
// payload is discarded.
type MemoryNotificationQueue struct {
	mu     sync.Mutex
	items  [][]byte
	maxLen int
}

func NewMemoryNotificationQueue(maxLen int) *MemoryNotificationQueue {
	return &MemoryNotificationQueue{maxLen: maxLen}
}

func (q *MemoryNotificationQueue) Push(_ context.Context, payload []byte) error {
	cp := append([]byte(nil), payload...)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, cp)
	if q.maxLen > 0 && len(q.items) > q.maxLen {
		q.items = q.items[len(q.items)-q.maxLen:]
	}
	return nil
}

func (q *MemoryNotificationQueue) Pop(_ context.Context) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return head, nil
}

func (q *MemoryNotificationQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"seatwarden/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisNotificationQueue is a FIFO list: producers LPUSH, consumers RPOP.
type RedisNotificationQueue struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// NewRedisNotificationQueue stores payloads under key. maxLen <= 0 keeps the list unbounded.
func NewRedisNotificationQueue(client *redis.Client, key string, maxLen int64) *RedisNotificationQueue {
	return &RedisNotificationQueue{
		client: client,
		key:    key,
		maxLen: maxLen,
	}
}

func (q *RedisNotificationQueue) Push(ctx context.Context, payload []byte) error {
	if q.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if q.maxLen <= 0 {
		if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
			return fmt.Errorf("push notification: %w", err)
		}
		return nil
	}

	// newest entries sit at the head, so trimming keeps the most recent maxLen
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.key, payload)
	pipe.LTrim(ctx, q.key, 0, q.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

// Pop returns the oldest payload, or nil when the queue is empty.
func (q *RedisNotificationQueue) Pop(ctx context.Context) ([]byte, error) {
	if q.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := q.client.RPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop notification: %w", err)
	}
	return val, nil
}

func (q *RedisNotificationQueue) Len(ctx context.Context) (int64, error) {
	if q.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("notification queue length: %w", err)
	}
	return n, nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invora/internal/clock"
)

const (
	readyKey   = "invora:delivery:ready"
	delayedKey = "invora:delivery:delayed"
	deadKey    = "invora:delivery:dead"

	// promoteBatch bounds how many delayed tasks one Dequeue promotes.
	promoteBatch = 100
)

// RedisQueue backs the delivery queue with a ready list and a delayed
// zset scored by the ready-at unix time. Multiple worker processes can
// share it; RPop hands each task to exactly one worker.
type RedisQueue struct {
	client *redis.Client
	clock  clock.Clock
}

func NewRedisQueue(client *redis.Client, c clock.Clock) *RedisQueue {
	return &RedisQueue{client: client, clock: c}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, readyKey, payload).Err()
}

func (q *RedisQueue) EnqueueAfter(ctx context.Context, task Task, delay time.Duration) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	readyAt := q.clock.Now().Add(delay)
	return q.client.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: payload,
	}).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}

	payload, err := q.client.RPop(ctx, readyKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("malformed delivery task: %w", err)
	}
	return &task, nil
}

// promoteDue moves delayed tasks whose time has come onto the ready
// list. Promotion and removal are not atomic across workers; a rare
// double-promotion only causes a redundant send attempt on an invoice
// that is already SENT, which MarkSent ignores.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := q.clock.Now().Unix()
	payloads, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, payload := range payloads {
		removed, err := q.client.ZRem(ctx, delayedKey, payload).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			// Another worker promoted it first.
			continue
		}
		if err := q.client.LPush(ctx, readyKey, payload).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *RedisQueue) DeadLetter(ctx context.Context, task Task, reason string) error {
	entry := struct {
		Task   Task   `json:"task"`
		Reason string `json:"reason"`
	}{Task: task, Reason: reason}

	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, deadKey, payload).Err()
}

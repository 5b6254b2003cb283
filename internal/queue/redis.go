package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devcapsules/codecapsules-sub003/internal/domain"
)

const (
	readyKey = "capsule:jobs"       // list: ready-to-run payloads
	retryKey = "capsule:jobs:retry" // zset: score=available_at_unix, member=payload
)

// RedisQueue stores ready jobs in a list and backoff-delayed retries in a
// sorted set keyed by the time they become runnable again.
type RedisQueue struct {
	client  *redis.Client
	popWait time.Duration
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, popWait: 2 * time.Second}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job domain.Job) error {
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, readyKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Envelope, error) {
	res, err := q.client.BRPop(ctx, q.popWait, readyKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected brpop reply of %d elements", len(res))
	}

	var job domain.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		// A corrupt payload would loop forever if requeued; drop it
		// with an inspectable trace key instead.
		q.client.LPush(ctx, "capsule:jobs:invalid", res[1])
		return nil, fmt.Errorf("unmarshal job payload: %w", err)
	}
	return &redisEnvelope{queue: q, job: job}, nil
}

func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	now := time.Now().Unix()
	due, err := q.client.ZRangeByScore(ctx, retryKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: 100,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("fetch due retries: %w", err)
	}

	promoted := 0
	for _, payload := range due {
		// Remove first so two promoters never double-deliver.
		removed, err := q.client.ZRem(ctx, retryKey, payload).Result()
		if err != nil {
			return promoted, fmt.Errorf("remove due retry: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, readyKey, payload).Err(); err != nil {
			return promoted, fmt.Errorf("promote retry: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	ready, err := q.client.LLen(ctx, readyKey).Result()
	if err != nil {
		return 0, err
	}
	scheduled, err := q.client.ZCard(ctx, retryKey).Result()
	if err != nil {
		return 0, err
	}
	return ready + scheduled, nil
}

type redisEnvelope struct {
	queue *RedisQueue
	job   domain.Job
}

func (e *redisEnvelope) Job() domain.Job { return e.job }

// Ack is a no-op: BRPOP already removed the payload. Redelivery after a
// worker crash between pop and ack is accepted (at-least-once).
func (e *redisEnvelope) Ack(context.Context) error { return nil }

func (e *redisEnvelope) Retry(ctx context.Context, delay time.Duration) error {
	next := e.job
	next.Attempt++
	return e.queue.schedule(ctx, next, delay)
}

func (e *redisEnvelope) Release(ctx context.Context, delay time.Duration) error {
	return e.queue.schedule(ctx, e.job, delay)
}

func (q *RedisQueue) schedule(ctx context.Context, job domain.Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal retry payload: %w", err)
	}
	availableAt := time.Now().Add(delay).Unix()
	if err := q.client.ZAdd(ctx, retryKey, redis.Z{
		Score:  float64(availableAt),
		Member: payload,
	}).Err(); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

var _ Queue = (*RedisQueue)(nil)

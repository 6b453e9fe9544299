package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"complaint-pipeline/internal/config"
	"complaint-pipeline/internal/fault"
)

// RedisQueue coordinates the ready, in-flight, and delayed job sets in Redis.
// Only job IDs travel through Redis; job payload and state live in Postgres.
//
// Delivery is at-least-once: a dequeued ID sits in the in-flight ZSET scored
// by its visibility deadline, and RequeueExpired reclaims IDs whose deadline
// passed without an Ack.
type RedisQueue struct {
	client        *redis.Client
	readyKey      string
	inflightKey   string
	delayedKey    string
	visibilityTTL time.Duration
	dlqKey        string
}

// New builds a queue client from config.
func New(cfg config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewWithClient(client, cfg)
}

// NewWithClient wraps an existing Redis client, mainly for tests.
func NewWithClient(client *redis.Client, cfg config.Config) *RedisQueue {
	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 30 * time.Second
	}
	dlq := cfg.DLQName
	if dlq == "" {
		dlq = "complaints:dlq"
	}
	return &RedisQueue{
		client:        client,
		readyKey:      "complaints:ready",
		inflightKey:   "complaints:inflight",
		delayedKey:    "complaints:delayed",
		visibilityTTL: visibility,
		dlqKey:        dlq,
	}
}

// Enqueue appends a job ID to the ready queue.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.RPush(ctx, q.readyKey, jobID).Err(); err != nil {
		return fmt.Errorf("%w: enqueue: %v", fault.ErrQueueUnavailable, err)
	}
	return nil
}

// Dequeue pops the oldest ready job ID and leases it with a visibility
// deadline. Returns "" when the queue is empty.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	deadline := time.Now().Add(q.visibilityTTL).UnixMilli()
	res, err := dequeueScript.Run(ctx, q.client, []string{q.readyKey, q.inflightKey}, deadline).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: dequeue: %v", fault.ErrQueueUnavailable, err)
	}
	jobID, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	return jobID, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight job.
func (q *RedisQueue) ExtendLease(ctx context.Context, jobID string, extension time.Duration) error {
	err := q.client.ZAdd(ctx, q.inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: jobID,
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: extend lease: %v", fault.ErrQueueUnavailable, err)
	}
	return nil
}

// Ack removes a job from in-flight tracking after terminal processing.
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	if err := q.client.ZRem(ctx, q.inflightKey, jobID).Err(); err != nil {
		return fmt.Errorf("%w: ack: %v", fault.ErrQueueUnavailable, err)
	}
	return nil
}

// Nack releases a job's lease and schedules redelivery after the given delay.
// The caller decides whether the attempt budget allows another delivery.
func (q *RedisQueue) Nack(ctx context.Context, jobID string, delay time.Duration) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, jobID)
	if delay <= 0 {
		pipe.RPush(ctx, q.readyKey, jobID)
	} else {
		pipe.ZAdd(ctx, q.delayedKey, redis.Z{
			Score:  float64(time.Now().Add(delay).UnixMilli()),
			Member: jobID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: nack: %v", fault.ErrQueueUnavailable, err)
	}
	return nil
}

// PromoteDelayed moves due delayed jobs back onto the ready queue.
// It returns how many were promoted.
func (q *RedisQueue) PromoteDelayed(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: promote delayed: %v", fault.ErrQueueUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.delayedKey, id)
		pipe.RPush(ctx, q.readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: promote delayed: %v", fault.ErrQueueUnavailable, err)
	}
	return len(ids), nil
}

// RequeueExpired reclaims leases whose visibility deadline passed, making the
// jobs deliverable again. Handles worker crashes without losing work.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: requeue expired: %v", fault.ErrQueueUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.inflightKey, id)
		pipe.RPush(ctx, q.readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: requeue expired: %v", fault.ErrQueueUnavailable, err)
	}
	return ids, nil
}

// DLQPush appends to the dead-letter queue for operational inspection.
func (q *RedisQueue) DLQPush(ctx context.Context, jobID string) error {
	if err := q.client.RPush(ctx, q.dlqKey, jobID).Err(); err != nil {
		return fmt.Errorf("%w: dlq push: %v", fault.ErrQueueUnavailable, err)
	}
	return nil
}

// DLQPeek reads the latest dead-lettered job IDs.
func (q *RedisQueue) DLQPeek(ctx context.Context, count int64) ([]string, error) {
	ids, err := q.client.LRange(ctx, q.dlqKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: dlq peek: %v", fault.ErrQueueUnavailable, err)
	}
	return ids, nil
}

// ReadyDepth returns the length of the ready queue.
func (q *RedisQueue) ReadyDepth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.readyKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: ready depth: %v", fault.ErrQueueUnavailable, err)
	}
	return n, nil
}

// The LPOP and ZADD must be atomic so a crash between them cannot strand a
// job outside both sets.
var dequeueScript = redis.NewScript(`
local job = redis.call('LPOP', KEYS[1])
if job then
  redis.call('ZADD', KEYS[2], ARGV[1], job)
  return job
end
return nil
`)

package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// claimScript returns due job bodies and pushes their score out by the
// visibility window, so a worker that dies mid-job lets the job reappear.
var claimScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[3])
local out = {}
for _, id in ipairs(ids) do
	local body = redis.call("HGET", KEYS[2], id)
	if body then
		redis.call("ZADD", KEYS[1], ARGV[2], id)
		table.insert(out, body)
	else
		redis.call("ZREM", KEYS[1], id)
	end
end
return out
`)

// RedisQueue is a sorted-set delay queue. Members are job ids scored by
// due time in milliseconds; bodies live in a hash.
type RedisQueue struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisQueue creates a queue whose keys start with prefix
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	return &RedisQueue{client: client, prefix: prefix, now: time.Now}
}

func (q *RedisQueue) delayedKey() string { return q.prefix + ":delayed" }
func (q *RedisQueue) jobsKey() string    { return q.prefix + ":jobs" }
func (q *RedisQueue) deadKey() string    { return q.prefix + ":dead" }

// Schedule enqueues a new job due after delay
func (q *RedisQueue) Schedule(ctx context.Context, kind Kind, roomID uuid.UUID, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	job := Job{
		ID:     uuid.NewString(),
		Kind:   kind,
		RoomID: roomID,
		DueAt:  q.now().Add(delay).UTC(),
	}
	return q.put(ctx, job)
}

func (q *RedisQueue) put(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobsKey(), job.ID, body)
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(job.DueAt.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue %s job for room %s: %w", job.Kind, job.RoomID, err)
	}
	return nil
}

// Claim leases up to max due jobs for visibility
func (q *RedisQueue) Claim(ctx context.Context, max int, visibility time.Duration) ([]Job, error) {
	now := q.now()
	bodies, err := claimScript.Run(ctx, q.client,
		[]string{q.delayedKey(), q.jobsKey()},
		now.UnixMilli(), now.Add(visibility).UnixMilli(), max,
	).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}

	jobs := make([]Job, 0, len(bodies))
	for _, body := range bodies {
		var job Job
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Ack removes a completed job
func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.delayedKey(), job.ID)
		pipe.HDel(ctx, q.jobsKey(), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}
	return nil
}

// Retry makes job due again after delay with its attempt count bumped
func (q *RedisQueue) Retry(ctx context.Context, job Job, delay time.Duration, cause error) error {
	job.Attempts++
	job.DueAt = q.now().Add(delay).UTC()
	if cause != nil {
		job.LastError = cause.Error()
	}
	return q.put(ctx, job)
}

// DeadLetter parks a job that will not be retried
func (q *RedisQueue) DeadLetter(ctx context.Context, job Job, cause error) error {
	if cause != nil {
		job.LastError = cause.Error()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.delayedKey(), job.ID)
		pipe.HDel(ctx, q.jobsKey(), job.ID)
		pipe.RPush(ctx, q.deadKey(), body)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
	}
	return nil
}

// Pending counts scheduled and in-flight jobs
func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return n, nil
}

// DeadLetters returns parked jobs, oldest first
func (q *RedisQueue) DeadLetters(ctx context.Context) ([]Job, error) {
	bodies, err := q.client.LRange(ctx, q.deadKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}

	jobs := make([]Job, 0, len(bodies))
	for _, body := range bodies {
		var job Job
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			return nil, fmt.Errorf("failed to decode dead letter: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

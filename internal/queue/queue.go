// Package queue implements the durable scan-job queue on Redis: a ready
// list, a delayed sorted set for retry backoff, and SETNX idempotency keys
// guarding one in-flight job per (keyword, engine).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mentha-app/mentha-engine/internal/cache"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

var (
	// ErrDuplicateEnqueue means an identical (keyword, engine) job is already
	// in flight. Callers treat it as a silent no-op, not a failure.
	ErrDuplicateEnqueue = errors.New("scan job already in flight")
	// ErrEmpty means no job became ready within the poll window.
	ErrEmpty = errors.New("queue empty")
)

const (
	readyKey   = "scan:jobs:ready"
	delayedKey = "scan:jobs:delayed"
	notifyKey  = "notify:jobs"

	// inFlightTTL bounds how long a crashed worker can block a keyword+engine
	// pair before the dedup key expires on its own.
	inFlightTTL = 2 * time.Hour

	popTimeout = 2 * time.Second
)

// Notification describes a notable visibility change for downstream alerting.
type Notification struct {
	KeywordID    uuid.UUID `json:"keyword_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Engine       string    `json:"engine"`
	ScanResultID uuid.UUID `json:"scan_result_id"`
	PrevType     string    `json:"prev_type"`
	NewType      string    `json:"new_type"`
	PrevVisible  bool      `json:"prev_visible"`
	NewVisible   bool      `json:"new_visible"`
	CreatedAt    time.Time `json:"created_at"`
}

// Queue is the job transport between scheduler and dispatcher.
type Queue interface {
	// Enqueue publishes a job unless its (keyword, engine) pair is in flight.
	Enqueue(ctx context.Context, job *models.ScanJob) error
	// EnqueueDelayed schedules a job to become ready at readyAt. The
	// in-flight key is kept, so this is only valid for retries of a job that
	// already holds it.
	EnqueueDelayed(ctx context.Context, job *models.ScanJob, readyAt time.Time) error
	// Dequeue blocks briefly for the next ready job. Returns ErrEmpty on a
	// quiet queue so workers can observe context cancellation.
	Dequeue(ctx context.Context) (*models.ScanJob, error)
	// Release drops the in-flight key once a job reaches a terminal state.
	Release(ctx context.Context, keywordID uuid.UUID, engine string) error
	Depth(ctx context.Context) (int64, error)
	EnqueueNotification(ctx context.Context, n *Notification) error
}

// RedisQueue implements Queue using go-redis/v9.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a RedisQueue from a Redis URL.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisQueue{client: redis.NewClient(opts)}, nil
}

// NewRedisQueueFromClient wraps an existing client.
func NewRedisQueueFromClient(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *models.ScanJob) error {
	ok, err := q.client.SetNX(ctx, cache.InFlightKey(job.KeywordID, job.Engine), job.ID.String(), inFlightTTL).Result()
	if err != nil {
		return fmt.Errorf("set in-flight key: %w", err)
	}
	if !ok {
		return ErrDuplicateEnqueue
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode scan job: %w", err)
	}

	if err := q.client.LPush(ctx, readyKey, payload).Err(); err != nil {
		// Roll back the dedup key so the pair is not blocked by a job that
		// never made it onto the queue.
		_ = q.client.Del(ctx, cache.InFlightKey(job.KeywordID, job.Engine)).Err()
		return fmt.Errorf("push scan job: %w", err)
	}
	return nil
}

func (q *RedisQueue) EnqueueDelayed(ctx context.Context, job *models.ScanJob, readyAt time.Time) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode scan job: %w", err)
	}
	err = q.client.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule delayed scan job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*models.ScanJob, error) {
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}

	res, err := q.client.BRPop(ctx, popTimeout, readyKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("pop scan job: %w", err)
	}

	// BRPop returns [key, value].
	var job models.ScanJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode scan job: %w", err)
	}
	return &job, nil
}

// promoteDue moves delayed jobs whose ready time has passed onto the ready list.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := float64(time.Now().UnixMilli())
	members, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return fmt.Errorf("read delayed jobs: %w", err)
	}

	for _, m := range members {
		// ZRem-before-push so two workers promoting concurrently cannot
		// duplicate a job.
		removed, err := q.client.ZRem(ctx, delayedKey, m).Result()
		if err != nil {
			return fmt.Errorf("remove delayed job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, readyKey, m).Err(); err != nil {
			return fmt.Errorf("promote delayed job: %w", err)
		}
	}
	return nil
}

func (q *RedisQueue) Release(ctx context.Context, keywordID uuid.UUID, engine string) error {
	return q.client.Del(ctx, cache.InFlightKey(keywordID, engine)).Err()
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	ready, err := q.client.LLen(ctx, readyKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	delayed, err := q.client.ZCard(ctx, delayedKey).Result()
	if err != nil {
		return 0, fmt.Errorf("delayed depth: %w", err)
	}
	return ready + delayed, nil
}

func (q *RedisQueue) EnqueueNotification(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := q.client.LPush(ctx, notifyKey, payload).Err(); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

var _ Queue = (*RedisQueue)(nil)

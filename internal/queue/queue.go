package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"

	"github.com/joblens/job-import-service/internal/models"
)

const queueKeyPrefix = "Import:Queue:"
const processingKeyPrefix = "Import:Processing:"

// ErrEmpty is returned by Dequeue when no work arrived within the wait.
var ErrEmpty = fmt.Errorf("queue: no work available")

// WorkQueue is a durable Redis-backed work queue with at-least-once delivery.
// Items are LPUSHed onto the queue list; consumers BRPOPLPUSH them into a
// processing list and LREM them on acknowledgment, so items held by a crashed
// consumer survive in the processing list until recovered.
type WorkQueue struct {
	db   redis.UniversalClient
	name string
}

// NewWorkQueue creates a work queue on the given Redis client.
func NewWorkQueue(db redis.UniversalClient, name string) *WorkQueue {
	return &WorkQueue{db: db, name: name}
}

func (q *WorkQueue) queueKey() string      { return queueKeyPrefix + q.name }
func (q *WorkQueue) processingKey() string { return processingKeyPrefix + q.name }

// Enqueue submits one work item to the queue.
func (q *WorkQueue) Enqueue(item models.WorkItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal work item: %w", err)
	}
	if err := q.db.LPush(q.queueKey(), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue work item: %w", err)
	}
	return nil
}

// Dequeue blocks up to wait for the next work item, moving it onto the
// processing list. The returned raw payload must be passed back to Ack once
// the item is fully processed. Returns ErrEmpty when the wait elapses.
func (q *WorkQueue) Dequeue(wait time.Duration) (*models.WorkItem, string, error) {
	// BRPOPLPUSH timeouts are whole seconds; a zero timeout blocks forever.
	if wait < time.Second {
		wait = time.Second
	}
	raw, err := q.db.BRPopLPush(q.queueKey(), q.processingKey(), wait).Result()
	if err == redis.Nil {
		return nil, "", ErrEmpty
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to dequeue work item: %w", err)
	}

	var item models.WorkItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		// Undecodable payloads are dropped from the processing list so they
		// cannot be redelivered forever.
		if remErr := q.db.LRem(q.processingKey(), 1, raw).Err(); remErr != nil {
			return nil, "", fmt.Errorf("failed to drop bad work item: %v (unmarshal: %w)", remErr, err)
		}
		return nil, "", fmt.Errorf("failed to unmarshal work item: %w", err)
	}

	return &item, raw, nil
}

// Ack removes a processed item from the processing list.
func (q *WorkQueue) Ack(raw string) error {
	if err := q.db.LRem(q.processingKey(), 1, raw).Err(); err != nil {
		return fmt.Errorf("failed to ack work item: %w", err)
	}
	return nil
}

// RecoverPending moves items left on the processing list by a previous
// process back onto the queue. Called once at worker startup; the items will
// be redelivered, which the idempotent upsert absorbs.
func (q *WorkQueue) RecoverPending() (int, error) {
	recovered := 0
	for {
		err := q.db.RPopLPush(q.processingKey(), q.queueKey()).Err()
		if err == redis.Nil {
			return recovered, nil
		}
		if err != nil {
			return recovered, fmt.Errorf("failed to recover pending items: %w", err)
		}
		recovered++
	}
}

// Size returns the number of items waiting on the queue.
func (q *WorkQueue) Size() (int64, error) {
	n, err := q.db.LLen(q.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

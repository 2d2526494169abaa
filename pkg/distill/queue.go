// Package distill buffers accepted cloud answers for the offline process
// that improves the local model.
package distill

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pario-ai/glimpse/pkg/clock"
	"github.com/pario-ai/glimpse/pkg/models"
)

// DefaultCapacity bounds the queue when no capacity is configured.
const DefaultCapacity = 5000

// Queue is a bounded FIFO that drops its oldest record when full.
// Enqueue never blocks on a consumer. Safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	buf      []models.DistillationRecord
	head     int // index of the oldest record
	n        int
	enqueued int64
	dropped  int64
	clock    clock.Clock
	log      *zap.Logger
}

// NewQueue creates a Queue holding at most capacity records.
func NewQueue(capacity int, c clock.Clock, log *zap.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if c == nil {
		c = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		buf:   make([]models.DistillationRecord, capacity),
		clock: c,
		log:   log.Named("distill"),
	}
}

// Enqueue appends rec, assigning an ID and timestamp when missing. When the
// queue is full the oldest record is dropped and counted.
func (q *Queue) Enqueue(rec models.DistillationRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.EnqueuedAt.IsZero() {
		rec.EnqueuedAt = q.clock.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued++
	if q.n == len(q.buf) {
		dropped := q.buf[q.head]
		q.buf[q.head] = rec
		q.head = (q.head + 1) % len(q.buf)
		q.dropped++
		q.log.Debug("dropped oldest distillation record",
			zap.String("id", dropped.ID), zap.Int64("dropped_total", q.dropped), zap.Error(models.ErrQueueOverflow))
		return
	}
	q.buf[(q.head+q.n)%len(q.buf)] = rec
	q.n++
}

// Drain removes and returns up to max records in FIFO order. A max of zero
// or less drains everything.
func (q *Queue) Drain(max int) []models.DistillationRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max <= 0 || max > q.n {
		max = q.n
	}
	out := make([]models.DistillationRecord, max)
	for i := range max {
		idx := (q.head + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = models.DistillationRecord{}
	}
	q.head = (q.head + max) % len(q.buf)
	q.n -= max
	return out
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Capacity returns the maximum number of queued records.
func (q *Queue) Capacity() int { return len(q.buf) }

// Dropped returns how many records were discarded because the queue was full.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Enqueued returns how many records were ever enqueued.
func (q *Queue) Enqueued() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueued
}

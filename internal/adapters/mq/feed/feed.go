// Package feed carries the store's change records to downstream
// consumers. The in-memory implementation is a bounded channel; delivery
// is at-least-once from the consumer's point of view, so consumers must
// dedupe.
package feed

import (
	"context"
	"sync"

	"github.com/zxkane/contest-checker/internal/domain/model"
	"github.com/zxkane/contest-checker/pkg/metrics"
)

const defaultCapacity = 10_000

// Queue provides non-blocking publish and channel-based consumption.
type Queue interface {
	// Publish appends a change record. Records are dropped with a metric
	// when the buffer is full; the feed is advisory, never load-bearing
	// for arbitration correctness.
	Publish(ctx context.Context, change model.Change)

	// Dequeue returns the consumption channel. It is closed when the
	// queue is closed.
	Dequeue(ctx context.Context) <-chan model.Change

	// Len returns the number of buffered records.
	Len(ctx context.Context) int

	// Close shuts the feed down; no further publishes are accepted.
	Close() error
}

// InMemoryQueue implements Queue over a buffered channel.
type InMemoryQueue struct {
	changes  chan model.Change
	capacity int

	mu     sync.RWMutex
	closed bool
}

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity bounds the queue buffer.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// NewInMemoryQueue creates a bounded in-memory feed.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.changes = make(chan model.Change, q.capacity)
	metrics.UpdateFeedQueueCapacity(q.capacity)
	metrics.UpdateFeedQueueSize(0)
	return q
}

// Publish appends a change record, dropping it when the buffer is full.
func (q *InMemoryQueue) Publish(_ context.Context, change model.Change) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.RecordFeedDropped()
		return
	}
	select {
	case q.changes <- change:
		metrics.RecordFeedEnqueue()
		metrics.UpdateFeedQueueSize(len(q.changes))
	default:
		metrics.RecordFeedDropped()
	}
}

// Dequeue returns the consumption channel.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan model.Change {
	return q.changes
}

// Len returns the number of buffered records.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.changes)
}

// Close shuts the feed down.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.changes)
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Package queue buffers assessment results between the request path and the
// publication workers. Enqueue never blocks; a full queue rejects.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/riskgate/internal/domain/model"
	"github.com/okian/riskgate/pkg/metrics"
)

// defaultQueueCapacity bounds the backlog when no capacity is configured.
const defaultQueueCapacity = 10_000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds p without blocking. It fails with ErrFull or ErrClosed.
	Enqueue(ctx context.Context, p model.Publication) error

	// Dequeue returns a channel receiving publications in FIFO order. The
	// channel closes once the queue is closed and drained, or ctx is done.
	Dequeue(ctx context.Context) <-chan model.Publication

	// Len returns the current number of queued publications.
	Len(ctx context.Context) int

	// Close stops accepting publications. Queued ones stay dequeueable.
	Close() error

	IsClosed() bool
}

type item struct {
	pub        model.Publication
	enqueuedAt time.Time
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan item
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan item, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	q.updateSize()
	return q
}

func (q *InMemoryQueue) updateSize() {
	size := len(q.items)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, p model.Publication) error { //nolint:gocritic // hugeParam: publications are passed by value into the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.items <- item{pub: p, enqueuedAt: time.Now()}:
		metrics.RecordQueueEnqueue()
		q.updateSize()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Publication {
	out := make(chan model.Publication)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case it, ok := <-q.items:
				if !ok {
					return
				}
				select {
				case out <- it.pub:
					metrics.RecordQueueDequeue()
					metrics.RecordQueueProcessingLatency(float64(time.Since(it.enqueuedAt).Microseconds()) / 1000)
					q.updateSize()
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len implements Queue.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.updateSize()
	return len(q.items)
}

// Close implements Queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

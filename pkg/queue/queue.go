// Package queue provides the bounded, blocking FIFO that sits between a
// subscriber's delivery callbacks and its consumer workers.
package queue

import (
	"context"
	"sync"

	"github.com/c360/zoneagent/errors"
)

// ErrClosed is returned by Push and Pull once the queue has been closed.
var ErrClosed = errors.ErrShuttingDown

// Queue is a bounded FIFO. Push blocks while the queue is full and Pull
// blocks while it is empty; the only ways out of a blocked call are a new
// slot or item, context cancellation, or Close.
type Queue[T any] struct {
	items     chan T
	done      chan struct{}
	closeOnce sync.Once

	stats   *Statistics
	metrics *queueMetrics
}

// New creates a queue holding at most capacity items. Capacity below one is
// raised to one. Statistics are always collected; Prometheus metrics are
// enabled with WithMetrics.
func New[T any](capacity int, options ...Option) (*Queue[T], error) {
	if capacity <= 0 {
		capacity = 1
	}
	opts := applyOptions(options...)

	var metrics *queueMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newQueueMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "Queue", "New", "metrics registration")
		}
	}

	return &Queue[T]{
		items:   make(chan T, capacity),
		done:    make(chan struct{}),
		stats:   NewStatistics(),
		metrics: metrics,
	}, nil
}

// Push appends item, waiting for a free slot while the queue is full.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.items <- item:
	default:
		q.stats.Block()
		if q.metrics != nil {
			q.metrics.recordBlock()
		}
		select {
		case q.items <- item:
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return ErrClosed
		}
	}

	// A Close that freed the slot may have won the race with the send; the
	// item would never be pulled.
	select {
	case <-q.done:
		q.discardRemaining()
		return ErrClosed
	default:
	}

	size := len(q.items)
	q.stats.Push()
	q.stats.UpdateSize(int64(size))
	if q.metrics != nil {
		q.metrics.recordPush(size, cap(q.items))
	}
	return nil
}

// Pull removes the oldest item, waiting while the queue is empty.
func (q *Queue[T]) Pull(ctx context.Context) (T, error) {
	var zero T

	select {
	case <-q.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
	}

	select {
	case item := <-q.items:
		if q.Closed() {
			q.stats.Discard(1)
			if q.metrics != nil {
				q.metrics.recordDiscard(1, cap(q.items))
			}
			return zero, ErrClosed
		}
		size := len(q.items)
		q.stats.Pull()
		q.stats.UpdateSize(int64(size))
		if q.metrics != nil {
			q.metrics.recordPull(size, cap(q.items))
		}
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		return zero, ErrClosed
	}
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Capacity returns the fixed capacity
func (q *Queue[T]) Capacity() int {
	return cap(q.items)
}

// Stats returns the queue statistics
func (q *Queue[T]) Stats() *Statistics {
	return q.stats
}

// Closed reports whether Close has been called
func (q *Queue[T]) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Close wakes every blocked Push and Pull with ErrClosed. Items still queued
// are discarded. Close is idempotent.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.discardRemaining()
	})
}

func (q *Queue[T]) discardRemaining() {
	dropped := int64(0)
	for {
		select {
		case <-q.items:
			dropped++
			continue
		default:
		}
		break
	}
	q.stats.Discard(dropped)
	q.stats.UpdateSize(0)
	if q.metrics != nil {
		q.metrics.recordDiscard(dropped, cap(q.items))
	}
}

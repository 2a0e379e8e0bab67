package ingress

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("event queue closed")

// Queue is the single ordered hand-off between transport callbacks and the
// reconciliation loop. Push blocks while the queue is full.
type Queue struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
}

func (q *Queue) Push(ctx context.Context, ev Event) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.events <- ev:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Events() <-chan Event {
	return q.events
}

func (q *Queue) Len() int {
	return len(q.events)
}

// Close makes further pushes fail. Events already queued stay readable.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}

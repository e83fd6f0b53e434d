package queue

import (
	"context"
	"sync"
)

// Queue is an unbounded multi-producer multi-consumer queue with a fixed
// number of priority levels; level 0 is served first. Push never blocks, so
// a consumer may feed the queue it pops from.
type Queue[T any] struct {
	mu     sync.Mutex
	levels [][]T
	size   int
	// ready is signalled on every push; consumers re-check after waking.
	ready chan struct{}
}

func New[T any](levels int) *Queue[T] {
	if levels < 1 {
		levels = 1
	}
	return &Queue[T]{
		levels: make([][]T, levels),
		ready:  make(chan struct{}, 1),
	}
}

// Push appends v to its priority level.
func (q *Queue[T]) Push(level int, v T) {
	q.mu.Lock()
	if level < 0 {
		level = 0
	}
	if level >= len(q.levels) {
		level = len(q.levels) - 1
	}
	q.levels[level] = append(q.levels[level], v)
	q.size++
	q.mu.Unlock()
	q.signal()
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryPop returns the highest priority element without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	for i := range q.levels {
		if len(q.levels[i]) > 0 {
			v := q.levels[i][0]
			q.levels[i][0] = zero
			q.levels[i] = q.levels[i][1:]
			q.size--
			if q.size > 0 {
				q.signal()
			}
			return v, true
		}
	}
	return zero, false
}

// Pop blocks until an element is available or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len is the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Drain removes and returns everything queued, in pop order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, q.size)
	for i := range q.levels {
		out = append(out, q.levels[i]...)
		q.levels[i] = nil
	}
	q.size = 0
	return out
}

package sync

import (
	"container/list"
	"math"
	"sync"

	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
)

// task pairs a unit of work with the channel its caller waits on.
type task struct {
	fn   func() error
	done chan error
}

// RateLimitedQueue runs submitted tasks with a fixed number of workers,
// bounding concurrency against the supplier API. Tasks start in FIFO
// order. Drain rejects everything still waiting without running it, so a
// cancelled batch never issues further supplier requests.
type RateLimitedQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending *list.List
	workers int
	closed  bool
	wg      sync.WaitGroup
}

// NewRateLimitedQueue starts a queue with the given worker count.
func NewRateLimitedQueue(workers int) *RateLimitedQueue {
	if workers < 1 {
		workers = 1
	}

	q := &RateLimitedQueue{
		pending: list.New(),
		workers: workers,
	}
	q.cond = sync.NewCond(&q.mu)

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}

	return q
}

// ForRate sizes a queue from a requests-per-second budget: one worker per
// whole request, rounded up, never below one.
func ForRate(requestsPerSecond float64) *RateLimitedQueue {
	return NewRateLimitedQueue(int(math.Ceil(requestsPerSecond)))
}

func (q *RateLimitedQueue) worker() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		for q.pending.Len() == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.pending.Len() == 0 {
			// Closed and drained.
			q.mu.Unlock()
			return
		}
		front := q.pending.Remove(q.pending.Front()).(*task)
		q.mu.Unlock()

		front.done <- front.fn()
	}
}

// Enqueue submits fn and returns the channel that will receive its
// result. The channel receives exactly one value: fn's error, or
// ErrCancelled if the queue was drained or closed before fn started.
func (q *RateLimitedQueue) Enqueue(fn func() error) <-chan error {
	t := &task{fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		t.done <- models.ErrCancelled
		return t.done
	}
	q.pending.PushBack(t)
	q.mu.Unlock()

	q.cond.Signal()
	return t.done
}

// Drain rejects every task that has not started yet. Tasks already
// running are left to finish. The queue stays usable afterwards.
func (q *RateLimitedQueue) Drain() {
	q.mu.Lock()
	rejected := make([]*task, 0, q.pending.Len())
	for e := q.pending.Front(); e != nil; e = e.Next() {
		rejected = append(rejected, e.Value.(*task))
	}
	q.pending.Init()
	q.mu.Unlock()

	for _, t := range rejected {
		t.done <- models.ErrCancelled
	}
}

// Close drains the queue and stops the workers. Blocks until running
// tasks finish.
func (q *RateLimitedQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	rejected := make([]*task, 0, q.pending.Len())
	for e := q.pending.Front(); e != nil; e = e.Next() {
		rejected = append(rejected, e.Value.(*task))
	}
	q.pending.Init()
	q.mu.Unlock()

	for _, t := range rejected {
		t.done <- models.ErrCancelled
	}

	q.cond.Broadcast()
	q.wg.Wait()
}

// Workers reports the configured concurrency.
func (q *RateLimitedQueue) Workers() int {
	return q.workers
}

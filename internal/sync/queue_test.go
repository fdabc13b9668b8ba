package sync

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsAllTasks(t *testing.T) {
	q := NewRateLimitedQueue(3)
	defer q.Close()

	var count int32
	waits := make([]<-chan error, 0, 20)
	for i := 0; i < 20; i++ {
		waits = append(waits, q.Enqueue(func() error {
			atomic.AddInt32(&count, 1)
			return nil
		}))
	}

	for _, wait := range waits {
		require.NoError(t, <-wait)
	}
	assert.Equal(t, int32(20), atomic.LoadInt32(&count))
}

func TestQueueBoundsConcurrency(t *testing.T) {
	const workers = 2
	q := NewRateLimitedQueue(workers)
	defer q.Close()

	var active, peak int32
	waits := make([]<-chan error, 0, 10)
	for i := 0; i < 10; i++ {
		waits = append(waits, q.Enqueue(func() error {
			now := atomic.AddInt32(&active, 1)
			for {
				seen := atomic.LoadInt32(&peak)
				if now <= seen || atomic.CompareAndSwapInt32(&peak, seen, now) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		}))
	}

	for _, wait := range waits {
		require.NoError(t, <-wait)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(workers))
}

func TestQueuePropagatesTaskError(t *testing.T) {
	q := NewRateLimitedQueue(1)
	defer q.Close()

	boom := errors.New("boom")
	err := <-q.Enqueue(func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestDrainRejectsPendingTasks(t *testing.T) {
	q := NewRateLimitedQueue(1)
	defer q.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := q.Enqueue(func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	var ran int32
	pending := make([]<-chan error, 0, 5)
	for i := 0; i < 5; i++ {
		pending = append(pending, q.Enqueue(func() error {
			atomic.AddInt32(&ran, 1)
			return nil
		}))
	}

	q.Drain()
	close(release)

	require.NoError(t, <-blocker)
	for _, wait := range pending {
		assert.ErrorIs(t, <-wait, models.ErrCancelled)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestQueueUsableAfterDrain(t *testing.T) {
	q := NewRateLimitedQueue(1)
	defer q.Close()

	q.Drain()
	assert.NoError(t, <-q.Enqueue(func() error { return nil }))
}

func TestEnqueueAfterCloseIsRejected(t *testing.T) {
	q := NewRateLimitedQueue(1)
	q.Close()

	assert.ErrorIs(t, <-q.Enqueue(func() error { return nil }), models.ErrCancelled)
}

func TestForRateRoundsUp(t *testing.T) {
	q := ForRate(2.5)
	defer q.Close()
	assert.Equal(t, 3, q.Workers())

	q2 := ForRate(0.2)
	defer q2.Close()
	assert.Equal(t, 1, q2.Workers())
}

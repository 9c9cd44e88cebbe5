// Package handoff implements the blocking FIFO queue that passes accepted
// socket descriptors from the acceptor to the worker pool.
package handoff

import (
	"sync"
	"time"
)

// Queue is a FIFO of socket descriptors with a blocking pop and an explicit
// shutdown signal. Push, WaitAndPop and ShutDown are safe for concurrent use
// from any number of goroutines.
//
// Shutdown is terminal: once ShutDown has been called the queue delivers no
// further descriptors, including ones that were already queued or are pushed
// afterwards. Descriptors are opaque to the queue; closing them stays with
// the caller.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	draining bool
	fds      []int
}

func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends fd to the back of the queue and wakes one waiter.
// It never blocks and never fails. Pushes after ShutDown are accepted
// but the descriptors stay unreachable.
func (q *Queue) Push(fd int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.fds = append(q.fds, fd)

	if q.draining {
		// Unreachable: WaitAndPop checks the draining flag before
		// looking at the queue.
		rejectedTotal.Inc()
		return
	}

	pushedTotal.Inc()
	q.cond.Signal()
}

// WaitAndPop removes and returns the front descriptor. When the queue is
// empty it blocks until a descriptor is pushed or the queue is shut down.
// It returns ok == false only when the queue is shutting down; after that
// it never blocks again.
func (q *Queue) WaitAndPop() (fd int, ok bool) {
	start := time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.draining && len(q.fds) == 0 {
		q.cond.Wait()
	}

	if q.draining {
		return 0, false
	}

	fd = q.fds[0]
	q.fds = q.fds[1:]

	deliveredTotal.Inc()
	waitDuration.Observe(time.Since(start).Seconds())

	return fd, true
}

// ShutDown switches the queue into its terminal state and wakes every
// blocked waiter. It is idempotent.
func (q *Queue) ShutDown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.draining = true
	q.cond.Broadcast()
}

// Len reports the number of queued descriptors.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.fds)
}

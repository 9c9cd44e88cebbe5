package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/ratelimit"

	cfg "github.com/annklr/chromeos-smart-card-connector/config"
)

func testConfig(workers, handlePerSecond int) *cfg.Config {
	config := &cfg.Config{}
	config.Queue.Workers = workers
	config.Queue.HandlePerSecond = handlePerSecond
	return config
}

// testQueue delivers a fixed sequence of descriptors, then reports shutdown.
type testQueue struct {
	mu  sync.Mutex
	fds []int
}

func (q *testQueue) WaitAndPop() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.fds) == 0 {
		return 0, false
	}

	fd := q.fds[0]
	q.fds = q.fds[1:]

	return fd, true
}

func TestDrainUntilShutdown(t *testing.T) {
	q := &testQueue{fds: []int{3, 4, 5}}

	var mu sync.Mutex
	var handled []int

	w := &Worker{
		numWorkers: 1,
		queue:      q,
		limiter:    ratelimit.NewUnlimited(),
		handle: func(ctx context.Context, fd int) error {
			mu.Lock()
			handled = append(handled, fd)
			mu.Unlock()
			return nil
		},
	}

	w.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Shutdown(ctx); err != nil {
		t.Fatalf("workers should stop once the queue is drained: %s", err)
	}

	if len(handled) != 3 {
		t.Fatalf("wanted 3 handled descriptors, got %d", len(handled))
	}
	for i, fd := range []int{3, 4, 5} {
		if handled[i] != fd {
			t.Errorf("handled[%d]: wanted %d, got %d", i, fd, handled[i])
		}
	}
}

func TestHandlerErrorDoesNotStopWorker(t *testing.T) {
	q := &testQueue{fds: []int{3, 4}}

	var handled int

	w := &Worker{
		numWorkers: 1,
		queue:      q,
		limiter:    ratelimit.NewUnlimited(),
		handle: func(ctx context.Context, fd int) error {
			handled++
			return errors.New("broken connection")
		},
	}

	w.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Shutdown(ctx); err != nil {
		t.Fatalf("workers should keep draining after handler errors: %s", err)
	}

	if handled != 2 {
		t.Errorf("wanted 2 handled descriptors, got %d", handled)
	}
}

func TestShutdownTimeout(t *testing.T) {
	blocked := make(chan struct{})

	w := &Worker{
		numWorkers: 1,
		queue:      &testQueue{fds: []int{3}},
		limiter:    ratelimit.NewUnlimited(),
		handle: func(ctx context.Context, fd int) error {
			<-blocked
			return nil
		},
	}

	w.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := w.Shutdown(ctx); err == nil {
		t.Error("shutdown should fail while a handler is still running")
	}

	close(blocked)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(testConfig(0, 10), &testQueue{}, nil)
	if err == nil {
		t.Error("must fail if workers < 1")
	}

	_, err = New(testConfig(2, 0), &testQueue{}, nil)
	if err == nil {
		t.Error("must fail if handle_per_second < 1")
	}

	if _, err = New(testConfig(2, 10), &testQueue{}, nil); err != nil {
		t.Errorf("wanted: nil, got: %s", err)
	}
}

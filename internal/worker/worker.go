// Package worker runs the pool of goroutines that drain the handoff queue
// and serve the connections behind the popped descriptors.
package worker

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	cfg "github.com/annklr/chromeos-smart-card-connector/config"
)

// Queue is the handoff queue the workers drain. WaitAndPop blocks until a
// descriptor is available and reports ok == false once the queue has been
// shut down.
type Queue interface {
	WaitAndPop() (fd int, ok bool)
}

// HandleFunc serves one connection identified by its descriptor.
type HandleFunc func(ctx context.Context, fd int) error

type Worker struct {
	numWorkers int
	queue      Queue
	handle     HandleFunc
	limiter    ratelimit.Limiter

	works sync.WaitGroup
}

func New(config *cfg.Config, queue Queue, handle HandleFunc) (*Worker, error) {
	log.WithFields(log.Fields{
		"workers":           config.Queue.Workers,
		"handle_per_second": config.Queue.HandlePerSecond,
	}).Info("Initializing worker")

	if config.Queue.Workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1")
	}

	if config.Queue.HandlePerSecond < 1 {
		return nil, fmt.Errorf("handle_per_second must be >= 1")
	}

	return &Worker{
		numWorkers: config.Queue.Workers,
		queue:      queue,
		handle:     handle,
		limiter:    ratelimit.New(config.Queue.HandlePerSecond),
	}, nil
}

// Run starts the worker goroutines. Each one loops popping descriptors and
// exits once the queue reports shutdown.
func (w *Worker) Run(ctx context.Context) {
	for i := 0; i < w.numWorkers; i++ {
		w.works.Add(1)
		go w.drain(ctx)
	}
}

// Shutdown waits for every worker goroutine to finish or returns an error
// if the context was cancelled first. The queue itself must be shut down
// before this call, otherwise workers stay blocked on it.
func (w *Worker) Shutdown(ctx context.Context) error {
	log.Info("Stopping workers...")

	waitChan := make(chan struct{})
	go func() {
		w.works.Wait()
		close(waitChan)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-waitChan:
			return nil
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	defer w.works.Done()

	for {
		_ = w.limiter.Take() // limit handled connections per second

		fd, ok := w.queue.WaitAndPop()
		if !ok {
			// Queue shut down: normal termination, not an error.
			return
		}

		if err := w.handle(ctx, fd); err != nil {
			log.WithFields(log.Fields{
				"fd":    fd,
				"error": err,
			}).Warn("connection handler error")
		}
	}
}

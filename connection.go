package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/annklr/chromeos-smart-card-connector/internal/conntrack"
	"github.com/annklr/chromeos-smart-card-connector/internal/worker"
)

var connectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "connection_handle_seconds",
	Help:    "Time spent serving one client connection.",
	Buckets: []float64{.5, 1, 2.5, 5},
}, []string{"result"})

// serveConnection builds the worker handler. It claims the connection behind
// the popped descriptor and owns it from there on, including closing it.
// The message layer of the card reader protocol plugs in at the read loop.
func serveConnection(conns *conntrack.Registry) worker.HandleFunc {
	return func(ctx context.Context, fd int) error {
		conn, ok := conns.Take(fd)
		if !ok {
			return fmt.Errorf("descriptor %d is not registered", fd)
		}
		defer conn.Close()

		start := time.Now()

		n, err := io.Copy(io.Discard, conn)

		res := "OK"
		if err != nil {
			res = err.Error()
		}

		log.WithFields(log.Fields{
			"fd":    fd,
			"bytes": n,
		}).Info("connection served")

		trackConnectionDuration(start, res)

		return err
	}
}

func trackConnectionDuration(start time.Time, res string) {
	connectionDuration.
		WithLabelValues(res).
		Observe(time.Since(start).Seconds())
}

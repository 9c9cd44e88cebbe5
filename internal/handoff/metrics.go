package handoff

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handoff_pushed_total",
		Help: "Number of descriptors pushed into the queue.",
	})

	deliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handoff_delivered_total",
		Help: "Number of descriptors delivered to workers.",
	})

	rejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handoff_rejected_total",
		Help: "Number of descriptors pushed after shutdown; these are never delivered.",
	})

	waitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "handoff_wait_seconds",
		Help:    "Time workers spend waiting for the next descriptor.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .5, 1, 2.5, 5, 10, 30},
	})
)

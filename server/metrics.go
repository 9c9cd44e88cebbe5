package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/annklr/chromeos-smart-card-connector/config"
	"github.com/annklr/chromeos-smart-card-connector/internal/handoff"
)

var (
	prometheusHandler http.Handler
	prometheusPath    string
)

type Metrics struct {
	server *http.Server
}

type httpHandler struct{}

func NewMetrics(cfg *config.Config, queue *handoff.Queue) *Metrics {
	prometheusHandler = promhttp.Handler()
	prometheusPath = cfg.Metrics.Path

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "handoff_queue_depth",
		Help: "Number of descriptors waiting in the handoff queue.",
	}, func() float64 {
		return float64(queue.Len())
	})

	return &Metrics{
		server: &http.Server{
			Addr:         cfg.Metrics.Bind,
			Handler:      httpHandler{},
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}
}

func (m *Metrics) Start() {
	go func() {
		if err := m.server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Warn("metrics error")
		}
	}()
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

func (h httpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.WithFields(log.Fields{
		"ip":  r.RemoteAddr,
		"uri": r.RequestURI,
	}).Info("metrics check")

	if r.URL.Path != prometheusPath {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	prometheusHandler.ServeHTTP(w, r)
}

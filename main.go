package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	cfg "github.com/annklr/chromeos-smart-card-connector/config"
	"github.com/annklr/chromeos-smart-card-connector/internal/conntrack"
	"github.com/annklr/chromeos-smart-card-connector/internal/handoff"
	"github.com/annklr/chromeos-smart-card-connector/internal/worker"
	"github.com/annklr/chromeos-smart-card-connector/server"
)

func main() {
	log.Info("Reading config...")

	path, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	config, err := cfg.LoadConfig(path)
	if err != nil {
		log.Fatal(err)
	}

	queue := handoff.New()
	conns := conntrack.NewRegistry()

	srv, err := server.NewServer(config, queue, conns)
	if err != nil {
		log.Fatal(err)
	}

	wrk, err := worker.New(config, queue, serveConnection(conns))
	if err != nil {
		log.Fatal(err)
	}

	metrics := server.NewMetrics(config, queue)

	log.Info("Starting server...")

	ctx := context.Background()

	metrics.Start()
	wrk.Run(ctx)

	if err := srv.Start(ctx); err != nil {
		log.Fatal(err)
	}

	// Handle shutdowns gracefully
	signalChan := make(chan os.Signal, 1)
	signal.Notify(
		signalChan,
		syscall.SIGINT,
		syscall.SIGTERM,
	)

	<-signalChan
	log.Info("Shutting down gracefully...")

	gracefulCtx, cancel := context.WithTimeout(ctx, config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Stop(gracefulCtx); err != nil {
		log.Fatal(err)
	}
	log.Info("Gracefully stopped server")

	if err := wrk.Shutdown(gracefulCtx); err != nil {
		log.Fatal(err)
	}
	log.Info("Gracefully stopped workers")

	if closed := conns.CloseAll(); closed > 0 {
		log.WithField("conns", closed).Info("Closed unclaimed connections")
	}

	if err := metrics.Shutdown(gracefulCtx); err != nil {
		log.Fatal(err)
	}
	log.Info("Gracefully stopped metrics")
}

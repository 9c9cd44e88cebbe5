package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	cfg "github.com/annklr/chromeos-smart-card-connector/config"
	"github.com/annklr/chromeos-smart-card-connector/internal/conntrack"
	"github.com/annklr/chromeos-smart-card-connector/internal/handoff"
)

var (
	socketsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sockets_accepted_total",
		Help: "Number of accepted client sockets.",
	})
)

type Server struct {
	// Handoff queue the accepted descriptors are pushed into
	queue *handoff.Queue

	// Maps descriptors back to their connections for the workers
	conns *conntrack.Registry

	listener net.Listener

	// Track the accept goroutine for the graceful shutdown
	acceptLoop sync.WaitGroup

	// Rate limiter protecting the workers from accept bursts
	rateLimiter *rate.Limiter

	bind string
}

// Init everything related to accepting client sockets
func NewServer(config *cfg.Config, queue *handoff.Queue, conns *conntrack.Registry) (*Server, error) {
	log.WithFields(log.Fields{
		"bind":             config.Server.Bind,
		"shutdown_timeout": config.Server.ShutdownTimeout,
		"accept_rate":      config.Server.AcceptRate,
	}).Info("Initializing server")

	if config.Server.AcceptRate < 1 {
		return nil, fmt.Errorf("accept_rate must be >= 1")
	}

	return &Server{
		queue:       queue,
		conns:       conns,
		rateLimiter: rate.NewLimiter(rate.Limit(config.Server.AcceptRate), config.Server.AcceptRate),
		bind:        config.Server.Bind,
	}, nil
}

// Start listening for client sockets and handing them off
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("unix", s.bind)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.bind, err)
	}

	s.listener = listener

	s.acceptLoop.Add(1)
	go s.acceptConnections(ctx)

	return nil
}

// Stop accepting client sockets gracefully.
// Shuts the handoff queue down, so blocked workers return as well.
func (s *Server) Stop(ctx context.Context) error {
	log.Info("Stopping server...")

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			log.WithError(err).Warn("closing listener")
		}
	}

	s.queue.ShutDown()

	acceptDone := make(chan struct{})
	go func() {
		s.acceptLoop.Wait()
		close(acceptDone)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-acceptDone:
			return nil
		}
	}
}

func (s *Server) acceptConnections(ctx context.Context) {
	defer s.acceptLoop.Done()

	for {
		if err := s.rateLimiter.Wait(ctx); err != nil {
			return
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			log.WithError(err).Warn("accept error")
			continue
		}

		s.handOff(conn)
	}
}

// Register the connection under its descriptor and push the descriptor
// into the queue for the next free worker
func (s *Server) handOff(conn net.Conn) {
	fd, err := descriptor(conn)
	if err != nil {
		log.WithError(err).Error("couldn't resolve socket descriptor")
		conn.Close()
		return
	}

	log.WithFields(log.Fields{
		"fd":   fd,
		"conn": uuid.NewString(),
		"addr": conn.LocalAddr().String(),
	}).Info("client connected")

	s.conns.Register(fd, conn)
	s.queue.Push(fd)

	socketsAccepted.Inc()
}

// Resolves the OS-level descriptor behind the connection
func descriptor(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("connection exposes no descriptor")
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}

	var fd int
	if err := raw.Control(func(h uintptr) { fd = int(h) }); err != nil {
		return 0, err
	}

	return fd, nil
}

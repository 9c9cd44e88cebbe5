// Package conntrack keeps the mapping from socket descriptors back to their
// connections while a descriptor travels through the handoff queue.
package conntrack

import (
	"net"
	"sync"
)

type Registry struct {
	mu    sync.Mutex
	conns map[int]net.Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int]net.Conn),
	}
}

// Register stores the connection under its descriptor. Registering the same
// descriptor twice replaces the entry; the kernel reuses descriptor numbers
// only after the previous owner has been taken out and closed.
func (t *Registry) Register(fd int, conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conns[fd] = conn
}

// Take removes and returns the connection for fd. The caller becomes the
// owner and is responsible for closing it.
func (t *Registry) Take(fd int) (net.Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, ok := t.conns[fd]
	if ok {
		delete(t.conns, fd)
	}

	return conn, ok
}

// CloseAll closes every connection still registered and returns how many
// were closed. Used on shutdown for descriptors no worker ever claimed.
func (t *Registry) CloseAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	closed := 0
	for fd, conn := range t.conns {
		conn.Close()
		delete(t.conns, fd)
		closed++
	}

	return closed
}

func (t *Registry) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.conns)
}

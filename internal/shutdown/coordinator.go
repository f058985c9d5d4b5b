// Package shutdown drains inbound connections when the process receives a
// termination signal: the listener closes immediately, accepted connections
// get a bounded grace window to finish, and anything still open at the
// deadline is forcibly destroyed so the process always terminates.
package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"civicgate/internal/audit"
	"civicgate/internal/platform/metrics"
)

// Coordinator tracks the live inbound connection set and runs the
// drain-then-terminate sequence at most once.
type Coordinator struct {
	drainTimeout   time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher audit.Publisher

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	server *http.Server

	inShutdown atomic.Bool
	once       sync.Once
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics wires the active-connections gauge.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithAuditPublisher sets the security audit sink.
func WithAuditPublisher(pub audit.Publisher) Option {
	return func(c *Coordinator) {
		c.auditPublisher = pub
	}
}

// New constructs a Coordinator with the given drain window.
func New(drainTimeout time.Duration, opts ...Option) *Coordinator {
	c := &Coordinator{
		drainTimeout: drainTimeout,
		conns:        make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHTTPServer attaches to the server's connection lifecycle. Must be called
// before the server starts accepting.
func (c *Coordinator) SetHTTPServer(server *http.Server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.server = server
	server.ConnState = c.connState
}

// connState maintains the live connection set from the server's lifecycle
// callbacks: add on accept, remove on close or hijack.
func (c *Coordinator) connState(conn net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		c.mu.Lock()
		c.conns[conn] = struct{}{}
		count := len(c.conns)
		c.mu.Unlock()
		c.setGauge(count)
	case http.StateClosed, http.StateHijacked:
		c.mu.Lock()
		delete(c.conns, conn)
		count := len(c.conns)
		c.mu.Unlock()
		c.setGauge(count)
	}
}

func (c *Coordinator) setGauge(count int) {
	if c.metrics != nil {
		c.metrics.ActiveConnections.Set(float64(count))
	}
}

// InShutdown reports whether draining has started; readiness probes use this
// to pull the instance out of rotation.
func (c *Coordinator) InShutdown() bool {
	return c.inShutdown.Load()
}

// ActiveConnectionCount returns the current size of the live connection set.
func (c *Coordinator) ActiveConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// OnShutdown runs the drain sequence. Idempotent: a second call while already
// draining or stopped is a no-op, and the server close runs at most once.
// Shutdown-race errors (server already stopped, listener already closed) are
// benign double-invocation artifacts and are logged, never propagated.
func (c *Coordinator) OnShutdown(signal string) {
	c.once.Do(func() {
		c.drain(signal)
	})
}

func (c *Coordinator) drain(signal string) {
	c.inShutdown.Store(true)

	ctx := context.Background()
	if c.logger != nil {
		c.logger.Info("shutdown signal received, draining connections",
			"signal", signal,
			"active_connections", c.ActiveConnectionCount(),
			"drain_timeout", c.drainTimeout.String(),
		)
	}
	audit.Emit(ctx, c.logger, c.auditPublisher, audit.ActionShutdownStarted, map[string]string{
		"signal": signal,
	})

	c.mu.Lock()
	server := c.server
	c.mu.Unlock()
	if server == nil {
		// Nothing listening counts as already drained.
		return
	}

	// Shutdown closes the listener immediately, so requests already accepted
	// may complete while no new connections are admitted. The wait resolves
	// early when the connection set empties, otherwise at the deadline.
	drainCtx, cancel := context.WithTimeout(ctx, c.drainTimeout)
	defer cancel()

	err := server.Shutdown(drainCtx)
	switch {
	case err == nil, errors.Is(err, http.ErrServerClosed):
		if c.logger != nil {
			c.logger.Info("all connections drained")
		}
	case errors.Is(err, context.DeadlineExceeded):
		c.forceClose(server)
	default:
		if c.logger != nil {
			c.logger.Warn("shutdown race", "error", err)
		}
	}
}

// forceClose destroys every socket still open after the grace window.
func (c *Coordinator) forceClose(server *http.Server) {
	c.mu.Lock()
	remaining := make([]net.Conn, 0, len(c.conns))
	for conn := range c.conns {
		remaining = append(remaining, conn)
	}
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Warn("drain timeout elapsed, force-closing connections",
			"remaining", len(remaining),
		)
	}
	for _, conn := range remaining {
		_ = conn.Close()
	}
	if err := server.Close(); err != nil && c.logger != nil {
		c.logger.Warn("server close after drain timeout", "error", err)
	}
}

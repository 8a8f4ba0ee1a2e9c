// Package shutdown coordinates graceful teardown of a client and its
// supporting resources when the host exits or receives a signal.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ErrAlreadyShutdown indicates shutdown was already initiated.
var ErrAlreadyShutdown = errors.New("shutdown already initiated")

// Handler is a teardown step. The context is cancelled when the shutdown
// timeout elapses.
type Handler func(ctx context.Context) error

// Coordinator runs registered teardown steps in order, once.
type Coordinator struct {
	timeout time.Duration

	mu       sync.Mutex
	steps    []step
	started  bool
	done     chan struct{}
	err      error
	doneOnce sync.Once
}

type step struct {
	name string
	fn   Handler
}

// New creates a coordinator. A zero timeout means steps run until their
// context is cancelled externally.
func New(timeout time.Duration) *Coordinator {
	return &Coordinator{
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Register appends a teardown step. Steps run in registration order, so
// register the transport before the telemetry exporter that records its
// final events.
func (c *Coordinator) Register(name string, fn Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, step{name: name, fn: fn})
}

// Shutdown runs every step. Later steps still run when an earlier one
// fails; the first error is returned. A second call returns
// ErrAlreadyShutdown without running anything.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyShutdown
	}
	c.started = true
	steps := c.steps
	c.mu.Unlock()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var first error
	for _, s := range steps {
		if err := s.fn(ctx); err != nil && first == nil {
			first = err
		}
	}

	c.doneOnce.Do(func() {
		c.err = first
		close(c.done)
	})
	return first
}

// HandleSignals triggers Shutdown on SIGINT or SIGTERM.
func (c *Coordinator) HandleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		c.Shutdown(context.Background())
	}()
}

// Done is closed once shutdown completes.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the shutdown error. Only valid after Done is closed.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

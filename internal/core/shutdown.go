package core

import (
	"sync"
	"sync/atomic"
)

// ShutdownCoordinator is a set-once stop signal shared by every worker.
// Stop may be called any number of times from any goroutine.
type ShutdownCoordinator struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

var _ StopSignal = (*ShutdownCoordinator)(nil)

// NewShutdownCoordinator returns a coordinator in the running state.
func NewShutdownCoordinator() *ShutdownCoordinator {
	return &ShutdownCoordinator{done: make(chan struct{})}
}

// Stop requests a cooperative shutdown.
func (c *ShutdownCoordinator) Stop() {
	c.once.Do(func() {
		c.stopped.Store(true)
		close(c.done)
	})
}

// Stopped reports whether Stop has been called.
func (c *ShutdownCoordinator) Stopped() bool {
	return c.stopped.Load()
}

// Done returns a channel closed by the first Stop call.
func (c *ShutdownCoordinator) Done() <-chan struct{} {
	return c.done
}

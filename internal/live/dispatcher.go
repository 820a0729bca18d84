package live

import (
	"context"
	"fmt"
)

// Dispatcher runs document tasks one at a time on a single goroutine.
// The map, its action queue and the server/client session state are only
// touched from inside tasks, so they need no locking.
type Dispatcher struct {
	tasks   chan func()
	stopped chan struct{}
}

// NewDispatcher creates a dispatcher with a task queue of the given size.
func NewDispatcher(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		tasks:   make(chan func(), queueSize),
		stopped: make(chan struct{}),
	}
}

// Run executes tasks until ctx is cancelled. It must be called once.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-d.tasks:
			fn()
		}
	}
}

// Post queues fn without waiting for it to run.
func (d *Dispatcher) Post(ctx context.Context, fn func()) error {
	select {
	case d.tasks <- fn:
		return nil
	case <-d.stopped:
		return fmt.Errorf("posting task: %w", ErrClosed)
	case <-ctx.Done():
		return fmt.Errorf("posting task: %w", ctx.Err())
	}
}

// Do runs fn on the dispatcher goroutine and waits for it to return.
// Calling Do from inside a task deadlocks.
func (d *Dispatcher) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := d.Post(ctx, func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-d.stopped:
		// stopped may close while fn is still finishing
		select {
		case <-done:
			return nil
		default:
			return fmt.Errorf("waiting for task: %w", ErrClosed)
		}
	case <-ctx.Done():
		return fmt.Errorf("waiting for task: %w", ctx.Err())
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
)

// DefaultDrainTimeout bounds how long Start waits for executions on shutdown.
const DefaultDrainTimeout = 30 * time.Second

// ErrDispatcherClosed is returned by Dispatch after Shutdown started.
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// PanicHandler is told about an execution that panicked.
type PanicHandler func(ctx context.Context, commandID string, recovered any)

// Dispatcher owns command executions that outlive the request that started
// them. At most one execution runs per command id.
type Dispatcher struct {
	// DrainTimeout bounds the wait in Start once its context is done.
	DrainTimeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	onPanic PanicHandler
	logger  log.Logger

	mu     sync.Mutex
	active map[string]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(onPanic PanicHandler) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		DrainTimeout: DefaultDrainTimeout,
		ctx:          ctx,
		cancel:       cancel,
		onPanic:      onPanic,
		logger:       log.WithName("dispatcher"),
		active:       make(map[string]struct{}),
	}
}

// Dispatch runs fn in its own goroutine. The context passed to fn keeps the
// values of ctx but is only canceled by an expired Shutdown.
func (d *Dispatcher) Dispatch(ctx context.Context, commandID string, fn func(ctx context.Context)) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if _, ok := d.active[commandID]; ok {
		d.mu.Unlock()
		return fmt.Errorf("command %s: %w", commandID, util.ErrAlreadyRunning)
	}
	d.active[commandID] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	execCtx, stop := mergeCancel(context.WithoutCancel(ctx), d.ctx)
	go func() {
		defer d.wg.Done()
		defer d.release(commandID)
		defer stop()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error(fmt.Errorf("panic: %v", r), "Command execution panicked",
					"command_id", commandID, "stack", string(debug.Stack()))
				if d.onPanic != nil {
					d.onPanic(context.WithoutCancel(execCtx), commandID, r)
				}
			}
		}()

		fn(execCtx)
	}()
	return nil
}

// Active reports whether an execution for the command is in flight.
func (d *Dispatcher) Active(commandID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[commandID]
	return ok
}

// Len returns the number of in-flight executions.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// Start blocks until ctx is done and then drains in-flight executions.
func (d *Dispatcher) Start(ctx context.Context) error {
	<-ctx.Done()
	d.logger.Info("Draining command executions", "in_flight", d.Len())

	drainCtx, cancel := context.WithTimeout(context.Background(), d.DrainTimeout)
	defer cancel()
	if err := d.Shutdown(drainCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Shutdown rejects new work and waits for in-flight executions. If ctx ends
// first the executions are canceled and waited for once more.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.logger.Warn("Canceling unfinished command executions", "in_flight", d.Len())
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) release(commandID string) {
	d.mu.Lock()
	delete(d.active, commandID)
	d.mu.Unlock()
}

// mergeCancel returns a context with the values of parent that is canceled
// when either parent or other is done.
func mergeCancel(parent, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

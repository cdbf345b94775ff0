// Package background runs fire-and-forget work that must outlive the
// request that started it: view increments, welcome emails, broadcasts.
package background

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	DefaultTimeout = 5 * time.Minute
	// DefaultMaxConcurrent caps goroutines so a burst of requests cannot
	// spawn unbounded detached work.
	DefaultMaxConcurrent = 32
)

// Runner starts detached tasks and can wait for them at shutdown.
//
// A task never shares a failure channel with its caller: errors and panics
// are logged here and go nowhere else.
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration
	sem     chan struct{}
	wg      sync.WaitGroup
}

func NewRunner(logger *slog.Logger, timeout time.Duration, maxConcurrent int) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Runner{
		logger:  logger.With(slog.String("component", "background")),
		timeout: timeout,
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// Go runs fn in its own goroutine and returns immediately.
//
// fn gets a context that keeps ctx's values (request id, trace span) but not
// its cancellation, bounded by the runner's timeout.
//
// The goroutine starts at once; the semaphore only caps how many tasks run
// at the same time. A burst beyond the cap parks goroutines on the slot
// instead of multiplying concurrent store and gateway calls.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	r.start(ctx, name, fn, true)
}

// GoLong runs fn like Go but without the runner's timeout and outside the
// shared slots, so a long job never starves short tasks of a slot. fn must
// bound its own steps (a broadcast bounds each batch).
func (r *Runner) GoLong(ctx context.Context, name string, fn func(ctx context.Context) error) {
	r.start(ctx, name, fn, false)
}

func (r *Runner) start(ctx context.Context, name string, fn func(ctx context.Context) error, bounded bool) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		var (
			taskCtx context.Context
			cancel  context.CancelFunc
		)
		if bounded {
			r.sem <- struct{}{}
			defer func() { <-r.sem }()
			taskCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		} else {
			taskCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
		}
		defer cancel()

		begin := time.Now()
		err := r.run(taskCtx, name, fn)
		if err != nil {
			r.logger.Error("background task failed",
				slog.String("task", name),
				slog.Duration("duration", time.Since(begin)),
				slog.String("error", err.Error()),
			)
			return
		}
		r.logger.Debug("background task done",
			slog.String("task", name),
			slog.Duration("duration", time.Since(begin)),
		)
	}()
}

func (r *Runner) run(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("background task panicked",
				slog.String("task", name),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started task has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background: tasks still running: %w", ctx.Err())
	}
}

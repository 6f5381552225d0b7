// Package engine fans a batch of independent tasks out on goroutines and
// collects one result per task, in input order.
//
// A failing task never affects its siblings: every error is kept in the
// task's own slot. Retryable failures are attempted again immediately, up
// to Options.Retries extra times.
package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
)

// Options controls a fan-out.
type Options struct {
	// Limit caps the number of tasks in flight; 0 means no cap
	Limit int

	// Retries is the number of extra attempts for a retryable failure
	Retries int

	// ShouldRetry classifies failures; nil uses errors.Retryable
	ShouldRetry func(error) bool

	// OnRetry is called before each extra attempt
	OnRetry func(index, attempt int, err error)
}

// Result is the outcome of one task.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// Task performs the work for input index i.
type Task[T any] func(ctx context.Context, i int) (T, error)

// Run executes task for every index in [0, n) and waits for all of them.
// Tasks that have not started when ctx is done fail with the context error.
func Run[T any](ctx context.Context, n int, opts Options, task Task[T]) []Result[T] {
	results := make([]Result[T], n)
	if n == 0 {
		return results
	}

	should := opts.ShouldRetry
	if should == nil {
		should = errors.Retryable
	}

	var g errgroup.Group
	if opts.Limit > 0 {
		g.SetLimit(opts.Limit)
	}

	for i := range n {
		g.Go(func() error {
			results[i] = attempt(ctx, i, opts, should, task)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func attempt[T any](ctx context.Context, i int, opts Options, should func(error) bool, task Task[T]) Result[T] {
	var res Result[T]
	for try := 0; ; try++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		res.Attempts++
		res.Value, res.Err = task(ctx, i)
		if res.Err == nil || try >= opts.Retries || !should(res.Err) {
			return res
		}
		if opts.OnRetry != nil {
			opts.OnRetry(i, try+1, res.Err)
		}
	}
}

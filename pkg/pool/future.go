package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/octopusdb/octopusdb/pkg/octerr"
	"github.com/octopusdb/octopusdb/pkg/worker"
)

// ErrAlreadyClaimed is returned by Future.Cancel when the task has already
// been claimed by a worker (or already resolved), matching spec.md §5's
// "Tasks already in-flight cannot be cancelled."
var ErrAlreadyClaimed = fmt.Errorf("octopusdb: future already claimed or resolved")

type futureState int32

const (
	statePending futureState = iota
	stateClaimed
	stateCancelled
	stateDone
)

// Outcome is a command's completed result or the error it failed with.
type Outcome struct {
	Result worker.Result
	Err    error
}

// Future represents a command dispatched through the pool that has not yet
// (necessarily) completed. Exactly one of Wait's return values settles it;
// repeated Wait calls all observe the same outcome.
type Future struct {
	state  atomic.Int32
	digest uint64
	pool   *Pool
	done   chan Outcome
	once   sync.Once
}

func newFuture(digest uint64, p *Pool, queued bool) *Future {
	f := &Future{digest: digest, pool: p, done: make(chan Outcome, 1)}
	if queued {
		f.state.Store(int32(statePending))
	} else {
		f.state.Store(int32(stateClaimed))
	}
	return f
}

// tryClaim transitions a queued future from pending to claimed, returning
// false if it was already cancelled (or claimed) by someone else.
func (f *Future) tryClaim() bool {
	return f.state.CompareAndSwap(int32(statePending), int32(stateClaimed))
}

// Wait blocks until the future settles or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (worker.Result, error) {
	select {
	case o := <-f.done:
		// Put the outcome back so every later Wait observes it too.
		f.done <- o
		return o.Result, o.Err
	case <-ctx.Done():
		return worker.Result{}, ctx.Err()
	}
}

// Cancel removes a not-yet-claimed future's task from the queue and
// resolves it with octerr.ErrCancelled. It returns ErrAlreadyClaimed if the
// task has already been picked up by a worker (or the future already
// settled), matching spec.md §5.
func (f *Future) Cancel() error {
	if !f.state.CompareAndSwap(int32(statePending), int32(stateCancelled)) {
		return ErrAlreadyClaimed
	}
	f.pool.queue.Remove(f.digest)
	f.pool.forgetPending(f.digest)
	f.resolve(worker.Result{}, octerr.ErrCancelled)
	return nil
}

func (f *Future) resolve(res worker.Result, err error) {
	f.once.Do(func() {
		f.state.Store(int32(stateDone))
		f.done <- Outcome{Result: res, Err: err}
	})
}

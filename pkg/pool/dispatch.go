package pool

import (
	"errors"
	"fmt"
	"time"

	"github.com/octopusdb/octopusdb/pkg/command"
	"github.com/octopusdb/octopusdb/pkg/occ"
	"github.com/octopusdb/octopusdb/pkg/octerr"
	"github.com/octopusdb/octopusdb/pkg/worker"
)

// Dispatch submits cmd for execution (spec.md §4.F). If a worker is
// immediately available and the command is not delayed, it is handed
// directly to that context; otherwise it is enqueued in the advanced task
// queue and a Future is returned that settles once the task is eventually
// executed.
func (p *Pool) Dispatch(cmd command.Command, priority int, delay time.Duration) (*Future, error) {
	if p.shuttingDown.Load() {
		return nil, octerr.ErrShuttingDown
	}

	if delay <= 0 {
		if id, ok := p.tryClaimWorkerWithRetry(cmd); ok {
			fut := newFuture(cmd.Digest(), p, false)
			p.runOnWorker(id, cmd, fut)
			return fut, nil
		}
	}

	digest := cmd.Digest()
	p.pendingMu.Lock()
	if existing, ok := p.pending[digest]; ok {
		p.pendingMu.Unlock()
		return existing, nil
	}
	fut := newFuture(digest, p, true)
	p.pending[digest] = fut
	p.pendingMu.Unlock()

	p.queue.Enqueue(cmd, priority, delay)
	return fut, nil
}

// tryClaimWorkerWithRetry implements spec.md §4.F step 2, including the
// OCC-retry design note: a worker may move Idle->Busy between reading
// `available` and performing OCC, so a conflicting attempt retries against
// a different id, bounded by cfg.OCCMaxRetries, before giving up.
func (p *Pool) tryClaimWorkerWithRetry(_ command.Command) (uint32, bool) {
	tried := make(map[uint32]struct{})
	for attempt := 0; attempt < p.cfg.OCCMaxRetries; attempt++ {
		id, rec, ok := p.pickAvailable(tried)
		if !ok {
			return 0, false
		}
		_, err := p.occHandler.Perform(id, rec.Version, func(r *occ.Record) error {
			r.State = occ.Busy
			return nil
		})
		if err == nil {
			p.removeAvailable(id)
			return id, true
		}
		tried[id] = struct{}{}
		if errors.Is(err, octerr.ErrConflict) {
			p.metrics.OCCConflicts.Inc()
		}
	}
	return 0, false
}

// pickAvailable reads the available set under the pool mutex and returns
// the lowest id not already in tried (spec.md §4.F, "deterministic
// selection: lowest id for testability").
func (p *Pool) pickAvailable(tried map[uint32]struct{}) (uint32, occ.Record, bool) {
	owner := p.lockOwner()
	p.mu.Lock(owner)
	var best uint32
	found := false
	for id := range p.available {
		if _, skip := tried[id]; skip {
			continue
		}
		if !found || id < best {
			best, found = id, true
		}
	}
	p.mu.Unlock(owner)

	if !found {
		return 0, occ.Record{}, false
	}
	rec, ok := p.occHandler.Snapshot(best)
	if !ok {
		return 0, occ.Record{}, false
	}
	return best, rec, true
}

func (p *Pool) removeAvailable(id uint32) {
	owner := p.lockOwner()
	p.mu.Lock(owner)
	delete(p.available, id)
	p.mu.Unlock(owner)
}

func (p *Pool) addAvailable(id uint32) {
	owner := p.lockOwner()
	p.mu.Lock(owner)
	p.available[id] = struct{}{}
	p.mu.Unlock(owner)
}

func (p *Pool) getContext(id uint32) *worker.Context {
	owner := p.lockOwner()
	p.mu.Lock(owner)
	defer p.mu.Unlock(owner)
	return p.contexts[id]
}

// dispatchQueuedTask is called by drainLoop for every task the queue
// yields once it becomes ready. It waits for a free worker if none is
// available right now, and claims the task's future only once a worker is
// secured, so a Cancel that arrives while the task waits still succeeds
// and a concurrent Cancel and dispatch can never both act on it.
func (p *Pool) dispatchQueuedTask(task command.Task) {
	digest := task.Digest()

	p.pendingMu.Lock()
	fut, ok := p.pending[digest]
	delete(p.pending, digest)
	p.pendingMu.Unlock()
	if !ok {
		return
	}

	for {
		if p.shuttingDown.Load() {
			fut.resolve(worker.Result{}, octerr.ErrShuttingDown)
			return
		}
		if futureState(fut.state.Load()) != statePending {
			// Cancelled while waiting for a worker.
			return
		}
		if id, ok := p.tryClaimWorkerWithRetry(task.Command); ok {
			if !fut.tryClaim() {
				// Cancelled just before the worker was secured; release it.
				p.completeWorker(id)
				return
			}
			p.runOnWorker(id, task.Command, fut)
			return
		}
		select {
		case <-p.workerFree:
		case <-time.After(50 * time.Millisecond):
			// Safety net: a free-worker signal sent just before this
			// select began would otherwise be missed.
		case <-p.drainCtx.Done():
			fut.resolve(worker.Result{}, octerr.ErrShuttingDown)
			return
		}
	}
}

// runOnWorker executes cmd on the context owning id, recovering from a
// panic as a simulated abnormal exit (spec.md §4.F, "On context abnormal
// exit") and otherwise routing the outcome through normal completion.
func (p *Pool) runOnWorker(id uint32, cmd command.Command, fut *Future) {
	ctxWorker := p.getContext(id)
	if ctxWorker == nil {
		// Lost a race with a crash/replace between claim and run; retry
		// dispatch against whatever the pool looks like now.
		if newID, ok := p.tryClaimWorkerWithRetry(cmd); ok {
			p.runOnWorker(newID, cmd, fut)
			return
		}
		fut.resolve(worker.Result{}, &octerr.WorkerCrashed{WorkerID: int(id), ExitCode: 1})
		return
	}

	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.handleCrash(id, fmt.Errorf("panic: %v", r))
				fut.resolve(worker.Result{}, &octerr.WorkerCrashed{WorkerID: int(id), ExitCode: 1})
			}
		}()

		res, err := ctxWorker.Execute(cmd)

		p.metrics.DispatchLatency.WithLabelValues(cmd.Kind.String()).Observe(time.Since(start).Seconds())
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		p.metrics.CommandsTotal.WithLabelValues(cmd.Kind.String(), outcome).Inc()

		p.completeWorker(id)
		fut.resolve(res, err)
	}()
}

// completeWorker transitions a worker back to Idle via OCC, makes it
// available again, and wakes anyone waiting for a free worker (spec.md
// §4.F, "On command completion").
func (p *Pool) completeWorker(id uint32) {
	rec, ok := p.occHandler.Snapshot(id)
	if !ok {
		// id was removed by a crash/Kill race; nothing to complete.
		return
	}
	_, err := p.occHandler.Perform(id, rec.Version, func(r *occ.Record) error {
		r.State = occ.Idle
		return nil
	})
	if err != nil {
		p.log.Warn().Uint32("worker_id", id).Err(err).Msg("failed to mark worker idle after completion")
		return
	}
	p.addAvailable(id)
	p.signalWorkerFree()
}

// handleCrash removes id's context and metadata entirely, replaces it if
// the pool is not shutting down, and wakes anyone waiting for a free
// worker so the replacement can immediately pick up backlog (spec.md
// §4.F, I4, P10).
func (p *Pool) handleCrash(id uint32, cause error) {
	p.log.Error().Uint32("worker_id", id).Err(cause).Msg("execution context crashed")

	owner := p.lockOwner()
	p.mu.Lock(owner)
	if c, ok := p.contexts[id]; ok {
		c.Close()
	}
	delete(p.contexts, id)
	delete(p.available, id)
	p.mu.Unlock(owner)
	p.occHandler.Deregister(id)

	if p.shuttingDown.Load() {
		return
	}

	newID := p.nextID.Add(1)
	p.occHandler.Register(newID, occ.Idle)

	owner2 := p.lockOwner()
	p.mu.Lock(owner2)
	p.contexts[newID] = worker.New(newID)
	p.available[newID] = struct{}{}
	p.mu.Unlock(owner2)

	p.log.Info().Uint32("replacement_worker_id", newID).Msg("execution context replaced")
	p.signalWorkerFree()
}

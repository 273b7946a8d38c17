// Package pool implements the worker pool of spec.md §4.F, Component F:
// lifecycle of execution contexts, dispatch, backlog coordination via the
// advanced task queue, and crash/replace recovery.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/octopusdb/octopusdb/pkg/config"
	"github.com/octopusdb/octopusdb/pkg/logger"
	"github.com/octopusdb/octopusdb/pkg/metrics"
	"github.com/octopusdb/octopusdb/pkg/occ"
	"github.com/octopusdb/octopusdb/pkg/octerr"
	"github.com/octopusdb/octopusdb/pkg/reentrant"
	"github.com/octopusdb/octopusdb/pkg/taskqueue"
	"github.com/octopusdb/octopusdb/pkg/worker"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Stats is a read-only snapshot of pool health (SPEC_FULL.md §3.3).
type Stats struct {
	WorkerCount    int
	AvailableCount int
	QueueDepth     int
}

// Pool owns a fixed-size set of execution contexts and dispatches commands
// to them, backed by an advanced task queue for backlog.
//
// Pool metadata — the context map and the available set — is mutated only
// under mu (Component A); worker state transitions additionally pass
// through occHandler (Component D) to detect stale dispatch attempts
// (spec.md §5, Shared-resource policy).
type Pool struct {
	cfg config.Config

	occHandler *occ.Handler
	mu         *reentrant.Mutex
	ownerSeq   atomic.Uint64

	contexts  map[uint32]*worker.Context
	available map[uint32]struct{}

	queue      *taskqueue.Queue
	pendingMu  sync.Mutex
	pending    map[uint64]*Future // digest -> future, for tasks sitting in the queue
	workerFree chan struct{}      // best-effort wake for goroutines waiting on a free worker

	metrics *metrics.Collectors
	log     zerolog.Logger

	nextID       atomic.Uint32
	shuttingDown atomic.Bool

	cronSched  *cron.Cron
	drainCtx   context.Context
	cancelFn   context.CancelFunc
	drainWG    sync.WaitGroup
}

// New constructs a pool and immediately spins up cfg.MaxWorkers execution
// contexts (spec.md §4.F, default 8 if cfg.MaxWorkers is zero).
func New(cfg config.Config) *Pool {
	if cfg.MaxWorkers == 0 {
		cfg = config.Default()
	}
	if cfg.OCCMaxRetries <= 0 {
		cfg.OCCMaxRetries = config.Default().OCCMaxRetries
	}

	p := &Pool{
		cfg:        cfg,
		occHandler: occ.New(),
		mu:         reentrant.New(),
		contexts:   make(map[uint32]*worker.Context),
		available:  make(map[uint32]struct{}),
		queue:      taskqueue.New(),
		pending:    make(map[uint64]*Future),
		workerFree: make(chan struct{}, 1),
		metrics:    metrics.New(cfg.MetricsNamespace),
		log:        logger.Log.With().Str("component", "pool").Logger(),
	}
	p.drainCtx, p.cancelFn = context.WithCancel(context.Background())

	for i := uint32(1); i <= cfg.MaxWorkers; i++ {
		p.contexts[i] = worker.New(i)
		p.occHandler.Register(i, occ.Idle)
		p.available[i] = struct{}{}
	}
	p.nextID.Store(cfg.MaxWorkers)

	p.drainWG.Add(1)
	go p.drainLoop()

	p.cronSched = cron.New(cron.WithSeconds())
	if _, err := p.cronSched.AddFunc("@every 30s", p.logStatsTick); err != nil {
		p.log.Warn().Err(err).Msg("failed to register pool health cron tick")
	}
	p.cronSched.Start()

	p.log.Info().Uint32("max_workers", cfg.MaxWorkers).Msg("pool started")
	return p
}

func (p *Pool) lockOwner() reentrant.OwnerID {
	return reentrant.OwnerID(p.ownerSeq.Add(1))
}

// WorkerCount returns the number of execution contexts currently alive
// (spec.md I4, P2).
func (p *Pool) WorkerCount() int {
	owner := p.lockOwner()
	p.mu.Lock(owner)
	defer p.mu.Unlock(owner)
	return len(p.contexts)
}

// Stats returns a snapshot of pool health for diagnostics and metrics
// (SPEC_FULL.md §3.3).
func (p *Pool) Stats() Stats {
	owner := p.lockOwner()
	p.mu.Lock(owner)
	s := Stats{WorkerCount: len(p.contexts), AvailableCount: len(p.available)}
	p.mu.Unlock(owner)
	s.QueueDepth = p.queue.Size()
	return s
}

func (p *Pool) logStatsTick() {
	s := p.Stats()
	p.metrics.QueueDepth.Set(float64(s.QueueDepth))
	p.metrics.WorkerState.WithLabelValues("idle").Set(float64(s.AvailableCount))
	p.metrics.WorkerState.WithLabelValues("busy").Set(float64(s.WorkerCount - s.AvailableCount))

	if s.QueueDepth >= p.cfg.DispatchQueueWarnDepth {
		p.log.Warn().Int("queue_depth", s.QueueDepth).Msg("task queue backlog high")
	}
	p.log.Debug().
		Int("workers", s.WorkerCount).
		Int("available", s.AvailableCount).
		Int("queue_depth", s.QueueDepth).
		Msg("pool health tick")
}

// Kill simulates the abnormal exit of execution context id (spec.md §4.F,
// "On context abnormal exit"), used by tests to exercise worker
// replacement (P10). Because Go cannot preempt a running goroutine, this
// only has an immediate effect on an idle worker; a worker mid-Execute
// finishes that call before its stale completion is discarded by the OCC
// handler no longer recognizing its id.
func (p *Pool) Kill(id uint32) error {
	owner := p.lockOwner()
	p.mu.Lock(owner)
	_, ok := p.contexts[id]
	p.mu.Unlock(owner)
	if !ok {
		return fmt.Errorf("pool: unknown worker id %d", id)
	}
	p.handleCrash(id, fmt.Errorf("operator-requested kill"))
	return nil
}

// Shutdown stops accepting new work, drains the backlog drainer, rejects
// any still-pending futures with octerr.ErrShuttingDown, and tears down
// every execution context (spec.md §4.F, Shutdown).
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}

	if p.cronSched != nil {
		stopCtx := p.cronSched.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}

	p.cancelFn()
	p.drainWG.Wait()

	p.pendingMu.Lock()
	remaining := make([]*Future, 0, len(p.pending))
	for _, f := range p.pending {
		remaining = append(remaining, f)
	}
	p.pending = make(map[uint64]*Future)
	p.pendingMu.Unlock()

	for _, f := range remaining {
		if f.tryClaim() {
			f.resolve(worker.Result{}, octerr.ErrShuttingDown)
		}
	}

	owner := p.lockOwner()
	p.mu.Lock(owner)
	for id, c := range p.contexts {
		c.Close()
		delete(p.contexts, id)
	}
	p.available = make(map[uint32]struct{})
	p.mu.Unlock(owner)

	p.log.Info().Msg("pool shut down")
	return nil
}

func (p *Pool) drainLoop() {
	defer p.drainWG.Done()
	for {
		task, err := p.queue.Dequeue(p.drainCtx)
		if err != nil {
			return
		}
		p.dispatchQueuedTask(task)
	}
}

func (p *Pool) forgetPending(digest uint64) {
	p.pendingMu.Lock()
	delete(p.pending, digest)
	p.pendingMu.Unlock()
}

func (p *Pool) signalWorkerFree() {
	select {
	case p.workerFree <- struct{}{}:
	default:
	}
}

// Package octopus implements the command façade of spec.md §4.H,
// Component H: a process-wide singleton exposing one method per command
// kind, transaction helpers, and the scheduling/evaluation surface added
// in SPEC_FULL.md §3.
package octopus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/octopusdb/octopusdb/pkg/command"
	"github.com/octopusdb/octopusdb/pkg/config"
	"github.com/octopusdb/octopusdb/pkg/logger"
	"github.com/octopusdb/octopusdb/pkg/pool"
	"github.com/octopusdb/octopusdb/pkg/txn"
	"github.com/octopusdb/octopusdb/pkg/worker"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Listener is called after a dispatched command's future resolves
// successfully, carrying the kind, key, and (where applicable) the string
// form of the value involved (spec.md §4.H).
type Listener func(kind, key, value string)

var (
	instance *Octopus
	once     sync.Once
)

// Octopus is the singleton façade (spec.md §4.H). Construction accepts
// maxWorkers only on the first call; subsequent Instance calls ignore the
// argument and return the existing handle (spec.md §8 P1).
type Octopus struct {
	pool *pool.Pool
	txns *txn.Manager
	cron *cron.Cron
	log  zerolog.Logger

	listenersMu sync.RWMutex
	listeners   []Listener
}

// Instance returns the process-wide singleton, constructing it with
// maxWorkers (default 8 if zero) on the very first call.
func Instance(maxWorkers uint32) *Octopus {
	once.Do(func() {
		cfg := config.Default()
		if maxWorkers > 0 {
			cfg.MaxWorkers = maxWorkers
		}
		instance = newOctopus(cfg)
	})
	return instance
}

func newOctopus(cfg config.Config) *Octopus {
	o := &Octopus{
		pool: pool.New(cfg),
		txns: txn.NewManager(),
		cron: cron.New(cron.WithSeconds()),
		log:  logger.Log.With().Str("component", "octopus").Logger(),
	}
	o.cron.Start()
	return o
}

// On registers a listener invoked after every successful dispatch, in the
// order futures settle (spec.md §5). Listeners registered before an
// operation runs observe it; there is no unregistration beyond process
// lifetime, matching the façade's singleton scope.
func (o *Octopus) On(event string, l Listener) {
	if event != "operation" {
		return
	}
	o.listenersMu.Lock()
	o.listeners = append(o.listeners, l)
	o.listenersMu.Unlock()
}

func (o *Octopus) emit(kind, key, value string) {
	o.listenersMu.RLock()
	defer o.listenersMu.RUnlock()
	for _, l := range o.listeners {
		l(kind, key, value)
	}
}

// Pool exposes the underlying worker pool for diagnostics (Stats,
// WorkerCount) and for Shutdown.
func (o *Octopus) Pool() *pool.Pool { return o.pool }

// Shutdown stops the façade's cron scheduler and the underlying pool.
func (o *Octopus) Shutdown(ctx context.Context) error {
	stopCtx := o.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return o.pool.Shutdown(ctx)
}

// Transactions exposes the façade's transaction manager (spec.md §4.G/§6).
func (o *Octopus) Transactions() *txn.Manager { return o.txns }

// Eval runs a Lua script against a single execution context (SPEC_FULL.md
// §3.1), exposed through the façade like any other command.
func (o *Octopus) Eval(ctx context.Context, script string, keys []string) (string, error) {
	cmd := command.Command{Kind: command.Eval, Script: script, Keys: keys}
	res, err := o.run(ctx, cmd)
	if err != nil {
		return "", err
	}
	o.emit(cmd.Kind.String(), "", res.String)
	return res.String, nil
}

// Schedule registers a cron job that issues cmd on the given cron
// expression, which takes a leading seconds field (six fields in all) or a
// descriptor such as "@every 1s" (SPEC_FULL.md §3.2), grounded on the teacher's
// Client.Schedule. A background context is used for each fired tick since
// a cron tick has no caller to inherit cancellation from.
func (o *Octopus) Schedule(spec string, cmd command.Command) (cron.EntryID, error) {
	return o.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := o.run(ctx, cmd); err != nil {
			o.log.Error().Err(err).Str("spec", spec).Str("kind", cmd.Kind.String()).Msg("scheduled command failed")
		}
	})
}

// Unschedule removes a previously registered scheduled command.
func (o *Octopus) Unschedule(id cron.EntryID) {
	o.cron.Remove(id)
}

// run is the shared dispatch-then-wait helper behind every thin command
// method in commands.go. A uuid ticket correlates the dispatch with its log line
// but is not otherwise part of the public contract.
func (o *Octopus) run(ctx context.Context, cmd command.Command) (worker.Result, error) {
	ticket := uuid.New()
	fut, err := o.pool.Dispatch(cmd, 0, 0)
	if err != nil {
		return worker.Result{}, err
	}
	res, err := fut.Wait(ctx)
	if err != nil {
		o.log.Debug().Str("ticket", ticket.String()).Str("kind", cmd.Kind.String()).Err(err).Msg("dispatch failed")
		return worker.Result{}, err
	}
	return res, nil
}

// Package txn implements the transaction manager and transaction of
// spec.md §4.G, Component G: sequences of operations with commit/rollback,
// serialized against each other by the manager's shared reentrant mutex.
package txn

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/octopusdb/octopusdb/pkg/octerr"
	"github.com/octopusdb/octopusdb/pkg/reentrant"
)

// Operation is one step of a transaction: an arbitrary context-aware
// closure, typically a Pool.Dispatch-and-Wait call made by the caller.
type Operation func(ctx context.Context) error

// Transaction groups operations under a single owner token against the
// manager's shared internal mutex.
type Transaction struct {
	ID    uint64
	owner reentrant.OwnerID

	opsMu     sync.Mutex
	ops       []Operation
	committed atomic.Bool
}

// Add appends op to the transaction's ordered operation list. Returns
// octerr.ErrAlreadyCommitted if the transaction has already committed.
func (t *Transaction) Add(op Operation) error {
	if t.committed.Load() {
		return octerr.ErrAlreadyCommitted
	}
	t.opsMu.Lock()
	defer t.opsMu.Unlock()
	if t.committed.Load() {
		return octerr.ErrAlreadyCommitted
	}
	t.ops = append(t.ops, op)
	return nil
}

// Manager allocates monotonically increasing transaction ids and
// serializes transactions against each other via a single shared internal
// reentrant mutex (spec.md §4.G): Start immediately acquires it under a
// fresh owner token, and Commit/Rollback release it, so a second
// concurrent Start blocks until the first transaction ends (spec.md §8
// scenario 6).
type Manager struct {
	idMu   sync.Mutex
	nextID uint64

	mu       *reentrant.Mutex
	ownerSeq atomic.Uint64

	activeMu sync.Mutex
	active   map[uint64]*Transaction
}

// NewManager constructs an empty transaction manager.
func NewManager() *Manager {
	return &Manager{mu: reentrant.New(), active: make(map[uint64]*Transaction)}
}

// Start allocates a new transaction id, blocks until the manager's
// internal mutex is free (serializing against any other in-flight
// transaction), then constructs and registers the Transaction.
func (m *Manager) Start() *Transaction {
	m.idMu.Lock()
	m.nextID++
	id := m.nextID
	m.idMu.Unlock()

	owner := reentrant.OwnerID(m.ownerSeq.Add(1))
	m.mu.Lock(owner)

	t := &Transaction{ID: id, owner: owner}

	m.activeMu.Lock()
	m.active[id] = t
	m.activeMu.Unlock()
	return t
}

func (m *Manager) lookup(id uint64) (*Transaction, bool) {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	t, ok := m.active[id]
	return t, ok
}

func (m *Manager) deregister(id uint64) {
	m.activeMu.Lock()
	delete(m.active, id)
	m.activeMu.Unlock()
}

// Commit marks id's transaction committed and executes its operations
// sequentially, each awaited before the next starts. It releases the
// manager's internal mutex whether or not the operations succeed, and
// always deregisters the transaction. If any operation fails, Commit
// stops (clearing the remaining op list) and returns the underlying
// error (spec.md §4.G).
func (m *Manager) Commit(ctx context.Context, id uint64) error {
	t, ok := m.lookup(id)
	if !ok {
		return octerr.ErrNotFound
	}
	if !t.committed.CompareAndSwap(false, true) {
		return octerr.ErrAlreadyCommitted
	}

	defer func() {
		m.mu.Unlock(t.owner)
		m.deregister(id)
	}()

	t.opsMu.Lock()
	ops := t.ops
	t.ops = nil
	t.opsMu.Unlock()

	for _, op := range ops {
		if err := op(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Rollback clears id's not-yet-committed operation list, releases the
// manager's internal mutex, and deregisters it. Rollback is only
// meaningful pre-commit: operations already applied during a commit have
// no compensation. Because Commit deregisters the transaction, Rollback
// after Commit has returned reports octerr.ErrNotFound; it reports
// octerr.ErrAlreadyCommitted only while that Commit is still running its
// operations. It never undoes anything.
func (m *Manager) Rollback(id uint64) error {
	t, ok := m.lookup(id)
	if !ok {
		return octerr.ErrNotFound
	}
	if t.committed.Load() {
		return octerr.ErrAlreadyCommitted
	}

	t.opsMu.Lock()
	t.ops = nil
	t.opsMu.Unlock()

	m.mu.Unlock(t.owner)
	m.deregister(id)
	return nil
}

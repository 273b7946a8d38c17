// Package reentrant implements a FIFO-fair, reentrant mutual exclusion
// primitive (spec.md §4.A, Component A). Unlike sync.Mutex, the same owner
// may acquire it repeatedly without blocking; unlock by a non-owner is a
// reported error rather than undefined behavior.
package reentrant

import (
	"container/list"
	"sync"

	"github.com/octopusdb/octopusdb/pkg/octerr"
)

// OwnerID identifies a lock acquirer. Callers typically use a goroutine-
// scoped token (e.g. a worker or transaction id) rather than a goroutine
// ID, since Go has no stable notion of the latter.
type OwnerID uint64

// Mutex is a reentrant, FIFO-fair mutex. The zero value is not usable; use
// New.
type Mutex struct {
	mu      sync.Mutex
	holder  OwnerID
	held    bool
	count   int
	waiters *list.List // of *waiter, FIFO order
}

type waiter struct {
	owner OwnerID
	ready chan struct{}
}

// New constructs a free Mutex.
func New() *Mutex {
	return &Mutex{waiters: list.New()}
}

// Lock acquires the mutex for owner. If owner already holds it, Lock
// returns immediately and increments the reentrancy count (spec.md I6). If
// another owner holds it, the caller blocks in FIFO order relative to other
// waiters.
func (m *Mutex) Lock(owner OwnerID) {
	m.mu.Lock()
	if !m.held {
		m.held = true
		m.holder = owner
		m.count = 1
		m.mu.Unlock()
		return
	}
	if m.holder == owner {
		m.count++
		m.mu.Unlock()
		return
	}

	w := &waiter{owner: owner, ready: make(chan struct{})}
	elem := m.waiters.PushBack(w)
	m.mu.Unlock()

	<-w.ready
	_ = elem
}

// Unlock releases exactly one acquisition held by owner. Unlock by a
// non-owner returns ErrNotOwner and leaves the mutex state untouched.
// When the reentrancy count reaches zero, the next FIFO waiter (if any)
// becomes the new owner with count 1; otherwise the mutex becomes free
// (spec.md §4.A).
func (m *Mutex) Unlock(owner OwnerID) error {
	m.mu.Lock()
	if !m.held || m.holder != owner {
		m.mu.Unlock()
		return octerr.ErrNotOwner
	}

	m.count--
	if m.count > 0 {
		m.mu.Unlock()
		return nil
	}

	front := m.waiters.Front()
	if front == nil {
		m.held = false
		m.holder = 0
		m.mu.Unlock()
		return nil
	}

	m.waiters.Remove(front)
	next := front.Value.(*waiter)
	m.holder = next.owner
	m.count = 1
	m.mu.Unlock()
	close(next.ready)
	return nil
}

// Holder reports the current owner and whether the mutex is held. Intended
// for tests and diagnostics, not for synchronization decisions by callers.
func (m *Mutex) Holder() (owner OwnerID, held bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder, m.held
}

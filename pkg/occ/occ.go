// Package occ implements the optimistic-concurrency-control handler of
// spec.md §4.D, Component D: version-validated read-modify-write over
// worker metadata records.
package occ

import (
	"sort"
	"sync"

	"github.com/octopusdb/octopusdb/pkg/octerr"
)

// WorkerState enumerates the lifecycle states of an execution context
// (spec.md §3 Worker metadata).
type WorkerState int

const (
	Idle WorkerState = iota
	Busy
	Terminated
)

func (s WorkerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Record is the versioned metadata for one execution context.
type Record struct {
	ID      uint32
	State   WorkerState
	Version uint64
}

// Handler guards a set of worker metadata records under OCC. Steps 1-4 of
// Perform are mutually exclusive per id; this implementation uses a single
// handler-wide mutex, which spec.md §4.D explicitly allows ("A global mutex
// is acceptable; per-id striping is permitted").
type Handler struct {
	mu      sync.Mutex
	records map[uint32]*Record
}

// New constructs an empty OCC handler.
func New() *Handler {
	return &Handler{records: make(map[uint32]*Record)}
}

// Register installs a fresh metadata record for id, starting at version 0
// in the given state. Used when the pool creates or replaces a context.
func (h *Handler) Register(id uint32, state WorkerState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[id] = &Record{ID: id, State: state, Version: 0}
}

// Deregister removes id's metadata entirely, used when a context is torn
// down without replacement (pool shutdown).
func (h *Handler) Deregister(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.records, id)
}

// Snapshot returns a copy of id's current record. ok is false if absent.
func (h *Handler) Snapshot(id uint32) (Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// All returns a copy of every record currently registered, ordered by id
// ascending, for diagnostics. (The pool's "lowest id" selection of spec.md
// §4.F step 2 scans its own available set instead.)
func (h *Handler) All() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Record, 0, len(h.records))
	for _, r := range h.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Perform executes op against id's metadata record under OCC (spec.md
// §4.D):
//  1. Missing record -> octerr.ErrNotFound.
//  2. expected != current version -> octerr.ErrConflict.
//  3. op returns an error -> *octerr.OperationFailed{Cause: err}, version
//     unchanged.
//  4. op succeeds -> version increments (spec.md I7) and op's mutation is
//     retained.
//
// op receives a pointer to a copy of the record and may mutate it; the
// copy replaces the live record only on success.
func (h *Handler) Perform(id uint32, expected uint64, op func(*Record) error) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.records[id]
	if !ok {
		return 0, octerr.ErrNotFound
	}
	if r.Version != expected {
		return 0, octerr.ErrConflict
	}

	// Operate on a scratch copy so a failed op never partially mutates
	// the live record.
	scratch := *r
	if err := op(&scratch); err != nil {
		return r.Version, &octerr.OperationFailed{Cause: err}
	}

	scratch.Version = r.Version + 1
	*r = scratch
	return r.Version, nil
}

// Package pqueue implements a generic binary-heap priority queue over a
// composite (ready-at, priority, sequence) key, spec.md §4.B, Component B.
// It is a pure data structure: no locking, no blocking semantics — those
// live one layer up in pkg/taskqueue.
package pqueue

import (
	"container/heap"
	"time"
)

// Key is the composite ordering key: ready-at ascending, then priority
// ascending, then insertion sequence ascending to stabilize ties (spec.md
// §4.B tie-breaking note).
type Key struct {
	ReadyAt  time.Time
	Priority int
	Seq      uint64
}

// Less reports whether k sorts before other under the composite ordering.
func (k Key) Less(other Key) bool {
	if !k.ReadyAt.Equal(other.ReadyAt) {
		return k.ReadyAt.Before(other.ReadyAt)
	}
	if k.Priority != other.Priority {
		return k.Priority < other.Priority
	}
	return k.Seq < other.Seq
}

// item pairs a stored value with its ordering key.
type item[T any] struct {
	value T
	key   Key
}

// innerHeap is the container/heap.Interface implementation backing Heap.
type innerHeap[T any] []item[T]

func (h innerHeap[T]) Len() int            { return len(h) }
func (h innerHeap[T]) Less(i, j int) bool  { return h[i].key.Less(h[j].key) }
func (h innerHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *innerHeap[T]) Push(x interface{}) { *h = append(*h, x.(item[T])) }
func (h *innerHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Heap is a generic min-heap over (key, value) pairs. Enqueue/Dequeue run
// in O(log n); Peek/Size run in O(1). It is not safe for concurrent use by
// multiple goroutines without external synchronization.
type Heap[T any] struct {
	h innerHeap[T]
}

// New constructs an empty heap.
func New[T any]() *Heap[T] {
	h := &Heap[T]{h: make(innerHeap[T], 0)}
	heap.Init(&h.h)
	return h
}

// Enqueue inserts value under key.
func (h *Heap[T]) Enqueue(key Key, value T) {
	heap.Push(&h.h, item[T]{value: value, key: key})
}

// Dequeue removes and returns the minimum-key item. ok is false if the heap
// is empty.
func (h *Heap[T]) Dequeue() (value T, key Key, ok bool) {
	if h.h.Len() == 0 {
		return value, key, false
	}
	it := heap.Pop(&h.h).(item[T])
	return it.value, it.key, true
}

// Peek returns the minimum-key item without removing it.
func (h *Heap[T]) Peek() (value T, key Key, ok bool) {
	if h.h.Len() == 0 {
		return value, key, false
	}
	it := h.h[0]
	return it.value, it.key, true
}

// Size returns the current number of items in the heap.
func (h *Heap[T]) Size() int { return h.h.Len() }

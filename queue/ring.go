package queue

import (
	"sync/atomic"
)

// Ring is a lock-free MPSC ring buffer with a power of two capacity
// Thread-Safety:
//   - Push: Lock-free CAS, multiple producers OK
//   - Consume: Single consumer
//   - Published flags prevent reading partial writes
//
// Overflow: Oldest entries overwritten when full, counted in Overwritten
type Ring[T any] struct {
	items     []T
	published []atomic.Bool // True = slot fully written
	size      uint64
	mask      uint64
	head      atomic.Uint64 // Read index
	tail      atomic.Uint64 // Write index

	overwritten atomic.Uint64
}

// NewRing creates a ring; size is rounded up to the next power of two
func NewRing[T any](size int) *Ring[T] {
	capacity := uint64(1)
	for capacity < uint64(size) {
		capacity <<= 1
	}
	return &Ring[T]{
		items:     make([]T, capacity),
		published: make([]atomic.Bool, capacity),
		size:      capacity,
		mask:      capacity - 1,
	}
}

// Push adds v using CAS on tail with published flags
// Safe for concurrent producers. O(1) amortized
func (r *Ring[T]) Push(v T) {
	for {
		currentTail := r.tail.Load()
		nextTail := currentTail + 1

		if r.tail.CompareAndSwap(currentTail, nextTail) {
			idx := currentTail & r.mask

			r.items[idx] = v
			r.published[idx].Store(true) // MUST be after write

			// Advance head if overwriting unread entries
			currentHead := r.head.Load()
			if nextTail-currentHead > r.size {
				if r.head.CompareAndSwap(currentHead, nextTail-r.size) {
					r.overwritten.Add(nextTail - r.size - currentHead)
				}
			}
			return
		}
	}
}

// Consume appends all pending entries to dst in FIFO order and advances head
// Single consumer. Passing a reused dst avoids per-call allocation
func (r *Ring[T]) Consume(dst []T) []T {
	var zero T
	currentHead := r.head.Load()
	currentTail := r.tail.Load()

	if currentTail == currentHead {
		return dst
	}

	available := currentTail - currentHead
	if available > r.size {
		available = r.size
		currentHead = currentTail - r.size
	}

	var read uint64
	for ; read < available; read++ {
		idx := (currentHead + read) & r.mask

		if !r.published[idx].Load() {
			break // Writer incomplete
		}

		dst = append(dst, r.items[idx])
		r.items[idx] = zero
		r.published[idx].Store(false)
	}

	// Producers only move head forward on overflow; never move it back
	target := currentHead + read
	for {
		h := r.head.Load()
		if h >= target || r.head.CompareAndSwap(h, target) {
			return dst
		}
	}
}

// Len returns approximate pending count
func (r *Ring[T]) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail <= head {
		return 0
	}
	diff := tail - head
	if diff > r.size {
		return int(r.size)
	}
	return int(diff)
}

// Cap returns the ring capacity
func (r *Ring[T]) Cap() int {
	return int(r.size)
}

// Overwritten returns the number of entries lost to overflow
func (r *Ring[T]) Overwritten() uint64 {
	return r.overwritten.Load()
}

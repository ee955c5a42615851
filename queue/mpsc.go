package queue

import "sync/atomic"

type mpscNode[T any] struct {
	next  atomic.Pointer[mpscNode[T]]
	value T
}

// MPSC is an unbounded intrusive linked queue
// Thread-Safety:
//   - Push: wait-free (one Swap, one Store), multiple producers OK
//   - Pop/Drain: single consumer only
//
// Values pushed by one producer are popped in push order
// A producer preempted between Swap and Store hides its value and every
// value pushed after it until the link is stored; nothing is lost or reordered
type MPSC[T any] struct {
	head   *mpscNode[T] // Consumer-owned stub, last consumed node
	tail   atomic.Pointer[mpscNode[T]]
	length atomic.Int64
}

// NewMPSC creates an empty queue
func NewMPSC[T any]() *MPSC[T] {
	stub := &mpscNode[T]{}
	q := &MPSC[T]{head: stub}
	q.tail.Store(stub)
	return q
}

// Push appends v; never blocks
func (q *MPSC[T]) Push(v T) {
	n := &mpscNode[T]{value: v}
	prev := q.tail.Swap(n)
	prev.next.Store(n) // Publishes n to the consumer
	q.length.Add(1)
}

// Pop removes the oldest visible value
func (q *MPSC[T]) Pop() (T, bool) {
	var zero T
	next := q.head.next.Load()
	if next == nil {
		return zero, false
	}
	v := next.value
	next.value = zero // Release references held by the new stub
	q.head = next
	q.length.Add(-1)
	return v, true
}

// Drain pops every visible value into fn in FIFO order, returns count
func (q *MPSC[T]) Drain(fn func(T)) int {
	n := 0
	for {
		v, ok := q.Pop()
		if !ok {
			return n
		}
		fn(v)
		n++
	}
}

// Len returns approximate pending count
func (q *MPSC[T]) Len() int {
	n := q.length.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

package event

import (
	"cmp"
	"slices"
	"sync/atomic"

	"github.com/lixenwraith/voxpool/queue"
	"github.com/lixenwraith/voxpool/status"
)

// Handler receives routed notifications on the dispatching goroutine
type Handler interface {
	HandleNotification(n Notification)

	// Kinds returns the kinds to receive, empty means all
	Kinds() []Kind
}

type funcHandler struct {
	kinds []Kind
	fn    func(Notification)
}

func (h funcHandler) HandleNotification(n Notification) { h.fn(n) }
func (h funcHandler) Kinds() []Kind                     { return h.kinds }

// HandleFunc adapts fn into a Handler for kinds, none meaning all
func HandleFunc(fn func(Notification), kinds ...Kind) Handler {
	return funcHandler{kinds: kinds, fn: fn}
}

// Bus carries notifications from the sync point to observers
//
// Architecture:
//   - Publish: lock-free push from any goroutine, never blocks
//   - Best-effort kinds go to a bounded ring; overflow drops the oldest, counted in events.dropped
//   - Every other kind goes to an unbounded queue and is never lost
//   - Dispatch: single consumer, publish order across both queues, handlers in registration order
type Bus struct {
	ring     *queue.Ring[Notification]
	reliable *queue.MPSC[Notification]
	seq      atomic.Uint64
	handlers [kindCount][]Handler
	buf      []Notification

	statPublished *atomic.Int64
	statDropped   *atomic.Int64
}

// NewBus creates a bus whose best-effort ring holds size notifications
func NewBus(size int, reg *status.Registry) *Bus {
	return &Bus{
		ring:          queue.NewRing[Notification](size),
		reliable:      queue.NewMPSC[Notification](),
		statPublished: reg.Ints.Get("events.published"),
		statDropped:   reg.Ints.Get("events.dropped"),
	}
}

// Register adds a handler, must be called before dispatch starts
func (b *Bus) Register(h Handler) {
	kinds := h.Kinds()
	if len(kinds) == 0 {
		for k := Kind(1); k < kindCount; k++ {
			b.handlers[k] = append(b.handlers[k], h)
		}
		return
	}
	for _, k := range kinds {
		if k > 0 && k < kindCount {
			b.handlers[k] = append(b.handlers[k], h)
		}
	}
}

// Publish enqueues n without blocking
func (b *Bus) Publish(n Notification) {
	n.Seq = b.seq.Add(1)
	if n.Kind.BestEffort() {
		b.ring.Push(n)
	} else {
		b.reliable.Push(n)
	}
	b.statPublished.Add(1)
}

// collect moves pending notifications from both queues into buf in publish order
func (b *Bus) collect() {
	b.buf = b.ring.Consume(b.buf[:0])
	b.reliable.Drain(func(n Notification) {
		b.buf = append(b.buf, n)
	})
	slices.SortFunc(b.buf, func(x, y Notification) int { return cmp.Compare(x.Seq, y.Seq) })
	b.statDropped.Store(int64(b.ring.Overwritten()))
}

// Dispatch consumes pending notifications and routes them, returns count
func (b *Bus) Dispatch() int {
	b.collect()
	for _, n := range b.buf {
		if n.Kind > 0 && n.Kind < kindCount {
			for _, h := range b.handlers[n.Kind] {
				h.HandleNotification(n)
			}
		}
	}
	count := len(b.buf)
	clear(b.buf)
	return count
}

// Drain consumes pending notifications without routing
// Use instead of Dispatch, never alongside it
func (b *Bus) Drain() []Notification {
	b.collect()
	out := slices.Clone(b.buf)
	clear(b.buf)
	return out
}

// Pending returns approximate undispatched count
func (b *Bus) Pending() int {
	return b.ring.Len() + b.reliable.Len()
}

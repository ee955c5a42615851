package graph

import (
	"sync/atomic"

	"github.com/lixenwraith/voxpool/queue"
)

// CommandQueue buffers batches for the synchronizer
// Thread-Safety:
//   - Submit/SubmitBatch: wait-free, any number of producers
//   - Drain: synchronizer goroutine only
//
// A batch is one queue element, so its commands stay contiguous and ordered
type CommandQueue struct {
	batches *queue.MPSC[Batch]
	pending atomic.Int64 // Commands not yet drained
}

// NewCommandQueue creates an empty queue
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{
		batches: queue.NewMPSC[Batch](),
	}
}

// Submit enqueues a single command
func (cq *CommandQueue) Submit(cmd Command) {
	cq.SubmitBatch(Batch{cmd})
}

// SubmitBatch enqueues b as one ordered unit
// The batch is copied; the caller may reuse b afterwards
func (cq *CommandQueue) SubmitBatch(b Batch) {
	if len(b) == 0 {
		return
	}
	owned := make(Batch, len(b))
	for i, cmd := range b {
		if c, ok := cmd.(Connect); ok {
			c.Ports = c.Ports.Clone()
			cmd = c
		}
		owned[i] = cmd
	}
	cq.pending.Add(int64(len(owned)))
	cq.batches.Push(owned)
}

// Drain passes every visible command to fn in submission order
func (cq *CommandQueue) Drain(fn func(Command)) int {
	n := 0
	cq.batches.Drain(func(b Batch) {
		for _, cmd := range b {
			fn(cmd)
		}
		n += len(b)
	})
	cq.pending.Add(int64(-n))
	return n
}

// Len returns approximate count of undrained commands
func (cq *CommandQueue) Len() int {
	n := cq.pending.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

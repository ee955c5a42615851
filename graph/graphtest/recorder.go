// Package graphtest provides a recording graph.Engine for tests
package graphtest

import (
	"sync"

	"github.com/lixenwraith/voxpool/graph"
)

// Recorder is an in-memory graph.Engine that logs every call
type Recorder struct {
	mu       sync.Mutex
	active   bool
	calls    []graph.Command
	nodes    map[graph.NodeID]graph.Descriptor
	snapshot *graph.Snapshot

	// FailInsert makes Insert fail for matching descriptors
	FailInsert func(id graph.NodeID, d graph.Descriptor) error
	// FailEvent makes SendEvent fail for matching events
	FailEvent func(target graph.NodeID, ev graph.Event) error
}

// NewRecorder creates an active recorder holding the output node
func NewRecorder() *Recorder {
	return &Recorder{
		active: true,
		nodes:  map[graph.NodeID]graph.Descriptor{graph.OutputNode: graph.Describe(graph.Output{})},
	}
}

// SetActive toggles graph activation
func (r *Recorder) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = active
}

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Recorder) record(cmd graph.Command) error {
	if !r.active {
		return graph.ErrInactive
	}
	r.calls = append(r.calls, cmd)
	return nil
}

func (r *Recorder) Insert(id graph.NodeID, d graph.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailInsert != nil {
		if err := r.FailInsert(id, d); err != nil {
			return err
		}
	}
	if err := r.record(graph.InsertNode{ID: id, Descriptor: d}); err != nil {
		return err
	}
	r.nodes[id] = d
	return nil
}

func (r *Recorder) Remove(id graph.NodeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(graph.RemoveNode{ID: id}); err != nil {
		return err
	}
	delete(r.nodes, id)
	return nil
}

func (r *Recorder) Connect(from, to graph.NodeID, ports graph.PortMap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record(graph.Connect{From: from, To: to, Ports: ports})
}

func (r *Recorder) Disconnect(from, to graph.NodeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record(graph.Disconnect{From: from, To: to})
}

func (r *Recorder) SendEvent(target graph.NodeID, ev graph.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailEvent != nil {
		if err := r.FailEvent(target, ev); err != nil {
			return err
		}
	}
	return r.record(graph.SendEvent{Node: target, Payload: ev})
}

func (r *Recorder) Publish(s *graph.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = s
}

// Calls returns a copy of every applied command in order
func (r *Recorder) Calls() []graph.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]graph.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// Reset forgets recorded calls
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Events returns events delivered to target in order
func (r *Recorder) Events(target graph.NodeID) []graph.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []graph.Event
	for _, c := range r.calls {
		if ev, ok := c.(graph.SendEvent); ok && ev.Node == target {
			out = append(out, ev.Payload)
		}
	}
	return out
}

// Has reports whether the node is live in the engine
func (r *Recorder) Has(id graph.NodeID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.nodes[id]
	return ok
}

// NodeCount returns live nodes including the output
func (r *Recorder) NodeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// Snapshot returns the last published snapshot
func (r *Recorder) Snapshot() *graph.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

package graph

import (
	"errors"
	"fmt"
	"slices"
)

// errSkip marks commands that are valid no-ops under idempotent removal
var errSkip = errors.New("skip")

// State is the authoritative graph representation
// Owned by the synchronizer goroutine; never shared with the render path
type State struct {
	nodes   map[NodeID]Descriptor
	out     map[NodeID]map[NodeID]PortMap // from -> to -> ports
	in      map[NodeID]map[NodeID]struct{}
	version uint64
}

// NewState creates a graph holding only the output node
func NewState() *State {
	s := &State{
		nodes: make(map[NodeID]Descriptor),
		out:   make(map[NodeID]map[NodeID]PortMap),
		in:    make(map[NodeID]map[NodeID]struct{}),
	}
	s.nodes[OutputNode] = Describe(Output{})
	return s
}

// Has reports whether id is live
func (s *State) Has(id NodeID) bool {
	_, ok := s.nodes[id]
	return ok
}

// Len returns the node count including the output node
func (s *State) Len() int {
	return len(s.nodes)
}

// Version increments on every topology change
func (s *State) Version() uint64 {
	return s.version
}

// check validates cmd against current state without mutating
// Returns errSkip for idempotent no-ops
func (s *State) check(cmd Command) error {
	switch c := cmd.(type) {
	case InsertNode:
		if c.ID == InvalidNode || c.ID == OutputNode {
			return fmt.Errorf("%w: %s", ErrReservedNode, c.ID)
		}
		if c.Descriptor.Config == nil {
			return ErrInvalidDescriptor
		}
		if c.Descriptor.Kind() == KindOutput {
			return fmt.Errorf("%w: only %s is an output", ErrInvalidDescriptor, OutputNode)
		}
		if s.Has(c.ID) {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, c.ID)
		}

	case RemoveNode:
		if c.ID == OutputNode {
			return fmt.Errorf("%w: %s", ErrReservedNode, c.ID)
		}
		if !s.Has(c.ID) {
			return errSkip
		}

	case Connect:
		from, ok := s.nodes[c.From]
		if !ok {
			return fmt.Errorf("%w: source %s", ErrUnknownNode, c.From)
		}
		to, ok := s.nodes[c.To]
		if !ok {
			return fmt.Errorf("%w: sink %s", ErrUnknownNode, c.To)
		}
		if c.From == c.To {
			return fmt.Errorf("%w: %s", ErrSelfConnection, c.From)
		}
		_, outs := from.Config.Ports()
		ins, _ := to.Config.Ports()
		if err := c.Ports.validate(outs, ins); err != nil {
			return err
		}
		if s.reaches(c.To, c.From) {
			return fmt.Errorf("%w: %s->%s", ErrCycle, c.From, c.To)
		}

	case Disconnect:
		if _, ok := s.out[c.From][c.To]; !ok {
			return errSkip
		}

	case SendEvent:
		if !s.Has(c.Node) {
			return fmt.Errorf("%w: %s", ErrUnknownNode, c.Node)
		}
		if c.Payload == nil {
			return fmt.Errorf("%w: nil payload", ErrUnsupportedEvent)
		}

	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
	return nil
}

// apply mutates state for a command that passed check, reports topology change
func (s *State) apply(cmd Command) bool {
	switch c := cmd.(type) {
	case InsertNode:
		s.nodes[c.ID] = c.Descriptor

	case RemoveNode:
		for to := range s.out[c.ID] {
			delete(s.in[to], c.ID)
		}
		for from := range s.in[c.ID] {
			delete(s.out[from], c.ID)
		}
		delete(s.out, c.ID)
		delete(s.in, c.ID)
		delete(s.nodes, c.ID)

	case Connect:
		if s.out[c.From] == nil {
			s.out[c.From] = make(map[NodeID]PortMap)
		}
		if s.in[c.To] == nil {
			s.in[c.To] = make(map[NodeID]struct{})
		}
		s.out[c.From][c.To] = c.Ports.Clone()
		s.in[c.To][c.From] = struct{}{}

	case Disconnect:
		delete(s.out[c.From], c.To)
		delete(s.in[c.To], c.From)

	default:
		return false
	}
	s.version++
	return true
}

// reaches reports whether target is reachable from start along outgoing edges
func (s *State) reaches(start, target NodeID) bool {
	if start == target {
		return true
	}
	seen := map[NodeID]bool{start: true}
	stack := []NodeID{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range s.out[n] {
			if next == target {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// Snapshot builds an immutable copy with a deterministic topological order
func (s *State) Snapshot() *Snapshot {
	snap := &Snapshot{
		Version: s.version,
		Nodes:   make([]NodeInfo, 0, len(s.nodes)),
	}

	for id, d := range s.nodes {
		snap.Nodes = append(snap.Nodes, NodeInfo{ID: id, Descriptor: d})
	}
	slices.SortFunc(snap.Nodes, func(a, b NodeInfo) int { return cmpID(a.ID, b.ID) })

	for from, tos := range s.out {
		for to, ports := range tos {
			snap.Edges = append(snap.Edges, Edge{From: from, To: to, Ports: ports})
		}
	}
	slices.SortFunc(snap.Edges, func(a, b Edge) int {
		if c := cmpID(a.From, b.From); c != 0 {
			return c
		}
		return cmpID(a.To, b.To)
	})

	// Kahn with lowest-ID-first ready set
	inDegree := make(map[NodeID]int, len(s.nodes))
	for _, e := range snap.Edges {
		inDegree[e.To]++
	}
	var ready []NodeID
	for _, n := range snap.Nodes {
		if inDegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}
	snap.Order = make([]NodeID, 0, len(s.nodes))
	for len(ready) > 0 {
		slices.SortFunc(ready, cmpID)
		n := ready[0]
		ready = ready[1:]
		snap.Order = append(snap.Order, n)
		for to := range s.out[n] {
			inDegree[to]--
			if inDegree[to] == 0 {
				ready = append(ready, to)
			}
		}
	}
	return snap
}

func cmpID(a, b NodeID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

package graph

import "sort"

// NodeInfo is one node in a snapshot
type NodeInfo struct {
	ID         NodeID
	Descriptor Descriptor
}

// Edge is one connection in a snapshot
type Edge struct {
	From, To NodeID
	Ports    PortMap
}

// Snapshot is an immutable view of the graph published once per sync cycle
// Readers must not modify any slice
type Snapshot struct {
	Version uint64
	Nodes   []NodeInfo // Sorted by ID
	Edges   []Edge     // Sorted by From, then To
	Order   []NodeID   // Sources before sinks
}

// Node looks up a node descriptor
func (s *Snapshot) Node(id NodeID) (Descriptor, bool) {
	i := sort.Search(len(s.Nodes), func(i int) bool { return s.Nodes[i].ID >= id })
	if i < len(s.Nodes) && s.Nodes[i].ID == id {
		return s.Nodes[i].Descriptor, true
	}
	return Descriptor{}, false
}

// Inputs returns the edges feeding id
func (s *Snapshot) Inputs(id NodeID) []Edge {
	var edges []Edge
	for _, e := range s.Edges {
		if e.To == id {
			edges = append(edges, e)
		}
	}
	return edges
}

// Outputs returns the edges leaving id
func (s *Snapshot) Outputs(id NodeID) []Edge {
	i := sort.Search(len(s.Edges), func(i int) bool { return s.Edges[i].From >= id })
	j := i
	for j < len(s.Edges) && s.Edges[j].From == id {
		j++
	}
	return s.Edges[i:j]
}

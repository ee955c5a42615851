package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lixenwraith/voxpool/graph"
)

var ErrNotEffect = errors.New("descriptor is not an effect")

// Template is an immutable ordered list of effect descriptors
// Building it repeatedly yields independent node instances with identical topology
type Template struct {
	name      string
	descs     []graph.Descriptor
	signature string
}

// Declare validates descriptors and captures a copy
// Duplicate kinds are allowed and become independent nodes
func Declare(name string, descs ...graph.Descriptor) (*Template, error) {
	owned := make([]graph.Descriptor, len(descs))
	parts := make([]string, len(descs))
	for i, d := range descs {
		if !d.Kind().IsEffect() {
			return nil, fmt.Errorf("chain %q position %d: %w: %s", name, i, ErrNotEffect, d.Kind())
		}
		owned[i] = d
		parts[i] = fmt.Sprintf("%s%+v", d.Kind(), d.Config)
	}
	return &Template{
		name:      name,
		descs:     owned,
		signature: strings.Join(parts, "|"),
	}, nil
}

// Empty returns a template with no effects; voices connect straight to the sink
func Empty(name string) *Template {
	return &Template{name: name}
}

// Name returns the declared name
func (t *Template) Name() string { return t.name }

// Len returns the number of effect nodes
func (t *Template) Len() int { return len(t.descs) }

// Descriptors returns a copy of the descriptor sequence
func (t *Template) Descriptors() []graph.Descriptor {
	out := make([]graph.Descriptor, len(t.descs))
	copy(out, t.descs)
	return out
}

// Signature is a stable key of the descriptor sequence, independent of the name
func (t *Template) Signature() string { return t.signature }

// Equal reports whether both templates build identical node configurations
func (t *Template) Equal(o *Template) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.signature == o.signature
}

// Built is one concrete expansion of a template
type Built struct {
	Source graph.NodeID
	Sink   graph.NodeID
	Nodes  []graph.NodeID // Effect nodes in declared order
	Batch  graph.Batch
	ports  graph.PortMap
}

// Build allocates nodes and emits the insert/connect batch:
// source -> nodes[0] -> ... -> nodes[n-1] -> sink
// A zero source or sink leaves that end unconnected
func (t *Template) Build(alloc *graph.Allocator, source, sink graph.NodeID, ports graph.PortMap) Built {
	if ports == nil {
		ports = graph.StereoPorts
	}
	b := Built{
		Source: source,
		Sink:   sink,
		Nodes:  make([]graph.NodeID, len(t.descs)),
		Batch:  make(graph.Batch, 0, 2*len(t.descs)+1),
		ports:  ports,
	}

	for i, d := range t.descs {
		id := alloc.Next()
		b.Nodes[i] = id
		b.Batch.Insert(id, d)
	}

	prev := source
	for _, id := range b.Nodes {
		if prev != graph.InvalidNode {
			b.Batch.Connect(prev, id, ports)
		}
		prev = id
	}
	if prev != graph.InvalidNode && sink != graph.InvalidNode {
		b.Batch.Connect(prev, sink, ports)
	}
	return b
}

// Head returns the node the source feeds, the sink for an empty chain
func (b Built) Head() graph.NodeID {
	if len(b.Nodes) > 0 {
		return b.Nodes[0]
	}
	return b.Sink
}

// Teardown emits disconnects for the chain's connections then removes its nodes
func (b Built) Teardown() graph.Batch {
	var out graph.Batch
	prev := b.Source
	for _, id := range b.Nodes {
		if prev != graph.InvalidNode {
			out.Disconnect(prev, id)
		}
		prev = id
	}
	if prev != graph.InvalidNode && b.Sink != graph.InvalidNode {
		out.Disconnect(prev, b.Sink)
	}
	for i := len(b.Nodes) - 1; i >= 0; i-- {
		out.Remove(b.Nodes[i])
	}
	return out
}

// Endpoint positions used by Topology
const (
	PosSource = -1
	PosSink   = -2
)

// Link is a connection expressed by chain position instead of node ID
type Link struct {
	From, To int
}

// Topology returns the relative connection structure of the build
// Two builds of the same template return equal slices
func (b Built) Topology() []Link {
	pos := make(map[graph.NodeID]int, len(b.Nodes)+2)
	pos[b.Source] = PosSource
	pos[b.Sink] = PosSink
	for i, id := range b.Nodes {
		pos[id] = i
	}

	var links []Link
	for _, cmd := range b.Batch {
		if c, ok := cmd.(graph.Connect); ok {
			links = append(links, Link{From: pos[c.From], To: pos[c.To]})
		}
	}
	return links
}

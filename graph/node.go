package graph

import (
	"fmt"
	"sync/atomic"
)

// NodeID identifies a node in the live graph
// Allocated by producers so a batch can refer to nodes it inserts
type NodeID uint64

const (
	// InvalidNode is never allocated
	InvalidNode NodeID = 0

	// OutputNode is the reserved hardware output sink, present from construction
	OutputNode NodeID = 1
)

func (id NodeID) String() string {
	return fmt.Sprintf("n%d", uint64(id))
}

// Allocator hands out unique node IDs, safe for concurrent producers
type Allocator struct {
	next atomic.Uint64
}

// NewAllocator creates an allocator starting after the reserved IDs
func NewAllocator() *Allocator {
	a := &Allocator{}
	a.next.Store(uint64(OutputNode))
	return a
}

// Next returns a fresh ID
func (a *Allocator) Next() NodeID {
	return NodeID(a.next.Add(1))
}

// SampleRef is an opaque handle to a decoded sample owned by the asset layer
type SampleRef string

// Kind is the closed set of node types
type Kind uint8

const (
	KindInvalid Kind = iota
	KindSampler
	KindVolume
	KindGain
	KindPan
	KindBus
	KindOutput
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindSampler: "sampler",
	KindVolume:  "volume",
	KindGain:    "gain",
	KindPan:     "pan",
	KindBus:     "bus",
	KindOutput:  "output",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsEffect reports whether the kind may appear inside an effects chain
func (k Kind) IsEffect() bool {
	switch k {
	case KindVolume, KindGain, KindPan, KindBus:
		return true
	}
	return false
}

// Config is the per-kind construction configuration
// Every variant is a comparable struct so descriptors compare with ==
type Config interface {
	// Kind selects the node runtime
	Kind() Kind
	// Ports returns input and output channel counts for connection checks
	Ports() (in, out int)
}

// Sampler plays one sample at a time; playback parameters arrive as events
type Sampler struct {
	// Quality is the resampler quality used for speed changes, 0 selects the default
	Quality int
}

// Volume scales by Base^Volume, Silent mutes
type Volume struct {
	Volume float64
	Silent bool
}

// Gain scales amplitude by 1+Gain
type Gain struct {
	Gain float64
}

// Pan balances left/right, -1 left to +1 right
type Pan struct {
	Pan float64
}

// Bus sums its inputs and scales by 1+Gain; pools route voices through one
type Bus struct {
	Gain float64
}

// Output is the hardware sink; only OutputNode carries it
type Output struct{}

func (Sampler) Kind() Kind { return KindSampler }
func (Volume) Kind() Kind  { return KindVolume }
func (Gain) Kind() Kind    { return KindGain }
func (Pan) Kind() Kind     { return KindPan }
func (Bus) Kind() Kind     { return KindBus }
func (Output) Kind() Kind  { return KindOutput }

func (Sampler) Ports() (int, int) { return 0, 2 }
func (Volume) Ports() (int, int)  { return 2, 2 }
func (Gain) Ports() (int, int)    { return 2, 2 }
func (Pan) Ports() (int, int)     { return 2, 2 }
func (Bus) Ports() (int, int)     { return 2, 2 }
func (Output) Ports() (int, int)  { return 2, 0 }

// Descriptor is a node type plus its construction configuration
type Descriptor struct {
	Name   string // Optional label for diagnostics
	Config Config
}

// Describe wraps cfg in an unnamed descriptor
func Describe(cfg Config) Descriptor {
	return Descriptor{Config: cfg}
}

// Kind returns the configured kind, KindInvalid when Config is nil
func (d Descriptor) Kind() Kind {
	if d.Config == nil {
		return KindInvalid
	}
	return d.Config.Kind()
}

func (d Descriptor) String() string {
	if d.Name != "" {
		return fmt.Sprintf("%s(%s)", d.Kind(), d.Name)
	}
	return d.Kind().String()
}

// PortPair routes source output channel Out into sink input channel In
type PortPair struct {
	Out, In int
}

// PortMap lists channel routes for one connection
type PortMap []PortPair

// StereoPorts is the default left-to-left, right-to-right route
var StereoPorts = PortMap{{0, 0}, {1, 1}}

// Clone returns an independent copy
func (p PortMap) Clone() PortMap {
	if p == nil {
		return nil
	}
	out := make(PortMap, len(p))
	copy(out, p)
	return out
}

// Equal compares routes in order
func (p PortMap) Equal(o PortMap) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// IsStereo reports whether p is the identity stereo route
func (p PortMap) IsStereo() bool {
	return p.Equal(StereoPorts)
}

func (p PortMap) validate(outs, ins int) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty port map", ErrInvalidPorts)
	}
	for _, pp := range p {
		if pp.Out < 0 || pp.Out >= outs || pp.In < 0 || pp.In >= ins {
			return fmt.Errorf("%w: route %d->%d outside %d outputs/%d inputs", ErrInvalidPorts, pp.Out, pp.In, outs, ins)
		}
	}
	return nil
}

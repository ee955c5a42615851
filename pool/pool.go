package pool

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/voxpool/chain"
	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/parameter"
	"github.com/lixenwraith/voxpool/status"
)

// OutputSink routes a pool bus straight to the graph output
const OutputSink = "output"

// GrowthPolicy returns how many voices to add given current size and unmet demand
// The manager clamps the result to [1, max-size]
type GrowthPolicy func(size, deficit int) int

// GrowDemand adds exactly the missing voices
func GrowDemand(size, deficit int) int {
	return deficit
}

// GrowGeometric adds at least the deficit, up to doubling the pool in steps capped by GrowthCap
func GrowGeometric(size, deficit int) int {
	return max(deficit, min(size, parameter.GrowthCap))
}

// Config describes a pool at creation
type Config struct {
	Name     string
	Min      int
	Max      int
	Template *chain.Template // Nil is an empty chain
	Sampler  graph.Sampler
	Bus      graph.Bus // Pool bus gain
	Sink     string    // OutputSink, empty, or the name of another pool
	Growth   GrowthPolicy
	Headroom int // Idle voices kept ready while below Max
}

// DefaultConfig returns a pool config with default bounds and demand growth
func DefaultConfig(name string) Config {
	return Config{
		Name:    name,
		Min:     parameter.DefaultPoolMin,
		Max:     parameter.DefaultPoolMax,
		Sampler: graph.Sampler{Quality: parameter.RenderResampleQuality},
		Growth:  GrowDemand,
	}
}

func validBounds(lo, hi int) error {
	if lo < 0 || hi < 1 || lo > hi {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidBounds, lo, hi)
	}
	return nil
}

func (c Config) validate() error {
	if c.Name == "" || c.Name == OutputSink {
		return fmt.Errorf("invalid pool name %q", c.Name)
	}
	if c.Sink == c.Name {
		return fmt.Errorf("%w: pool %q routed to itself", ErrInvalidSink, c.Name)
	}
	if c.Headroom < 0 {
		return fmt.Errorf("negative headroom %d", c.Headroom)
	}
	return validBounds(c.Min, c.Max)
}

// VoiceState is a voice's lifecycle position
type VoiceState uint8

const (
	VoiceIdle VoiceState = iota
	VoiceAllocated
	VoicePlaying
	VoiceReleasing
)

func (s VoiceState) String() string {
	switch s {
	case VoiceIdle:
		return "idle"
	case VoiceAllocated:
		return "allocated"
	case VoicePlaying:
		return "playing"
	case VoiceReleasing:
		return "releasing"
	}
	return "unknown"
}

// Voice is one playback slot: a sampler node feeding a chain into the pool bus
type Voice struct {
	id       VoiceID
	pool     *Pool
	sampler  graph.NodeID
	config   graph.Sampler
	template *chain.Template
	chain    chain.Built

	state     VoiceState
	owner     *Handle
	priority  int
	looping   bool
	startedAt time.Time
	sequence  uint64
	settle    uint64 // Sync pass that applies the last bind or release
}

func (v *Voice) ID() VoiceID               { return v.id }
func (v *Voice) Sampler() graph.NodeID     { return v.sampler }
func (v *Voice) State() VoiceState         { return v.state }
func (v *Voice) Owner() *Handle            { return v.owner }
func (v *Voice) Nodes() []graph.NodeID     { return v.chain.Nodes }
func (v *Voice) Template() *chain.Template { return v.template }

// stale reports whether the voice was built for a different pool configuration
func (v *Voice) stale() bool {
	return v.config != v.pool.sampler || !v.template.Equal(v.pool.template)
}

// Pool is a named voice set, owned by the manager's sync goroutine
type Pool struct {
	name     string
	min      int
	max      int
	template *chain.Template
	sampler  graph.Sampler
	busCfg   graph.Bus
	bus      graph.NodeID
	sink     string
	sinkNode graph.NodeID
	growth   GrowthPolicy
	headroom int
	dynamic  bool

	voices  []*Voice
	waiting waitList

	size    *atomic.Int64
	idle    *atomic.Int64
	playing *atomic.Int64
	queued  *atomic.Int64
}

func newPool(cfg Config, reg *status.Registry) *Pool {
	tmpl := cfg.Template
	if tmpl == nil {
		tmpl = chain.Empty(cfg.Name)
	}
	growth := cfg.Growth
	if growth == nil {
		growth = GrowDemand
	}
	prefix := "pool." + cfg.Name + "."
	return &Pool{
		name:     cfg.Name,
		min:      cfg.Min,
		max:      cfg.Max,
		template: tmpl,
		sampler:  cfg.Sampler,
		busCfg:   cfg.Bus,
		sink:     cfg.Sink,
		growth:   growth,
		headroom: cfg.Headroom,
		size:     reg.Ints.Get(prefix + "size"),
		idle:     reg.Ints.Get(prefix + "idle"),
		playing:  reg.Ints.Get(prefix + "playing"),
		queued:   reg.Ints.Get(prefix + "waiting"),
	}
}

func (p *Pool) Name() string              { return p.name }
func (p *Pool) Bounds() (int, int)        { return p.min, p.max }
func (p *Pool) Size() int                 { return len(p.voices) }
func (p *Pool) Bus() graph.NodeID         { return p.bus }
func (p *Pool) Template() *chain.Template { return p.template }
func (p *Pool) Waiting() int              { return p.waiting.Len() }

// Voices returns the pool's voices in creation order
func (p *Pool) Voices() []*Voice {
	return append([]*Voice(nil), p.voices...)
}

func (p *Pool) idleVoice() *Voice {
	for _, v := range p.voices {
		if v.state == VoiceIdle {
			return v
		}
	}
	return nil
}

func (p *Pool) countIdle() int {
	n := 0
	for _, v := range p.voices {
		if v.state == VoiceIdle {
			n++
		}
	}
	return n
}

func (p *Pool) dropVoice(v *Voice) {
	for i, x := range p.voices {
		if x == v {
			p.voices = append(p.voices[:i], p.voices[i+1:]...)
			return
		}
	}
}

// Occupancy is a point-in-time view of one pool
type Occupancy struct {
	Name      string
	Min       int
	Max       int
	Size      int
	Idle      int
	Allocated int
	Playing   int
	Releasing int
	Waiting   int
	Dynamic   bool
}

func (p *Pool) occupancy() Occupancy {
	o := Occupancy{
		Name:    p.name,
		Min:     p.min,
		Max:     p.max,
		Size:    len(p.voices),
		Waiting: p.waiting.Len(),
		Dynamic: p.dynamic,
	}
	for _, v := range p.voices {
		switch v.state {
		case VoiceIdle:
			o.Idle++
		case VoiceAllocated:
			o.Allocated++
		case VoicePlaying:
			o.Playing++
		case VoiceReleasing:
			o.Releasing++
		}
	}
	p.size.Store(int64(o.Size))
	p.idle.Store(int64(o.Idle))
	p.playing.Store(int64(o.Playing))
	p.queued.Store(int64(o.Waiting))
	return o
}

// Package render runs the live audio graph: it implements graph.Engine for the
// synchronizer and beep.Streamer for the output device
package render

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/parameter"
	"github.com/lixenwraith/voxpool/queue"
	"github.com/lixenwraith/voxpool/status"
)

var ErrUnknownSample = errors.New("unknown sample")

// Source resolves sample references to decoded buffers; asset.Bank implements it
type Source interface {
	Get(ref graph.SampleRef) (*beep.Buffer, bool)
}

// input is one edge into a plan step
type input struct {
	node  *node
	ports graph.PortMap
}

type step struct {
	node   *node
	inputs []input
}

// plan is the compiled render order for one snapshot, immutable once published
type plan struct {
	version uint64
	steps   []step
	output  *node
}

var (
	_ graph.Engine           = (*Renderer)(nil)
	_ graph.CompletionSource = (*Renderer)(nil)
	_ beep.Streamer          = (*Renderer)(nil)
)

// Renderer owns node runtimes and renders the published plan
//
// Thread-Safety:
//   - Engine methods and Completions: sync goroutine only
//   - Position, MasterVolume, SetMasterVolume: any goroutine
//   - Stream: one caller at a time, never allocates, locks or waits;
//     Output hands the stream between drivers only after the previous one stopped
type Renderer struct {
	source Source
	rate   beep.SampleRate

	nodes    map[graph.NodeID]*node // Sync goroutine only
	mu       sync.RWMutex           // Guards samplers for Position callers
	samplers map[graph.NodeID]*sampler

	plan        atomic.Pointer[plan]
	active      atomic.Bool
	master      atomic.Uint64 // Float bits
	completions *queue.Ring[graph.Completion]

	statBlocks *atomic.Int64
	statNodes  *atomic.Int64
	statLost   *atomic.Int64
	statPeak   *status.AtomicFloat
}

// New creates an active renderer holding only the output node
func New(source Source, rate beep.SampleRate, reg *status.Registry) *Renderer {
	r := &Renderer{
		source:      source,
		rate:        rate,
		nodes:       make(map[graph.NodeID]*node),
		samplers:    make(map[graph.NodeID]*sampler),
		completions: queue.NewRing[graph.Completion](parameter.CompletionQueueSize),
		statBlocks:  reg.Ints.Get("render.blocks"),
		statNodes:   reg.Ints.Get("render.nodes"),
		statLost:    reg.Ints.Get("render.completions_lost"),
		statPeak:    reg.Floats.Get("render.peak"),
	}
	out := newNode(graph.OutputNode, graph.Describe(graph.Output{}), output{})
	r.nodes[graph.OutputNode] = out
	r.plan.Store(&plan{output: out, steps: []step{{node: out}}})
	r.SetMasterVolume(1)
	r.active.Store(true)
	r.statNodes.Store(1)
	return r
}

// SampleRate returns the render rate
func (r *Renderer) SampleRate() beep.SampleRate {
	return r.rate
}

// SetActive toggles whether structural changes are accepted
func (r *Renderer) SetActive(active bool) {
	r.active.Store(active)
}

// SetMasterVolume sets linear output gain, clamped to [0, 1]
func (r *Renderer) SetMasterVolume(v float64) {
	r.master.Store(math.Float64bits(min(max(v, 0), 1)))
}

// MasterVolume returns the linear output gain
func (r *Renderer) MasterVolume() float64 {
	return math.Float64frombits(r.master.Load())
}

// === graph.Engine ===

func (r *Renderer) Active() bool {
	return r.active.Load()
}

func (r *Renderer) Insert(id graph.NodeID, d graph.Descriptor) error {
	if !r.Active() {
		return graph.ErrInactive
	}
	if _, exists := r.nodes[id]; exists {
		return fmt.Errorf("%w: %s", graph.ErrDuplicateNode, id)
	}

	var run processor
	switch c := d.Config.(type) {
	case graph.Sampler:
		s := &sampler{id: id, done: r.complete}
		r.mu.Lock()
		r.samplers[id] = s
		r.mu.Unlock()
		run = s
	case graph.Volume, graph.Gain, graph.Pan:
		run = newEffect(c)
	case graph.Bus:
		b := &bus{base: c.Gain}
		b.gain.Store(math.Float64bits(c.Gain))
		run = b
	default:
		return fmt.Errorf("%w: %s", graph.ErrInvalidDescriptor, d)
	}
	r.nodes[id] = newNode(id, d, run)
	r.statNodes.Store(int64(len(r.nodes)))
	return nil
}

func (r *Renderer) Remove(id graph.NodeID) error {
	if !r.Active() {
		return graph.ErrInactive
	}
	delete(r.nodes, id)
	r.mu.Lock()
	delete(r.samplers, id)
	r.mu.Unlock()
	r.statNodes.Store(int64(len(r.nodes)))
	return nil
}

// Connect and Disconnect take effect through the next published snapshot
func (r *Renderer) Connect(from, to graph.NodeID, ports graph.PortMap) error {
	if !r.Active() {
		return graph.ErrInactive
	}
	return nil
}

func (r *Renderer) Disconnect(from, to graph.NodeID) error {
	if !r.Active() {
		return graph.ErrInactive
	}
	return nil
}

func (r *Renderer) SendEvent(target graph.NodeID, ev graph.Event) error {
	n, ok := r.nodes[target]
	if !ok {
		return fmt.Errorf("%w: %s", graph.ErrUnknownNode, target)
	}

	switch run := n.run.(type) {
	case *sampler:
		switch e := ev.(type) {
		case graph.Play:
			p, err := r.playback(n.desc.Config.(graph.Sampler), e)
			if err != nil {
				return err
			}
			run.pending.Store(p)
			return nil
		case graph.Stop:
			run.pending.Store(stopped)
			return nil
		}
	case *effect:
		switch e := ev.(type) {
		case graph.Reset:
			run.reset()
			return nil
		case graph.SetParam:
			if e.Param == run.param {
				run.set(e.Value)
				return nil
			}
		}
	case *bus:
		switch e := ev.(type) {
		case graph.Reset:
			run.gain.Store(math.Float64bits(run.base))
			return nil
		case graph.SetParam:
			if e.Param == graph.ParamGain {
				run.gain.Store(math.Float64bits(e.Value))
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s on %s", graph.ErrUnsupportedEvent, graph.EventName(ev), n.desc)
}

// playback builds buffer -> loop -> resample -> gain for one Play
func (r *Renderer) playback(cfg graph.Sampler, e graph.Play) (*playback, error) {
	buf, ok := r.source.Get(e.Sample)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSample, e.Sample)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: %q is empty", ErrUnknownSample, e.Sample)
	}

	var s beep.Streamer = buf.Streamer(0, buf.Len())
	switch {
	case e.Loops == graph.LoopForever:
		s = beep.Loop(-1, buf.Streamer(0, buf.Len()))
	case e.Loops > 1:
		s = beep.Loop(e.Loops, buf.Streamer(0, buf.Len()))
	}

	speed := e.Speed
	if speed <= 0 {
		speed = 1
	}
	if speed != 1 {
		quality := cfg.Quality
		if quality <= 0 {
			quality = parameter.RenderResampleQuality
		}
		s = beep.ResampleRatio(quality, speed, s)
	}
	if e.Gain != 1 {
		s = &effects.Gain{Streamer: s, Gain: e.Gain - 1}
	}
	return &playback{stream: s, sequence: e.Sequence}, nil
}

// Publish compiles the snapshot into a plan and swaps it in
func (r *Renderer) Publish(snap *graph.Snapshot) {
	if snap == nil {
		return
	}
	p := &plan{version: snap.Version, steps: make([]step, 0, len(snap.Order))}
	for _, id := range snap.Order {
		n, ok := r.nodes[id]
		if !ok {
			log.Printf("render: snapshot v%d names missing node %s", snap.Version, id)
			continue
		}
		st := step{node: n}
		for _, e := range snap.Inputs(id) {
			if src, ok := r.nodes[e.From]; ok {
				st.inputs = append(st.inputs, input{node: src, ports: e.Ports})
			}
		}
		p.steps = append(p.steps, st)
		if id == graph.OutputNode {
			p.output = n
		}
	}
	if p.output == nil {
		p.output = r.nodes[graph.OutputNode]
	}
	r.plan.Store(p)
}

// Version returns the snapshot version currently rendered
func (r *Renderer) Version() uint64 {
	return r.plan.Load().version
}

// === Completions ===

func (r *Renderer) complete(c graph.Completion) {
	r.completions.Push(c)
}

// Completions implements graph.CompletionSource
func (r *Renderer) Completions(dst []graph.Completion) []graph.Completion {
	if lost := r.completions.Overwritten(); lost > 0 {
		r.statLost.Store(int64(lost))
	}
	return r.completions.Consume(dst)
}

// Position reports the sequence a sampler is rendering and the frames rendered so far
func (r *Renderer) Position(id graph.NodeID) (sequence uint64, frames int64, ok bool) {
	r.mu.RLock()
	s, ok := r.samplers[id]
	r.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	return s.playing.Load(), s.position.Load(), true
}

// === beep.Streamer ===

// Stream renders the current plan in blocks; it always fills samples
func (r *Renderer) Stream(samples [][2]float64) (int, bool) {
	master := r.MasterVolume()
	for off := 0; off < len(samples); off += parameter.RenderBlockFrames {
		end := min(off+parameter.RenderBlockFrames, len(samples))
		r.renderBlock(samples[off:end], master)
	}
	return len(samples), true
}

func (r *Renderer) renderBlock(dst [][2]float64, master float64) {
	p := r.plan.Load()
	n := len(dst)
	for _, st := range p.steps {
		nd := st.node
		mix(nd.in[:n], st.inputs)
		nd.run.process(nd.in[:n], nd.out[:n])
	}

	copy(dst, p.output.out[:n])
	d := flat(dst)
	if master != 1 {
		vecmath.ScaleBlockInPlace(d, master)
	}
	r.statPeak.Set(vecmath.MaxAbs(d))
	r.statBlocks.Add(1)
}

func (r *Renderer) Err() error {
	return nil
}

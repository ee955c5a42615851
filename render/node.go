package render

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/cwbudde/algo-vecmath"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/parameter"
)

// flat views stereo frames as interleaved float64s for block math
func flat(frames [][2]float64) []float64 {
	if len(frames) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&frames[0])), 2*len(frames))
}

// processor is a node runtime; process runs on the render goroutine only
type processor interface {
	process(in, out [][2]float64)
}

// node is one live graph node with scratch buffers sized at insert
type node struct {
	id   graph.NodeID
	desc graph.Descriptor
	in   [][2]float64
	out  [][2]float64
	run  processor
}

func newNode(id graph.NodeID, d graph.Descriptor, run processor) *node {
	return &node{
		id:   id,
		desc: d,
		in:   make([][2]float64, parameter.RenderBlockFrames),
		out:  make([][2]float64, parameter.RenderBlockFrames),
		run:  run,
	}
}

// === Sampler ===

// playback is one Play event turned into a streamer chain
// A playback with a nil stream is a stop request
type playback struct {
	stream   beep.Streamer
	sequence uint64
}

var stopped = &playback{}

type sampler struct {
	id      graph.NodeID
	pending atomic.Pointer[playback] // Written by the sync goroutine
	current *playback

	playing  atomic.Uint64 // Sequence being rendered, 0 when silent
	position atomic.Int64  // Frames rendered of the current playback
	done     func(graph.Completion)
}

func (s *sampler) process(_, out [][2]float64) {
	if p := s.pending.Swap(nil); p != nil {
		s.current = p
		s.position.Store(0)
		if p.stream == nil {
			s.current = nil
		}
		s.playing.Store(p.sequence)
	}

	filled := 0
	if s.current != nil {
		for filled < len(out) {
			n, ok := s.current.stream.Stream(out[filled:])
			filled += n
			if !ok || n == 0 {
				seq := s.current.sequence
				s.current = nil
				s.playing.Store(0)
				s.done(graph.Completion{Node: s.id, Sequence: seq})
				break
			}
		}
		s.position.Add(int64(filled))
	}
	clear(out[filled:])
}

// === Effects ===

// portStreamer feeds a node's mixed input to a wrapped beep effect
type portStreamer struct {
	frames [][2]float64
}

func (p *portStreamer) Stream(samples [][2]float64) (int, bool) {
	return copy(samples, p.frames), true
}

func (p *portStreamer) Err() error { return nil }

// effect wraps a beep effect; value carries the dynamic parameter as float bits
type effect struct {
	src   *portStreamer
	fx    beep.Streamer
	param graph.Param
	base  float64
	value atomic.Uint64
	apply func(v float64)
}

func (e *effect) set(v float64) { e.value.Store(math.Float64bits(v)) }
func (e *effect) reset()        { e.set(e.base) }

func (e *effect) process(in, out [][2]float64) {
	e.apply(math.Float64frombits(e.value.Load()))
	e.src.frames = in
	e.fx.Stream(out)
}

func newEffect(cfg graph.Config) *effect {
	src := &portStreamer{}
	e := &effect{src: src}
	switch c := cfg.(type) {
	case graph.Volume:
		fx := &effects.Volume{Streamer: src, Base: parameter.RenderVolumeBase, Volume: c.Volume, Silent: c.Silent}
		e.fx, e.param, e.base = fx, graph.ParamVolume, c.Volume
		e.apply = func(v float64) { fx.Volume = v }
	case graph.Gain:
		fx := &effects.Gain{Streamer: src, Gain: c.Gain}
		e.fx, e.param, e.base = fx, graph.ParamGain, c.Gain
		e.apply = func(v float64) { fx.Gain = v }
	case graph.Pan:
		fx := &effects.Pan{Streamer: src, Pan: c.Pan}
		e.fx, e.param, e.base = fx, graph.ParamPan, c.Pan
		e.apply = func(v float64) { fx.Pan = v }
	default:
		return nil
	}
	e.reset()
	return e
}

// === Bus and output ===

// bus passes its summed input through, scaled by 1+gain
type bus struct {
	base float64
	gain atomic.Uint64
}

func (b *bus) process(in, out [][2]float64) {
	copy(out, in)
	if g := math.Float64frombits(b.gain.Load()); g != 0 {
		vecmath.ScaleBlockInPlace(flat(out), 1+g)
	}
}

type output struct{}

func (output) process(in, out [][2]float64) {
	copy(out, in)
}

// mix sums every input edge into dst, routing channels by port map
func mix(dst [][2]float64, inputs []input) {
	clear(dst)
	d := flat(dst)
	for _, src := range inputs {
		frames := src.node.out[:len(dst)]
		if src.ports.IsStereo() {
			vecmath.AddBlockInPlace(d, flat(frames))
			continue
		}
		for _, pp := range src.ports {
			for i := range frames {
				dst[i][pp.In] += frames[i][pp.Out]
			}
		}
	}
}

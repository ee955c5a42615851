package render

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/lixenwraith/voxpool/asset"
	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/parameter"
	"github.com/lixenwraith/voxpool/status"
)

const tol = 1e-3

// rig drives a renderer through a real synchronizer
type rig struct {
	t     *testing.T
	reg   *status.Registry
	bank  *asset.Bank
	r     *Renderer
	queue *graph.CommandQueue
	sync  *graph.Synchronizer
	alloc *graph.Allocator
}

func newRig(t *testing.T) *rig {
	t.Helper()
	reg := status.NewRegistry()
	bank := asset.NewBank(parameter.RenderSampleRate)
	r := New(bank, parameter.RenderSampleRate, reg)
	q := graph.NewCommandQueue()
	return &rig{t: t, reg: reg, bank: bank, r: r, queue: q, sync: graph.NewSynchronizer(q, r, reg), alloc: graph.NewAllocator()}
}

// constant adds a sample of n frames at level l/r
func (g *rig) constant(ref graph.SampleRef, n int, l, r float64) {
	g.t.Helper()
	frames := make([][2]float64, n)
	for i := range frames {
		frames[i] = [2]float64{l, r}
	}
	if err := g.bank.Add(ref, frames, parameter.RenderSampleRate); err != nil {
		g.t.Fatalf("Add(%s) failed: %v", ref, err)
	}
}

func (g *rig) apply(b graph.Batch) graph.SyncReport {
	g.t.Helper()
	g.queue.SubmitBatch(b)
	return g.sync.DrainAndApply()
}

// chain inserts sampler -> effects... -> output and returns the sampler id
func (g *rig) chain(effects ...graph.Config) graph.NodeID {
	g.t.Helper()
	var b graph.Batch
	src := g.alloc.Next()
	b.Insert(src, graph.Describe(graph.Sampler{}))
	prev := src
	for _, cfg := range effects {
		id := g.alloc.Next()
		b.Insert(id, graph.Describe(cfg))
		b.Connect(prev, id, nil)
		prev = id
	}
	b.Connect(prev, graph.OutputNode, nil)
	if rep := g.apply(b); rep.Rejected != 0 {
		g.t.Fatalf("Expected chain applied, got %+v", rep)
	}
	return src
}

func (g *rig) play(node graph.NodeID, ev graph.Play) graph.SyncReport {
	var b graph.Batch
	b.Send(node, ev)
	return g.apply(b)
}

func render(r *Renderer, n int) [][2]float64 {
	out := make([][2]float64, n)
	r.Stream(out)
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) <= tol }

// TestRenderPlaysAndCompletes tests a one-shot sample renders then reports its sequence once
func TestRenderPlaysAndCompletes(t *testing.T) {
	g := newRig(t)
	g.constant("dc", 100, 0.5, 0.25)
	s := g.chain()
	g.play(s, graph.Play{Sample: "dc", Gain: 1, Loops: 1, Sequence: 7})

	out := render(g.r, 256)
	if !near(out[0][0], 0.5) || !near(out[99][1], 0.25) {
		t.Errorf("Expected sample level in first 100 frames, got %v %v", out[0], out[99])
	}
	if out[100] != ([2]float64{}) || out[255] != ([2]float64{}) {
		t.Errorf("Expected silence after the sample, got %v", out[100])
	}

	done := g.r.Completions(nil)
	if len(done) != 1 || done[0] != (graph.Completion{Node: s, Sequence: 7}) {
		t.Fatalf("Expected completion {%s 7}, got %v", s, done)
	}
	render(g.r, 256)
	if more := g.r.Completions(nil); len(more) != 0 {
		t.Errorf("Expected a single completion, got %v", more)
	}
}

// TestRenderLoopAndStop tests forever loops never complete and Stop silences the next block
func TestRenderLoopAndStop(t *testing.T) {
	g := newRig(t)
	g.constant("tick", 64, 0.3, 0.3)
	s := g.chain()
	g.play(s, graph.Play{Sample: "tick", Gain: 1, Loops: graph.LoopForever, Sequence: 1})

	out := render(g.r, 2000)
	if !near(out[1999][0], 0.3) {
		t.Errorf("Expected loop still sounding, got %v", out[1999])
	}
	if done := g.r.Completions(nil); len(done) != 0 {
		t.Errorf("Expected no completion for a forever loop, got %v", done)
	}
	if seq, frames, ok := g.r.Position(s); !ok || seq != 1 || frames != 2000 {
		t.Errorf("Expected position seq 1 at 2000 frames, got %d %d %t", seq, frames, ok)
	}

	var b graph.Batch
	b.Send(s, graph.Stop{})
	g.apply(b)
	out = render(g.r, 64)
	if out[0] != ([2]float64{}) {
		t.Errorf("Expected silence after Stop, got %v", out[0])
	}
	if done := g.r.Completions(nil); len(done) != 0 {
		t.Errorf("Expected Stop not reported as completion, got %v", done)
	}
}

// TestRenderStreamDoesNotAllocate tests steady-state rendering of a looping voice through an effect and a bus
func TestRenderStreamDoesNotAllocate(t *testing.T) {
	g := newRig(t)
	g.constant("tick", 300, 0.3, 0.3)

	var b graph.Batch
	bus := g.alloc.Next()
	b.Insert(bus, graph.Describe(graph.Bus{}))
	b.Connect(bus, graph.OutputNode, nil)
	g.apply(b)

	b = graph.Batch{}
	src := g.alloc.Next()
	fx := g.alloc.Next()
	b.Insert(src, graph.Describe(graph.Sampler{}))
	b.Insert(fx, graph.Describe(graph.Volume{Volume: -1}))
	b.Connect(src, fx, nil)
	b.Connect(fx, bus, nil)
	if rep := g.apply(b); rep.Rejected != 0 {
		t.Fatalf("Expected voice chain applied, got %+v", rep)
	}
	g.play(src, graph.Play{Sample: "tick", Gain: 1, Loops: graph.LoopForever, Sequence: 1})

	out := make([][2]float64, 1024)
	g.r.Stream(out) // Adopt the pending playback
	allocs := testing.AllocsPerRun(50, func() {
		g.r.Stream(out)
	})
	if allocs != 0 {
		t.Errorf("Expected no allocations per Stream, got %v", allocs)
	}
	if out[0] == ([2]float64{}) {
		t.Error("Expected the looping voice audible")
	}
}

// TestRenderCountedLoops tests Loops plays the sample that many times
func TestRenderCountedLoops(t *testing.T) {
	g := newRig(t)
	g.constant("blip", 50, 0.2, 0.2)
	s := g.chain()
	g.play(s, graph.Play{Sample: "blip", Gain: 1, Loops: 3, Sequence: 2})

	out := render(g.r, 200)
	if !near(out[149][0], 0.2) || out[150] != ([2]float64{}) {
		t.Errorf("Expected 150 frames of sound, got %v then %v", out[149], out[150])
	}
}

// TestRenderPlaybackParams tests gain and speed
func TestRenderPlaybackParams(t *testing.T) {
	g := newRig(t)
	g.constant("dc", 400, 0.5, 0.5)
	s := g.chain()
	g.play(s, graph.Play{Sample: "dc", Gain: 0.5, Speed: 2, Loops: 1, Sequence: 3})

	out := render(g.r, 400)
	if !near(out[50][0], 0.25) {
		t.Errorf("Expected half gain, got %v", out[50])
	}
	if out[300] != ([2]float64{}) {
		t.Errorf("Expected double speed to finish early, got %v at 300", out[300])
	}
	if done := g.r.Completions(nil); len(done) != 1 {
		t.Errorf("Expected completion at double speed, got %v", done)
	}
}

// TestRenderEffects tests volume, gain and pan nodes and their dynamic parameters
func TestRenderEffects(t *testing.T) {
	g := newRig(t)
	g.constant("dc", 4096, 0.4, 0.4)
	s := g.chain(graph.Volume{Volume: -1}, graph.Gain{Gain: 1}, graph.Pan{Pan: 1})
	g.play(s, graph.Play{Sample: "dc", Gain: 1, Loops: 1, Sequence: 1})

	// 0.4 * 2^-1 * 2 = 0.4, hard right removes the left channel
	out := render(g.r, 8)
	if !near(out[0][0], 0) || !near(out[0][1], 0.4) {
		t.Errorf("Expected [0 0.4], got %v", out[0])
	}

	pan := s + 3
	var b graph.Batch
	b.Send(pan, graph.SetParam{Param: graph.ParamPan, Value: 0})
	b.Send(s+1, graph.SetParam{Param: graph.ParamVolume, Value: 0})
	g.apply(b)
	out = render(g.r, 8)
	if !near(out[0][0], 0.8) || !near(out[0][1], 0.8) {
		t.Errorf("Expected centered 0.8 after SetParam, got %v", out[0])
	}

	b = nil
	b.Send(pan, graph.Reset{})
	b.Send(s+1, graph.Reset{})
	g.apply(b)
	out = render(g.r, 8)
	if !near(out[0][0], 0) || !near(out[0][1], 0.4) {
		t.Errorf("Expected construction values after Reset, got %v", out[0])
	}
}

// TestRenderBusSumsVoices tests two samplers into one bus with gain
func TestRenderBusSumsVoices(t *testing.T) {
	g := newRig(t)
	g.constant("a", 1000, 0.1, 0.1)
	g.constant("b", 1000, 0.2, -0.2)

	var b graph.Batch
	bus, v1, v2 := g.alloc.Next(), g.alloc.Next(), g.alloc.Next()
	b.Insert(bus, graph.Describe(graph.Bus{Gain: 1}))
	b.Connect(bus, graph.OutputNode, nil)
	b.Insert(v1, graph.Describe(graph.Sampler{}))
	b.Insert(v2, graph.Describe(graph.Sampler{}))
	b.Connect(v1, bus, nil)
	b.Connect(v2, bus, nil)
	b.Send(v1, graph.Play{Sample: "a", Gain: 1, Loops: 1, Sequence: 1})
	b.Send(v2, graph.Play{Sample: "b", Gain: 1, Loops: 1, Sequence: 1})
	g.apply(b)

	out := render(g.r, 4)
	if !near(out[0][0], 0.6) || !near(out[0][1], -0.2) {
		t.Errorf("Expected (0.1+0.2)*2 and (0.1-0.2)*2, got %v", out[0])
	}
	if peak := g.reg.Floats.Get("render.peak").Get(); !near(peak, 0.6) {
		t.Errorf("Expected peak 0.6, got %f", peak)
	}
}

// TestRenderPortRouting tests a crossed port map
func TestRenderPortRouting(t *testing.T) {
	g := newRig(t)
	g.constant("left", 100, 0.5, 0)
	var b graph.Batch
	s := g.alloc.Next()
	b.Insert(s, graph.Describe(graph.Sampler{}))
	b.Connect(s, graph.OutputNode, graph.PortMap{{Out: 0, In: 1}})
	b.Send(s, graph.Play{Sample: "left", Gain: 1, Loops: 1, Sequence: 1})
	g.apply(b)

	out := render(g.r, 4)
	if !near(out[0][0], 0) || !near(out[0][1], 0.5) {
		t.Errorf("Expected left routed to right, got %v", out[0])
	}
}

// TestRenderMasterVolume tests output scaling and clamping
func TestRenderMasterVolume(t *testing.T) {
	g := newRig(t)
	g.constant("dc", 100, 0.5, 0.5)
	s := g.chain()
	g.play(s, graph.Play{Sample: "dc", Gain: 1, Loops: 1, Sequence: 1})

	g.r.SetMasterVolume(0.5)
	if out := render(g.r, 4); !near(out[0][0], 0.25) {
		t.Errorf("Expected half master volume, got %v", out[0])
	}
	g.r.SetMasterVolume(3)
	if v := g.r.MasterVolume(); v != 1 {
		t.Errorf("Expected clamp to 1, got %f", v)
	}
}

// TestRenderRejections tests unknown samples and unsupported events are rejected
func TestRenderRejections(t *testing.T) {
	g := newRig(t)
	s := g.chain(graph.Gain{})

	if err := g.r.SendEvent(s, graph.Play{Sample: "missing", Gain: 1, Sequence: 1}); !errors.Is(err, ErrUnknownSample) {
		t.Errorf("Expected ErrUnknownSample, got %v", err)
	}
	if err := g.r.SendEvent(s+1, graph.Play{Sample: "x"}); !errors.Is(err, graph.ErrUnsupportedEvent) {
		t.Errorf("Expected Play on effect unsupported, got %v", err)
	}
	if err := g.r.SendEvent(s+1, graph.SetParam{Param: graph.ParamPan, Value: 1}); !errors.Is(err, graph.ErrUnsupportedEvent) {
		t.Errorf("Expected mismatched param unsupported, got %v", err)
	}
	if err := g.r.SendEvent(999, graph.Stop{}); !errors.Is(err, graph.ErrUnknownNode) {
		t.Errorf("Expected ErrUnknownNode, got %v", err)
	}

	rep := g.play(s, graph.Play{Sample: "missing", Gain: 1, Sequence: 2})
	if rep.Rejected != 1 {
		t.Errorf("Expected synchronizer to reject the Play, got %+v", rep)
	}
}

// TestRenderInactiveDefers tests commands wait while the renderer is inactive
func TestRenderInactiveDefers(t *testing.T) {
	g := newRig(t)
	g.r.SetActive(false)

	var b graph.Batch
	b.Insert(g.alloc.Next(), graph.Describe(graph.Sampler{}))
	rep := g.apply(b)
	if rep.Deferred != 1 || rep.Applied != 0 {
		t.Fatalf("Expected insert deferred, got %+v", rep)
	}

	g.r.SetActive(true)
	rep = g.sync.DrainAndApply()
	if rep.Applied != 1 || rep.Deferred != 0 {
		t.Errorf("Expected insert applied after reactivation, got %+v", rep)
	}
	if n := g.reg.Ints.Get("render.nodes").Load(); n != 2 {
		t.Errorf("Expected 2 nodes, got %d", n)
	}
}

// TestRenderRemovedNodeSilent tests a removed chain stops contributing after the next publish
func TestRenderRemovedNodeSilent(t *testing.T) {
	g := newRig(t)
	g.constant("dc", 1000, 0.5, 0.5)
	s := g.chain()
	g.play(s, graph.Play{Sample: "dc", Gain: 1, Loops: 1, Sequence: 1})
	render(g.r, 4)

	var b graph.Batch
	b.Disconnect(s, graph.OutputNode)
	b.Remove(s)
	g.apply(b)
	if out := render(g.r, 4); out[0] != ([2]float64{}) {
		t.Errorf("Expected silence after removal, got %v", out[0])
	}
	if _, _, ok := g.r.Position(s); ok {
		t.Error("Expected no position for a removed sampler")
	}
}

// TestOutputNullDriver tests a muted output renders on its own and restarts
func TestOutputNullDriver(t *testing.T) {
	g := newRig(t)
	o := NewOutput(g.r, 50*time.Millisecond, true, g.reg)
	if err := o.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if g.r.Active() {
		t.Error("Expected renderer inactive between Init and Start")
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !g.r.Active() || o.Device() {
		t.Error("Expected active renderer on the null driver")
	}

	blocks := g.reg.Ints.Get("render.blocks")
	deadline := time.Now().Add(2 * time.Second)
	for blocks.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if blocks.Load() == 0 {
		t.Fatal("Expected null driver to render blocks")
	}

	if err := o.Restart(20 * time.Millisecond); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if !g.r.Active() {
		t.Error("Expected renderer active after restart")
	}
	if n := g.reg.Ints.Get("render.restarts").Load(); n != 1 {
		t.Errorf("Expected 1 restart, got %d", n)
	}

	if err := o.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if g.r.Active() {
		t.Error("Expected renderer inactive after stop")
	}
}

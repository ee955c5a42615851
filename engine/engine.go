// Package engine owns the sync point: one goroutine that ticks the pool manager,
// applies buffered graph commands and dispatches notifications at a fixed cadence
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/voxpool/chain"
	"github.com/lixenwraith/voxpool/clock"
	"github.com/lixenwraith/voxpool/event"
	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/parameter"
	"github.com/lixenwraith/voxpool/pool"
	"github.com/lixenwraith/voxpool/status"
)

var (
	ErrClosed        = errors.New("engine closed")
	ErrNoSample      = errors.New("no sample")
	ErrDuplicateName = errors.New("effects chain already declared")
)

// Positioner is implemented by graph engines that expose sampler playheads
type Positioner interface {
	Position(id graph.NodeID) (sequence uint64, frames int64, ok bool)
}

// Options configures an Engine; zero values select defaults from parameter
type Options struct {
	Interval              time.Duration
	Clock                 clock.Clock
	Registry              *status.Registry
	NotificationQueueSize int
	Pools                 []pool.Config // Created during Init
}

// Engine wires the command queue, synchronizer, pool manager and notification bus
//
// Thread-Safety:
//   - Authoring API and queries: any goroutine
//   - Cycle: serialized internally, driven by the loop or by tests
//   - Subscribe: before Start
type Engine struct {
	graph    graph.Engine
	source   graph.CompletionSource // Nil when the graph engine reports no completions
	queue    *graph.CommandQueue
	sync     *graph.Synchronizer
	manager  *pool.Manager
	bus      *event.Bus
	clock    clock.Clock
	reg      *status.Registry
	interval time.Duration
	preload  []pool.Config

	tmplMu    sync.RWMutex
	templates map[string]*chain.Template

	cycleMu sync.Mutex
	done    []graph.Completion
	last    atomic.Pointer[Report]

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
	closed   atomic.Bool

	// Cached metric pointers
	statCycles    *atomic.Int64
	statOverruns  *atomic.Int64
	statCycleTime *status.AtomicFloat
	statCycleMax  *status.AtomicFloat
	statRunning   *atomic.Bool
}

// New builds an engine driving g; the pool manager is registered for rejected commands
func New(g graph.Engine, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = parameter.SyncInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Registry == nil {
		opts.Registry = status.NewRegistry()
	}
	if opts.NotificationQueueSize <= 0 {
		opts.NotificationQueueSize = parameter.NotificationQueueSize
	}

	reg := opts.Registry
	q := graph.NewCommandQueue()
	bus := event.NewBus(opts.NotificationQueueSize, reg)
	e := &Engine{
		graph:     g,
		queue:     q,
		sync:      graph.NewSynchronizer(q, g, reg),
		bus:       bus,
		clock:     opts.Clock,
		reg:       reg,
		interval:  opts.Interval,
		preload:   opts.Pools,
		templates: make(map[string]*chain.Template),
		stopChan:  make(chan struct{}),

		statCycles:    reg.Ints.Get("engine.cycles"),
		statOverruns:  reg.Ints.Get("engine.overruns"),
		statCycleTime: reg.Floats.Get("engine.cycle_ms"),
		statCycleMax:  reg.Floats.Get("engine.cycle_ms_max"),
		statRunning:   reg.Bools.Get("engine.running"),
	}
	if src, ok := g.(graph.CompletionSource); ok {
		e.source = src
	}
	e.manager = pool.NewManager(q, graph.NewAllocator(), bus, opts.Clock, reg)
	e.sync.AddReporter(e.manager)
	return e
}

// === Authoring API ===

// SubmitPlayRequest queues a request for the named pool
// Unknown pools are reported asynchronously as RequestDropped
func (e *Engine) SubmitPlayRequest(poolName string, sample graph.SampleRef, priority int, lifetime time.Duration, params pool.Params) (*pool.Handle, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if sample == "" {
		return nil, ErrNoSample
	}
	return e.manager.Submit(poolName, sample, priority, lifetime, params), nil
}

// Play routes a request to the dynamic pool for tmpl, creating it on demand
// A nil template selects the empty chain
func (e *Engine) Play(sample graph.SampleRef, tmpl *chain.Template, priority int, lifetime time.Duration, params pool.Params) (*pool.Handle, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if sample == "" {
		return nil, ErrNoSample
	}
	return e.manager.Play(sample, tmpl, priority, lifetime, params), nil
}

// Cancel withdraws a waiting request; no effect once assigned
func (e *Engine) Cancel(h *pool.Handle) {
	e.manager.Cancel(h)
}

// Stop ends a request, releasing its voice or removing it from the wait list
func (e *Engine) Stop(h *pool.Handle) {
	e.manager.Stop(h)
}

// StopVoice stops whatever plays on a voice
func (e *Engine) StopVoice(id pool.VoiceID) {
	e.manager.StopVoice(id)
}

// SetPoolBounds changes a pool's size range; shrinking stops the lowest priority voices
func (e *Engine) SetPoolBounds(name string, lo, hi int) error {
	return e.manager.SetBounds(name, lo, hi)
}

// DeclareEffectsChain validates and registers a named template
func (e *Engine) DeclareEffectsChain(name string, descs ...graph.Descriptor) (*chain.Template, error) {
	tmpl, err := chain.Declare(name, descs...)
	if err != nil {
		return nil, err
	}
	e.tmplMu.Lock()
	defer e.tmplMu.Unlock()
	if prev, ok := e.templates[name]; ok && !prev.Equal(tmpl) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	e.templates[name] = tmpl
	return tmpl, nil
}

// Template returns a chain declared earlier
func (e *Engine) Template(name string) (*chain.Template, bool) {
	e.tmplMu.RLock()
	defer e.tmplMu.RUnlock()
	t, ok := e.templates[name]
	return t, ok
}

// CreatePool queues a pool creation; configuration errors are returned synchronously
func (e *Engine) CreatePool(cfg pool.Config) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.manager.CreatePool(cfg)
}

// RemovePool stops every voice of the pool and removes its nodes
func (e *Engine) RemovePool(name string) {
	e.manager.RemovePool(name)
}

// SetPoolChain swaps the pool's template; voices rebuild when they next go idle
// A nil sampler keeps the current sampler configuration
func (e *Engine) SetPoolChain(name string, tmpl *chain.Template, sampler *graph.Sampler) {
	e.manager.SetChain(name, tmpl, sampler)
}

// === Queries ===

// Occupancy returns the stats published at the end of the last cycle
func (e *Engine) Occupancy(name string) (pool.Occupancy, bool) {
	return e.manager.Occupancy(name)
}

// Pools returns occupancy of every pool, sorted by name
func (e *Engine) Pools() []pool.Occupancy {
	return e.manager.Pools()
}

// Snapshot returns the last published graph
func (e *Engine) Snapshot() *graph.Snapshot {
	return e.sync.Snapshot()
}

// Position returns frames played by the request's current playback
// Not ok until the render side has started this request's playback
func (e *Engine) Position(h *pool.Handle) (int64, bool) {
	pos, ok := e.graph.(Positioner)
	if !ok {
		return 0, false
	}
	node, ok := h.Sampler()
	if !ok {
		return 0, false
	}
	want, ok := h.Sequence()
	if !ok {
		return 0, false
	}
	seq, frames, ok := pos.Position(node)
	if !ok || seq != want {
		return 0, false
	}
	return frames, true
}

// Subscribe registers a notification handler, handlers run on the sync goroutine
func (e *Engine) Subscribe(h event.Handler) {
	e.bus.Register(h)
}

// Registry returns the metrics registry shared by every component
func (e *Engine) Registry() *status.Registry {
	return e.reg
}

// LastReport returns the outcome of the most recent cycle
func (e *Engine) LastReport() (Report, bool) {
	r := e.last.Load()
	if r == nil {
		return Report{}, false
	}
	return *r, true
}

package pool

import (
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/voxpool/chain"
	"github.com/lixenwraith/voxpool/clock"
	"github.com/lixenwraith/voxpool/event"
	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/parameter"
	"github.com/lixenwraith/voxpool/queue"
	"github.com/lixenwraith/voxpool/status"
)

// Manager owns every pool and voice and translates scheduling decisions into graph commands
//
// Thread-Safety:
//   - Submit, Play, Cancel, Stop, StopVoice, CreatePool, RemovePool, SetBounds, SetChain:
//     any goroutine, push one op onto the ingress queue and return
//   - Occupancy, Pools: any goroutine, read the last published stats
//   - Tick, EnsureCapacity, Release, CommandRejected, Pool, Voice: sync goroutine only
type Manager struct {
	cmds  graph.Submitter
	alloc *graph.Allocator
	bus   *event.Bus
	clock clock.Clock
	reg   *status.Registry
	sched *Scheduler

	ingress     *queue.MPSC[op]
	nextRequest atomic.Uint64

	// Sync goroutine state
	pools     map[string]*Pool
	order     []*Pool
	voices    map[VoiceID]*Voice
	bySampler map[graph.NodeID]*Voice
	byEffect  map[graph.NodeID]*Voice
	passes    uint64 // Sync passes completed
	applied   uint64 // Last pass that left nothing deferred
	rejecting bool   // Inside CommandRejected, flushes land one pass later
	nextVoice VoiceID
	nextSeq   uint64
	cycle     uint64
	now       time.Time
	batch     graph.Batch

	occupancy atomic.Pointer[map[string]Occupancy]

	// Cached metric pointers
	statRequests      *atomic.Int64
	statQueued        *atomic.Int64
	statExpired       *atomic.Int64
	statDropped       *atomic.Int64
	statCancelled     *atomic.Int64
	statCancelIgnored *atomic.Int64
	statPreempted     *atomic.Int64
	statCompleted     *atomic.Int64
	statStale         *atomic.Int64
	statGrown         *atomic.Int64
	statRebuilt       *atomic.Int64
	statDiscarded     *atomic.Int64
}

var _ graph.PassReporter = (*Manager)(nil)

// NewManager creates a manager emitting commands to cmds with node IDs from alloc
// Register it with the synchronizer draining cmds; voices settle on its pass reports
func NewManager(cmds graph.Submitter, alloc *graph.Allocator, bus *event.Bus, clk clock.Clock, reg *status.Registry) *Manager {
	m := &Manager{
		cmds:      cmds,
		alloc:     alloc,
		bus:       bus,
		clock:     clk,
		reg:       reg,
		ingress:   queue.NewMPSC[op](),
		pools:     make(map[string]*Pool),
		voices:    make(map[VoiceID]*Voice),
		bySampler: make(map[graph.NodeID]*Voice),
		byEffect:  make(map[graph.NodeID]*Voice),

		statRequests:      reg.Ints.Get("scheduler.requests"),
		statQueued:        reg.Ints.Get("scheduler.queued"),
		statExpired:       reg.Ints.Get("scheduler.expired"),
		statDropped:       reg.Ints.Get("scheduler.dropped"),
		statCancelled:     reg.Ints.Get("scheduler.cancelled"),
		statCancelIgnored: reg.Ints.Get("scheduler.cancel_ignored"),
		statPreempted:     reg.Ints.Get("scheduler.preempted"),
		statCompleted:     reg.Ints.Get("scheduler.completed"),
		statStale:         reg.Ints.Get("scheduler.stale_completions"),
		statGrown:         reg.Ints.Get("scheduler.voices_grown"),
		statRebuilt:       reg.Ints.Get("scheduler.voices_rebuilt"),
		statDiscarded:     reg.Ints.Get("scheduler.voices_discarded"),
	}
	m.sched = newScheduler(m)
	empty := make(map[string]Occupancy)
	m.occupancy.Store(&empty)
	return m
}

// === Authoring API ===

func (m *Manager) newHandle(pool string, sample graph.SampleRef, priority int, lifetime time.Duration, params Params) *Handle {
	if lifetime == 0 {
		lifetime = parameter.DefaultQueueLifetime
	}
	return &Handle{
		id:        RequestID(m.nextRequest.Add(1)),
		pool:      pool,
		sample:    sample,
		priority:  priority,
		lifetime:  lifetime,
		params:    params,
		submitted: m.clock.Now(),
		done:      make(chan struct{}),
	}
}

// Submit queues a play request for the named pool and returns its handle
// Zero lifetime selects the default; a negative lifetime never waits for a voice
func (m *Manager) Submit(pool string, sample graph.SampleRef, priority int, lifetime time.Duration, params Params) *Handle {
	h := m.newHandle(pool, sample, priority, lifetime, params)
	m.ingress.Push(submitOp{h: h})
	return h
}

// Play submits a request to the dynamic pool keyed by the template's signature, creating it on demand
func (m *Manager) Play(sample graph.SampleRef, tmpl *chain.Template, priority int, lifetime time.Duration, params Params) *Handle {
	h := m.newHandle(DynamicPoolName(tmpl), sample, priority, lifetime, params)
	m.ingress.Push(dynamicOp{h: h, template: tmpl})
	return h
}

// Cancel withdraws a waiting request; it has no effect once a voice is bound
func (m *Manager) Cancel(h *Handle) {
	m.ingress.Push(cancelOp{h: h})
}

// Stop ends a request: a playing voice is released, a waiting entry is cancelled
func (m *Manager) Stop(h *Handle) {
	m.ingress.Push(stopOp{h: h})
}

// StopVoice releases whatever request currently holds the voice
func (m *Manager) StopVoice(id VoiceID) {
	m.ingress.Push(stopVoiceOp{id: id})
}

// CreatePool validates cfg and schedules the pool's creation
func (m *Manager) CreatePool(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	m.ingress.Push(createOp{cfg: cfg})
	return nil
}

// RemovePool schedules removal of the pool and all its nodes
func (m *Manager) RemovePool(name string) {
	m.ingress.Push(removeOp{name: name})
}

// SetBounds schedules a bounds change, growing to the new min or shrinking to the new max
func (m *Manager) SetBounds(name string, lo, hi int) error {
	if err := validBounds(lo, hi); err != nil {
		return err
	}
	m.ingress.Push(boundsOp{name: name, min: lo, max: hi})
	return nil
}

// SetChain replaces the pool's effects template and optionally its sampler configuration
// Voices adopt the new configuration the next time they are bound
func (m *Manager) SetChain(name string, tmpl *chain.Template, sampler *graph.Sampler) {
	m.ingress.Push(chainOp{name: name, template: tmpl, sampler: sampler})
}

// DynamicPoolName returns the pool Play routes a template to
func DynamicPoolName(tmpl *chain.Template) string {
	if tmpl == nil {
		return "dynamic:"
	}
	return "dynamic:" + tmpl.Signature()
}

// === Queries ===

// Occupancy returns the last published stats of a pool
func (m *Manager) Occupancy(name string) (Occupancy, bool) {
	o, ok := (*m.occupancy.Load())[name]
	return o, ok
}

// Pools returns the last published stats of every pool, sorted by name
func (m *Manager) Pools() []Occupancy {
	occ := *m.occupancy.Load()
	out := make([]Occupancy, 0, len(occ))
	for _, o := range occ {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Pool returns live pool state, sync goroutine only
func (m *Manager) Pool(name string) (*Pool, bool) {
	p, ok := m.pools[name]
	return p, ok
}

// Voice returns live voice state, sync goroutine only
func (m *Manager) Voice(id VoiceID) (*Voice, bool) {
	v, ok := m.voices[id]
	return v, ok
}

// Cycle returns the number of completed ticks
func (m *Manager) Cycle() uint64 {
	return m.cycle
}

// === Sync point ===

// TickReport summarizes one scheduling cycle
type TickReport struct {
	Cycle     uint64
	Completed int
	Finalized int
	Expired   int
	Assigned  int
	Ops       int
	Grown     int
}

// Tick runs one scheduling cycle and submits the resulting batches
// Call before the synchronizer drains, with the completions polled since the previous tick
func (m *Manager) Tick(done []graph.Completion) TickReport {
	m.cycle++
	m.now = m.clock.Now()
	r := TickReport{Cycle: m.cycle}

	// Settle voices whose play or cleanup commands the engine has applied
	for _, p := range m.order {
		for _, v := range p.voices {
			if v.settle > m.applied {
				continue
			}
			switch v.state {
			case VoiceReleasing:
				v.state = VoiceIdle
				r.Finalized++
			case VoiceAllocated:
				v.state = VoicePlaying
			}
		}
	}

	for _, c := range done {
		if m.complete(c) {
			r.Completed++
		}
	}

	r.Expired, r.Assigned = m.reevaluate()
	r.Ops = m.ingress.Drain(func(o op) {
		o.apply(m)
		m.flush()
	})
	_, assigned := m.reevaluate()
	r.Assigned += assigned

	for _, p := range m.order {
		r.Grown += m.maintain(p)
	}
	m.flush()

	m.publish()
	return r
}

func (m *Manager) reevaluate() (expired, assigned int) {
	for _, p := range m.order {
		e, a := m.sched.Reevaluate(p, m.now)
		expired += e
		assigned += a
		m.flush()
	}
	return expired, assigned
}

// maintain restores the min bound and the idle headroom
func (m *Manager) maintain(p *Pool) int {
	if n := p.min - len(p.voices); n > 0 {
		return m.addVoices(p, n)
	}
	if p.headroom > 0 {
		return m.grow(p, p.headroom)
	}
	return 0
}

// EnsureCapacity grows the pool when fewer than demand voices are idle
func (m *Manager) EnsureCapacity(name string, demand int) (int, error) {
	p, ok := m.pools[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPool, name)
	}
	n := m.grow(p, demand)
	m.flush()
	return n, nil
}

// Release stops the voice's current playback and detaches its owner
// The voice is Releasing until the next tick, then Idle
func (m *Manager) Release(id VoiceID) error {
	v, ok := m.voices[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVoice, id)
	}
	if v.owner == nil {
		return fmt.Errorf("%w: %d", ErrVoiceNotBound, id)
	}
	m.release(v, StateStopped, event.RequestStopped, "released", nil)
	m.flush()
	return nil
}

// CommandRejected recovers pool state from commands the graph refused
// Registered as a graph.Reporter; runs on the sync goroutine during DrainAndApply
func (m *Manager) CommandRejected(cmd graph.Command, err error) {
	m.rejecting = true
	defer func() { m.rejecting = false }()

	switch c := cmd.(type) {
	case graph.InsertNode:
		if v, ok := m.voiceOf(c.ID); ok {
			m.discard(v, err)
		} else if p := m.poolByBus(c.ID); p != nil {
			log.Printf("pool %s: bus rejected, removing pool: %v", p.name, err)
			m.notify(event.Notification{Kind: event.PoolCreated, Pool: p.name, Node: uint64(c.ID), Reason: "rejected", Err: err})
			m.removePool(p.name)
		}
	case graph.SendEvent:
		play, ok := c.Payload.(graph.Play)
		if !ok {
			return
		}
		v, ok := m.bySampler[c.Node]
		if !ok || v.owner == nil || v.sequence != play.Sequence {
			return
		}
		m.release(v, StateDropped, event.RequestDropped, "playback rejected", err)
		m.statDropped.Add(1)
	}
	m.flush()
}

// PassApplied tracks which commands reached the engine so voices settle only after their cleanup
func (m *Manager) PassApplied(deferred int) {
	m.passes++
	if deferred == 0 {
		m.applied = m.passes
	}
}

// nextPass returns the sync pass that will apply commands flushed now
func (m *Manager) nextPass() uint64 {
	if m.rejecting {
		return m.passes + 2
	}
	return m.passes + 1
}

func (m *Manager) poolByBus(id graph.NodeID) *Pool {
	for _, p := range m.order {
		if p.bus == id {
			return p
		}
	}
	return nil
}

// voiceOf finds the voice owning a sampler or effect node
func (m *Manager) voiceOf(id graph.NodeID) (*Voice, bool) {
	if v, ok := m.bySampler[id]; ok {
		return v, true
	}
	v, ok := m.byEffect[id]
	return v, ok
}

func (m *Manager) flush() {
	if len(m.batch) == 0 {
		return
	}
	m.cmds.SubmitBatch(m.batch)
	clear(m.batch)
	m.batch = m.batch[:0]
}

func (m *Manager) notify(n event.Notification) {
	n.Cycle = m.cycle
	n.At = m.now
	m.bus.Publish(n)
}

func (m *Manager) publish() {
	occ := make(map[string]Occupancy, len(m.order))
	for _, p := range m.order {
		occ[p.name] = p.occupancy()
	}
	m.occupancy.Store(&occ)
}

// === Ingress ops ===

// op is an authoring call replayed on the sync goroutine
type op interface {
	apply(m *Manager)
}

type submitOp struct{ h *Handle }

type dynamicOp struct {
	h        *Handle
	template *chain.Template
}

type cancelOp struct{ h *Handle }

type stopOp struct{ h *Handle }

type stopVoiceOp struct{ id VoiceID }

type createOp struct{ cfg Config }

type removeOp struct{ name string }

type boundsOp struct {
	name     string
	min, max int
}

type chainOp struct {
	name     string
	template *chain.Template
	sampler  *graph.Sampler
}

func (o submitOp) apply(m *Manager) {
	m.submit(o.h)
}

func (o dynamicOp) apply(m *Manager) {
	if _, ok := m.pools[o.h.pool]; !ok {
		cfg := DefaultConfig(o.h.pool)
		cfg.Min = parameter.DynamicPoolMin
		cfg.Max = parameter.DynamicPoolMax
		cfg.Template = o.template
		if _, err := m.createPool(cfg, true); err != nil {
			m.drop(nil, o.h, err.Error())
			return
		}
		m.flush()
	}
	m.submit(o.h)
}

func (o cancelOp) apply(m *Manager) {
	if !m.withdraw(o.h, "cancelled") {
		m.statCancelIgnored.Add(1)
	}
}

func (o stopOp) apply(m *Manager) {
	switch o.h.State() {
	case StateWaiting:
		m.withdraw(o.h, "stopped while waiting")
	case StatePlaying:
		id, _ := o.h.Voice()
		if v, ok := m.voices[id]; ok && v.owner == o.h {
			m.release(v, StateStopped, event.RequestStopped, "stopped", nil)
		}
	}
}

func (o stopVoiceOp) apply(m *Manager) {
	if v, ok := m.voices[o.id]; ok && v.owner != nil {
		m.release(v, StateStopped, event.RequestStopped, "voice stopped", nil)
	}
}

func (o createOp) apply(m *Manager) {
	if _, err := m.createPool(o.cfg, false); err != nil {
		log.Printf("pool %s: create failed: %v", o.cfg.Name, err)
		m.notify(event.Notification{Kind: event.PoolCreated, Pool: o.cfg.Name, Reason: "rejected", Err: err})
	}
}

func (o removeOp) apply(m *Manager) {
	if err := m.removePool(o.name); err != nil {
		log.Printf("pool %s: remove failed: %v", o.name, err)
	}
}

func (o boundsOp) apply(m *Manager) {
	if err := m.setBounds(o.name, o.min, o.max); err != nil {
		log.Printf("pool %s: set bounds failed: %v", o.name, err)
	}
}

func (o chainOp) apply(m *Manager) {
	p, ok := m.pools[o.name]
	if !ok {
		log.Printf("pool %s: set chain failed: %v", o.name, ErrUnknownPool)
		return
	}
	p.template = o.template
	if p.template == nil {
		p.template = chain.Empty(p.name)
	}
	if o.sampler != nil {
		p.sampler = *o.sampler
	}
}

func (m *Manager) submit(h *Handle) {
	m.statRequests.Add(1)
	p, ok := m.pools[h.pool]
	if !ok {
		m.drop(nil, h, ErrUnknownPool.Error())
		return
	}
	m.sched.Admit(p, h, m.now)
}

// withdraw removes a waiting request, reporting it cancelled
func (m *Manager) withdraw(h *Handle, reason string) bool {
	if h.State() != StateWaiting {
		return false
	}
	p, ok := m.pools[h.pool]
	if !ok {
		return false
	}
	e := p.waiting.remove(h.id)
	if e == nil {
		return false
	}
	e.State = EntryCancelled
	h.finish(StateCancelled)
	m.statCancelled.Add(1)
	m.notify(event.Notification{
		Kind:     event.RequestCancelled,
		Pool:     p.name,
		Request:  uint64(h.id),
		Priority: h.priority,
		Reason:   reason,
	})
	return true
}

package pool

import (
	"fmt"
	"log"
	"time"

	"github.com/lixenwraith/voxpool/event"
	"github.com/lixenwraith/voxpool/graph"
)

// Voice lifecycle on the sync goroutine. Every method appends to m.batch; callers flush

// build inserts a sampler and chain for the pool's current configuration
func (m *Manager) build(v *Voice) {
	p := v.pool
	v.sampler = m.alloc.Next()
	v.config = p.sampler
	v.template = p.template
	m.batch.Insert(v.sampler, graph.Descriptor{Name: p.name, Config: p.sampler})
	v.chain = p.template.Build(m.alloc, v.sampler, p.bus, nil)
	m.batch = append(m.batch, v.chain.Batch...)
	v.chain.Batch = nil
	m.bySampler[v.sampler] = v
	for _, id := range v.chain.Nodes {
		m.byEffect[id] = v
	}
}

// destroy disconnects and removes every node of the voice
func (m *Manager) destroy(v *Voice) {
	m.batch = append(m.batch, v.chain.Teardown()...)
	m.batch.Remove(v.sampler)
	delete(m.bySampler, v.sampler)
	for _, id := range v.chain.Nodes {
		delete(m.byEffect, id)
	}
}

func (m *Manager) newVoice(p *Pool) *Voice {
	m.nextVoice++
	v := &Voice{id: m.nextVoice, pool: p, settle: m.nextPass()}
	m.build(v)
	p.voices = append(p.voices, v)
	m.voices[v.id] = v
	return v
}

func (m *Manager) addVoices(p *Pool, n int) int {
	n = min(n, p.max-len(p.voices))
	if n <= 0 {
		return 0
	}
	for range n {
		m.newVoice(p)
	}
	m.statGrown.Add(int64(n))
	m.notify(event.Notification{Kind: event.PoolGrown, Pool: p.name, Count: n})
	log.Printf("pool %s: grew by %d to %d", p.name, n, len(p.voices))
	return n
}

// grow adds voices when fewer than demand are idle, sized by the pool's growth policy
func (m *Manager) grow(p *Pool, demand int) int {
	deficit := demand - p.countIdle()
	room := p.max - len(p.voices)
	if deficit <= 0 || room <= 0 {
		return 0
	}
	step := max(1, min(p.growth(len(p.voices), deficit), room))
	return m.addVoices(p, step)
}

// bind gives the voice to h, rebuilding it first when the pool configuration changed
func (m *Manager) bind(p *Pool, v *Voice, h *Handle, now time.Time) {
	if v.stale() {
		m.destroy(v)
		m.build(v)
		m.statRebuilt.Add(1)
	}

	m.nextSeq++
	v.sequence = m.nextSeq
	v.state = VoiceAllocated
	v.settle = m.nextPass()
	v.owner = h
	v.priority = h.priority
	v.looping = h.params.Repeat == RepeatForever
	v.startedAt = now
	m.batch.Send(v.sampler, h.params.play(h.sample, v.sequence))

	h.assign(v)
	m.notify(event.Notification{
		Kind:     event.RequestAssigned,
		Pool:     p.name,
		Request:  uint64(h.id),
		Voice:    uint64(v.id),
		Node:     uint64(v.sampler),
		Priority: h.priority,
	})
}

// release silences the voice and detaches its owner with the given terminal state
func (m *Manager) release(v *Voice, st RequestState, kind event.Kind, reason string, err error) *Handle {
	h := v.owner
	m.batch.Send(v.sampler, graph.Stop{})
	for _, id := range v.chain.Nodes {
		m.batch.Send(id, graph.Reset{})
	}
	v.owner = nil
	v.state = VoiceReleasing
	v.settle = m.nextPass()

	h.finish(st)
	m.notify(event.Notification{
		Kind:     kind,
		Pool:     v.pool.name,
		Request:  uint64(h.id),
		Voice:    uint64(v.id),
		Node:     uint64(v.sampler),
		Priority: h.priority,
		Reason:   reason,
		Err:      err,
	})
	return h
}

func (m *Manager) preempt(p *Pool, victim *Voice, h *Handle, now time.Time) {
	m.release(victim, StatePreempted, event.VoicePreempted, fmt.Sprintf("preempted by request %d", h.id), nil)
	m.statPreempted.Add(1)
	m.bind(p, victim, h, now)
}

func (m *Manager) enqueue(p *Pool, e *Entry) {
	p.waiting.insert(e)
	e.Handle.setState(StateWaiting)
	m.statQueued.Add(1)
	m.notify(event.Notification{
		Kind:     event.RequestQueued,
		Pool:     p.name,
		Request:  uint64(e.Handle.id),
		Priority: e.Priority,
		Reason:   "pool saturated",
	})
}

func (m *Manager) expire(p *Pool, e *Entry) {
	if !e.Handle.finish(StateExpired) {
		return
	}
	m.statExpired.Add(1)
	m.notify(event.Notification{
		Kind:     event.RequestExpired,
		Pool:     p.name,
		Request:  uint64(e.Handle.id),
		Priority: e.Priority,
		Reason:   fmt.Sprintf("waited longer than %s", e.Handle.lifetime),
	})
}

// drop rejects a request outright; p is nil when the pool does not exist
func (m *Manager) drop(p *Pool, h *Handle, reason string) {
	if !h.finish(StateDropped) {
		return
	}
	m.statDropped.Add(1)
	m.notify(event.Notification{
		Kind:     event.RequestDropped,
		Pool:     h.pool,
		Request:  uint64(h.id),
		Priority: h.priority,
		Reason:   reason,
	})
}

// complete releases the voice whose playback finished, ignoring stale sequences
func (m *Manager) complete(c graph.Completion) bool {
	v, ok := m.bySampler[c.Node]
	if !ok || v.owner == nil || v.sequence != c.Sequence {
		m.statStale.Add(1)
		return false
	}
	m.release(v, StateCompleted, event.PlaybackCompleted, "", nil)
	m.statCompleted.Add(1)
	return true
}

// discard drops a voice whose sampler or effect node the graph refused and re-queues its owner at its arrival time
func (m *Manager) discard(v *Voice, err error) {
	p := v.pool
	h := v.owner
	m.destroy(v)
	p.dropVoice(v)
	delete(m.voices, v.id)
	m.statDiscarded.Add(1)
	log.Printf("pool %s: discarded voice %d: %v", p.name, v.id, err)

	if h == nil {
		return
	}
	v.owner = nil
	h.voice.Store(0)
	h.sampler.Store(0)
	h.sequence.Store(0)
	m.sched.seq++
	m.enqueue(p, &Entry{
		Handle:     h,
		EnqueuedAt: h.submitted,
		Priority:   h.priority,
		seq:        m.sched.seq,
	})
}

// === Pool lifecycle ===

func (m *Manager) createPool(cfg Config, dynamic bool) (*Pool, error) {
	if _, ok := m.pools[cfg.Name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrPoolExists, cfg.Name)
	}
	sink := graph.OutputNode
	if cfg.Sink != "" && cfg.Sink != OutputSink {
		parent, ok := m.pools[cfg.Sink]
		if !ok {
			return nil, fmt.Errorf("%w: no pool %q", ErrInvalidSink, cfg.Sink)
		}
		sink = parent.bus
	}

	p := newPool(cfg, m.reg)
	p.dynamic = dynamic
	p.sinkNode = sink
	p.bus = m.alloc.Next()
	m.batch.Insert(p.bus, graph.Descriptor{Name: p.name, Config: p.busCfg})
	m.batch.Connect(p.bus, sink, nil)

	n := min(max(p.min, 1), p.max)
	for range n {
		m.newVoice(p)
	}
	m.pools[p.name] = p
	m.order = append(m.order, p)

	m.notify(event.Notification{Kind: event.PoolCreated, Pool: p.name, Count: n})
	log.Printf("pool %s: created [%d, %d] with %d voices, chain %q", p.name, p.min, p.max, n, p.template.Signature())
	return p, nil
}

func (m *Manager) removePool(name string) error {
	p, ok := m.pools[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPool, name)
	}

	for _, e := range p.waiting.takeAll() {
		e.State = EntryDropped
		m.drop(p, e.Handle, "pool removed")
	}
	for _, v := range p.voices {
		if h := v.owner; h != nil {
			v.owner = nil
			h.finish(StateStopped)
			m.notify(event.Notification{
				Kind:    event.RequestStopped,
				Pool:    p.name,
				Request: uint64(h.id),
				Voice:   uint64(v.id),
				Reason:  "pool removed",
			})
		}
		m.destroy(v)
		delete(m.voices, v.id)
	}
	p.voices = nil

	// Pools routed into this one fall back to the output
	for _, c := range m.order {
		if c != p && c.sinkNode == p.bus {
			m.batch.Disconnect(c.bus, p.bus)
			m.batch.Connect(c.bus, graph.OutputNode, nil)
			c.sinkNode = graph.OutputNode
			c.sink = OutputSink
			log.Printf("pool %s: rerouted to output", c.name)
		}
	}
	m.batch.Disconnect(p.bus, p.sinkNode)
	m.batch.Remove(p.bus)

	delete(m.pools, name)
	for i, x := range m.order {
		if x == p {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.reg.Ints.DeletePrefix("pool." + name + ".")

	m.notify(event.Notification{Kind: event.PoolRemoved, Pool: name})
	log.Printf("pool %s: removed", name)
	return nil
}

func (m *Manager) setBounds(name string, lo, hi int) error {
	p, ok := m.pools[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPool, name)
	}
	if err := validBounds(lo, hi); err != nil {
		return err
	}
	p.min, p.max = lo, hi
	if n := len(p.voices) - hi; n > 0 {
		m.shrink(p, n)
	}
	if n := lo - len(p.voices); n > 0 {
		m.addVoices(p, n)
	}
	return nil
}

// shrink retires n voices: idle first, then releasing, then the lowest priority bound voices
func (m *Manager) shrink(p *Pool, n int) {
	for ; n > 0 && len(p.voices) > 0; n-- {
		v := retireCandidate(p)
		if v.owner != nil {
			m.release(v, StateStopped, event.RequestStopped, "pool shrunk", nil)
		}
		m.destroy(v)
		p.dropVoice(v)
		delete(m.voices, v.id)
	}
	log.Printf("pool %s: shrunk to %d", p.name, len(p.voices))
}

func retireCandidate(p *Pool) *Voice {
	if v := p.idleVoice(); v != nil {
		return v
	}
	var best *Voice
	for _, v := range p.voices {
		if v.state == VoiceReleasing {
			return v
		}
		if best == nil || victimBefore(v, best) {
			best = v
		}
	}
	return best
}

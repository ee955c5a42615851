package pool

import (
	"testing"
	"time"

	"github.com/lixenwraith/voxpool/chain"
	"github.com/lixenwraith/voxpool/clock"
	"github.com/lixenwraith/voxpool/event"
	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/graph/graphtest"
	"github.com/lixenwraith/voxpool/status"
)

// harness wires a manager to a real command queue and synchronizer over a recording engine
type harness struct {
	t     *testing.T
	clk   *clock.Mock
	reg   *status.Registry
	queue *graph.CommandQueue
	sync  *graph.Synchronizer
	rec   *graphtest.Recorder
	bus   *event.Bus
	m     *Manager
	notes []event.Notification
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessBus(t, 4096)
}

// newHarnessBus is newHarness with a notification ring of the given size
func newHarnessBus(t *testing.T, size int) *harness {
	t.Helper()
	reg := status.NewRegistry()
	clk := clock.NewMock(time.Unix(1000, 0))
	q := graph.NewCommandQueue()
	rec := graphtest.NewRecorder()
	s := graph.NewSynchronizer(q, rec, reg)
	bus := event.NewBus(size, reg)
	m := NewManager(q, graph.NewAllocator(), bus, clk, reg)
	s.AddReporter(m)
	return &harness{t: t, clk: clk, reg: reg, queue: q, sync: s, rec: rec, bus: bus, m: m}
}

// cycle runs one sync cycle the way the engine does: tick, then apply
func (h *harness) cycle(done ...graph.Completion) TickReport {
	r := h.m.Tick(done)
	h.sync.DrainAndApply()
	h.notes = append(h.notes, h.bus.Drain()...)
	return r
}

// pool creates a pool and applies it, failing the test on error
func (h *harness) pool(cfg Config) *Pool {
	h.t.Helper()
	if err := h.m.CreatePool(cfg); err != nil {
		h.t.Fatalf("CreatePool(%s) failed: %v", cfg.Name, err)
	}
	h.cycle()
	p, ok := h.m.Pool(cfg.Name)
	if !ok {
		h.t.Fatalf("Expected pool %s to exist", cfg.Name)
	}
	return p
}

func (h *harness) submit(pool string, priority int) *Handle {
	return h.m.Submit(pool, "kick", priority, 0, Params{})
}

func (h *harness) count(kind event.Kind) int {
	n := 0
	for _, note := range h.notes {
		if note.Kind == kind {
			n++
		}
	}
	return n
}

func (h *harness) find(kind event.Kind, req RequestID) (event.Notification, bool) {
	for _, note := range h.notes {
		if note.Kind == kind && note.Request == uint64(req) {
			return note, true
		}
	}
	return event.Notification{}, false
}

// lastPlay returns the most recent Play event delivered to the request's sampler
func (h *harness) lastPlay(r *Handle) (graph.Play, bool) {
	node, ok := r.Sampler()
	if !ok {
		return graph.Play{}, false
	}
	events := h.rec.Events(node)
	for i := len(events) - 1; i >= 0; i-- {
		if p, ok := events[i].(graph.Play); ok {
			return p, true
		}
	}
	return graph.Play{}, false
}

func poolConfig(name string, lo, hi int) Config {
	cfg := DefaultConfig(name)
	cfg.Min, cfg.Max = lo, hi
	return cfg
}

func mustDeclare(t *testing.T, name string, descs ...graph.Descriptor) *chain.Template {
	t.Helper()
	tmpl, err := chain.Declare(name, descs...)
	if err != nil {
		t.Fatalf("Declare(%s) failed: %v", name, err)
	}
	return tmpl
}

// checkBindings verifies that no voice is held twice and every playing handle points back at its voice
func checkBindings(t *testing.T, m *Manager) {
	t.Helper()
	owners := make(map[*Handle]VoiceID)
	for _, p := range m.order {
		if len(p.voices) > p.max {
			t.Errorf("Pool %s exceeds max: %d > %d", p.name, len(p.voices), p.max)
		}
		for _, v := range p.voices {
			if v.owner == nil {
				continue
			}
			if prev, dup := owners[v.owner]; dup {
				t.Fatalf("Request %d bound to voices %d and %d", v.owner.id, prev, v.id)
			}
			owners[v.owner] = v.id
			if id, ok := v.owner.Voice(); !ok || id != v.id {
				t.Errorf("Expected request %d to report voice %d, got %d", v.owner.id, v.id, id)
			}
		}
	}
}

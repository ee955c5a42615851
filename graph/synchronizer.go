package graph

import (
	"errors"
	"log"
	"sync/atomic"

	"github.com/lixenwraith/voxpool/status"
)

// SyncReport summarizes one DrainAndApply cycle
type SyncReport struct {
	Cycle     uint64
	Drained   int    // Commands taken from the queue this cycle
	Applied   int    // Commands forwarded to the engine
	Skipped   int    // Idempotent no-ops (removal of removed nodes)
	Rejected  int    // Dropped with a diagnostic
	Deferred  int    // Held for a later cycle because the engine is inactive
	Version   uint64 // Graph version after the cycle
	Published bool
}

// Synchronizer applies buffered commands to the authoritative graph and the engine
// DrainAndApply must be called from one goroutine; Snapshot is safe from any
type Synchronizer struct {
	queue     *CommandQueue
	state     *State
	engine    Engine
	reporters []Reporter

	pending []Command // Drained but not yet applied, in order
	cycle   uint64

	published atomic.Pointer[Snapshot]

	// Cached metric pointers
	statCycles   *atomic.Int64
	statApplied  *atomic.Int64
	statRejected *atomic.Int64
	statDeferred *atomic.Int64
	statVersion  *atomic.Int64
	statActive   *atomic.Bool
}

// NewSynchronizer binds a queue to an engine
// The initial snapshot holding only the output node is published immediately
func NewSynchronizer(q *CommandQueue, engine Engine, reg *status.Registry) *Synchronizer {
	s := &Synchronizer{
		queue:        q,
		state:        NewState(),
		engine:       engine,
		statCycles:   reg.Ints.Get("sync.cycles"),
		statApplied:  reg.Ints.Get("sync.applied"),
		statRejected: reg.Ints.Get("sync.rejected"),
		statDeferred: reg.Ints.Get("sync.deferred"),
		statVersion:  reg.Ints.Get("graph.version"),
		statActive:   reg.Bools.Get("graph.active"),
	}
	snap := s.state.Snapshot()
	s.published.Store(snap)
	engine.Publish(snap)
	return s
}

// AddReporter registers a diagnostic sink, must be called before the first cycle
func (s *Synchronizer) AddReporter(r Reporter) {
	s.reporters = append(s.reporters, r)
}

// Snapshot returns the most recently published snapshot
func (s *Synchronizer) Snapshot() *Snapshot {
	return s.published.Load()
}

// Pending returns commands drained but held while the engine is inactive
func (s *Synchronizer) Pending() int {
	return len(s.pending)
}

// DrainAndApply runs one synchronization cycle
func (s *Synchronizer) DrainAndApply() SyncReport {
	s.cycle++
	report := SyncReport{Cycle: s.cycle}

	report.Drained = s.queue.Drain(func(cmd Command) {
		s.pending = append(s.pending, cmd)
	})

	active := s.engine.Active()
	s.statActive.Store(active)

	changed := false
	done := 0
	if active {
		for _, cmd := range s.pending {
			err := s.applyOne(cmd)
			if errors.Is(err, ErrInactive) {
				break // Engine went away mid-batch, keep the rest
			}
			done++
			switch {
			case err == nil:
				report.Applied++
				if cmd.Op() != OpEvent {
					changed = true
				}
			case errors.Is(err, errSkip):
				report.Skipped++
			default:
				report.Rejected++
				s.reject(cmd, err)
			}
		}
	}

	// Compact remaining commands to the front, clear references
	rest := copy(s.pending, s.pending[done:])
	clear(s.pending[rest:])
	s.pending = s.pending[:rest]
	report.Deferred = rest
	for _, r := range s.reporters {
		if pr, ok := r.(PassReporter); ok {
			pr.PassApplied(rest)
		}
	}

	if changed {
		snap := s.state.Snapshot()
		s.published.Store(snap)
		s.engine.Publish(snap)
		report.Published = true
	}
	report.Version = s.state.Version()

	s.statCycles.Add(1)
	s.statApplied.Add(int64(report.Applied))
	s.statRejected.Add(int64(report.Rejected))
	s.statDeferred.Store(int64(report.Deferred))
	s.statVersion.Store(int64(report.Version))
	return report
}

// applyOne validates, forwards to the engine, then commits to state
func (s *Synchronizer) applyOne(cmd Command) error {
	if err := s.state.check(cmd); err != nil {
		return err
	}

	var err error
	switch c := cmd.(type) {
	case InsertNode:
		err = s.engine.Insert(c.ID, c.Descriptor)
	case RemoveNode:
		err = s.engine.Remove(c.ID)
	case Connect:
		err = s.engine.Connect(c.From, c.To, c.Ports)
	case Disconnect:
		err = s.engine.Disconnect(c.From, c.To)
	case SendEvent:
		err = s.engine.SendEvent(c.Node, c.Payload)
	}
	if err != nil {
		return err
	}

	s.state.apply(cmd)
	return nil
}

func (s *Synchronizer) reject(cmd Command, err error) {
	log.Printf("graph: dropped %s: %v", cmd, err)
	for _, r := range s.reporters {
		r.CommandRejected(cmd, err)
	}
}

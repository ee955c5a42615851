package pool

import "time"

// Decision is the outcome of admitting one request
type Decision uint8

const (
	DecisionBound     Decision = iota + 1 // Took an idle voice
	DecisionGrown                         // Took a voice added for it
	DecisionPreempted                     // Took a lower priority voice
	DecisionQueued                        // Waiting for a voice
	DecisionDropped                       // Saturated and not allowed to wait
)

func (d Decision) String() string {
	switch d {
	case DecisionBound:
		return "bound"
	case DecisionGrown:
		return "grown"
	case DecisionPreempted:
		return "preempted"
	case DecisionQueued:
		return "queued"
	case DecisionDropped:
		return "dropped"
	}
	return "unknown"
}

// voiceOps are the mutations the scheduler drives; the manager implements them
type voiceOps interface {
	bind(p *Pool, v *Voice, h *Handle, now time.Time)
	grow(p *Pool, demand int) int
	preempt(p *Pool, victim *Voice, h *Handle, now time.Time)
	enqueue(p *Pool, e *Entry)
	expire(p *Pool, e *Entry)
	drop(p *Pool, h *Handle, reason string)
}

// Scheduler decides which request gets which voice
// Policy only: every state change goes through voiceOps
type Scheduler struct {
	ops voiceOps
	seq uint64
}

func newScheduler(ops voiceOps) *Scheduler {
	return &Scheduler{ops: ops}
}

// Admit places a new request: idle voice, then growth, then strict preemption, then the waiting list
// A request with a negative lifetime is dropped instead of queued
func (s *Scheduler) Admit(p *Pool, h *Handle, now time.Time) Decision {
	if v := p.idleVoice(); v != nil {
		s.ops.bind(p, v, h, now)
		return DecisionBound
	}

	if len(p.voices) < p.max && s.ops.grow(p, 1) > 0 {
		if v := p.idleVoice(); v != nil {
			s.ops.bind(p, v, h, now)
			return DecisionGrown
		}
	}

	if victim := Victim(p, h.priority); victim != nil {
		s.ops.preempt(p, victim, h, now)
		return DecisionPreempted
	}

	if h.lifetime < 0 {
		s.ops.drop(p, h, "pool saturated")
		return DecisionDropped
	}

	s.Enqueue(p, h, now)
	return DecisionQueued
}

// Enqueue adds a waiting entry stamped at now
func (s *Scheduler) Enqueue(p *Pool, h *Handle, now time.Time) {
	s.seq++
	s.ops.enqueue(p, &Entry{
		Handle:     h,
		EnqueuedAt: now,
		Priority:   h.priority,
		seq:        s.seq,
	})
}

// Reevaluate expires overdue entries then assigns the rest in priority order, growing for unmet demand
func (s *Scheduler) Reevaluate(p *Pool, now time.Time) (expired, assigned int) {
	for _, e := range p.waiting.removeExpired(now, nil) {
		e.State = EntryExpired
		s.ops.expire(p, e)
		expired++
	}

	for p.waiting.Len() > 0 {
		v := p.idleVoice()
		if v == nil {
			if len(p.voices) >= p.max || s.ops.grow(p, p.waiting.Len()) == 0 {
				break
			}
			continue
		}
		e := p.waiting.popFront()
		e.State = EntryAssigned
		s.ops.bind(p, v, e.Handle, now)
		assigned++
	}
	return expired, assigned
}

// Victim returns the voice a request of the given priority may preempt, nil if none
// Only bound voices qualify. Lowest priority wins; ties prefer non-looping voices, then the oldest start
func Victim(p *Pool, priority int) *Voice {
	var best *Voice
	for _, v := range p.voices {
		if v.owner == nil || v.priority >= priority {
			continue
		}
		if best == nil || victimBefore(v, best) {
			best = v
		}
	}
	return best
}

func victimBefore(a, b *Voice) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	if a.looping != b.looping {
		return !a.looping
	}
	if !a.startedAt.Equal(b.startedAt) {
		return a.startedAt.Before(b.startedAt)
	}
	return a.id < b.id
}

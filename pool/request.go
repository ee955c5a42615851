package pool

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/voxpool/graph"
)

// RequestID identifies a play request
type RequestID uint64

// VoiceID identifies a voice, stable for the voice's lifetime
type VoiceID uint64

// Repeat selects how many times a sample plays
type Repeat uint8

const (
	RepeatOnce Repeat = iota
	RepeatCount
	RepeatForever
)

// Params are playback parameters bound when the voice starts, never changed afterwards
type Params struct {
	Volume      float64 // Linear amplitude, 0 selects unity
	Speed       float64 // Rate multiplier, 0 selects 1
	Repeat      Repeat
	RepeatCount int // Plays for RepeatCount
}

func (p Params) play(sample graph.SampleRef, seq uint64) graph.Play {
	ev := graph.Play{Sample: sample, Gain: p.Volume, Speed: p.Speed, Loops: graph.LoopOnce, Sequence: seq}
	if ev.Gain == 0 {
		ev.Gain = 1
	}
	if ev.Speed == 0 {
		ev.Speed = 1
	}
	switch p.Repeat {
	case RepeatForever:
		ev.Loops = graph.LoopForever
	case RepeatCount:
		if p.RepeatCount > 1 {
			ev.Loops = p.RepeatCount
		}
	}
	return ev
}

// RequestState is the externally visible progress of a request
type RequestState int32

const (
	StatePending   RequestState = iota // Submitted, not yet seen by the sync point
	StateWaiting                       // Queued for a voice
	StatePlaying                       // Bound to a voice
	StateCompleted                     // Playback finished
	StateStopped                       // Stopped explicitly or by pool removal/shrink
	StatePreempted                     // Lost its voice to a higher priority request
	StateExpired                       // Waited longer than its queue lifetime
	StateCancelled                     // Cancelled while waiting
	StateDropped                       // Rejected: unknown pool, saturated with no wait, or engine failure
)

var stateNames = [...]string{
	StatePending:   "pending",
	StateWaiting:   "waiting",
	StatePlaying:   "playing",
	StateCompleted: "completed",
	StateStopped:   "stopped",
	StatePreempted: "preempted",
	StateExpired:   "expired",
	StateCancelled: "cancelled",
	StateDropped:   "dropped",
}

func (s RequestState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no further transition can happen
func (s RequestState) Terminal() bool {
	return s >= StateCompleted
}

// Handle is the authoring-side reference to a submitted request
// Immutable fields are read freely; state is written only by the sync point
type Handle struct {
	id        RequestID
	pool      string
	sample    graph.SampleRef
	priority  int
	lifetime  time.Duration
	params    Params
	submitted time.Time

	state    atomic.Int32
	voice    atomic.Uint64
	sampler  atomic.Uint64
	sequence atomic.Uint64 // Playback sequence sent with the Play event
	done     chan struct{}
}

func (h *Handle) ID() RequestID           { return h.id }
func (h *Handle) Pool() string            { return h.pool }
func (h *Handle) Sample() graph.SampleRef { return h.sample }
func (h *Handle) Priority() int           { return h.priority }
func (h *Handle) Lifetime() time.Duration { return h.lifetime }
func (h *Handle) Params() Params          { return h.params }
func (h *Handle) SubmittedAt() time.Time  { return h.submitted }
func (h *Handle) State() RequestState     { return RequestState(h.state.Load()) }
func (h *Handle) Done() <-chan struct{}   { return h.done }

// Voice returns the bound voice while playing
func (h *Handle) Voice() (VoiceID, bool) {
	id := VoiceID(h.voice.Load())
	return id, id != 0
}

// Sampler returns the sampler node while playing, for position queries
func (h *Handle) Sampler() (graph.NodeID, bool) {
	id := graph.NodeID(h.sampler.Load())
	return id, id != graph.InvalidNode
}

// Sequence returns the playback sequence of the current binding while playing
func (h *Handle) Sequence() (uint64, bool) {
	seq := h.sequence.Load()
	return seq, seq != 0
}

func (h *Handle) setState(s RequestState) {
	h.state.Store(int32(s))
}

func (h *Handle) assign(v *Voice) {
	h.voice.Store(uint64(v.id))
	h.sequence.Store(v.sequence)
	h.sampler.Store(uint64(v.sampler))
	h.setState(StatePlaying)
}

// finish moves to a terminal state once; later calls are ignored
func (h *Handle) finish(s RequestState) bool {
	if h.State().Terminal() {
		return false
	}
	h.voice.Store(0)
	h.sampler.Store(0)
	h.sequence.Store(0)
	h.setState(s)
	close(h.done)
	return true
}

package event

import (
	"fmt"
	"time"
)

// Kind discriminates notifications
type Kind uint8

const (
	RequestQueued Kind = iota + 1
	RequestAssigned
	RequestExpired
	RequestDropped
	RequestCancelled
	RequestStopped
	VoicePreempted
	PlaybackCompleted
	CommandRejected
	PoolCreated
	PoolGrown
	PoolRemoved

	kindCount
)

var kindNames = [...]string{
	RequestQueued:     "request.queued",
	RequestAssigned:   "request.assigned",
	RequestExpired:    "request.expired",
	RequestDropped:    "request.dropped",
	RequestCancelled:  "request.cancelled",
	RequestStopped:    "request.stopped",
	VoicePreempted:    "voice.preempted",
	PlaybackCompleted: "playback.completed",
	CommandRejected:   "command.rejected",
	PoolCreated:       "pool.created",
	PoolGrown:         "pool.grown",
	PoolRemoved:       "pool.removed",
}

// BestEffort reports whether notifications of the kind may be overwritten under load
// Request outcomes, rejections and pool lifecycle are always delivered
func (k Kind) BestEffort() bool {
	switch k {
	case RequestQueued, RequestAssigned, PoolGrown:
		return true
	}
	return false
}

func (k Kind) String() string {
	if k > 0 && k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Notification is a structured, user-visible outcome
// Fields not meaningful for a kind are zero
type Notification struct {
	Kind     Kind
	Pool     string
	Request  uint64
	Voice    uint64
	Node     uint64
	Priority int
	Count    int    // Voices added for PoolGrown
	Reason   string // Short cause, e.g. "pool saturated"
	Err      error
	Cycle    uint64
	At       time.Time
	Seq      uint64 // Publish order, stamped by the bus
}

func (n Notification) String() string {
	s := fmt.Sprintf("%s pool=%s", n.Kind, n.Pool)
	if n.Request != 0 {
		s += fmt.Sprintf(" req=%d", n.Request)
	}
	if n.Voice != 0 {
		s += fmt.Sprintf(" voice=%d", n.Voice)
	}
	if n.Count != 0 {
		s += fmt.Sprintf(" count=%d", n.Count)
	}
	if n.Reason != "" {
		s += " (" + n.Reason + ")"
	}
	if n.Err != nil {
		s += ": " + n.Err.Error()
	}
	return s
}

package graph

// Engine is the live audio graph the synchronizer drives
// Calls are made only from the synchronizer goroutine, never from the render path
// Returning ErrInactive keeps the command buffered until the engine reactivates
type Engine interface {
	Insert(id NodeID, d Descriptor) error
	Remove(id NodeID) error
	Connect(from, to NodeID, ports PortMap) error
	Disconnect(from, to NodeID) error
	SendEvent(target NodeID, ev Event) error

	// Active reports whether structural changes can be applied now
	Active() bool

	// Publish hands over the snapshot the render path adopts on its next cycle
	Publish(s *Snapshot)
}

// Reporter receives commands dropped during synchronization
type Reporter interface {
	CommandRejected(cmd Command, err error)
}

// PassReporter is a Reporter that also hears the end of every DrainAndApply pass
// deferred counts commands held back for a later pass
type PassReporter interface {
	Reporter
	PassApplied(deferred int)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(cmd Command, err error)

// CommandRejected implements Reporter
func (f ReporterFunc) CommandRejected(cmd Command, err error) {
	f(cmd, err)
}

// Completion reports that a sampler finished the playback tagged with Sequence
type Completion struct {
	Node     NodeID
	Sequence uint64
}

// CompletionSource is implemented by engines that report finished playbacks
// Completions appends everything finished since the previous call to dst
type CompletionSource interface {
	Completions(dst []Completion) []Completion
}

package graph

// Event is a payload delivered to a live node without changing topology
type Event interface {
	eventName() string
}

// Loop counts for Play
const (
	LoopForever = -1
	LoopOnce    = 1
)

// Play starts a sample on a sampler node, replacing whatever it was playing
// All parameters are fixed for the lifetime of this playback
type Play struct {
	Sample SampleRef
	Gain   float64 // Linear amplitude, 1 is unity
	Speed  float64 // Playback rate multiplier, 0 is treated as 1
	Loops  int     // Number of plays, LoopForever repeats until stopped

	// Sequence tags the playback so completion reports can be matched to it
	Sequence uint64
}

// Stop silences a sampler and discards its playback
type Stop struct{}

// Reset restores an effect node's dynamic parameters to its construction config
type Reset struct{}

// Param names a dynamic parameter of an effect node
type Param uint8

const (
	ParamVolume Param = iota + 1
	ParamGain
	ParamPan
)

// SetParam changes one dynamic parameter until the next Reset
type SetParam struct {
	Param Param
	Value float64
}

func (Play) eventName() string     { return "play" }
func (Stop) eventName() string     { return "stop" }
func (Reset) eventName() string    { return "reset" }
func (SetParam) eventName() string { return "set_param" }

// EventName returns a short label for diagnostics
func EventName(ev Event) string {
	if ev == nil {
		return "nil"
	}
	return ev.eventName()
}

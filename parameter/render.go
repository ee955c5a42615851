package parameter

import "time"

// Audio Hardware Settings
const (
	RenderSampleRate = 48000
	RenderChannels   = 2
)

// Render Timing
const (
	// RenderBufferDuration is the speaker buffer, determines output latency
	RenderBufferDuration = 100 * time.Millisecond

	// RenderBlockFrames is the per-node scratch size; larger requests are processed in blocks
	RenderBlockFrames = 512

	// RenderResampleQuality is passed to beep.ResampleRatio for speed changes
	RenderResampleQuality = 4

	// RenderVolumeBase is the exponential base for volume nodes, matches beep effects.Volume
	RenderVolumeBase = 2.0
)

// Completion Reporting
const (
	// CompletionQueueSize bounds finished playbacks buffered between sync cycles, power of two
	CompletionQueueSize = 1024
)

// Null Output
const (
	// NullOutputTick is the cadence at which a muted output pulls audio
	NullOutputTick = 10 * time.Millisecond
)

package render

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/speaker"

	"github.com/lixenwraith/voxpool/core"
	"github.com/lixenwraith/voxpool/parameter"
	"github.com/lixenwraith/voxpool/status"
)

// Output drives a Renderer from the speaker, or from a ticker when muted or
// when no audio device can be opened
type Output struct {
	renderer *Renderer
	buffer   time.Duration
	mute     bool

	mu     sync.Mutex
	device bool // Speaker initialised
	stop   chan struct{}
	done   chan struct{}

	statDevice   *atomic.Bool
	statRestarts *atomic.Int64
	statLate     *atomic.Int64
}

// NewOutput creates the output service; mute forces the null driver
func NewOutput(r *Renderer, buffer time.Duration, mute bool, reg *status.Registry) *Output {
	if buffer <= 0 {
		buffer = parameter.RenderBufferDuration
	}
	return &Output{
		renderer:     r,
		buffer:       buffer,
		mute:         mute,
		statDevice:   reg.Bools.Get("render.device"),
		statRestarts: reg.Ints.Get("render.restarts"),
		statLate:     reg.Ints.Get("render.late_ticks"),
	}
}

// Name implements service.Service
func (o *Output) Name() string {
	return "render"
}

// Dependencies implements service.Service
func (o *Output) Dependencies() []string {
	return []string{"assets"}
}

// Init implements service.Service
// A device failure degrades to the null driver instead of failing startup
func (o *Output) Init(args ...any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.renderer.SetActive(false)
	o.openDevice()
	return nil
}

// Start implements service.Service
func (o *Output) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startDriver()
	o.renderer.SetActive(true)
	return nil
}

// Stop implements service.Service
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.renderer.SetActive(false)
	o.stopDriver()
	if o.device {
		speaker.Close()
		o.device = false
		o.statDevice.Store(false)
	}
	return nil
}

// Restart reopens the stream with a new buffer duration
// The renderer is inactive meanwhile, so graph commands stay queued
func (o *Output) Restart(buffer time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.renderer.SetActive(false)
	o.stopDriver()
	if o.device {
		speaker.Close()
		o.device = false
	}
	if buffer > 0 {
		o.buffer = buffer
	}
	o.openDevice()
	o.startDriver()
	o.renderer.SetActive(true)

	o.statRestarts.Add(1)
	log.Printf("render: restarted with %v buffer (device %t)", o.buffer, o.device)
	return nil
}

// Device reports whether the speaker is in use
func (o *Output) Device() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.device
}

func (o *Output) openDevice() {
	if o.mute {
		o.statDevice.Store(false)
		return
	}
	rate := o.renderer.SampleRate()
	if err := speaker.Init(rate, rate.N(o.buffer)); err != nil {
		log.Printf("render: audio device unavailable, using null output: %v", err)
		o.device = false
	} else {
		o.device = true
	}
	o.statDevice.Store(o.device)
}

func (o *Output) startDriver() {
	if o.device {
		speaker.Play(o.renderer)
		return
	}
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	stop, done := o.stop, o.done
	core.Go(func() { o.nullDriver(stop, done) })
}

func (o *Output) stopDriver() {
	if o.device {
		speaker.Clear()
		return
	}
	if o.stop != nil {
		close(o.stop)
		<-o.done
		o.stop, o.done = nil, nil
	}
}

// nullDriver pulls audio in real time and discards it
func (o *Output) nullDriver(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	rate := o.renderer.SampleRate()
	tick := parameter.NullOutputTick
	scratch := make([][2]float64, rate.N(tick*parameter.SyncMaxBehind))

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			n := rate.N(now.Sub(last))
			last = now
			if n > len(scratch) {
				o.statLate.Add(1)
				n = len(scratch)
			}
			o.renderer.Stream(scratch[:n])
		}
	}
}

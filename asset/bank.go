// Package asset decodes sample files into in-memory buffers at the render rate
package asset

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gopxl/beep"

	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/parameter"
)

var (
	ErrUnknownFormat = errors.New("unknown sample format")
	ErrEmptySample   = errors.New("sample has no frames")
	ErrDuplicateRef  = errors.New("sample already loaded")
)

// Bank holds decoded samples keyed by reference
// Buffers are immutable once added; readers take streamers over them concurrently
type Bank struct {
	mu      sync.RWMutex
	format  beep.Format
	samples map[graph.SampleRef]*beep.Buffer
}

// NewBank creates an empty bank storing stereo audio at rate
func NewBank(rate beep.SampleRate) *Bank {
	return &Bank{
		format:  beep.Format{SampleRate: rate, NumChannels: parameter.RenderChannels, Precision: 3},
		samples: make(map[graph.SampleRef]*beep.Buffer),
	}
}

// Format returns the storage format
func (b *Bank) Format() beep.Format {
	return b.format
}

// LoadFile decodes path by extension and stores it under ref
func (b *Bank) LoadFile(ref graph.SampleRef, path string) error {
	dec, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open sample: %w", err)
	}
	defer f.Close()

	frames, rate, err := dec(f)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if err := b.Add(ref, frames, rate); err != nil {
		return err
	}
	log.Printf("asset: loaded %s from %s (%d frames at %d Hz)", ref, path, len(frames), rate)
	return nil
}

// Add stores decoded frames, resampling when rate differs from the bank's
func (b *Bank) Add(ref graph.SampleRef, frames [][2]float64, rate beep.SampleRate) error {
	if len(frames) == 0 {
		return fmt.Errorf("%s: %w", ref, ErrEmptySample)
	}

	var src beep.Streamer = &frameStreamer{frames: frames}
	if rate != b.format.SampleRate {
		src = beep.Resample(parameter.RenderResampleQuality, rate, b.format.SampleRate, src)
	}
	buf := beep.NewBuffer(b.format)
	buf.Append(src)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.samples[ref]; exists {
		return fmt.Errorf("%s: %w", ref, ErrDuplicateRef)
	}
	b.samples[ref] = buf
	return nil
}

// Remove drops a sample; voices already streaming it keep their streamer
func (b *Bank) Remove(ref graph.SampleRef) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.samples[ref]
	delete(b.samples, ref)
	return ok
}

// Get returns the buffer for ref
func (b *Bank) Get(ref graph.SampleRef) (*beep.Buffer, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	buf, ok := b.samples[ref]
	return buf, ok
}

// Len returns the number of stored samples
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Refs returns stored references, sorted
func (b *Bank) Refs() []graph.SampleRef {
	b.mu.RLock()
	out := make([]graph.SampleRef, 0, len(b.samples))
	for ref := range b.samples {
		out = append(out, ref)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// frameStreamer plays a frame slice once
type frameStreamer struct {
	frames [][2]float64
	pos    int
}

func (s *frameStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.frames) {
		return 0, false
	}
	n := copy(samples, s.frames[s.pos:])
	s.pos += n
	return n, true
}

func (s *frameStreamer) Err() error { return nil }

package asset

import (
	"math"
	"time"

	"github.com/gopxl/beep"

	"github.com/lixenwraith/voxpool/graph"
)

// Wave is an oscillator shape
type Wave int

const (
	WaveSine Wave = iota
	WaveSquare
	WaveSaw
)

// Tone describes a synthesized test sample
type Tone struct {
	Freq     float64
	Duration time.Duration
	Wave     Wave
	Attack   time.Duration
	Release  time.Duration
	Level    float64 // Peak amplitude, zero means 0.5
}

// Render synthesizes the tone at rate with a linear attack/release envelope
func (t Tone) Render(rate beep.SampleRate) [][2]float64 {
	total := rate.N(t.Duration)
	att := min(rate.N(t.Attack), total)
	rel := min(rate.N(t.Release), total-att)
	level := t.Level
	if level == 0 {
		level = 0.5
	}

	frames := make([][2]float64, total)
	phase := 0.0
	step := t.Freq / float64(rate)
	for i := range frames {
		var v float64
		switch t.Wave {
		case WaveSine:
			v = math.Sin(2 * math.Pi * phase)
		case WaveSquare:
			v = 1
			if phase >= 0.5 {
				v = -1
			}
		case WaveSaw:
			v = 2 * (phase - 0.5)
		}

		env := 1.0
		if i < att {
			env = float64(i) / float64(att)
		} else if rem := total - i; rem <= rel {
			env = float64(rem) / float64(rel)
		}
		v *= env * level
		frames[i] = [2]float64{v, v}

		phase += step
		phase -= math.Floor(phase)
	}
	return frames
}

// AddTone renders t into the bank under ref
func (b *Bank) AddTone(ref graph.SampleRef, t Tone) error {
	return b.Add(ref, t.Render(b.format.SampleRate), b.format.SampleRate)
}

package asset

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// decodeFunc reads a whole file into stereo frames at the file's own rate
type decodeFunc func(r io.ReadSeeker) ([][2]float64, beep.SampleRate, error)

var decoders = map[string]decodeFunc{
	".wav":  decodeWAV,
	".mp3":  decodeMP3,
	".ogg":  decodeOgg,
	".aif":  decodeAIFF,
	".aiff": decodeAIFF,
}

// Decode reads r as the given format extension (".wav", ".mp3", ".ogg", ".aiff")
func Decode(ext string, r io.ReadSeeker) ([][2]float64, beep.SampleRate, error) {
	dec, ok := decoders[ext]
	if !ok {
		return nil, 0, fmt.Errorf("%q: %w", ext, ErrUnknownFormat)
	}
	return dec(r)
}

// interleaved converts channel-interleaved values to stereo frames
// Mono is duplicated to both sides; channels past the second are dropped
func interleaved(n, channels int, at func(i int) float64) [][2]float64 {
	if channels <= 0 {
		return nil
	}
	frames := make([][2]float64, n/channels)
	for f := range frames {
		base := f * channels
		l := at(base)
		r := l
		if channels > 1 {
			r = at(base + 1)
		}
		frames[f] = [2]float64{l, r}
	}
	return frames
}

func decodeWAV(r io.ReadSeeker) ([][2]float64, beep.SampleRate, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, 0, errors.New("not a valid WAV file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	depth := int(d.SampleBitDepth())
	if depth <= 0 || depth > 32 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", depth)
	}
	scale := float64(int64(1) << (depth - 1))
	// 8-bit WAV is unsigned
	offset := 0.0
	if depth == 8 {
		offset = 1
	}
	frames := interleaved(len(buf.Data), buf.Format.NumChannels, func(i int) float64 {
		return float64(buf.Data[i])/scale - offset
	})
	return frames, beep.SampleRate(buf.Format.SampleRate), nil
}

// decodeAIFF reads big-endian signed PCM in chunks; AIFF-C compression is not supported
func decodeAIFF(r io.ReadSeeker) ([][2]float64, beep.SampleRate, error) {
	d := aiff.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, 0, errors.New("not a valid AIFF file")
	}
	d.ReadInfo()
	format := d.Format()
	depth := int(d.BitDepth)
	if format == nil || depth <= 0 || depth > 32 {
		return nil, 0, fmt.Errorf("unsupported AIFF layout (%d bit)", depth)
	}

	var values []int
	buf := &goaudio.IntBuffer{Data: make([]int, 4096*format.NumChannels), Format: format}
	for {
		n, err := d.PCMBuffer(buf)
		values = append(values, buf.Data[:n]...)
		if n == 0 || err != nil {
			if err != nil && err != io.EOF {
				return nil, 0, err
			}
			break
		}
	}
	scale := float64(int64(1) << (depth - 1))
	frames := interleaved(len(values), format.NumChannels, func(i int) float64 {
		return float64(values[i]) / scale
	})
	return frames, beep.SampleRate(format.SampleRate), nil
}

func decodeMP3(r io.ReadSeeker) ([][2]float64, beep.SampleRate, error) {
	d, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	// Always 16-bit little-endian stereo
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, 0, err
	}
	frames := interleaved(len(pcm)/2, 2, func(i int) float64 {
		return float64(int16(uint16(pcm[2*i])|uint16(pcm[2*i+1])<<8)) / 32768
	})
	return frames, beep.SampleRate(d.SampleRate()), nil
}

func decodeOgg(r io.ReadSeeker) ([][2]float64, beep.SampleRate, error) {
	d, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, 0, err
	}
	var values []float32
	chunk := make([]float32, 4096*d.Channels())
	for {
		n, err := d.Read(chunk)
		values = append(values, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
	}
	frames := interleaved(len(values), d.Channels(), func(i int) float64 {
		return float64(values[i])
	})
	return frames, beep.SampleRate(d.SampleRate()), nil
}

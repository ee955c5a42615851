package asset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep"
)

// writeWAV encodes 16-bit PCM samples into a temp file
func writeWAV(t *testing.T, rate, channels int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file Close failed: %v", err)
	}
	return path
}

func readAll(buf *beep.Buffer) [][2]float64 {
	out := make([][2]float64, buf.Len())
	s := buf.Streamer(0, buf.Len())
	n, _ := s.Stream(out)
	return out[:n]
}

// TestLoadWAVStereo verifies 16-bit stereo frames decode to [-1, 1]
func TestLoadWAVStereo(t *testing.T) {
	path := writeWAV(t, 48000, 2, []int{16384, -16384, 0, 32767, -32768, 8192})
	b := NewBank(48000)
	if err := b.LoadFile("click", path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	buf, ok := b.Get("click")
	if !ok {
		t.Fatal("Expected click in bank")
	}
	frames := readAll(buf)
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(frames))
	}
	want := [][2]float64{{0.5, -0.5}, {0, 32767.0 / 32768}, {-1, 0.25}}
	for i, w := range want {
		for c := 0; c < 2; c++ {
			if math.Abs(frames[i][c]-w[c]) > 1e-4 {
				t.Errorf("Frame %d channel %d: expected %f, got %f", i, c, w[c], frames[i][c])
			}
		}
	}
}

// TestLoadAIFFStereo verifies big-endian AIFF decodes like WAV
func TestLoadAIFFStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.aiff")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	enc := aiff.NewEncoder(f, 48000, 16, 2)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 48000},
		Data:           []int{16384, -16384, -32768, 8192},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	f.Close()

	b := NewBank(48000)
	if err := b.LoadFile("pad", path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	got, _ := b.Get("pad")
	frames := readAll(got)
	want := [][2]float64{{0.5, -0.5}, {-1, 0.25}}
	if len(frames) != len(want) {
		t.Fatalf("Expected %d frames, got %d", len(want), len(frames))
	}
	for i, w := range want {
		if math.Abs(frames[i][0]-w[0]) > 1e-4 || math.Abs(frames[i][1]-w[1]) > 1e-4 {
			t.Errorf("Frame %d: expected %v, got %v", i, w, frames[i])
		}
	}
}

// TestLoadWAVMonoResampled verifies mono duplication and rate conversion
func TestLoadWAVMonoResampled(t *testing.T) {
	data := make([]int, 2400) // 100ms at 24kHz
	for i := range data {
		data[i] = 8192
	}
	path := writeWAV(t, 24000, 1, data)
	b := NewBank(48000)
	if err := b.LoadFile("pad", path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	buf, _ := b.Get("pad")
	if n := buf.Len(); n < 4700 || n > 4900 {
		t.Errorf("Expected about 4800 frames after upsampling, got %d", n)
	}
	frames := readAll(buf)
	mid := frames[len(frames)/2]
	if math.Abs(mid[0]-0.25) > 0.01 || mid[0] != mid[1] {
		t.Errorf("Expected duplicated mono near 0.25, got %v", mid)
	}
}

// TestBankErrors verifies format, duplicate and empty checks
func TestBankErrors(t *testing.T) {
	b := NewBank(48000)
	if err := b.LoadFile("x", "sound.flac"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}
	if err := b.LoadFile("x", filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("Expected error for missing file")
	}
	if err := b.Add("x", nil, 48000); !errors.Is(err, ErrEmptySample) {
		t.Errorf("Expected ErrEmptySample, got %v", err)
	}
	frames := [][2]float64{{0.1, 0.1}}
	if err := b.Add("x", frames, 48000); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := b.Add("x", frames, 48000); !errors.Is(err, ErrDuplicateRef) {
		t.Errorf("Expected ErrDuplicateRef, got %v", err)
	}
	if !b.Remove("x") || b.Remove("x") {
		t.Error("Expected Remove true once, then false")
	}
}

// TestDecodeInvalid verifies garbage input is rejected by each decoder
func TestDecodeInvalid(t *testing.T) {
	for _, ext := range []string{".wav", ".mp3", ".ogg"} {
		f, err := os.CreateTemp(t.TempDir(), "bad*"+ext)
		if err != nil {
			t.Fatalf("CreateTemp failed: %v", err)
		}
		f.WriteString("definitely not audio")
		f.Seek(0, 0)
		if _, _, err := Decode(ext, f); err == nil {
			t.Errorf("%s: expected decode error", ext)
		}
		f.Close()
	}
}

// TestToneEnvelope verifies the envelope starts silent and ends near zero
func TestToneEnvelope(t *testing.T) {
	tone := Tone{Freq: 440, Duration: 50 * time.Millisecond, Attack: 5 * time.Millisecond, Release: 10 * time.Millisecond, Wave: WaveSquare, Level: 0.8}
	frames := tone.Render(48000)
	if len(frames) != 2400 {
		t.Fatalf("Expected 2400 frames, got %d", len(frames))
	}
	if frames[0][0] != 0 {
		t.Errorf("Expected silent first frame, got %f", frames[0][0])
	}
	if v := math.Abs(frames[1200][0]); math.Abs(v-0.8) > 1e-9 {
		t.Errorf("Expected full level in sustain, got %f", v)
	}
	if v := math.Abs(frames[len(frames)-1][0]); v > 0.8/480+1e-9 {
		t.Errorf("Expected near-silent tail, got %f", v)
	}

	b := NewBank(48000)
	if err := b.AddTone("beep", tone); err != nil {
		t.Fatalf("AddTone failed: %v", err)
	}
	if refs := b.Refs(); len(refs) != 1 || refs[0] != "beep" {
		t.Errorf("Expected [beep], got %v", refs)
	}
}

// TestServiceInit verifies all files are attempted and failures joined
func TestServiceInit(t *testing.T) {
	good := writeWAV(t, 48000, 1, []int{100, 200})
	b := NewBank(48000)
	s := NewService(b, []File{
		{Ref: "bad", Path: "nope.xyz"},
		{Ref: "good", Path: good},
	})
	err := s.Init()
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected joined ErrUnknownFormat, got %v", err)
	}
	if _, ok := b.Get("good"); !ok {
		t.Error("Expected good sample loaded despite earlier failure")
	}
	if s.Name() != "assets" || s.Bank() != b {
		t.Error("Expected assets service exposing its bank")
	}
}

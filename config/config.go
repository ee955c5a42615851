// Package config loads voxpool settings from a TOML file and the environment
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lixenwraith/voxpool/chain"
	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/parameter"
	"github.com/lixenwraith/voxpool/pool"
	"github.com/lixenwraith/voxpool/toml"
)

// Environment overrides, applied after the file
const (
	EnvSampleRate   = "VOXPOOL_SAMPLE_RATE"
	EnvSyncMs       = "VOXPOOL_SYNC_MS"
	EnvMasterVolume = "VOXPOOL_MASTER_VOLUME" // 0-100
	EnvPoolBounds   = "VOXPOOL_POOL_BOUNDS"   // JSON {"sfx":[2,8]}
)

var ErrInvalid = errors.New("invalid configuration")

// Engine holds output and cadence settings
type Engine struct {
	SampleRate     int     `toml:"sample_rate"`
	SyncIntervalMs int     `toml:"sync_interval_ms"`
	BufferMs       int     `toml:"buffer_ms"`
	MasterVolume   float64 `toml:"master_volume"`
}

// Sample maps a sample reference to a file
type Sample struct {
	Ref  string `toml:"ref"`
	Path string `toml:"path"`
}

// Pool declares one voice pool and its effect chain
// Effect tables carry a kind, an optional name and kind-specific parameters
type Pool struct {
	Name     string           `toml:"name"`
	Min      *int             `toml:"min"`
	Max      *int             `toml:"max"`
	Sink     string           `toml:"sink"`
	Headroom int              `toml:"headroom"`
	Growth   string           `toml:"growth"`
	BusGain  float64          `toml:"bus_gain"`
	Quality  *int             `toml:"quality"`
	Effects  []map[string]any `toml:"effect"`
}

// Config is the whole file
type Config struct {
	Engine  Engine   `toml:"engine"`
	Samples []Sample `toml:"sample"`
	Pools   []Pool   `toml:"pool"`
}

// Default returns the compiled-in settings with no samples or pools
func Default() *Config {
	return &Config{
		Engine: Engine{
			SampleRate:     parameter.RenderSampleRate,
			SyncIntervalMs: int(parameter.SyncInterval / time.Millisecond),
			BufferMs:       int(parameter.RenderBufferDuration / time.Millisecond),
			MasterVolume:   1,
		},
	}
}

// Load reads path, applies environment overrides and validates
// Relative sample paths resolve against the file's directory
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i, s := range cfg.Samples {
		if s.Path != "" && !filepath.IsAbs(s.Path) {
			cfg.Samples[i].Path = filepath.Join(dir, s.Path)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data over the defaults; unknown keys are errors
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := (toml.Decoder{Strict: true}).Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from VOXPOOL_* variables
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvSampleRate); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvSampleRate, v)
		}
		c.Engine.SampleRate = n
	}

	if v, ok := os.LookupEnv(EnvSyncMs); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvSyncMs, v)
		}
		c.Engine.SyncIntervalMs = n
	}

	// 0-100 clamped into 0.0-1.0
	if v, ok := os.LookupEnv(EnvMasterVolume); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvMasterVolume, v)
		}
		c.Engine.MasterVolume = min(max(float64(n)/100, 0), 1)
	}

	if v, ok := os.LookupEnv(EnvPoolBounds); ok {
		var bounds map[string][2]int
		if err := json.Unmarshal([]byte(v), &bounds); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvPoolBounds, err)
		}
		for name, b := range bounds {
			p := c.pool(name)
			if p == nil {
				return fmt.Errorf("%w: %s names unknown pool %q", ErrInvalid, EnvPoolBounds, name)
			}
			lo, hi := b[0], b[1]
			p.Min, p.Max = &lo, &hi
		}
	}
	return nil
}

func (c *Config) pool(name string) *Pool {
	for i := range c.Pools {
		if c.Pools[i].Name == name {
			return &c.Pools[i]
		}
	}
	return nil
}

// SyncInterval is the authoring cadence
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Engine.SyncIntervalMs) * time.Millisecond
}

// Buffer is the output buffer duration
func (c *Config) Buffer() time.Duration {
	return time.Duration(c.Engine.BufferMs) * time.Millisecond
}

// Validate checks values that do not need the effect registry
func (c *Config) Validate() error {
	e := c.Engine
	if e.SampleRate <= 0 || e.SyncIntervalMs <= 0 || e.BufferMs <= 0 {
		return fmt.Errorf("%w: engine rate %d, sync %dms, buffer %dms", ErrInvalid, e.SampleRate, e.SyncIntervalMs, e.BufferMs)
	}
	if e.MasterVolume < 0 || e.MasterVolume > 1 {
		return fmt.Errorf("%w: master_volume %.2f outside [0, 1]", ErrInvalid, e.MasterVolume)
	}

	refs := make(map[string]bool, len(c.Samples))
	for i, s := range c.Samples {
		if s.Ref == "" || s.Path == "" {
			return fmt.Errorf("%w: sample %d needs ref and path", ErrInvalid, i)
		}
		if refs[s.Ref] {
			return fmt.Errorf("%w: duplicate sample %q", ErrInvalid, s.Ref)
		}
		refs[s.Ref] = true
	}

	names := make(map[string]bool, len(c.Pools))
	for i, p := range c.Pools {
		if p.Name == "" {
			return fmt.Errorf("%w: pool %d has no name", ErrInvalid, i)
		}
		if names[p.Name] {
			return fmt.Errorf("%w: duplicate pool %q", ErrInvalid, p.Name)
		}
		names[p.Name] = true
		switch p.Growth {
		case "", "demand", "geometric":
		default:
			return fmt.Errorf("%w: pool %q growth %q", ErrInvalid, p.Name, p.Growth)
		}
	}
	for _, p := range c.Pools {
		if p.Sink != "" && p.Sink != pool.OutputSink && !names[p.Sink] {
			return fmt.Errorf("%w: pool %q routed to unknown pool %q", ErrInvalid, p.Name, p.Sink)
		}
	}
	return nil
}

// PoolConfigs builds pool configs with their chain templates
// Pools are ordered so every sink precedes the pools routed into it
func (c *Config) PoolConfigs(reg *chain.Registry) ([]pool.Config, error) {
	byName := make(map[string]pool.Config, len(c.Pools))
	for _, p := range c.Pools {
		pc, err := p.build(reg)
		if err != nil {
			return nil, err
		}
		byName[p.Name] = pc
	}

	out := make([]pool.Config, 0, len(c.Pools))
	state := make(map[string]int, len(c.Pools)) // 1 visiting, 2 done
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case 1:
			return fmt.Errorf("%w: routing cycle through pool %q", ErrInvalid, name)
		case 2:
			return nil
		}
		state[name] = 1
		pc := byName[name]
		if _, ok := byName[pc.Sink]; ok {
			if err := visit(pc.Sink); err != nil {
				return err
			}
		}
		state[name] = 2
		out = append(out, pc)
		return nil
	}
	for _, p := range c.Pools {
		if err := visit(p.Name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p Pool) build(reg *chain.Registry) (pool.Config, error) {
	pc := pool.DefaultConfig(p.Name)
	if p.Min != nil {
		pc.Min = *p.Min
	}
	if p.Max != nil {
		pc.Max = *p.Max
	}
	if pc.Min > pc.Max && p.Max == nil {
		pc.Max = pc.Min
	}
	pc.Sink = p.Sink
	pc.Headroom = p.Headroom
	pc.Bus = graph.Bus{Gain: p.BusGain}
	if p.Quality != nil {
		pc.Sampler.Quality = *p.Quality
	}
	if p.Growth == "geometric" {
		pc.Growth = pool.GrowGeometric
	}

	descs := make([]graph.Descriptor, 0, len(p.Effects))
	for i, e := range p.Effects {
		d, err := effectDescriptor(reg, e)
		if err != nil {
			return pool.Config{}, fmt.Errorf("pool %q effect %d: %w", p.Name, i, err)
		}
		descs = append(descs, d)
	}
	tmpl, err := chain.Declare(p.Name, descs...)
	if err != nil {
		return pool.Config{}, fmt.Errorf("pool %q: %w", p.Name, err)
	}
	pc.Template = tmpl
	return pc, nil
}

// effectDescriptor splits an effect table into kind, name and parameters
func effectDescriptor(reg *chain.Registry, e map[string]any) (graph.Descriptor, error) {
	kind, _ := e["kind"].(string)
	if kind == "" {
		return graph.Descriptor{}, fmt.Errorf("%w: effect without kind", ErrInvalid)
	}
	name, _ := e["name"].(string)
	params := chain.Params{Num: make(map[string]float64), Str: make(map[string]string)}
	for k, v := range e {
		if k == "kind" || k == "name" {
			continue
		}
		switch x := v.(type) {
		case float64:
			params.Num[k] = x
		case int64:
			params.Num[k] = float64(x)
		case bool:
			if x {
				params.Num[k] = 1
			} else {
				params.Num[k] = 0
			}
		case string:
			params.Str[k] = x
		default:
			return graph.Descriptor{}, fmt.Errorf("%w: effect %s parameter %q has type %T", ErrInvalid, kind, k, v)
		}
	}
	return reg.Descriptor(kind, name, params)
}

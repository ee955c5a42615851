package chain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lixenwraith/voxpool/graph"
)

// Params carries numeric and string construction parameters from configuration
type Params struct {
	Num map[string]float64
	Str map[string]string
}

// GetNum returns a numeric parameter or def when absent
func (p Params) GetNum(key string, def float64) float64 {
	if v, ok := p.Num[key]; ok {
		return v
	}
	return def
}

// GetStr returns a string parameter or def when absent
func (p Params) GetStr(key, def string) string {
	if v, ok := p.Str[key]; ok {
		return v
	}
	return def
}

// Factory builds a node configuration from parameters
type Factory func(p Params) (graph.Config, error)

// Registry maps kind names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory, rejecting duplicate names
func (r *Registry) Register(kind string, f Factory) error {
	if kind == "" || f == nil {
		return fmt.Errorf("chain: invalid registration for %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("chain: kind %q already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

// MustRegister panics on registration error
func (r *Registry) MustRegister(kind string, f Factory) {
	if err := r.Register(kind, f); err != nil {
		panic(err)
	}
}

// Kinds returns registered names, sorted
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Descriptor builds a named descriptor for kind
func (r *Registry) Descriptor(kind, name string, p Params) (graph.Descriptor, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return graph.Descriptor{}, fmt.Errorf("chain: unknown kind %q", kind)
	}
	cfg, err := f(p)
	if err != nil {
		return graph.Descriptor{}, fmt.Errorf("chain: %s: %w", kind, err)
	}
	return graph.Descriptor{Name: name, Config: cfg}, nil
}

// DefaultRegistry returns a registry with the built-in effect kinds
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("volume", func(p Params) (graph.Config, error) {
		return graph.Volume{Volume: p.GetNum("volume", 0), Silent: p.GetNum("silent", 0) != 0}, nil
	})
	r.MustRegister("gain", func(p Params) (graph.Config, error) {
		return graph.Gain{Gain: p.GetNum("gain", 0)}, nil
	})
	r.MustRegister("pan", func(p Params) (graph.Config, error) {
		pan := p.GetNum("pan", 0)
		if pan < -1 || pan > 1 {
			return nil, fmt.Errorf("pan %.2f outside [-1, 1]", pan)
		}
		return graph.Pan{Pan: pan}, nil
	})
	r.MustRegister("bus", func(p Params) (graph.Config, error) {
		return graph.Bus{Gain: p.GetNum("gain", 0)}, nil
	})
	return r
}

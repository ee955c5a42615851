package status

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// MetricMap is a copy-on-write map of named metrics of type T
// Lookups read a published map without locking; registration copies it
// Components fetch their pointers once at construction and update them directly
type MetricMap[T any] struct {
	mu    sync.Mutex // Serializes writers
	items atomic.Pointer[map[string]*T]
}

// NewMetricMap creates an empty MetricMap
func NewMetricMap[T any]() *MetricMap[T] {
	m := &MetricMap[T]{}
	empty := make(map[string]*T)
	m.items.Store(&empty)
	return m
}

// Get returns the metric pointer for key, registering a zero value on first use
func (m *MetricMap[T]) Get(key string) *T {
	if ptr, ok := (*m.items.Load())[key]; ok {
		return ptr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cur := *m.items.Load()
	if ptr, ok := cur[key]; ok {
		return ptr
	}
	next := maps.Clone(cur)
	ptr := new(T)
	next[key] = ptr
	m.items.Store(&next)
	return ptr
}

// Range calls fn for every metric in key order over one consistent view
func (m *MetricMap[T]) Range(fn func(key string, ptr *T)) {
	cur := *m.items.Load()
	for _, k := range slices.Sorted(maps.Keys(cur)) {
		fn(k, cur[k])
	}
}

// DeletePrefix unlists every key starting with prefix, used when a pool goes away
// Pointers already handed out stay valid
func (m *MetricMap[T]) DeletePrefix(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := maps.Clone(*m.items.Load())
	maps.DeleteFunc(next, func(k string, _ *T) bool {
		return strings.HasPrefix(k, prefix)
	})
	m.items.Store(&next)
}

// Has reports whether key is listed, without registering it
func (m *MetricMap[T]) Has(key string) bool {
	_, ok := (*m.items.Load())[key]
	return ok
}

// Count returns the number of listed metrics
func (m *MetricMap[T]) Count() int {
	return len(*m.items.Load())
}

func sortMetrics(ms []Metric) {
	slices.SortFunc(ms, func(a, b Metric) int { return strings.Compare(a.Name, b.Name) })
}

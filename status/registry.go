package status

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// Registry is the central metrics facade
// Components cache pointers at construction; hot paths write directly to atomics
type Registry struct {
	Bools  *MetricMap[atomic.Bool]
	Ints   *MetricMap[atomic.Int64]
	Floats *MetricMap[AtomicFloat]
}

// NewRegistry creates an initialized Registry
func NewRegistry() *Registry {
	return &Registry{
		Bools:  NewMetricMap[atomic.Bool](),
		Ints:   NewMetricMap[atomic.Int64](),
		Floats: NewMetricMap[AtomicFloat](),
	}
}

// TotalCount returns total metrics across all types
func (r *Registry) TotalCount() int {
	return r.Bools.Count() + r.Ints.Count() + r.Floats.Count()
}

// Metric is one formatted reading
type Metric struct {
	Name  string
	Value string
}

// Dump returns every metric formatted and sorted by name, optionally filtered by prefix
func (r *Registry) Dump(prefix string) []Metric {
	var out []Metric
	r.Ints.Range(func(key string, ptr *atomic.Int64) {
		if strings.HasPrefix(key, prefix) {
			out = append(out, Metric{key, strconv.FormatInt(ptr.Load(), 10)})
		}
	})
	r.Floats.Range(func(key string, ptr *AtomicFloat) {
		if strings.HasPrefix(key, prefix) {
			out = append(out, Metric{key, strconv.FormatFloat(ptr.Get(), 'f', 3, 64)})
		}
	})
	r.Bools.Range(func(key string, ptr *atomic.Bool) {
		if strings.HasPrefix(key, prefix) {
			out = append(out, Metric{key, strconv.FormatBool(ptr.Load())})
		}
	})
	sortMetrics(out)
	return out
}

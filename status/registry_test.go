package status

import (
	"sync"
	"testing"
)

func TestMetricMapCachesPointers(t *testing.T) {
	r := NewRegistry()
	a := r.Ints.Get("pool.sfx.size")
	b := r.Ints.Get("pool.sfx.size")
	if a != b {
		t.Fatal("Expected the same pointer for the same key")
	}
	a.Store(4)
	if b.Load() != 4 {
		t.Errorf("Expected 4, got %d", b.Load())
	}
}

// TestMetricMapHas tests lookup without registration and unlisting by prefix
func TestMetricMapHas(t *testing.T) {
	r := NewRegistry()
	if r.Ints.Has("pool.sfx.size") {
		t.Fatal("Expected unregistered key absent")
	}
	if r.Ints.Count() != 0 {
		t.Errorf("Expected Has not to register, got %d metrics", r.Ints.Count())
	}

	ptr := r.Ints.Get("pool.sfx.size")
	r.Ints.Get("pool.ui.size")
	if !r.Ints.Has("pool.sfx.size") {
		t.Error("Expected registered key present")
	}

	r.Ints.DeletePrefix("pool.sfx.")
	if r.Ints.Has("pool.sfx.size") {
		t.Error("Expected key removed by prefix")
	}
	if !r.Ints.Has("pool.ui.size") {
		t.Error("Expected other pool kept")
	}
	ptr.Store(1) // Handed-out pointers stay usable
}

func TestRegistryDumpSortedAndFiltered(t *testing.T) {
	r := NewRegistry()
	r.Ints.Get("pool.sfx.size").Store(3)
	r.Ints.Get("pool.amb.size").Store(2)
	r.Floats.Get("render.peak").Set(0.5)
	r.Bools.Get("graph.active").Store(true)

	all := r.Dump("")
	if len(all) != 4 {
		t.Fatalf("Expected 4 metrics, got %d", len(all))
	}
	want := []string{"graph.active", "pool.amb.size", "pool.sfx.size", "render.peak"}
	for i, w := range want {
		if all[i].Name != w {
			t.Errorf("Metric %d: expected %s, got %s", i, w, all[i].Name)
		}
	}
	if all[3].Value != "0.500" {
		t.Errorf("Expected formatted float 0.500, got %s", all[3].Value)
	}

	pools := r.Dump("pool.")
	if len(pools) != 2 {
		t.Errorf("Expected 2 pool metrics, got %d", len(pools))
	}

	r.Ints.DeletePrefix("pool.sfx.")
	if got := len(r.Dump("pool.")); got != 1 {
		t.Errorf("Expected 1 pool metric after delete, got %d", got)
	}
}

func TestAtomicFloatConcurrentAddAndMax(t *testing.T) {
	var f AtomicFloat
	var peak AtomicFloat
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func(v float64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f.Add(1)
			}
			peak.Max(v)
		}(float64(i))
	}
	wg.Wait()

	if f.Get() != 1000 {
		t.Errorf("Expected 1000, got %f", f.Get())
	}
	if peak.Get() != 9 {
		t.Errorf("Expected peak 9, got %f", peak.Get())
	}
}

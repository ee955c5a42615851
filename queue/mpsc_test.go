package queue

import (
	"sync"
	"testing"
)

// TestMPSCBasic tests FIFO push and pop on a single producer
func TestMPSCBasic(t *testing.T) {
	q := NewMPSC[int]()

	if _, ok := q.Pop(); ok {
		t.Fatal("Expected empty queue to report no value")
	}

	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	if q.Len() != 5 {
		t.Errorf("Expected length 5, got %d", q.Len())
	}

	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("Expected value %d, queue empty", i)
		}
		if v != i {
			t.Errorf("Expected %d, got %d", i, v)
		}
	}

	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got length %d", q.Len())
	}
}

// TestMPSCDrain tests that Drain returns values in order and empties the queue
func TestMPSCDrain(t *testing.T) {
	q := NewMPSC[string]()
	q.Push("a")
	q.Push("b")
	q.Push("c")

	var got []string
	n := q.Drain(func(s string) { got = append(got, s) })
	if n != 3 {
		t.Fatalf("Expected 3 drained, got %d", n)
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("Unexpected drain order: %v", got)
	}

	// Queue stays usable after the stub moved
	q.Push("d")
	v, ok := q.Pop()
	if !ok || v != "d" {
		t.Errorf("Expected d after drain, got %q ok=%v", v, ok)
	}
}

// TestMPSCConcurrentProducers checks exactly-once delivery and per-producer order
func TestMPSCConcurrentProducers(t *testing.T) {
	type item struct {
		producer int
		seq      int
	}

	q := NewMPSC[item]()
	const producers = 8
	const perProducer = 2000

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(item{producer: id, seq: i})
			}
		}(p)
	}

	// Consume concurrently with producers
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	received := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	consume := func(it item) {
		if it.seq != last[it.producer]+1 {
			t.Errorf("Producer %d: expected seq %d, got %d", it.producer, last[it.producer]+1, it.seq)
		}
		last[it.producer] = it.seq
		received++
	}

	for {
		select {
		case <-done:
			q.Drain(consume)
			if received != producers*perProducer {
				t.Fatalf("Expected %d items, got %d", producers*perProducer, received)
			}
			return
		default:
			q.Drain(consume)
		}
	}
}

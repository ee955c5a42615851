package pool

import (
	"sort"
	"time"
)

// EntryState tracks a queue entry until it leaves the waiting list
type EntryState uint8

const (
	EntryWaiting EntryState = iota
	EntryAssigned
	EntryExpired
	EntryCancelled
	EntryDropped
)

// Entry is a request waiting for a voice
type Entry struct {
	Handle     *Handle
	EnqueuedAt time.Time
	Priority   int
	State      EntryState

	seq uint64
}

func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.EnqueuedAt) > e.Handle.lifetime
}

// before orders entries by priority desc, enqueue time asc, arrival seq asc
func (e *Entry) before(o *Entry) bool {
	if e.Priority != o.Priority {
		return e.Priority > o.Priority
	}
	if !e.EnqueuedAt.Equal(o.EnqueuedAt) {
		return e.EnqueuedAt.Before(o.EnqueuedAt)
	}
	return e.seq < o.seq
}

// waitList is a pool-scoped priority queue, kept sorted on insert
type waitList struct {
	entries []*Entry
}

func (w *waitList) Len() int {
	return len(w.entries)
}

func (w *waitList) insert(e *Entry) {
	i := sort.Search(len(w.entries), func(i int) bool {
		return e.before(w.entries[i])
	})
	w.entries = append(w.entries, nil)
	copy(w.entries[i+1:], w.entries[i:])
	w.entries[i] = e
}

func (w *waitList) front() *Entry {
	if len(w.entries) == 0 {
		return nil
	}
	return w.entries[0]
}

func (w *waitList) popFront() *Entry {
	if len(w.entries) == 0 {
		return nil
	}
	e := w.entries[0]
	copy(w.entries, w.entries[1:])
	w.entries[len(w.entries)-1] = nil
	w.entries = w.entries[:len(w.entries)-1]
	return e
}

// remove takes the entry of the given request out of the list
func (w *waitList) remove(id RequestID) *Entry {
	for i, e := range w.entries {
		if e.Handle.id == id {
			copy(w.entries[i:], w.entries[i+1:])
			w.entries[len(w.entries)-1] = nil
			w.entries = w.entries[:len(w.entries)-1]
			return e
		}
	}
	return nil
}

// removeExpired extracts every entry past its lifetime, preserving order of the rest
func (w *waitList) removeExpired(now time.Time, dst []*Entry) []*Entry {
	kept := w.entries[:0]
	for _, e := range w.entries {
		if e.expired(now) {
			dst = append(dst, e)
			continue
		}
		kept = append(kept, e)
	}
	clear(w.entries[len(kept):])
	w.entries = kept
	return dst
}

// takeAll empties the list, returning its entries in order
func (w *waitList) takeAll() []*Entry {
	all := w.entries
	w.entries = nil
	return all
}

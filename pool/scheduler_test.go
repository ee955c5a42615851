package pool

import (
	"testing"
	"time"

	"github.com/lixenwraith/voxpool/event"
	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/parameter"
)

// TestSchedulerGrowQueuePreempt walks a pool from growth to queueing to preemption
func TestSchedulerGrowQueuePreempt(t *testing.T) {
	h := newHarness(t)
	p := h.pool(poolConfig("sfx", 2, 4))

	if p.Size() != 2 {
		t.Fatalf("Expected 2 voices at creation, got %d", p.Size())
	}

	a, b := h.submit("sfx", 5), h.submit("sfx", 5)
	h.cycle()
	if a.State() != StatePlaying || b.State() != StatePlaying {
		t.Fatalf("Expected both playing, got %s %s", a.State(), b.State())
	}

	// Two playing at size 2, P3 grows the pool instead of preempting
	p3 := h.submit("sfx", 5)
	h.cycle()
	if p.Size() != 3 {
		t.Errorf("Expected pool to grow to 3, got %d", p.Size())
	}
	if p3.State() != StatePlaying {
		t.Errorf("Expected P3 playing, got %s", p3.State())
	}
	if n := h.count(event.VoicePreempted); n != 0 {
		t.Errorf("Expected no preemption, got %d", n)
	}

	low := h.submit("sfx", 2)
	h.cycle()
	if p.Size() != 4 || low.State() != StatePlaying {
		t.Fatalf("Expected size 4 with priority 2 playing, got size %d state %s", p.Size(), low.State())
	}
	lowVoice, _ := low.Voice()

	// Saturated at {5,5,5,2}: priority 1 loses to everyone
	p4 := h.submit("sfx", 1)
	h.cycle()
	if p4.State() != StateWaiting {
		t.Errorf("Expected P4 waiting, got %s", p4.State())
	}
	if p.Size() != 4 {
		t.Errorf("Expected size to stay at max 4, got %d", p.Size())
	}

	// Priority 10 takes the priority 2 voice
	p5 := h.submit("sfx", 10)
	h.cycle()
	if p5.State() != StatePlaying {
		t.Fatalf("Expected P5 playing, got %s", p5.State())
	}
	if low.State() != StatePreempted {
		t.Errorf("Expected priority 2 request preempted, got %s", low.State())
	}
	if id, _ := p5.Voice(); id != lowVoice {
		t.Errorf("Expected P5 on voice %d, got %d", lowVoice, id)
	}
	note, ok := h.find(event.VoicePreempted, low.ID())
	if !ok {
		t.Fatal("Expected VoicePreempted notification for the priority 2 request")
	}
	if note.Voice != uint64(lowVoice) {
		t.Errorf("Expected preempted voice %d, got %d", lowVoice, note.Voice)
	}
	if p4.State() != StateWaiting {
		t.Errorf("Expected P4 still waiting, got %s", p4.State())
	}
	for _, r := range []*Handle{a, b, p3} {
		if r.State() != StatePlaying {
			t.Errorf("Expected request %d untouched, got %s", r.ID(), r.State())
		}
	}
	checkBindings(t, h.m)
}

// TestSchedulerPreemptionIsStrict tests that equal priority never preempts
func TestSchedulerPreemptionIsStrict(t *testing.T) {
	h := newHarness(t)
	h.pool(poolConfig("sfx", 1, 1))

	a := h.submit("sfx", 3)
	h.cycle()
	b := h.submit("sfx", 3)
	h.cycle()

	if a.State() != StatePlaying {
		t.Errorf("Expected first request playing, got %s", a.State())
	}
	if b.State() != StateWaiting {
		t.Errorf("Expected equal priority to wait, got %s", b.State())
	}
	if n := h.count(event.VoicePreempted); n != 0 {
		t.Errorf("Expected no preemption, got %d", n)
	}
}

// TestSchedulerPreemptStopsBeforeRebind tests the victim's Stop precedes the new Play on the same sampler
func TestSchedulerPreemptStopsBeforeRebind(t *testing.T) {
	h := newHarness(t)
	h.pool(poolConfig("sfx", 1, 1))

	a := h.submit("sfx", 1)
	h.cycle()
	node, _ := a.Sampler()
	h.rec.Reset()

	b := h.m.Submit("sfx", "snare", 9, 0, Params{Volume: 0.5})
	h.cycle()

	events := h.rec.Events(node)
	if len(events) != 2 {
		t.Fatalf("Expected Stop then Play, got %v", events)
	}
	if _, ok := events[0].(graph.Stop); !ok {
		t.Errorf("Expected Stop first, got %T", events[0])
	}
	play, ok := events[1].(graph.Play)
	if !ok {
		t.Fatalf("Expected Play second, got %T", events[1])
	}
	if play.Sample != "snare" || play.Gain != 0.5 {
		t.Errorf("Expected snare at 0.5, got %s at %v", play.Sample, play.Gain)
	}
	if b.State() != StatePlaying {
		t.Errorf("Expected preemptor playing, got %s", b.State())
	}
}

// TestVictimTieBreak tests victim ordering: priority, then non-looping, then oldest
func TestVictimTieBreak(t *testing.T) {
	base := time.Unix(0, 0)
	voice := func(id VoiceID, prio int, loop bool, age time.Duration) *Voice {
		return &Voice{id: id, owner: &Handle{}, priority: prio, looping: loop, startedAt: base.Add(-age), state: VoicePlaying}
	}
	p := &Pool{voices: []*Voice{
		voice(1, 2, true, 3*time.Second),
		voice(2, 2, false, time.Second),
		voice(3, 2, false, 2*time.Second),
		voice(4, 5, false, 9*time.Second),
	}}

	if v := Victim(p, 3); v == nil || v.id != 3 {
		t.Errorf("Expected oldest non-looping voice 3, got %v", v)
	}
	if v := Victim(p, 2); v != nil {
		t.Errorf("Expected no victim at equal priority, got %d", v.id)
	}

	p.voices[1].owner, p.voices[2].owner = nil, nil
	if v := Victim(p, 3); v == nil || v.id != 1 {
		t.Errorf("Expected looping voice once it is the only candidate, got %v", v)
	}
}

// TestSchedulerExpiry tests a 200ms entry at a 50ms cadence expires by 250ms, reported once
func TestSchedulerExpiry(t *testing.T) {
	h := newHarness(t)
	h.pool(poolConfig("sfx", 1, 1))

	holder := h.m.Submit("sfx", "drone", 1, 0, Params{Repeat: RepeatForever})
	h.cycle()
	waiter := h.m.Submit("sfx", "kick", 1, 200*time.Millisecond, Params{})
	h.cycle()
	if waiter.State() != StateWaiting {
		t.Fatalf("Expected waiting, got %s", waiter.State())
	}
	start := h.clk.Now()

	var expiredAt time.Duration = -1
	for i := 0; i < 10; i++ {
		h.clk.Advance(50 * time.Millisecond)
		h.cycle()
		if expiredAt < 0 && waiter.State() == StateExpired {
			expiredAt = h.clk.Now().Sub(start)
		}
	}

	if expiredAt < 0 || expiredAt > 250*time.Millisecond {
		t.Errorf("Expected expiry at or before 250ms, got %v", expiredAt)
	}
	if expiredAt <= 200*time.Millisecond {
		t.Errorf("Expected entry to survive its full lifetime, expired at %v", expiredAt)
	}
	if n := h.count(event.RequestExpired); n != 1 {
		t.Errorf("Expected exactly one expiry notification, got %d", n)
	}
	if _, ok := h.find(event.RequestAssigned, waiter.ID()); ok {
		t.Error("Expected expired request never assigned")
	}
	if holder.State() != StatePlaying {
		t.Errorf("Expected holder still playing, got %s", holder.State())
	}
	select {
	case <-waiter.Done():
	default:
		t.Error("Expected Done closed after expiry")
	}
}

// TestSchedulerExpiryBurstReported tests every expiry in a cycle is reported even past the notification ring size
func TestSchedulerExpiryBurstReported(t *testing.T) {
	h := newHarnessBus(t, parameter.NotificationQueueSize)
	h.pool(poolConfig("sfx", 1, 1))

	h.m.Submit("sfx", "drone", 9, 0, Params{Repeat: RepeatForever})
	h.cycle()

	const burst = 1500
	waiters := make([]*Handle, burst)
	for i := range waiters {
		waiters[i] = h.m.Submit("sfx", "kick", 1, 100*time.Millisecond, Params{})
	}
	h.cycle()

	h.clk.Advance(200 * time.Millisecond)
	r := h.cycle()
	if r.Expired != burst {
		t.Errorf("Expected %d expired in one cycle, got %d", burst, r.Expired)
	}
	for _, w := range waiters {
		if w.State() != StateExpired {
			t.Fatalf("Expected request %d expired, got %s", w.ID(), w.State())
		}
		if _, ok := h.find(event.RequestExpired, w.ID()); !ok {
			t.Fatalf("Expected expiry notification for request %d", w.ID())
		}
	}
	if n := h.count(event.RequestExpired); n != burst {
		t.Errorf("Expected %d expiry notifications, got %d", burst, n)
	}
}

// TestSchedulerAssignsWaitersInPriorityOrder tests freed voices go to the highest priority, then earliest entry
func TestSchedulerAssignsWaitersInPriorityOrder(t *testing.T) {
	h := newHarness(t)
	h.pool(poolConfig("sfx", 1, 1))

	a := h.submit("sfx", 9)
	h.cycle()
	first := h.submit("sfx", 4)
	h.clk.Advance(time.Millisecond)
	h.cycle()
	second := h.submit("sfx", 4)
	high := h.submit("sfx", 6)
	h.cycle()

	h.m.Stop(a)
	h.cycle() // Releasing
	h.cycle() // Idle, reassigned
	if high.State() != StatePlaying {
		t.Fatalf("Expected priority 6 assigned first, got %s", high.State())
	}

	h.m.Stop(high)
	h.cycle()
	h.cycle()
	if first.State() != StatePlaying || second.State() != StateWaiting {
		t.Errorf("Expected earlier entry first, got first=%s second=%s", first.State(), second.State())
	}
}

// TestSchedulerNegativeLifetimeDrops tests a request that may not wait is dropped at a saturated pool
func TestSchedulerNegativeLifetimeDrops(t *testing.T) {
	h := newHarness(t)
	h.pool(poolConfig("sfx", 1, 1))

	h.submit("sfx", 5)
	h.cycle()
	r := h.m.Submit("sfx", "kick", 1, -1, Params{})
	h.cycle()

	if r.State() != StateDropped {
		t.Errorf("Expected dropped, got %s", r.State())
	}
	note, ok := h.find(event.RequestDropped, r.ID())
	if !ok || note.Reason != "pool saturated" {
		t.Errorf("Expected pool saturated drop, got %+v", note)
	}
}

package engine

import (
	"time"

	"github.com/lixenwraith/voxpool/core"
	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/parameter"
	"github.com/lixenwraith/voxpool/pool"
)

// Report summarizes one sync cycle
type Report struct {
	Tick          pool.TickReport
	Sync          graph.SyncReport
	Completions   int
	Notifications int
	Duration      time.Duration
}

// Start launches the sync loop
func (e *Engine) Start() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.running.CompareAndSwap(false, true) {
		e.statRunning.Store(true)
		e.wg.Add(1)
		core.Go(e.loop)
	}
	return nil
}

// Stop halts the loop after the current cycle and rejects further authoring calls
// Idempotent
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		e.closed.Store(true)
		close(e.stopChan)
		if e.running.CompareAndSwap(true, false) {
			e.wg.Wait()
		}
		e.statRunning.Store(false)
	})
	return nil
}

// Running reports whether the loop is active
func (e *Engine) Running() bool {
	return e.running.Load()
}

// loop runs cycles on wall-clock deadlines; the injected clock only drives request lifetimes
func (e *Engine) loop() {
	defer e.wg.Done()

	deadline := time.Now().Add(e.interval)
	timer := time.NewTimer(e.interval)
	defer timer.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-timer.C:
		}

		e.Cycle()

		now := time.Now()
		deadline = deadline.Add(e.interval)
		if now.Sub(deadline) > e.interval*parameter.SyncMaxBehind {
			// Too far behind, drop the missed cycles instead of bursting
			deadline = now.Add(e.interval)
			e.statOverruns.Add(1)
		}
		timer.Reset(max(deadline.Sub(now), 0))
	}
}

// Cycle runs one sync point: completions, pool tick, graph apply, notification dispatch
// Safe to call directly when the loop is not running
func (e *Engine) Cycle() Report {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := time.Now()
	e.done = e.done[:0]
	if e.source != nil {
		e.done = e.source.Completions(e.done)
	}

	r := Report{Completions: len(e.done)}
	r.Tick = e.manager.Tick(e.done)
	r.Sync = e.sync.DrainAndApply()
	r.Notifications = e.bus.Dispatch()
	r.Duration = time.Since(start)

	e.statCycles.Add(1)
	ms := float64(r.Duration) / float64(time.Millisecond)
	e.statCycleTime.Set(ms)
	e.statCycleMax.Max(ms)
	e.last.Store(&r)
	return r
}

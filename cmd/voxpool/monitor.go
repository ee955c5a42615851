package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/voxpool/core"
	"github.com/lixenwraith/voxpool/parameter"
	"github.com/lixenwraith/voxpool/pool"
	"github.com/lixenwraith/voxpool/status"
)

// poolSource is what the monitor reads each frame
type poolSource interface {
	Pools() []pool.Occupancy
}

// volumeControl adjusts output level from the keyboard
type volumeControl interface {
	MasterVolume() float64
	SetMasterVolume(v float64)
}

var (
	styleTitle   = tcell.StyleDefault.Bold(true).Foreground(tcell.ColorAqua)
	styleHeader  = tcell.StyleDefault.Underline(true)
	styleText    = tcell.StyleDefault
	stylePlaying = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleIdle    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleWaiting = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleMetric  = tcell.StyleDefault.Foreground(tcell.ColorSilver)
)

// monitor draws pool occupancy and the metrics registry
type monitor struct {
	screen tcell.Screen
	pools  poolSource
	volume volumeControl
	reg    *status.Registry

	// restart reopens the audio stream, nil disables the key
	restart func() error
	status  string
}

func newMonitor(screen tcell.Screen, pools poolSource, volume volumeControl, reg *status.Registry, restart func() error) *monitor {
	return &monitor{screen: screen, pools: pools, volume: volume, reg: reg, restart: restart}
}

// run redraws until the user quits or stop closes
func (m *monitor) run(stop <-chan struct{}) {
	events := make(chan tcell.Event, 16)
	done := make(chan struct{})
	defer close(done)
	core.Go(func() {
		for {
			ev := m.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	})

	ticker := time.NewTicker(parameter.MonitorRefresh)
	defer ticker.Stop()

	m.draw()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.draw()
		case ev := <-events:
			if m.handle(ev) {
				return
			}
		}
	}
}

// handle applies one event, reports whether to quit
func (m *monitor) handle(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		m.screen.Sync()
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return true
			case '+', '=':
				m.volume.SetMasterVolume(min(m.volume.MasterVolume()+parameter.MonitorVolumeStep, 1))
			case '-':
				m.volume.SetMasterVolume(max(m.volume.MasterVolume()-parameter.MonitorVolumeStep, 0))
			case 'r':
				if m.restart != nil {
					m.status = "stream restarted"
					if err := m.restart(); err != nil {
						m.status = "restart failed: " + err.Error()
					}
				}
			}
			m.draw()
		}
	}
	return false
}

func (m *monitor) draw() {
	m.screen.Clear()
	w, h := m.screen.Size()

	m.text(0, 0, w, styleTitle, fmt.Sprintf("voxpool  master %3.0f%%  [q] quit  [+/-] volume  [r] restart stream", m.volume.MasterVolume()*100))
	m.text(0, 1, w, styleWaiting, m.status)
	m.text(0, 2, w, styleHeader, fmt.Sprintf("%-24s %5s %5s %5s %5s %9s  voices", "pool", "size", "idle", "play", "wait", "bounds"))

	y := 3
	for _, occ := range m.pools.Pools() {
		if y >= h {
			break
		}
		line := fmt.Sprintf("%-24s %5d %5d %5d %5d %4d..%-3d  ", truncate(occ.Name, 24), occ.Size, occ.Idle, occ.Playing, occ.Waiting, occ.Min, occ.Max)
		x := m.text(0, y, w, styleText, line)
		x = m.bar(x, y, w, occ.Playing+occ.Allocated, '#', stylePlaying)
		x = m.bar(x, y, w, occ.Idle+occ.Releasing, '.', styleIdle)
		m.bar(x, y, w, occ.Waiting, '+', styleWaiting)
		y++
	}

	y++
	for _, metric := range m.reg.Dump("") {
		if y >= h {
			break
		}
		m.text(0, y, w, styleMetric, fmt.Sprintf("%-32s %s", metric.Name, metric.Value))
		y++
	}
	m.screen.Show()
}

// text writes s from x, clipped to w, and returns the next column
func (m *monitor) text(x, y, w int, style tcell.Style, s string) int {
	for _, r := range s {
		if x >= w {
			break
		}
		m.screen.SetContent(x, y, r, nil, style)
		x++
	}
	return x
}

func (m *monitor) bar(x, y, w, n int, r rune, style tcell.Style) int {
	return m.text(x, y, w, style, strings.Repeat(string(r), n))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}

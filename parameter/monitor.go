package parameter

import "time"

// Terminal Monitor
const (
	// MonitorRefresh is the redraw cadence of the -monitor view
	MonitorRefresh = 100 * time.Millisecond

	// MonitorVolumeStep is the master volume change per key press
	MonitorVolumeStep = 0.05
)

// Demo Script
const (
	// DemoInterval is the gap between scripted requests
	DemoInterval = 120 * time.Millisecond

	// DemoLifetime bounds how long a scripted request may wait
	DemoLifetime = 300 * time.Millisecond
)

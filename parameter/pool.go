package parameter

import "time"

// Pool Bounds
const (
	// DefaultPoolMin is the lower bound applied when a pool declares none
	DefaultPoolMin = 4

	// DefaultPoolMax is the upper bound applied when a pool declares none
	DefaultPoolMax = 32

	// DynamicPoolMin and DynamicPoolMax bound pools created on demand per effect signature
	DynamicPoolMin = 1
	DynamicPoolMax = 16

	// GrowthCap limits a single geometric growth step
	GrowthCap = 16
)

// Play Requests
const (
	// DefaultQueueLifetime applies when a request is submitted with a zero lifetime
	DefaultQueueLifetime = 250 * time.Millisecond

	// DefaultPriority is the priority of requests made through the dynamic Play path
	DefaultPriority = 0
)

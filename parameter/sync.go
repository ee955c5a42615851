package parameter

import "time"

// Synchronization Cycle
const (
	// SyncInterval is the authoring-side cadence at which commands are applied
	SyncInterval = 20 * time.Millisecond

	// SyncMaxBehind is how many intervals the loop may lag before it resets its deadline
	SyncMaxBehind = 2
)

// Notification Ring
const (
	// NotificationQueueSize is the capacity of the best-effort notification ring, power of two
	NotificationQueueSize = 1024
)

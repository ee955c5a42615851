// Package service runs long-lived subsystems (asset bank, render output, sync engine) in dependency order
package service

// Service is the lifecycle contract of an infrastructure subsystem
//
// Lifecycle:
//  1. Construction
//  2. Init(args...) - configuration from flags, env and config file
//  3. Start() - open devices, launch goroutines
//  4. [runtime operation]
//  5. Stop() - halt goroutines, release resources
type Service interface {
	// Name returns the unique identifier for this service
	Name() string

	// Dependencies returns names of services that must Init and Start before this one
	Dependencies() []string

	// Init configures the service; args are passed through from Hub.InitAll
	Init(args ...any) error

	// Start begins operation, called after every service initialized
	Start() error

	// Stop halts operation and releases resources
	// Must be idempotent
	Stop() error
}

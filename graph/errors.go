package graph

import "errors"

var (
	ErrUnknownNode       = errors.New("unknown node")
	ErrDuplicateNode     = errors.New("node already exists")
	ErrReservedNode      = errors.New("reserved node")
	ErrInvalidDescriptor = errors.New("invalid descriptor")
	ErrInvalidPorts      = errors.New("invalid port map")
	ErrCycle             = errors.New("connection would form a cycle")
	ErrSelfConnection    = errors.New("node connected to itself")
	ErrUnsupportedEvent  = errors.New("event not supported by node")

	// ErrInactive is returned by an Engine while the graph cannot accept changes
	// The synchronizer keeps the command buffered instead of dropping it
	ErrInactive = errors.New("graph inactive")
)

package engine

import (
	"errors"
	"fmt"
	"log"
)

// Name implements service.Service
func (e *Engine) Name() string {
	return "engine"
}

// Dependencies implements service.Service
func (e *Engine) Dependencies() []string {
	return []string{"render"}
}

// Init implements service.Service
// Creates the configured pools and runs one cycle so they exist before Start
func (e *Engine) Init(args ...any) error {
	var errs []error
	for _, cfg := range e.preload {
		if err := e.CreatePool(cfg); err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", cfg.Name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	r := e.Cycle()
	log.Printf("engine: %d pools queued, %d commands applied, %d deferred", len(e.preload), r.Sync.Applied, r.Sync.Deferred)
	return nil
}

// Package core holds process-wide helpers shared by voxpool goroutines
package core

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"sync"
)

// Finisher restores a terminal taken over by a UI before the process dies
type Finisher interface {
	Fini()
}

// CrashFunc receives a recovered panic value and the goroutine's stack
type CrashFunc func(r any, stack []byte)

var (
	crashMu       sync.RWMutex
	crashTerminal Finisher
	crashHandler  CrashFunc = exitOnCrash
)

// SetCrashTerminal registers the screen to release on crash, nil clears it
func SetCrashTerminal(t Finisher) {
	crashMu.Lock()
	crashTerminal = t
	crashMu.Unlock()
}

// SetCrashHandler replaces the crash handler and returns a func restoring the previous one
func SetCrashHandler(fn CrashFunc) (restore func()) {
	crashMu.Lock()
	prev := crashHandler
	crashHandler = fn
	crashMu.Unlock()
	return func() {
		crashMu.Lock()
		crashHandler = prev
		crashMu.Unlock()
	}
}

// HandleCrash is the unified panic handler; nil is ignored
func HandleCrash(r any) {
	if r == nil {
		return
	}
	crashMu.RLock()
	term, fn := crashTerminal, crashHandler
	crashMu.RUnlock()

	if term != nil {
		term.Fini()
	}
	fn(r, debug.Stack())
}

func exitOnCrash(r any, stack []byte) {
	log.Printf("CRASH: %v\n%s", r, stack)
	fmt.Fprintf(os.Stderr, "\n\x1b[31mCRASH DETECTED: %v\x1b[0m\n", r)
	fmt.Fprintf(os.Stderr, "Stack Trace:\n%s\n", stack)
	os.Exit(1)
}

// Go runs fn in a new goroutine with panic recovery
// Use this instead of the 'go' keyword so a crash releases the terminal
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				HandleCrash(r)
			}
		}()
		fn()
	}()
}

// control.go — Global control flags and shutdown coordination for the loop
// ============================================================================
// SYSTEM CONTROL ORCHESTRATION
// ============================================================================
//
// Control provides lightweight global signaling infrastructure for
// coordinating activity state and graceful shutdown between the signal
// handler and the single event-loop thread.
//
// Architecture overview:
//   • Global hot/stop flags for lock-free cross-goroutine communication
//   • Nanosecond-precision activity tracking with automatic cooldown
//   • ShutdownWG lets the signal handler wait for the loop's final drain
//
// Threading model:
//   • The event loop signals activity via SignalActivity() on inbound frames
//   • The signal handler sets the stop flag; the loop polls it each tick
//   • The loop holds ShutdownWG for its lifetime and releases it after
//     closing every client socket and the listener

package control

import (
	"sync"
	"time"
)

// ============================================================================
// GLOBAL STATE MANAGEMENT
// ============================================================================

var (
	// Global coordination flags - written by one side, polled by the other
	hot  uint32 // Activity indicator: 1 = live client traffic, 0 = idle
	stop uint32 // Shutdown signal: 1 = drain and exit, 0 = running

	// Activity timing for automatic cooldown management
	lastHot    int64                    // Nanosecond timestamp of last inbound frame
	cooldownNs = int64(1 * time.Second) // Idle period before the hot flag clears

	// ShutdownWG tracks the event loop so the signal handler can block until
	// sockets and the database are released before exiting.
	ShutdownWG sync.WaitGroup
)

// ============================================================================
// ACTIVITY SIGNALING (EVENT LOOP INTEGRATION)
// ============================================================================

// SignalActivity marks the system as active and records precise timing for
// automatic cooldown management. Called from the read path when a client
// delivers bytes.
//
//go:norace
//go:nosplit
//go:inline
//go:registerparams
func SignalActivity() {
	hot = 1
	lastHot = time.Now().UnixNano()
}

// PollCooldown clears the hot flag after the cooldown window elapses with no
// activity. Called once per loop tick.
//
//go:norace
//go:nosplit
//go:inline
//go:registerparams
func PollCooldown() {
	if hot == 1 && time.Now().UnixNano()-lastHot > cooldownNs {
		hot = 0
	}
}

// ============================================================================
// SYSTEM SHUTDOWN (GRACEFUL TERMINATION)
// ============================================================================

// Shutdown initiates graceful termination by setting the global stop flag.
// The event loop observes it on its next tick and drains.
//
//go:norace
//go:nosplit
//go:inline
//go:registerparams
func Shutdown() {
	stop = 1
}

// Stopping reports whether shutdown has been requested.
//
//go:norace
//go:nosplit
//go:inline
//go:registerparams
func Stopping() bool {
	return stop == 1
}

// Hot reports whether client traffic arrived within the cooldown window.
//
//go:norace
//go:nosplit
//go:inline
//go:registerparams
func Hot() bool {
	return hot == 1
}

// ════════════════════════════════════════════════════════════════════════════════════════════════
// Real-Time Notification Server - Main Entry Point
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Queue-to-WebSocket Notification Bridge
// Component: Main Entry Point & System Orchestration
//
// Description:
//   System orchestration with phased initialization and clean separation of concerns.
//   Bootstrap → Durable Store → Listener → Single-Threaded Event Loop
//
// Architecture:
//   - Phase 0: Configuration from environment, schema bootstrap
//   - Phase 1: Listener socket creation (bind failure is the only fatal error)
//   - Phase 2: Readiness-driven event processing on one locked thread
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"notifier/auth"
	"notifier/constants"
	"notifier/control"
	"notifier/debug"
	"notifier/store"
	"notifier/utils"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// MAIN ORCHESTRATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// main orchestrates the complete server lifecycle in distinct phases.
func main() {
	// Operator tooling path: `notify mint <user_id> <name> <email>` inserts a
	// fresh token and prints it, then exits without starting the server.
	if len(os.Args) > 1 && os.Args[1] == "mint" {
		runMint(os.Args[2:])
		return
	}

	// PHASE 0: Configuration and durable store bootstrap
	bind := os.Getenv(constants.BindEnv)
	if bind == "" {
		bind = constants.DefaultBind
	}
	dbPath := os.Getenv(constants.DatabaseEnv)
	if dbPath == "" {
		dbPath = constants.DefaultDatabase
	}

	db, err := store.Open(dbPath)
	if err != nil {
		debug.DropError("FATAL", err)
		os.Exit(1)
	}
	if err := store.EnsureSchema(db); err != nil {
		debug.DropError("FATAL", err)
		os.Exit(1)
	}

	// PHASE 1: Listener socket, the one failure that kills the process
	listenFd, err := listenSocket(bind)
	if err != nil {
		debug.DropError("FATAL", err)
		os.Exit(1)
	}

	np, err := newNetPoller()
	if err != nil {
		debug.DropError("FATAL", err)
		os.Exit(1)
	}
	if err := np.add(listenFd); err != nil {
		debug.DropError("FATAL", err)
		os.Exit(1)
	}

	debug.DropMessage("READY", "listening on "+bind)
	setupSignalHandling()

	// PHASE 2: Production mode, one locked thread drives everything
	runtime.LockOSThread()
	newServer(db, np, listenFd).run()

	// run returns only after a drained shutdown; drain released the store.
	debug.DropMessage("EXIT", "shutdown complete")
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// LISTENER SOCKET SETUP
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// listenSocket creates the non-blocking IPv4 listener for addr ("host:port").
// Any failure here is fatal to the caller.
func listenSocket(addr string) (int, error) {
	ip, port, err := parseBind(addr)
	if err != nil {
		return -1, err
	}

	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	// Fast restarts must not trip over TIME_WAIT remnants.
	_ = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)

	sa := &syscall.SockaddrInet4{Port: port, Addr: ip}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Close(fd)
		return -1, err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return -1, err
	}
	if err := syscall.Listen(fd, constants.ListenBacklog); err != nil {
		syscall.Close(fd)
		return -1, err
	}
	return fd, nil
}

// parseBind splits "host:port" into a dotted-quad address and port. An empty
// host binds every interface.
func parseBind(addr string) ([4]byte, int, error) {
	var ip [4]byte

	colon := -1
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			colon = i
			break
		}
	}
	if colon < 0 {
		return ip, 0, errBadBind
	}

	port, ok := utils.ParseU64([]byte(addr[colon+1:]))
	if !ok || port == 0 || port > 65535 {
		return ip, 0, errBadBind
	}

	host := addr[:colon]
	if host == "" {
		return ip, int(port), nil // INADDR_ANY
	}

	octet := 0
	var v uint64
	seen := false
	for i := 0; i <= len(host); i++ {
		if i == len(host) || host[i] == '.' {
			if !seen || v > 255 || octet > 3 {
				return ip, 0, errBadBind
			}
			ip[octet] = byte(v)
			octet++
			v = 0
			seen = false
			continue
		}
		c := host[i]
		if c < '0' || c > '9' {
			return ip, 0, errBadBind
		}
		v = v*10 + uint64(c-'0')
		seen = true
	}
	if octet != 4 {
		return ip, 0, errBadBind
	}
	return ip, int(port), nil
}

var errBadBind = syscall.EINVAL

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TOKEN MINTING (OPERATOR TOOLING)
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// runMint inserts a fresh token for the given user and prints it on stdout.
func runMint(args []string) {
	if len(args) < 3 {
		debug.DropMessage("USAGE", "notify mint <user_id> <display_name> <email>")
		os.Exit(2)
	}
	userID, ok := utils.ParseU64([]byte(args[0]))
	if !ok || userID == 0 {
		debug.DropMessage("USAGE", "user_id must be a positive integer")
		os.Exit(2)
	}

	dbPath := os.Getenv(constants.DatabaseEnv)
	if dbPath == "" {
		dbPath = constants.DefaultDatabase
	}
	db, err := store.Open(dbPath)
	if err != nil {
		debug.DropError("FATAL", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.EnsureSchema(db); err != nil {
		debug.DropError("FATAL", err)
		os.Exit(1)
	}

	token, err := auth.MintToken(db, userID, args[1], args[2], time.Now().Unix())
	if err != nil {
		debug.DropError("FATAL", err)
		os.Exit(1)
	}
	os.Stdout.WriteString(token + "\n")
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SYSTEM LIFECYCLE MANAGEMENT
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// setupSignalHandling arranges a graceful drain on interrupt. The loop
// observes the stop flag on its next tick; ShutdownWG holds the process open
// until every socket is released.
func setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		debug.DropMessage("SIGNAL", "Received interrupt, shutting down...")

		// Signal shutdown and wait for the loop's final drain.
		control.Shutdown()
		control.ShutdownWG.Wait()

		debug.DropMessage("SIGNAL", "Drain complete")
	}()
}

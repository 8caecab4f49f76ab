// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: loop.go — Readiness-driven event loop core
//
// Purpose:
//   - Drives accept/read/dispatch for every client socket from one thread
//   - Ticks the queue poller, idle reaper and keepalive between waits
//
// Notes:
//   - All registry, buffer and cursor mutation happens serially inside one
//     loop iteration. No locks exist anywhere in the server.
//   - Writes are fire-and-forget: a failed or short write is swallowed and
//     the peer is left for the idle reaper. Only inbound errors evict.
//   - The readiness wait is bounded (TickTimeoutMs) so timers fire on idle.
//
// ⚠️ Single-threaded — nothing in this file may be called off the loop
// ─────────────────────────────────────────────────────────────────────────────

package main

import (
	"database/sql"
	"syscall"
	"time"

	"notifier/auth"
	"notifier/constants"
	"notifier/control"
	"notifier/debug"
	"notifier/poller"
	"notifier/registry"
	"notifier/utils"
	"notifier/ws"
)

// ───────────────────────── Precomputed Application Frames ─────────────────────

// Static server-to-client messages, framed once at startup.
var (
	readyFrame    = ws.EncodeText([]byte(`{"type":"ready"}`))
	authFailFrame = ws.EncodeText([]byte(`{"type":"error","code":"auth_failed"}`))
	pingFrame     = ws.EncodeText([]byte(`{"type":"ping"}`))
	closeFrame    = ws.EncodeFrame(nil, constants.OpClose)
)

// ─────────────────────────────── Server State ─────────────────────────────────

// server owns the listener, the connection registry and the tick timers.
type server struct {
	db  *sql.DB
	reg *registry.Registry
	pol *poller.Poller
	np  *netPoller

	listenFd int

	lastKeepalive int64
	lastSweep     int64

	scratch [constants.ReadChunk]byte // kernel read staging, reused every read
}

func newServer(db *sql.DB, np *netPoller, listenFd int) *server {
	return &server{
		db:       db,
		reg:      registry.New(),
		pol:      poller.New(db, 0),
		np:       np,
		listenFd: listenFd,
	}
}

// ─────────────────────────────── Loop Driver ──────────────────────────────────

// run is the whole server: wait for readiness, service sockets, tick timers.
// Returns only after a shutdown request has drained every connection.
func (s *server) run() {
	control.ShutdownWG.Add(1)
	defer control.ShutdownWG.Done()

	for !control.Stopping() {
		fds, err := s.np.wait(constants.TickTimeoutMs)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			debug.DropError("WAIT", err)
			continue
		}

		for _, fd := range fds {
			if fd == s.listenFd {
				s.acceptReady()
			} else {
				s.readReady(fd)
			}
		}

		now := time.Now().UnixNano()
		s.pol.Run(now, s.reg, s.send)
		s.reap(now)
		s.keepalive(now)
		s.sweepTokens(now)
		control.PollCooldown()
	}

	s.drain()
}

// ───────────────────────────── Accept Handling ────────────────────────────────

// acceptReady drains the kernel accept queue. Each new socket is set
// non-blocking, registered with empty state and added to the readiness set.
func (s *server) acceptReady() {
	for {
		fd, err := acceptSocket(s.listenFd)
		if err != nil {
			return // EAGAIN or transient accept failure; retry next tick
		}

		now := time.Now().UnixNano()
		c := s.reg.Add(fd, now)
		if c == nil {
			syscall.Close(fd) // table full or fd out of range
			continue
		}
		if err := s.np.add(fd); err != nil {
			s.reg.Remove(fd)
			syscall.Close(fd)
			continue
		}
		debug.DropMessage("ACCEPT", "fd "+utils.Itoa(fd))
	}
}

// ─────────────────────────────── Read Handling ────────────────────────────────

// readReady pulls available bytes for fd and feeds the connection's protocol
// state machine. Zero bytes or a hard read error means the peer is gone.
func (s *server) readReady(fd int) {
	c := s.reg.Get(fd)
	if c == nil {
		return // raced with an eviction earlier this tick
	}

	n, err := syscall.Read(fd, s.scratch[:])
	if err != nil {
		if err == syscall.EAGAIN {
			return
		}
		s.evict(c, "read error")
		return
	}
	if n == 0 {
		s.evict(c, "peer closed")
		return
	}

	if len(c.Buf)+n > constants.MaxBuffered {
		s.evict(c, "buffer overrun")
		return
	}
	c.Buf = append(c.Buf, s.scratch[:n]...)
	control.SignalActivity()

	if !c.Upgraded {
		s.feedHandshake(c)
	} else {
		s.feedFrames(c)
	}
}

// feedHandshake attempts the opening handshake once the header terminator is
// buffered, then authenticates the extracted token.
func (s *server) feedHandshake(c *registry.Conn) {
	up, err := ws.ParseUpgrade(c.Buf)
	if err != nil {
		s.evict(c, "bad handshake") // silent close, no HTTP response
		return
	}
	if up == nil {
		return // headers incomplete, keep buffering
	}

	s.send(c, up.Response)
	c.Upgraded = true
	c.Buf = nil

	now := time.Now()
	id := auth.Authenticate(s.db, up.Token, now.Unix())
	if id == nil {
		s.send(c, authFailFrame)
		s.evict(c, "auth failed")
		return
	}

	c.Authed = true
	c.UserID = id.UserID
	c.Name = id.Name
	c.Email = id.Email
	c.LastActivity = now.UnixNano()
	s.send(c, readyFrame)
	debug.DropMessage("AUTH", "fd "+utils.Itoa(c.Fd)+" user "+utils.Itoa(int(id.UserID)))
}

// feedFrames extracts and dispatches every complete frame, then compacts the
// buffer down to the unconsumed remainder.
func (s *server) feedFrames(c *registry.Conn) {
	consumed, frames, err := ws.ExtractFrames(c.Buf)

	closed := false
	for i := range frames {
		if s.dispatch(c, &frames[i]) {
			closed = true
			break
		}
	}
	if closed {
		return
	}
	if err != nil {
		s.evict(c, "protocol violation")
		return
	}

	// Payload slices aliased c.Buf; everything was dispatched above, so the
	// consumed prefix can go.
	if consumed > 0 {
		c.Buf = append(c.Buf[:0], c.Buf[consumed:]...)
	}
}

// dispatch routes one decoded frame by opcode. Reports true when the
// connection was evicted.
func (s *server) dispatch(c *registry.Conn, f *ws.Frame) bool {
	c.LastActivity = time.Now().UnixNano()

	switch f.Opcode {
	case constants.OpClose:
		s.evict(c, "close frame")
		return true
	case constants.OpPing:
		s.send(c, ws.EncodeFrame(f.Payload, constants.OpPong))
	case constants.OpText:
		// No client-originated application commands exist; text frames only
		// refresh the activity stamp, which already happened above.
	default:
		// Binary, pong, continuations: ignored.
	}
	return false
}

// ─────────────────────────────── Periodic Tasks ───────────────────────────────

// reap evicts connections idle past the cutoff. Outbound traffic never
// refreshed their stamps, so a silent peer ages out even while being pinged.
func (s *server) reap(now int64) {
	for _, c := range s.reg.Stale(now, constants.IdleEvictNs) {
		s.evict(c, "idle timeout")
	}
}

// keepalive broadcasts the application-level ping to every connection,
// authenticated or not, throttled to the keepalive interval.
func (s *server) keepalive(now int64) {
	if now-s.lastKeepalive < constants.KeepaliveNs {
		return
	}
	s.lastKeepalive = now

	s.reg.ForEach(func(c *registry.Conn) {
		s.send(c, pingFrame)
	})
}

// sweepTokens opportunistically clears expired token rows on the keepalive
// cadence. Expired rows already fail authentication either way.
func (s *server) sweepTokens(now int64) {
	if now-s.lastSweep < constants.KeepaliveNs {
		return
	}
	s.lastSweep = now
	auth.SweepExpired(s.db, time.Now().Unix())
}

// ───────────────────────────── Write & Eviction ───────────────────────────────

// send writes best-effort. Failures and short writes are swallowed: the peer
// either recovers or the reaper collects it later.
//
//go:registerparams
func (s *server) send(c *registry.Conn, data []byte) {
	_, _ = syscall.Write(c.Fd, data)
}

// evict tears a connection down: readiness set, socket, registry entry.
func (s *server) evict(c *registry.Conn, reason string) {
	s.np.del(c.Fd)
	syscall.Close(c.Fd)
	s.reg.Remove(c.Fd)
	debug.DropMessage("EVICT", "fd "+utils.Itoa(c.Fd)+" ("+reason+")")
}

// drain closes every client with a Close frame, then releases the listener
// and the database. Runs exactly once, as the loop's final act.
func (s *server) drain() {
	s.reg.ForEach(func(c *registry.Conn) {
		s.send(c, closeFrame)
		s.evict(c, "shutdown")
	})
	s.np.del(s.listenFd)
	syscall.Close(s.listenFd)
	s.np.close()
	s.db.Close()
	debug.DropMessage("DRAIN", "all connections closed")
}

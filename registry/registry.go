// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: registry.go — Connection table owned by the event loop
//
// Purpose:
//   - Tracks every accepted socket with its buffered bytes and auth identity
//   - Provides the iteration surface for broadcast, keepalive and reaping
//
// Notes:
//   - Descriptors index directly into a fixed table: O(1) lookup, no hashing,
//     no allocation after startup beyond per-connection buffers.
//   - The registry does no I/O. The loop owns the sockets; eviction callbacks
//     close them and the registry only forgets the entry.
//   - All mutation happens on the single loop thread. No locking anywhere.
//
// ⚠️ Never retain *Conn across an eviction — slots are reused by the kernel
// ─────────────────────────────────────────────────────────────────────────────

package registry

import "notifier/constants"

// ───────────────────────────── Connection State ───────────────────────────────

// Conn is the per-socket state. A connection receives application broadcasts
// only once Authed is set; until then it exists solely to finish the
// handshake or be reaped.
type Conn struct {
	Fd       int    // kernel descriptor, also the table index
	Upgraded bool   // opening handshake completed
	Authed   bool   // token accepted, identity fields valid
	UserID   uint64 // authenticated user, meaningful only when Authed
	Name     string // display name from the token row
	Email    string // email from the token row

	Buf []byte // inbound bytes, append-only until a protocol unit extracts

	LastActivity int64 // monotonic ns of last inbound frame or auth refresh
}

// ───────────────────────────── Registry Table ─────────────────────────────────

// Registry owns the live connection set. Created once by the loop and passed
// by reference to every handler, never as a process-wide singleton.
type Registry struct {
	conns [constants.MaxConns]*Conn
	count int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Add registers a freshly accepted descriptor with empty state. Returns nil
// when fd is outside the table bounds; the caller closes such sockets.
//
//go:registerparams
func (r *Registry) Add(fd int, now int64) *Conn {
	if fd < 0 || fd >= constants.MaxConns {
		return nil
	}
	c := &Conn{Fd: fd, LastActivity: now}
	if r.conns[fd] == nil {
		r.count++
	}
	r.conns[fd] = c
	return c
}

// Get returns the connection for fd, or nil.
//
//go:nosplit
//go:inline
//go:registerparams
func (r *Registry) Get(fd int) *Conn {
	if fd < 0 || fd >= constants.MaxConns {
		return nil
	}
	return r.conns[fd]
}

// Remove forgets fd. Closing the socket is the caller's job.
//
//go:registerparams
func (r *Registry) Remove(fd int) {
	if fd < 0 || fd >= constants.MaxConns || r.conns[fd] == nil {
		return
	}
	r.conns[fd] = nil
	r.count--
}

// Len reports the live connection count.
//
//go:nosplit
//go:inline
//go:registerparams
func (r *Registry) Len() int {
	return r.count
}

// ForEach visits every live connection. The visitor may call Remove on the
// current entry; the iteration order is ascending fd.
//
//go:registerparams
func (r *Registry) ForEach(visit func(*Conn)) {
	for fd := 0; fd < constants.MaxConns; fd++ {
		if c := r.conns[fd]; c != nil {
			visit(c)
		}
	}
}

// ─────────────────────────────── Idle Reaping ─────────────────────────────────

// Stale collects connections whose last activity predates now-idleNs.
// Activity is refreshed by inbound frames and successful authentication,
// never by outbound traffic.
//
//go:registerparams
func (r *Registry) Stale(now, idleNs int64) []*Conn {
	var stale []*Conn
	r.ForEach(func(c *Conn) {
		if now-c.LastActivity >= idleNs {
			stale = append(stale, c)
		}
	})
	return stale
}

// ───────────────────────────── Recipient Lookup ───────────────────────────────

// Authenticated collects the authenticated connections whose user id appears
// in recipients. The same user may hold several live connections; each gets
// its own copy downstream.
//
//go:registerparams
func (r *Registry) Authenticated(recipients []uint64) []*Conn {
	var out []*Conn
	r.ForEach(func(c *Conn) {
		if !c.Authed {
			return
		}
		for _, id := range recipients {
			if c.UserID == id {
				out = append(out, c)
				return
			}
		}
	})
	return out
}

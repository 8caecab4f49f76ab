//go:build darwin
// +build darwin

// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: main_darwin.go — macOS readiness source (kqueue-powered)
//
// Purpose:
//   - Multiplexes the listener and every client socket through one kqueue
//   - Mirrors the Linux variant with a platform-specific event source
//
// Notes:
//   - EVFILT_READ is level-triggered for sockets: unread bytes re-arm the
//     descriptor, so one read per tick per socket is sufficient.
//   - The wait is bounded by the tick timeout so periodic tasks fire on idle.
//
// ⚠️ Single-threaded — the event arrays are reused across ticks
// ─────────────────────────────────────────────────────────────────────────────

package main

import "syscall"

// maxEvents bounds readiness results per tick. Remaining ready sockets get
// reported by the next wait.
const maxEvents = 128

// netPoller wraps a kqueue for the loop's readiness wait.
type netPoller struct {
	kq     int
	events [maxEvents]syscall.Kevent_t // reusable kernel result slots
	ready  [maxEvents]int              // fd list handed to the loop
}

// newNetPoller creates the kqueue instance.
func newNetPoller() (*netPoller, error) {
	kq, err := syscall.Kqueue()
	if err != nil {
		return nil, err
	}
	return &netPoller{kq: kq}, nil
}

// add registers fd for read readiness.
//
//go:registerparams
func (p *netPoller) add(fd int) error {
	change := syscall.Kevent_t{
		Ident:  uint64(fd),
		Filter: syscall.EVFILT_READ,
		Flags:  syscall.EV_ADD,
	}
	_, err := syscall.Kevent(p.kq, []syscall.Kevent_t{change}, nil, nil)
	return err
}

// del removes fd from the set. Safe on already-closed descriptors.
//
//go:registerparams
func (p *netPoller) del(fd int) {
	change := syscall.Kevent_t{
		Ident:  uint64(fd),
		Filter: syscall.EVFILT_READ,
		Flags:  syscall.EV_DELETE,
	}
	_, _ = syscall.Kevent(p.kq, []syscall.Kevent_t{change}, nil, nil)
}

// wait blocks until readiness or the timeout, returning the ready fds.
//
//go:registerparams
func (p *netPoller) wait(timeoutMs int) ([]int, error) {
	ts := syscall.NsecToTimespec(int64(timeoutMs) * 1_000_000)
	n, err := syscall.Kevent(p.kq, nil, p.events[:], &ts)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		p.ready[i] = int(p.events[i].Ident)
	}
	return p.ready[:n], nil
}

// close releases the kqueue descriptor.
func (p *netPoller) close() {
	_ = syscall.Close(p.kq)
}

// acceptSocket accepts one pending connection and flips it non-blocking.
//
//go:registerparams
func acceptSocket(listenFd int) (int, error) {
	fd, _, err := syscall.Accept(listenFd)
	if err != nil {
		return -1, err
	}
	_ = syscall.SetNonblock(fd, true)
	syscall.CloseOnExec(fd)
	return fd, nil
}

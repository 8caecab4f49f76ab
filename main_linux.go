//go:build linux
// +build linux

// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: main_linux.go — Linux readiness source (epoll-powered)
//
// Purpose:
//   - Multiplexes the listener and every client socket through one epoll set
//   - Mirrors the Darwin variant with a platform-specific event source
//
// Notes:
//   - Level-triggered EPOLLIN: unread bytes re-arm the descriptor, so one
//     read per tick per socket is sufficient.
//   - The wait is bounded by the tick timeout so periodic tasks fire on idle.
//
// ⚠️ Single-threaded — the event arrays are reused across ticks
// ─────────────────────────────────────────────────────────────────────────────

package main

import "syscall"

// maxEvents bounds readiness results per tick. Remaining ready sockets are
// reported by the next wait; level-triggered epoll loses nothing.
const maxEvents = 128

// netPoller wraps an epoll set for the loop's readiness wait.
type netPoller struct {
	epfd   int
	events [maxEvents]syscall.EpollEvent // reusable kernel result slots
	ready  [maxEvents]int                // fd list handed to the loop
}

// newNetPoller creates the epoll instance.
func newNetPoller() (*netPoller, error) {
	epfd, err := syscall.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &netPoller{epfd: epfd}, nil
}

// add registers fd for read readiness.
//
//go:registerparams
func (p *netPoller) add(fd int) error {
	ev := syscall.EpollEvent{Events: syscall.EPOLLIN, Fd: int32(fd)}
	return syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_ADD, fd, &ev)
}

// del removes fd from the set. Safe on already-closed descriptors.
//
//go:registerparams
func (p *netPoller) del(fd int) {
	_ = syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks until readiness or the timeout, returning the ready fds.
//
//go:registerparams
func (p *netPoller) wait(timeoutMs int) ([]int, error) {
	n, err := syscall.EpollWait(p.epfd, p.events[:], timeoutMs)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		p.ready[i] = int(p.events[i].Fd)
	}
	return p.ready[:n], nil
}

// close releases the epoll descriptor.
func (p *netPoller) close() {
	_ = syscall.Close(p.epfd)
}

// acceptSocket accepts one pending connection, already non-blocking.
//
//go:registerparams
func acceptSocket(listenFd int) (int, error) {
	fd, _, err := syscall.Accept4(listenFd, syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

package registry

import (
	"testing"

	"notifier/constants"
)

// ==============================================================================
// TABLE LIFECYCLE TESTS
// ==============================================================================

func TestAddGetRemove(t *testing.T) {
	r := New()

	c := r.Add(5, 1000)
	if c == nil {
		t.Fatal("in-range fd must register")
	}
	if r.Get(5) != c {
		t.Fatal("lookup must return the registered connection")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 live connection, got %d", r.Len())
	}
	if c.Upgraded || c.Authed || len(c.Buf) != 0 {
		t.Fatal("fresh connection must carry empty state")
	}
	if c.LastActivity != 1000 {
		t.Fatalf("accept stamp lost: %d", c.LastActivity)
	}

	r.Remove(5)
	if r.Get(5) != nil || r.Len() != 0 {
		t.Fatal("removed connection must be forgotten")
	}

	// Double remove is a no-op, not a count underflow.
	r.Remove(5)
	if r.Len() != 0 {
		t.Fatalf("double remove corrupted count: %d", r.Len())
	}
}

func TestAddOutOfRange(t *testing.T) {
	r := New()
	if r.Add(-1, 0) != nil {
		t.Fatal("negative fd must be rejected")
	}
	if r.Add(constants.MaxConns, 0) != nil {
		t.Fatal("fd at table bound must be rejected")
	}
	if r.Len() != 0 {
		t.Fatal("rejected fds must not count")
	}
}

func TestForEachVisitsAll(t *testing.T) {
	r := New()
	for _, fd := range []int{3, 9, 11} {
		r.Add(fd, 0)
	}

	var seen []int
	r.ForEach(func(c *Conn) { seen = append(seen, c.Fd) })
	if len(seen) != 3 || seen[0] != 3 || seen[1] != 9 || seen[2] != 11 {
		t.Fatalf("iteration wrong: %v", seen)
	}
}

// ==============================================================================
// IDLE REAPING TESTS
// ==============================================================================

func TestStaleAtIdleBoundary(t *testing.T) {
	r := New()
	now := int64(constants.IdleEvictNs * 10)

	fresh := r.Add(1, now)
	aging := r.Add(2, now-constants.IdleEvictNs+1) // one ns inside the window
	dead := r.Add(3, now-constants.IdleEvictNs)    // exactly at the cutoff

	stale := r.Stale(now, constants.IdleEvictNs)
	if len(stale) != 1 || stale[0] != dead {
		t.Fatalf("expected only fd 3 stale, got %d entries", len(stale))
	}
	_ = fresh
	_ = aging
}

func TestStaleRefreshedByActivity(t *testing.T) {
	r := New()
	now := int64(constants.IdleEvictNs * 10)

	c := r.Add(1, now-constants.IdleEvictNs*2)
	if len(r.Stale(now, constants.IdleEvictNs)) != 1 {
		t.Fatal("ancient connection must be stale")
	}

	// Inbound activity (or an auth refresh) resets the clock.
	c.LastActivity = now
	if len(r.Stale(now, constants.IdleEvictNs)) != 0 {
		t.Fatal("refreshed connection must survive the reaper")
	}
}

// ==============================================================================
// RECIPIENT LOOKUP TESTS
// ==============================================================================

func TestAuthenticatedFiltersRecipients(t *testing.T) {
	r := New()

	a := r.Add(1, 0)
	a.Authed = true
	a.UserID = 7

	b := r.Add(2, 0)
	b.Authed = true
	b.UserID = 9

	// Unauthenticated connection for a listed recipient: excluded.
	c := r.Add(3, 0)
	c.UserID = 7

	// Authenticated but not addressed: excluded.
	d := r.Add(4, 0)
	d.Authed = true
	d.UserID = 42

	got := r.Authenticated([]uint64{7, 9})
	if len(got) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(got))
	}
	if got[0] != a || got[1] != b {
		t.Fatal("wrong connections selected")
	}
}

func TestAuthenticatedMultipleConnsPerUser(t *testing.T) {
	r := New()
	for fd := 1; fd <= 3; fd++ {
		c := r.Add(fd, 0)
		c.Authed = true
		c.UserID = 7
	}

	got := r.Authenticated([]uint64{7})
	if len(got) != 3 {
		t.Fatalf("every live connection of a recipient gets a copy, got %d", len(got))
	}
}

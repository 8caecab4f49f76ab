// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go — Global server tunables & protocol fixtures
//
// Purpose:
//   - Defines loop-wide constants for socket caps, timers, and queue polling.
//   - Holds the RFC 6455 handshake GUID and frame opcode values.
//
// Notes:
//   - Timer values are expressed in nanoseconds so the loop compares raw
//     monotonic stamps without time.Duration conversions on the hot path.
//   - Buffer caps are over-provisioned relative to observed payload sizes.
//
// ⚠️ No runtime logic here — all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

// ─────────────────────────── Listener Configuration ──────────────────────────

const (
	// BindEnv names the environment variable carrying the listen address.
	// Empty or unset falls back to DefaultBind.
	BindEnv = "NOTIFY_BIND"

	// DefaultBind is the fallback listen address. Loopback by default;
	// production deployments sit behind a TLS-terminating proxy (TLS never
	// happens in this process).
	DefaultBind = "127.0.0.1:9501"

	// DatabaseEnv names the environment variable carrying the sqlite path.
	DatabaseEnv = "NOTIFY_DB"

	// DefaultDatabase is the fallback sqlite file holding the token table,
	// presence records and the event queue.
	DefaultDatabase = "notify.db"

	// ListenBacklog bounds the kernel accept queue. 128 matches the common
	// somaxconn default; bursts beyond it are retried by clients.
	ListenBacklog = 128
)

// ───────────────────────────── Socket & Frame Caps ────────────────────────────

const (
	// MaxConns caps the connection table. Fd values index directly into the
	// table, so this also bounds the highest usable descriptor.
	MaxConns = 4096

	// ReadChunk is the per-read scratch size handed to the kernel. 64 KiB
	// covers every observed client frame in one read on a healthy link.
	ReadChunk = 64 << 10

	// MaxBuffered caps a connection's inbound buffer. A peer that streams
	// more than 1 MiB without completing a frame or handshake is violating
	// the protocol and gets evicted.
	MaxBuffered = 1 << 20

	// MaxFrameSize rejects frames whose declared 64-bit length exceeds this
	// bound before any payload is buffered.
	MaxFrameSize = 1 << 20
)

// ──────────────────────────────── Loop Timers ─────────────────────────────────

const (
	// TickTimeoutMs bounds the readiness wait so the poller, reaper and
	// keepalive still fire during idle periods. One second is coarse enough
	// to keep the idle loop near-free and fine enough for every timer below.
	TickTimeoutMs = 1000

	// PollIntervalNs is the minimum spacing between queue polls. 500ms keeps
	// delivery latency low without hammering sqlite on an idle queue.
	PollIntervalNs = 500_000_000

	// PollBatchLimit caps rows consumed per poll. 100 bounds per-tick work
	// so socket readiness never starves behind a queue backlog.
	PollBatchLimit = 100

	// IdleEvictNs evicts a connection after 120s without inbound traffic or
	// an auth refresh. Outbound writes do not count as activity.
	IdleEvictNs = 120_000_000_000

	// KeepaliveNs spaces application-level ping broadcasts. 25s sits safely
	// under common 30–60s proxy idle cutoffs.
	KeepaliveNs = 25_000_000_000
)

// ─────────────────────────────── Token Lifetime ───────────────────────────────

const (
	// TokenTTLSeconds is the sliding expiry window. Every successful
	// authentication pushes the token's expiry this far into the future.
	TokenTTLSeconds = 30 * 60

	// TokenSeedBytes is the entropy fed into minting. 32 random bytes hashed
	// to a fixed-width digest keeps tokens opaque and uniform.
	TokenSeedBytes = 32
)

// ───────────────────────────── Protocol Fixtures ──────────────────────────────

const (
	// WsGUID is the fixed RFC 6455 handshake GUID appended to the client's
	// Sec-WebSocket-Key before the SHA-1/base64 accept computation.
	WsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
)

// ─────────────────────────────── Frame Opcodes ────────────────────────────────

const (
	OpContinuation = 0x0
	OpText         = 0x1
	OpBinary       = 0x2
	OpClose        = 0x8
	OpPing         = 0x9
	OpPong         = 0xA
)

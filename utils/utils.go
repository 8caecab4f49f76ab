package utils

import (
	"syscall"
	"unsafe"
)

///////////////////////////////////////////////////////////////////////////////
// Conversion Utilities — Zero-Alloc Casts
///////////////////////////////////////////////////////////////////////////////

// B2s converts a []byte to a string **without** allocation.
// ⚠️ Caller must ensure the input slice remains valid and unchanged.
// Used for human-readable print paths and map lookups on header bytes.
//
//go:nosplit
//go:inline
func B2s(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// S2b views a string's backing bytes as a []byte without copying.
// ⚠️ The result must never be written to.
//
//go:nosplit
//go:inline
func S2b(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

///////////////////////////////////////////////////////////////////////////////
// Integer Formatting — strconv-Free Print Paths
///////////////////////////////////////////////////////////////////////////////

// Itoa renders an int in decimal without pulling strconv into hot paths.
// Handles the full signed range including the minimum value.
//
//go:nosplit
//go:inline
func Itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var buf [24]byte
	i := len(buf)
	u := uint64(v)
	neg := v < 0
	if neg {
		u = uint64(-v)
	}
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ParseU64 parses an unsigned decimal from ASCII, stopping at the first
// non-digit. Returns ok=false when no digit was consumed.
//
//go:nosplit
//go:inline
func ParseU64(b []byte) (uint64, bool) {
	var v uint64
	i := 0
	for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
		v = v*10 + uint64(b[i]-'0')
	}
	return v, i > 0
}

///////////////////////////////////////////////////////////////////////////////
// Big-Endian Loads & Stores — Frame Header Fields
///////////////////////////////////////////////////////////////////////////////

// LoadBE16 performs a manual big-endian 16-bit read (extended frame length).
//
//go:nosplit
//go:inline
func LoadBE16(b []byte) uint16 {
	_ = b[1] // bounds check hint
	return uint16(b[0])<<8 | uint16(b[1])
}

// LoadBE64 performs a manual big-endian 64-bit read, avoiding dependency on
// binary.BigEndian.
//
//go:nosplit
//go:inline
func LoadBE64(b []byte) uint64 {
	_ = b[7] // bounds check hint
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 |
		uint64(b[3])<<32 | uint64(b[4])<<24 | uint64(b[5])<<16 |
		uint64(b[6])<<8 | uint64(b[7])
}

// PutBE16 writes v into b in network byte order.
//
//go:nosplit
//go:inline
func PutBE16(b []byte, v uint16) {
	_ = b[1]
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

// PutBE64 writes v into b in network byte order.
//
//go:nosplit
//go:inline
func PutBE64(b []byte, v uint64) {
	_ = b[7]
	b[0] = byte(v >> 56)
	b[1] = byte(v >> 48)
	b[2] = byte(v >> 40)
	b[3] = byte(v >> 32)
	b[4] = byte(v >> 24)
	b[5] = byte(v >> 16)
	b[6] = byte(v >> 8)
	b[7] = byte(v)
}

///////////////////////////////////////////////////////////////////////////////
// ASCII Helpers — Header Normalization Without strings
///////////////////////////////////////////////////////////////////////////////

// LowerASCII folds A–Z to a–z in place. Header keys are matched lower-cased.
//
//go:nosplit
//go:inline
func LowerASCII(b []byte) {
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] |= 0x20
		}
	}
}

// TrimSpaces returns b without leading/trailing spaces and tabs.
//
//go:nosplit
//go:inline
func TrimSpaces(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}

///////////////////////////////////////////////////////////////////////////////
// Stderr Output — Alloc-Free Diagnostic Sink
///////////////////////////////////////////////////////////////////////////////

// PrintWarning writes msg straight to stderr (fd 2), bypassing fmt and the
// os.File write path. Diagnostics never touch the allocator.
//
//go:nosplit
//go:inline
func PrintWarning(msg string) {
	_, _ = syscall.Write(2, S2b(msg))
}

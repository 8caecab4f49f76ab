// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: frame.go — RFC 6455 frame extraction and encoding over raw bytes
//
// Purpose:
//   - Extracts complete client frames from a connection's inbound buffer
//   - Unmasks payloads in place and encodes unmasked server-to-client frames
//
// Notes:
//   - Extraction is a pure pass over the buffer: it returns the consumed byte
//     count and the decoded frames, and the caller replaces its stored buffer
//     with the remainder. No hidden state survives between calls.
//   - Client frames MUST carry the mask bit; an unmasked frame is a protocol
//     violation and the connection is torn down.
//   - FIN=0 continuation frames surface as independent records without
//     reassembly. No peer of this server fragments messages today; if one
//     ever does, the dispatcher sees opcode 0 records and drops them.
//
// ⚠️ Payload slices alias the input buffer — consume them before compaction
// ─────────────────────────────────────────────────────────────────────────────

package ws

import (
	"fmt"

	"notifier/constants"
	"notifier/utils"
)

// ────────────────────────── Predefined Error Objects ──────────────────────────

// ErrUnmaskedFrame flags a client frame without the mandatory mask bit.
var ErrUnmaskedFrame = fmt.Errorf("unmasked client frame")

// ErrFrameExceedsMaxSize flags a declared payload length above the cap.
var ErrFrameExceedsMaxSize = fmt.Errorf("frame exceeds maximum size")

// ───────────────────────────── Decoded Frame View ─────────────────────────────

// Frame is one decoded client frame. Payload aliases the extraction input and
// is already unmasked.
type Frame struct {
	Opcode  byte
	Fin     bool
	Payload []byte
}

// ───────────────────────────── Frame Extraction ───────────────────────────────

// ExtractFrames decodes zero or more complete frames from buf, leaving any
// trailing partial frame untouched. Returns the number of bytes consumed and
// the decoded frames in arrival order. A non-nil error means the peer broke
// the protocol and the connection must be closed; consumed and frames reflect
// everything decoded before the violation.
//
//go:registerparams
func ExtractFrames(buf []byte) (int, []Frame, error) {
	consumed := 0
	var frames []Frame

	for {
		rest := buf[consumed:]
		if len(rest) < 2 {
			return consumed, frames, nil // need more header bytes
		}

		fin := rest[0]&0x80 != 0
		opcode := rest[0] & 0x0F
		masked := rest[1]&0x80 != 0
		plen7 := int(rest[1] & 0x7F)

		if !masked {
			return consumed, frames, ErrUnmaskedFrame
		}

		// Tiered payload length: 7-bit literal, 16-bit, or 64-bit extension.
		offset := 2
		plen := plen7
		switch plen7 {
		case 126:
			if len(rest) < offset+2 {
				return consumed, frames, nil
			}
			plen = int(utils.LoadBE16(rest[offset:]))
			offset += 2
		case 127:
			if len(rest) < offset+8 {
				return consumed, frames, nil
			}
			plen64 := utils.LoadBE64(rest[offset:])
			if plen64 > constants.MaxFrameSize {
				return consumed, frames, ErrFrameExceedsMaxSize
			}
			plen = int(plen64)
			offset += 8
		}

		// Masking key is always present: the mask bit was verified above.
		if len(rest) < offset+4 {
			return consumed, frames, nil
		}
		var key [4]byte
		copy(key[:], rest[offset:offset+4])
		offset += 4

		if len(rest) < offset+plen {
			return consumed, frames, nil // partial payload, wait for more
		}

		payload := rest[offset : offset+plen]
		Unmask(payload, key)

		frames = append(frames, Frame{Opcode: opcode, Fin: fin, Payload: payload})
		consumed += offset + plen
	}
}

// Unmask XORs payload bytes with the 4-byte key, cycling. Masking is an
// involution, so the same routine serves tests that build masked input.
//
//go:nosplit
//go:inline
//go:registerparams
func Unmask(payload []byte, key [4]byte) {
	for i := 0; i < len(payload); i++ {
		payload[i] ^= key[i&3]
	}
}

// ────────────────────────────── Frame Encoding ────────────────────────────────

// EncodeFrame builds a complete unmasked server-to-client frame: FIN set,
// the given opcode, tiered length bytes, then the raw payload.
//
//go:registerparams
func EncodeFrame(payload []byte, opcode byte) []byte {
	plen := len(payload)

	switch {
	case plen <= 125:
		out := make([]byte, 2+plen)
		out[0] = 0x80 | opcode
		out[1] = byte(plen)
		copy(out[2:], payload)
		return out
	case plen <= 0xFFFF:
		out := make([]byte, 4+plen)
		out[0] = 0x80 | opcode
		out[1] = 126
		utils.PutBE16(out[2:], uint16(plen))
		copy(out[4:], payload)
		return out
	default:
		out := make([]byte, 10+plen)
		out[0] = 0x80 | opcode
		out[1] = 127
		utils.PutBE64(out[2:], uint64(plen))
		copy(out[10:], payload)
		return out
	}
}

// EncodeText wraps payload in a text frame, the only data opcode the server
// emits (application messages are JSON).
//
//go:nosplit
//go:inline
//go:registerparams
func EncodeText(payload []byte) []byte {
	return EncodeFrame(payload, constants.OpText)
}

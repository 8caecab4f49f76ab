package ws

import (
	"bytes"
	"testing"

	"notifier/constants"
)

// ==============================================================================
// FRAME CONSTRUCTION HELPERS
// ==============================================================================

// maskedFrame builds a client-style masked frame for the given opcode and
// payload, exercising all three length tiers.
func maskedFrame(opcode byte, payload []byte, key [4]byte, fin bool) []byte {
	plen := len(payload)
	var out []byte

	first := opcode
	if fin {
		first |= 0x80
	}

	switch {
	case plen <= 125:
		out = append(out, first, 0x80|byte(plen))
	case plen <= 0xFFFF:
		out = append(out, first, 0x80|126, byte(plen>>8), byte(plen))
	default:
		out = append(out, first, 0x80|127,
			byte(plen>>56), byte(plen>>48), byte(plen>>40), byte(plen>>32),
			byte(plen>>24), byte(plen>>16), byte(plen>>8), byte(plen))
	}

	out = append(out, key[:]...)
	for i := 0; i < plen; i++ {
		out = append(out, payload[i]^key[i&3])
	}
	return out
}

func payloadOfSize(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 31)
	}
	return p
}

// ==============================================================================
// FRAME CODEC TESTS
// ==============================================================================

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := [4]byte{0xDE, 0xAD, 0xBE, 0xEF}

	// Boundary sizes across all three length tiers.
	for _, size := range []int{0, 1, 125, 126, 65535, 65536} {
		original := payloadOfSize(size)

		// Server encode → client-style re-mask → server decode.
		encoded := EncodeFrame(original, constants.OpText)
		if encoded[0] != 0x81 {
			t.Fatalf("size %d: expected FIN|TEXT first byte, got 0x%02X", size, encoded[0])
		}
		if encoded[1]&0x80 != 0 {
			t.Fatalf("size %d: server frame must not set the mask bit", size)
		}

		buf := maskedFrame(constants.OpText, original, key, true)
		consumed, frames, err := ExtractFrames(buf)
		if err != nil {
			t.Fatalf("size %d: unexpected error: %v", size, err)
		}
		if consumed != len(buf) {
			t.Fatalf("size %d: consumed %d of %d bytes", size, consumed, len(buf))
		}
		if len(frames) != 1 {
			t.Fatalf("size %d: expected 1 frame, got %d", size, len(frames))
		}
		if !bytes.Equal(frames[0].Payload, original) {
			t.Fatalf("size %d: payload corrupted through encode/decode", size)
		}
	}
}

func TestMaskingInvolution(t *testing.T) {
	key := [4]byte{0x12, 0x34, 0x56, 0x78}
	payload := payloadOfSize(777)
	original := append([]byte(nil), payload...)

	Unmask(payload, key)
	if bytes.Equal(payload, original) {
		t.Fatal("masking with a non-zero key must change the payload")
	}
	Unmask(payload, key)
	if !bytes.Equal(payload, original) {
		t.Fatal("unmask(mask(p)) != p")
	}
}

func TestUnmaskedFrameRejected(t *testing.T) {
	// MASK bit clear: protocol violation, not a decodable frame.
	buf := []byte{0x81, 0x05, 'h', 'e', 'l', 'l', 'o'}
	consumed, frames, err := ExtractFrames(buf)
	if err != ErrUnmaskedFrame {
		t.Fatalf("expected ErrUnmaskedFrame, got %v", err)
	}
	if consumed != 0 || len(frames) != 0 {
		t.Fatalf("violation must not consume or emit: consumed=%d frames=%d", consumed, len(frames))
	}
}

func TestPartialFrameRetained(t *testing.T) {
	key := [4]byte{1, 2, 3, 4}
	full := maskedFrame(constants.OpText, []byte("partial delivery"), key, true)

	// Every split point short of the full frame must consume nothing.
	for cut := 1; cut < len(full); cut++ {
		consumed, frames, err := ExtractFrames(full[:cut])
		if err != nil {
			t.Fatalf("cut %d: unexpected error: %v", cut, err)
		}
		if consumed != 0 || len(frames) != 0 {
			t.Fatalf("cut %d: partial frame must not extract (consumed=%d)", cut, consumed)
		}
	}

	consumed, frames, err := ExtractFrames(full)
	if err != nil || consumed != len(full) || len(frames) != 1 {
		t.Fatalf("full frame failed: consumed=%d frames=%d err=%v", consumed, len(frames), err)
	}
}

func TestMultipleFramesExtracted(t *testing.T) {
	key := [4]byte{9, 8, 7, 6}
	var buf []byte
	buf = append(buf, maskedFrame(constants.OpText, []byte("one"), key, true)...)
	buf = append(buf, maskedFrame(constants.OpPing, []byte("pp"), key, true)...)
	buf = append(buf, maskedFrame(constants.OpText, []byte("three"), key, true)...)

	// Trailing partial frame stays in the buffer.
	tail := maskedFrame(constants.OpText, []byte("fourth"), key, true)
	buf = append(buf, tail[:5]...)

	consumed, frames, err := ExtractFrames(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if consumed != len(buf)-5 {
		t.Fatalf("expected consumed=%d, got %d", len(buf)-5, consumed)
	}
	if string(frames[0].Payload) != "one" || frames[1].Opcode != constants.OpPing ||
		string(frames[2].Payload) != "three" {
		t.Fatal("frames decoded out of order or corrupted")
	}
}

func TestContinuationSurfacedWithoutReassembly(t *testing.T) {
	key := [4]byte{5, 5, 5, 5}
	var buf []byte
	buf = append(buf, maskedFrame(constants.OpText, []byte("first"), key, false)...)
	buf = append(buf, maskedFrame(constants.OpContinuation, []byte("second"), key, true)...)

	_, frames, err := ExtractFrames(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("fragments must surface as independent records, got %d", len(frames))
	}
	if frames[0].Fin || !frames[1].Fin {
		t.Fatal("FIN flags lost in extraction")
	}
	if string(frames[0].Payload) != "first" || string(frames[1].Payload) != "second" {
		t.Fatal("fragment payloads must not be concatenated")
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	// 64-bit length tier declaring more than the cap.
	huge := uint64(constants.MaxFrameSize + 1)
	buf := []byte{0x81, 0x80 | 127,
		byte(huge >> 56), byte(huge >> 48), byte(huge >> 40), byte(huge >> 32),
		byte(huge >> 24), byte(huge >> 16), byte(huge >> 8), byte(huge)}

	_, _, err := ExtractFrames(buf)
	if err != ErrFrameExceedsMaxSize {
		t.Fatalf("expected ErrFrameExceedsMaxSize, got %v", err)
	}
}

// ==============================================================================
// HANDSHAKE TESTS
// ==============================================================================

func TestAcceptKeyVector(t *testing.T) {
	// RFC 6455 §1.3 sample handshake.
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("accept key mismatch: got %q want %q", got, want)
	}
}

func upgradeRequest(line string, headers string) []byte {
	return []byte(line + "\r\n" + headers + "\r\n")
}

func TestParseUpgradeSuccess(t *testing.T) {
	req := upgradeRequest(
		"GET /notify?token=abc123 HTTP/1.1",
		"Host: example.test\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n"+
			"Sec-WebSocket-Version: 13\r\n")

	up, err := ParseUpgrade(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if up == nil {
		t.Fatal("complete request must parse")
	}
	if up.Token != "abc123" {
		t.Fatalf("token mismatch: %q", up.Token)
	}
	if up.Consumed != len(req) {
		t.Fatalf("consumed %d of %d header bytes", up.Consumed, len(req))
	}
	resp := string(up.Response)
	if !bytes.Contains(up.Response, []byte("101 Switching Protocols")) {
		t.Fatalf("missing status line: %q", resp)
	}
	if !bytes.Contains(up.Response, []byte("Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")) {
		t.Fatalf("missing accept header: %q", resp)
	}
	if !bytes.Contains(up.Response, []byte("Upgrade: websocket")) ||
		!bytes.Contains(up.Response, []byte("Connection: Upgrade")) {
		t.Fatalf("missing upgrade headers: %q", resp)
	}
}

func TestParseUpgradeCaseInsensitive(t *testing.T) {
	req := upgradeRequest(
		"get /ws?token=t http/1.1",
		"SEC-WEBSOCKET-KEY: dGhlIHNhbXBsZSBub25jZQ==\r\n")

	up, err := ParseUpgrade(req)
	if err != nil || up == nil {
		t.Fatalf("case-insensitive request must parse: up=%v err=%v", up, err)
	}
	if up.Token != "t" {
		t.Fatalf("token mismatch: %q", up.Token)
	}
}

func TestParseUpgradeIncomplete(t *testing.T) {
	req := []byte("GET /notify HTTP/1.1\r\nHost: example.test\r\n")
	up, err := ParseUpgrade(req)
	if up != nil || err != nil {
		t.Fatalf("incomplete headers must wait, got up=%v err=%v", up, err)
	}
}

func TestParseUpgradeBadRequestLine(t *testing.T) {
	cases := []string{
		"POST /notify HTTP/1.1",
		"GET /notify HTTP/1.0",
		"GARBAGE",
	}
	for _, line := range cases {
		req := upgradeRequest(line, "Sec-WebSocket-Key: x\r\n")
		_, err := ParseUpgrade(req)
		if err != ErrBadRequestLine {
			t.Fatalf("%q: expected ErrBadRequestLine, got %v", line, err)
		}
	}
}

func TestParseUpgradeMissingKey(t *testing.T) {
	req := upgradeRequest("GET /notify HTTP/1.1", "Host: example.test\r\n")
	_, err := ParseUpgrade(req)
	if err != ErrMissingKey {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestParseUpgradeTokenAbsent(t *testing.T) {
	req := upgradeRequest(
		"GET /notify HTTP/1.1",
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n")
	up, err := ParseUpgrade(req)
	if err != nil || up == nil {
		t.Fatalf("request without token must still parse: %v", err)
	}
	if up.Token != "" {
		t.Fatalf("absent token must be empty, got %q", up.Token)
	}
}

// ==============================================================================
// BENCHMARKS
// ==============================================================================

func BenchmarkExtractFrames(b *testing.B) {
	key := [4]byte{0xAA, 0xBB, 0xCC, 0xDD}
	payload := payloadOfSize(512)
	frame := maskedFrame(constants.OpText, payload, key, true)
	buf := make([]byte, len(frame))

	b.ReportAllocs()
	b.SetBytes(int64(len(frame)))
	for i := 0; i < b.N; i++ {
		copy(buf, frame) // extraction unmasks in place
		_, _, _ = ExtractFrames(buf)
	}
}

func BenchmarkEncodeFrame(b *testing.B) {
	payload := payloadOfSize(512)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = EncodeFrame(payload, constants.OpText)
	}
}

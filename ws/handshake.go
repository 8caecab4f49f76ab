// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: handshake.go — Server-side WebSocket opening handshake
//
// Purpose:
//   - Parses a buffered HTTP upgrade request from raw bytes
//   - Computes the RFC 6455 accept key and builds the 101 response
//
// Notes:
//   - Only the upgrade subset is understood: request line, headers, blank
//     line. Bodies, chunking and continuation of any kind do not exist here.
//   - Header keys are folded to lower case before matching; the request line
//     method/version match is case-insensitive.
//   - The auth token rides in the path's query string (?token=...); an absent
//     parameter yields the empty string and fails downstream authentication.
//
// ⚠️ Malformed upgrades close the socket silently — no HTTP error responses
// ─────────────────────────────────────────────────────────────────────────────

package ws

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"

	"notifier/constants"
	"notifier/utils"
)

// ────────────────────────── Predefined Error Objects ──────────────────────────

// ErrBadRequestLine flags a request line that is not `GET <path> HTTP/1.1`.
var ErrBadRequestLine = fmt.Errorf("malformed upgrade request line")

// ErrMissingKey flags an upgrade request without Sec-WebSocket-Key.
var ErrMissingKey = fmt.Errorf("missing sec-websocket-key header")

// crlfcrlf terminates the header block of the upgrade request.
var crlfcrlf = []byte{'\r', '\n', '\r', '\n'}

// ───────────────────────────── Parsed Upgrade View ────────────────────────────

// Upgrade is a successfully parsed opening handshake.
type Upgrade struct {
	Token    string // auth token from the path query, "" when absent
	Response []byte // complete 101 Switching Protocols response bytes
	Consumed int    // header bytes consumed from the inbound buffer
}

// ───────────────────────────── Handshake Parsing ──────────────────────────────

// ParseUpgrade attempts to parse a complete upgrade request from buf.
// Returns (nil, nil) while the header terminator has not arrived yet and the
// caller keeps buffering. A non-nil error means the request is malformed and
// the connection is closed without a response.
//
//go:registerparams
func ParseUpgrade(buf []byte) (*Upgrade, error) {
	end := bytes.Index(buf, crlfcrlf)
	if end < 0 {
		return nil, nil // headers incomplete, wait for more bytes
	}
	head := buf[:end]

	// Request line: case-insensitive `GET <path> HTTP/1.1`.
	lineEnd := bytes.IndexByte(head, '\r')
	if lineEnd < 0 {
		lineEnd = len(head)
	}
	path, ok := parseRequestLine(head[:lineEnd])
	if !ok {
		return nil, ErrBadRequestLine
	}

	// Remaining lines are `key: value` headers, keys folded to lower case.
	key := ""
	rest := head[lineEnd:]
	for len(rest) > 0 {
		if rest[0] == '\r' || rest[0] == '\n' {
			rest = rest[1:]
			continue
		}
		nl := bytes.IndexByte(rest, '\r')
		if nl < 0 {
			nl = len(rest)
		}
		line := rest[:nl]
		rest = rest[nl:]

		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue // not a header line, skip
		}
		name := utils.TrimSpaces(line[:colon])
		utils.LowerASCII(name)
		if utils.B2s(name) == "sec-websocket-key" {
			key = string(utils.TrimSpaces(line[colon+1:]))
		}
	}
	if key == "" {
		return nil, ErrMissingKey
	}

	return &Upgrade{
		Token:    queryParam(path, "token"),
		Response: buildResponse(AcceptKey(key)),
		Consumed: end + len(crlfcrlf),
	}, nil
}

// parseRequestLine validates `GET <path> HTTP/1.1` (method and version
// case-insensitive) and returns the raw path.
//
//go:registerparams
func parseRequestLine(line []byte) (string, bool) {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 < 0 {
		return "", false
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 < 0 {
		return "", false
	}
	sp2 += sp1 + 1

	method := make([]byte, sp1)
	copy(method, line[:sp1])
	utils.LowerASCII(method)
	if utils.B2s(method) != "get" {
		return "", false
	}

	version := make([]byte, len(line)-sp2-1)
	copy(version, line[sp2+1:])
	utils.LowerASCII(version)
	if utils.B2s(version) != "http/1.1" {
		return "", false
	}

	return string(line[sp1+1 : sp2]), true
}

// queryParam extracts a single query parameter value from a raw path.
// No percent-decoding: tokens are minted URL-safe.
//
//go:registerparams
func queryParam(path, name string) string {
	q := -1
	for i := 0; i < len(path); i++ {
		if path[i] == '?' {
			q = i
			break
		}
	}
	if q < 0 {
		return ""
	}
	query := path[q+1:]
	for len(query) > 0 {
		amp := len(query)
		for i := 0; i < len(query); i++ {
			if query[i] == '&' {
				amp = i
				break
			}
		}
		pair := query[:amp]
		if len(pair) > len(name) && pair[:len(name)] == name && pair[len(name)] == '=' {
			return pair[len(name)+1:]
		}
		if amp == len(query) {
			break
		}
		query = query[amp+1:]
	}
	return ""
}

// ───────────────────────────── Accept Computation ─────────────────────────────

// AcceptKey computes base64(SHA1(key + GUID)) per RFC 6455 §4.2.2.
//
//go:registerparams
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write(utils.S2b(key))
	h.Write(utils.S2b(constants.WsGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// buildResponse assembles the 101 Switching Protocols response.
//
//go:registerparams
func buildResponse(accept string) []byte {
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	return []byte(resp)
}

// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: poller.go — Durable queue → live subscriber bridge
//
// Purpose:
//   - Drains the event_queue table forward of a high-water mark
//   - Fans each event out to the authenticated connections it addresses
//
// Notes:
//   - Delivery correctness rests on the id cursor, not on row deletion: the
//     mark advances for every row read, including rows that fail to decode,
//     so a failed DELETE never causes redelivery.
//   - Rows decode into a typed event immediately after the scan; nothing
//     loosely-typed reaches dispatch.
//   - `is_mine` is computed per recipient: one queue row produces different
//     copies for different connections.
//
// ⚠️ Runs on the loop thread only — the cursor is loop-local state
// ─────────────────────────────────────────────────────────────────────────────

package poller

import (
	"database/sql"

	"notifier/constants"
	"notifier/debug"
	"notifier/registry"
	"notifier/utils"
	"notifier/ws"

	"github.com/sugawarayuuta/sonnet"
)

// ───────────────────────────── Typed Queue Event ──────────────────────────────

// event is a queue row after validation. Payload is the decoded JSON object
// with the type tag already defaulted from the row's event_type column.
type event struct {
	id         uint64
	recipients []uint64
	payload    map[string]interface{}
}

// ─────────────────────────────── Poller State ─────────────────────────────────

// Poller holds the queue cursor. One instance lives inside the event loop.
type Poller struct {
	db        *sql.DB
	highWater uint64 // largest id already processed; polls resume above it
	lastRun   int64  // monotonic ns of the previous poll
}

// New returns a poller starting above the given id. Zero starts at the
// beginning of the queue.
func New(db *sql.DB, afterID uint64) *Poller {
	return &Poller{db: db, highWater: afterID}
}

// HighWater exposes the cursor for diagnostics and tests.
//
//go:nosplit
//go:inline
//go:registerparams
func (p *Poller) HighWater() uint64 {
	return p.highWater
}

// ─────────────────────────────── Poll Execution ───────────────────────────────

// Run polls the queue at most once per PollIntervalNs. Decoded events are
// broadcast through send; consumed rows are deleted best-effort afterwards.
// Returns the number of events processed (0 when rate-limited or idle).
//
//go:registerparams
func (p *Poller) Run(now int64, reg *registry.Registry, send func(*registry.Conn, []byte)) int {
	if now-p.lastRun < constants.PollIntervalNs {
		return 0
	}
	p.lastRun = now

	rows, err := p.db.Query(
		`SELECT id, event_type, recipients, payload FROM event_queue
		 WHERE id > ? ORDER BY id ASC LIMIT ?`,
		p.highWater, constants.PollBatchLimit)
	if err != nil {
		debug.DropError("POLL", err)
		return 0
	}

	var consumed []uint64
	var batch []event
	for rows.Next() {
		var (
			id                         uint64
			eventType, recips, payload string
		)
		if err := rows.Scan(&id, &eventType, &recips, &payload); err != nil {
			debug.DropError("POLL", err)
			break
		}

		// The cursor advances regardless of row health; a poisoned row is
		// skipped once, never retried.
		if id > p.highWater {
			p.highWater = id
		}
		consumed = append(consumed, id)

		ev, ok := decodeRow(id, eventType, recips, payload)
		if !ok {
			debug.DropMessage("POLL", "skipping malformed row "+utils.Itoa(int(id)))
			continue
		}
		batch = append(batch, ev)
	}
	rows.Close()

	for i := range batch {
		p.broadcast(&batch[i], reg, send)
	}

	p.deleteConsumed(consumed)
	return len(batch)
}

// decodeRow converts one raw row into a typed event. Both the recipient list
// and the payload must decode as well-formed JSON collections; anything else
// disqualifies the row.
//
//go:registerparams
func decodeRow(id uint64, eventType, recips, payload string) (event, bool) {
	var recipients []uint64
	if err := sonnet.Unmarshal(utils.S2b(recips), &recipients); err != nil {
		return event{}, false
	}

	var body map[string]interface{}
	if err := sonnet.Unmarshal(utils.S2b(payload), &body); err != nil || body == nil {
		return event{}, false
	}

	// Rows written before the payload carried its own tag rely on the
	// event_type column.
	if _, tagged := body["type"]; !tagged {
		body["type"] = eventType
	}

	return event{id: id, recipients: recipients, payload: body}, true
}

// broadcast delivers one event to every authenticated recipient connection,
// personalizing message payloads per recipient.
//
//go:registerparams
func (p *Poller) broadcast(ev *event, reg *registry.Registry, send func(*registry.Conn, []byte)) {
	targets := reg.Authenticated(ev.recipients)
	if len(targets) == 0 {
		return
	}

	for _, c := range targets {
		body := personalize(ev.payload, c.UserID)
		data, err := sonnet.Marshal(body)
		if err != nil {
			debug.DropError("POLL", err)
			return
		}
		send(c, ws.EncodeText(data))
	}
}

// personalize returns the per-connection payload copy. For message events
// carrying a sender id, is_mine records whether this recipient authored it.
//
//go:registerparams
func personalize(payload map[string]interface{}, userID uint64) map[string]interface{} {
	out := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}

	if out["type"] != "message" {
		return out
	}
	msg, ok := out["message"].(map[string]interface{})
	if !ok {
		return out
	}
	sender, ok := msg["sender_id"].(float64)
	if !ok {
		return out
	}

	withFlag := make(map[string]interface{}, len(msg)+1)
	for k, v := range msg {
		withFlag[k] = v
	}
	withFlag["is_mine"] = uint64(sender) == userID
	out["message"] = withFlag
	return out
}

// deleteConsumed removes the batch's rows by id. Failure is logged and
// forgotten; the advanced cursor already guarantees no redelivery.
//
//go:registerparams
func (p *Poller) deleteConsumed(ids []uint64) {
	if len(ids) == 0 {
		return
	}

	stmt := "DELETE FROM event_queue WHERE id IN ("
	for i, id := range ids {
		if i > 0 {
			stmt += ","
		}
		stmt += utils.Itoa(int(id))
	}
	stmt += ")"

	if _, err := p.db.Exec(stmt); err != nil {
		debug.DropError("POLL", err)
	}
}

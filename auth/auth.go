// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: auth.go — Token authentication bridge & presence recording
//
// Purpose:
//   - Validates opaque connection tokens against the durable token table
//   - Extends the sliding expiry window and records user presence
//
// Notes:
//   - This is the only state mutation the handshake path performs: one token
//     UPDATE and one presence UPSERT per successful authentication.
//   - Expiry comparisons use caller-supplied unix seconds so tests control
//     the clock.
//
// ⚠️ An empty token never touches the database — it fails immediately
// ─────────────────────────────────────────────────────────────────────────────

package auth

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"

	"notifier/constants"

	"golang.org/x/crypto/blake2b"
)

// ───────────────────────────── Identity Result ────────────────────────────────

// Identity is the resolved owner of a valid token.
type Identity struct {
	UserID uint64
	Name   string
	Email  string
}

// ───────────────────────────── Authentication ─────────────────────────────────

// Authenticate resolves token to an identity. Returns nil when the token is
// empty, unknown or expired. On success the token's expiry advances to
// now + TTL and the user's presence record is refreshed.
//
//go:registerparams
func Authenticate(db *sql.DB, token string, now int64) *Identity {
	if token == "" {
		return nil
	}

	var id Identity
	err := db.QueryRow(
		`SELECT user_id, display_name, email FROM tokens
		 WHERE token = ? AND expires_at > ?`, token, now,
	).Scan(&id.UserID, &id.Name, &id.Email)
	if err != nil {
		return nil // unknown or expired; sql.ErrNoRows and I/O failures alike
	}

	// Sliding window: each successful auth buys another 30 minutes.
	_, _ = db.Exec(`UPDATE tokens SET expires_at = ? WHERE token = ?`,
		now+constants.TokenTTLSeconds, token)

	RecordPresence(db, id.UserID, now)
	return &id
}

// RecordPresence upserts the user's last-seen stamp.
//
//go:registerparams
func RecordPresence(db *sql.DB, userID uint64, now int64) {
	_, _ = db.Exec(
		`INSERT INTO presence (user_id, last_seen) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET last_seen = excluded.last_seen`,
		userID, now)
}

// ─────────────────────────────── Token Minting ────────────────────────────────

// MintToken creates a fresh token for userID, valid for the standard TTL from
// now. The token is a blake2b digest of random seed bytes, hex-encoded:
// opaque, fixed-width and URL-safe so it rides in a query string untouched.
//
//go:registerparams
func MintToken(db *sql.DB, userID uint64, name, email string, now int64) (string, error) {
	var seed [constants.TokenSeedBytes]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return "", err
	}
	sum := blake2b.Sum256(seed[:])
	token := hex.EncodeToString(sum[:])

	_, err := db.Exec(
		`INSERT INTO tokens (token, user_id, display_name, email, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		token, userID, name, email, now+constants.TokenTTLSeconds)
	if err != nil {
		return "", err
	}
	return token, nil
}

// SweepExpired deletes token rows past their expiry. Best-effort hygiene;
// expired tokens already fail authentication, this just keeps the table flat.
//
//go:registerparams
func SweepExpired(db *sql.DB, now int64) {
	_, _ = db.Exec(`DELETE FROM tokens WHERE expires_at <= ?`, now)
}

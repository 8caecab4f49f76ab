// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: store.go — Durable collaborator access (sqlite)
//
// Purpose:
//   - Opens the sqlite database backing tokens, presence and the event queue
//   - Bootstraps the schema so the server self-hosts against an empty file
//
// Notes:
//   - The server reads and deletes queue rows; producers elsewhere insert
//     them. The schema here matches what those producers write.
//   - A single connection is enough: every query runs serially inside one
//     loop tick, never concurrently.
//
// ⚠️ No transactions span ticks — each statement stands alone
// ─────────────────────────────────────────────────────────────────────────────

package store

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// Open establishes the sqlite connection with busy-wait behavior suited to a
// single-writer producer on the same file.
//
//go:registerparams
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=2000")
	if err != nil {
		return nil, err
	}
	// One serial consumer; pooling only hides errors here.
	db.SetMaxOpenConns(1)
	return db, nil
}

// EnsureSchema creates the collaborator tables when absent. Idempotent;
// invoked at startup and by tests against throwaway databases.
//
//go:registerparams
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			token        TEXT PRIMARY KEY,
			user_id      INTEGER NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			email        TEXT NOT NULL DEFAULT '',
			expires_at   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS presence (
			user_id   INTEGER PRIMARY KEY,
			last_seen INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS event_queue (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			recipients TEXT NOT NULL,
			payload    TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

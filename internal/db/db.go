// Package db is the control-plane sqlite database: the folder list,
// the conflict ledger, and the operator account used by the HTTP
// control API. It is distinct from a folder's shadow database
// (internal/shadowdb), which tracks per-file sync state for exactly
// one folder (adapted from the teacher's internal/db, which mixed the
// two concerns together).
package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"docsync/internal/models"
)

// DB wraps the control-plane connection.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if absent) the control-plane database at path
// and ensures its schema, seeding a default operator account the same
// way the teacher does for its single-user login.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS users (username TEXT PRIMARY KEY, password TEXT)`); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`INSERT OR IGNORE INTO users (username, password) VALUES (?, ?)`, "admin", "admin123"); err != nil {
		conn.Close()
		return nil, err
	}

	d := &DB{conn}
	if err := models.EnsureSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := models.EnsureConflictSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// AuthenticateUser reports whether username/password match a stored
// operator account. Plaintext comparison matches the teacher's own
// login, which this engine inherits as ambient scaffolding rather than
// a spec concern.
func (d *DB) AuthenticateUser(username, password string) bool {
	var stored string
	err := d.QueryRow(`SELECT password FROM users WHERE username = ?`, username).Scan(&stored)
	return err == nil && stored == password
}

// Package shadowdb is the engine's persistent memory of "what we last
// synced" — the only thing that lets a crawl tell "new on one side"
// apart from "deleted on the other side." One sqlite file per synced
// folder, opened by exactly one worker at a time (see internal/syncloop).
package shadowdb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"docsync/internal/checksum"
	"docsync/internal/pathnorm"
)

// DB is the shadow database for a single synced folder. All methods take
// absolute local paths and normalize them against localRoot internally,
// matching the contracts in spec §4.3.
type DB struct {
	sql       *sql.DB
	localRoot string
	logger    zerolog.Logger
}

// Open creates or reuses the sqlite file at path (the daemon passes
// <localRoot>.cmissync) and creates the files/folders schema there if
// it is absent.
func Open(path, localRoot string, logger zerolog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("shadowdb: opening %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1) // one worker per db file; avoid SQLITE_BUSY across goroutines

	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			path TEXT PRIMARY KEY,
			serverSideModificationDate DATE,
			checksum TEXT
		);
		CREATE TABLE IF NOT EXISTS folders (
			path TEXT PRIMARY KEY,
			serverSideModificationDate DATE
		);
	`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("shadowdb: schema init: %w", err)
	}

	return &DB{
		sql:       conn,
		localRoot: localRoot,
		logger:    logger.With().Str("component", "shadowdb").Logger(),
	}, nil
}

// Close releases the underlying sqlite connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) norm(absolutePath string) (string, error) {
	return pathnorm.Normalize(d.localRoot, absolutePath)
}

// AddFile hashes the file at absolutePath and upserts its record with
// serverModTime. Storage errors are logged and swallowed per spec §4.3
// — the pass continues and will re-attempt next cycle.
func (d *DB) AddFile(absolutePath string, serverModTime time.Time) error {
	path, err := d.norm(absolutePath)
	if err != nil {
		return err
	}

	sum, err := checksum.File(absolutePath)
	if err != nil {
		return err
	}

	_, err = d.sql.Exec(`INSERT OR REPLACE INTO files (path, serverSideModificationDate, checksum) VALUES (?, ?, ?)`,
		path, nullableTime(serverModTime), sum)
	if err != nil {
		d.logger.Error().Err(err).Str("path", path).Msg("addFile failed")
		return nil
	}
	return nil
}

// AddFolder upserts a folder record with serverModTime.
func (d *DB) AddFolder(absolutePath string, serverModTime time.Time) error {
	path, err := d.norm(absolutePath)
	if err != nil {
		return err
	}

	_, err = d.sql.Exec(`INSERT OR REPLACE INTO folders (path, serverSideModificationDate) VALUES (?, ?)`,
		path, nullableTime(serverModTime))
	if err != nil {
		d.logger.Error().Err(err).Str("path", path).Msg("addFolder failed")
	}
	return nil
}

// RemoveFile deletes the file record for absolutePath. No-op if absent.
func (d *DB) RemoveFile(absolutePath string) error {
	path, err := d.norm(absolutePath)
	if err != nil {
		return err
	}
	if _, err := d.sql.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		d.logger.Error().Err(err).Str("path", path).Msg("removeFile failed")
	}
	return nil
}

// RemoveFolder deletes the folder record for absolutePath and cascades:
// every folder and file record whose key begins with path+"/" is
// removed in the same transaction (invariant 5).
func (d *DB) RemoveFolder(absolutePath string) error {
	path, err := d.norm(absolutePath)
	if err != nil {
		return err
	}

	tx, err := d.sql.Begin()
	if err != nil {
		d.logger.Error().Err(err).Str("path", path).Msg("removeFolder: begin tx failed")
		return nil
	}
	defer tx.Rollback()

	prefix := escapeLike(path) + "/%"

	if _, err := tx.Exec(`DELETE FROM folders WHERE path = ? OR path LIKE ? ESCAPE '\'`, path, prefix); err != nil {
		d.logger.Error().Err(err).Str("path", path).Msg("removeFolder: deleting folders failed")
		return nil
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE path LIKE ? ESCAPE '\'`, prefix); err != nil {
		d.logger.Error().Err(err).Str("path", path).Msg("removeFolder: deleting files failed")
		return nil
	}
	if err := tx.Commit(); err != nil {
		d.logger.Error().Err(err).Str("path", path).Msg("removeFolder: commit failed")
	}
	return nil
}

// GetServerModTime returns the stored server mod-time for a file record,
// or the zero value / false when none is recorded or on a storage error
// (conservative default per spec §4.3).
func (d *DB) GetServerModTime(absolutePath string) (time.Time, bool) {
	path, err := d.norm(absolutePath)
	if err != nil {
		return time.Time{}, false
	}

	var raw sql.NullTime
	row := d.sql.QueryRow(`SELECT serverSideModificationDate FROM files WHERE path = ?`, path)
	if err := row.Scan(&raw); err != nil {
		if err != sql.ErrNoRows {
			d.logger.Error().Err(err).Str("path", path).Msg("getServerModTime failed")
		}
		return time.Time{}, false
	}
	if !raw.Valid {
		return time.Time{}, false
	}
	return raw.Time, true
}

// SetFileServerModTime updates an existing file record's mod-time.
// No-op if the record is absent.
func (d *DB) SetFileServerModTime(absolutePath string, serverModTime time.Time) error {
	path, err := d.norm(absolutePath)
	if err != nil {
		return err
	}
	if _, err := d.sql.Exec(`UPDATE files SET serverSideModificationDate = ? WHERE path = ?`, nullableTime(serverModTime), path); err != nil {
		d.logger.Error().Err(err).Str("path", path).Msg("setFileServerModTime failed")
	}
	return nil
}

// ContainsFile reports whether a file record exists for absolutePath.
func (d *DB) ContainsFile(absolutePath string) bool {
	path, err := d.norm(absolutePath)
	if err != nil {
		return false
	}
	var exists int
	row := d.sql.QueryRow(`SELECT 1 FROM files WHERE path = ?`, path)
	if err := row.Scan(&exists); err != nil {
		return false
	}
	return true
}

// ContainsFolder reports whether a folder record exists for absolutePath.
func (d *DB) ContainsFolder(absolutePath string) bool {
	path, err := d.norm(absolutePath)
	if err != nil {
		return false
	}
	var exists int
	row := d.sql.QueryRow(`SELECT 1 FROM folders WHERE path = ?`, path)
	if err := row.Scan(&exists); err != nil {
		return false
	}
	return true
}

// LocalFileHasChanged hashes the current file and compares it to the
// stored checksum. Returns true if they differ, the file is missing, or
// there is no prior record — matching "unknown means changed."
func (d *DB) LocalFileHasChanged(absolutePath string) bool {
	path, err := d.norm(absolutePath)
	if err != nil {
		return true
	}

	var stored string
	row := d.sql.QueryRow(`SELECT checksum FROM files WHERE path = ?`, path)
	if err := row.Scan(&stored); err != nil {
		return true
	}

	current, err := checksum.File(absolutePath)
	if err != nil {
		return true
	}
	return current != stored
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// escapeLike escapes sqlite LIKE wildcards so a path containing '%' or
// '_' doesn't widen the cascade match.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Package models holds the Config Store entity: the set of folders a
// running docsyncd manages, persisted independently of any one
// folder's shadow database (spec §6, generalized from the teacher's
// single-folder models.Config).
package models

import "database/sql"

// Config describes one synced folder. RepositoryId is accepted and
// persisted even though the shipped WebDAV binding ignores it, so a
// future AtomPub/CMIS binding can pick the field back up without a
// migration (SPEC_FULL.md §6).
type Config struct {
	CanonicalName    string
	URL              string
	User             string
	Password         string
	RepositoryID     string
	LocalPath        string
	RemoteFolderPath string
	Bidirectional    bool
}

// LoadAll reads every configured folder from the store, ordered by name.
func LoadAll(db *sql.DB) ([]Config, error) {
	rows, err := db.Query(`SELECT canonicalName, url, user, password, repositoryId, localPath, remoteFolderPath, bidirectional FROM folders ORDER BY canonicalName`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Config
	for rows.Next() {
		var c Config
		var bidirectional int
		if err := rows.Scan(&c.CanonicalName, &c.URL, &c.User, &c.Password, &c.RepositoryID, &c.LocalPath, &c.RemoteFolderPath, &bidirectional); err != nil {
			return nil, err
		}
		c.Bidirectional = bidirectional != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// Save upserts one folder's configuration by CanonicalName.
func Save(db *sql.DB, c Config) error {
	bidirectional := 0
	if c.Bidirectional {
		bidirectional = 1
	}
	_, err := db.Exec(`
		INSERT OR REPLACE INTO folders
			(canonicalName, url, user, password, repositoryId, localPath, remoteFolderPath, bidirectional)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CanonicalName, c.URL, c.User, c.Password, c.RepositoryID, c.LocalPath, c.RemoteFolderPath, bidirectional)
	return err
}

// Delete removes a folder's configuration. The caller is responsible
// for stopping its worker and deciding what happens to its shadow DB
// file; this store only tracks the folder list.
func Delete(db *sql.DB, canonicalName string) error {
	_, err := db.Exec(`DELETE FROM folders WHERE canonicalName = ?`, canonicalName)
	return err
}

// EnsureSchema creates the folders table if absent. Called once at
// startup against the control-plane sqlite database (distinct from any
// one folder's shadow DB file).
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS folders (
			canonicalName TEXT PRIMARY KEY,
			url TEXT,
			user TEXT,
			password TEXT,
			repositoryId TEXT,
			localPath TEXT,
			remoteFolderPath TEXT,
			bidirectional INTEGER NOT NULL DEFAULT 1
		)`)
	return err
}

// ConflictRecord is the persisted row behind the conflict ledger
// surfaced at GET /api/folders/:name/conflicts (SPEC_FULL.md §3,
// grounded on the pack's conflict-tracking repos).
type ConflictRecord struct {
	ID          string
	FolderName  string
	Path        string
	SavedAsPath string
	DetectedAt  int64
}

// EnsureConflictSchema creates the conflicts table if absent.
func EnsureConflictSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conflicts (
			id TEXT PRIMARY KEY,
			folderName TEXT,
			path TEXT,
			savedAsPath TEXT,
			detectedAt INTEGER
		)`)
	return err
}

// RecordConflict appends one conflict row.
func RecordConflict(db *sql.DB, r ConflictRecord) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO conflicts (id, folderName, path, savedAsPath, detectedAt) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.FolderName, r.Path, r.SavedAsPath, r.DetectedAt)
	return err
}

// ListConflicts returns every recorded conflict for a folder, newest first.
func ListConflicts(db *sql.DB, folderName string) ([]ConflictRecord, error) {
	rows, err := db.Query(`SELECT id, folderName, path, savedAsPath, detectedAt FROM conflicts WHERE folderName = ? ORDER BY detectedAt DESC`, folderName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConflictRecord
	for rows.Next() {
		var r ConflictRecord
		if err := rows.Scan(&r.ID, &r.FolderName, &r.Path, &r.SavedAsPath, &r.DetectedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL statements to run.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		uid           TEXT     PRIMARY KEY,
		display_name  TEXT     NOT NULL DEFAULT '',
		email         TEXT     NOT NULL DEFAULT '',
		password_hash TEXT     NOT NULL DEFAULT '',
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS user_groups (
		gid          TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS group_members (
		gid TEXT NOT NULL REFERENCES user_groups(gid) ON DELETE CASCADE,
		uid TEXT NOT NULL REFERENCES users(uid) ON DELETE CASCADE,
		PRIMARY KEY (gid, uid)
	)`,
	`CREATE TABLE IF NOT EXISTS app_passwords (
		id           INTEGER  PRIMARY KEY AUTOINCREMENT,
		uid          TEXT     NOT NULL REFERENCES users(uid) ON DELETE CASCADE,
		name         TEXT     NOT NULL,
		key_prefix   TEXT     NOT NULL,
		key_hash     TEXT     NOT NULL UNIQUE,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS storages (
		numeric_id INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT    NOT NULL UNIQUE,
		available  INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS filecache (
		fileid   INTEGER PRIMARY KEY AUTOINCREMENT,
		storage  INTEGER NOT NULL REFERENCES storages(numeric_id) ON DELETE CASCADE,
		path     TEXT    NOT NULL,
		parent   INTEGER NOT NULL DEFAULT -1,
		name     TEXT    NOT NULL DEFAULT '',
		mimetype TEXT    NOT NULL DEFAULT '',
		size     INTEGER NOT NULL DEFAULT 0,
		mtime    INTEGER NOT NULL DEFAULT 0,
		UNIQUE (storage, path)
	)`,
	`CREATE INDEX IF NOT EXISTS filecache_parent ON filecache (parent)`,
	`CREATE TABLE IF NOT EXISTS mounts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		storage_id  INTEGER NOT NULL REFERENCES storages(numeric_id) ON DELETE CASCADE,
		root_id     INTEGER NOT NULL,
		user_id     TEXT    NOT NULL,
		mount_point TEXT    NOT NULL,
		UNIQUE (user_id, root_id)
	)`,
	`CREATE INDEX IF NOT EXISTS mounts_root ON mounts (root_id)`,
	`CREATE TABLE IF NOT EXISTS shares (
		id            INTEGER  PRIMARY KEY AUTOINCREMENT,
		share_type    INTEGER  NOT NULL,
		share_with    TEXT     NOT NULL DEFAULT '',
		uid_owner     TEXT     NOT NULL,
		uid_initiator TEXT     NOT NULL,
		item_type     TEXT     NOT NULL CHECK (item_type IN ('file', 'folder')),
		file_source   INTEGER  NOT NULL,
		file_target   TEXT     NOT NULL DEFAULT '',
		permissions   INTEGER  NOT NULL DEFAULT 1,
		token         TEXT     NOT NULL DEFAULT '',
		expiration    DATETIME,
		stime         DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS shares_file_source ON shares (file_source)`,
	`CREATE TABLE IF NOT EXISTS share_external (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		remote      TEXT    NOT NULL,
		share_token TEXT    NOT NULL,
		owner       TEXT    NOT NULL,
		user        TEXT    NOT NULL,
		mountpoint  TEXT    NOT NULL,
		accepted    INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id                     INTEGER  PRIMARY KEY AUTOINCREMENT,
		parent_id              INTEGER  NOT NULL DEFAULT 0,
		topmost_parent_id      INTEGER  NOT NULL DEFAULT 0,
		children_count         INTEGER  NOT NULL DEFAULT 0,
		actor_type             TEXT     NOT NULL,
		actor_id               TEXT     NOT NULL,
		message                TEXT     NOT NULL,
		verb                   TEXT     NOT NULL,
		creation_timestamp     DATETIME NOT NULL,
		latest_child_timestamp DATETIME,
		object_type            TEXT     NOT NULL,
		object_id              TEXT     NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS comments_object ON comments (object_type, object_id, creation_timestamp)`,
	`CREATE TABLE IF NOT EXISTS comments_read_markers (
		user_id         TEXT     NOT NULL,
		object_type     TEXT     NOT NULL,
		object_id       TEXT     NOT NULL,
		marker_datetime DATETIME NOT NULL,
		PRIMARY KEY (user_id, object_type, object_id)
	)`,
}

// migrate runs all migrations in order.
func migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	// Column additions (idempotent, checks if column exists first)
	columnMigrations := []struct {
		table, column, definition string
	}{
		{"shares", "note", "TEXT NOT NULL DEFAULT ''"},
		{"users", "last_login", "DATETIME"},
	}

	for _, cm := range columnMigrations {
		if err := addColumnIfNotExists(db, cm.table, cm.column, cm.definition); err != nil {
			return fmt.Errorf("adding %s.%s: %w", cm.table, cm.column, err)
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("checking table info: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("scanning column info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterating columns: %w", err)
	}

	return false, nil
}

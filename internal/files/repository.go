package files

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned for unknown file ids, paths and storages.
var ErrNotFound = errors.New("not found")

// Cache provides access to storages, file cache entries and mounts.
type Cache struct {
	db *sql.DB
}

// NewCache creates a file cache repository.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

const nodeColumns = `fileid, storage, path, parent, name, mimetype, size, mtime`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(s scanner) (*Node, error) {
	var n Node
	if err := s.Scan(&n.ID, &n.StorageID, &n.Path, &n.ParentID, &n.Name, &n.Mimetype, &n.Size, &n.MTime); err != nil {
		return nil, err
	}
	return &n, nil
}

// EnsureStorage returns the storage with the given id, creating it if needed.
func (c *Cache) EnsureStorage(id string) (*Storage, error) {
	if _, err := c.db.Exec("INSERT OR IGNORE INTO storages (id) VALUES (?)", id); err != nil {
		return nil, fmt.Errorf("creating storage %s: %w", id, err)
	}
	return c.StorageByID(id)
}

// StorageByID returns a storage by its string id.
func (c *Cache) StorageByID(id string) (*Storage, error) {
	var s Storage
	err := c.db.QueryRow(
		"SELECT numeric_id, id, available FROM storages WHERE id = ?", id,
	).Scan(&s.NumericID, &s.ID, &s.Available)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying storage %s: %w", id, err)
	}
	return &s, nil
}

// StoragesWithPrefix returns storages whose id starts with prefix, keyed by id.
func (c *Cache) StoragesWithPrefix(prefix string) (map[string]int64, error) {
	rows, err := c.db.Query(
		"SELECT id, numeric_id FROM storages WHERE substr(id, 1, length(?)) = ?", prefix, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("listing storages: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var numeric int64
		if err := rows.Scan(&id, &numeric); err != nil {
			return nil, fmt.Errorf("scanning storage: %w", err)
		}
		out[id] = numeric
	}
	return out, rows.Err()
}

// CountFiles returns the number of cache entries in a storage.
func (c *Cache) CountFiles(storageID int64) (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM filecache WHERE storage = ?", storageID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting files: %w", err)
	}
	return n, nil
}

// DeleteStorage removes a storage with its cache entries and mounts.
func (c *Cache) DeleteStorage(storageID int64) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	stmts := []string{
		"DELETE FROM filecache WHERE storage = ?",
		"DELETE FROM mounts WHERE storage_id = ?",
		"DELETE FROM storages WHERE numeric_id = ?",
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, storageID); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				return fmt.Errorf("deleting storage %d: %w (rollback: %v)", storageID, err, rerr)
			}
			return fmt.Errorf("deleting storage %d: %w", storageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing storage delete: %w", err)
	}
	return nil
}

// Put inserts or updates the entry at p in storage, creating missing parent
// folders. The storage root has path "".
func (c *Cache) Put(storageID int64, p, mimetype string, size, mtime int64) (*Node, error) {
	p = strings.Trim(path.Clean("/"+p), "/")

	parentID := int64(-1)
	name := ""
	if p != "" {
		name = path.Base(p)
		parent, err := c.GetByPath(storageID, parentPath(p))
		if errors.Is(err, ErrNotFound) {
			parent, err = c.Put(storageID, parentPath(p), DirectoryMimetype, 0, mtime)
		}
		if err != nil {
			return nil, err
		}
		parentID = parent.ID
	}

	_, err := c.db.Exec(
		`INSERT INTO filecache (storage, path, parent, name, mimetype, size, mtime)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (storage, path) DO UPDATE SET
			parent = excluded.parent, mimetype = excluded.mimetype,
			size = excluded.size, mtime = excluded.mtime`,
		storageID, p, parentID, name, mimetype, size, mtime,
	)
	if err != nil {
		return nil, fmt.Errorf("storing %s: %w", p, err)
	}

	return c.GetByPath(storageID, p)
}

// Get returns a cache entry by file id.
func (c *Cache) Get(id int64) (*Node, error) {
	n, err := scanNode(c.db.QueryRow(
		fmt.Sprintf("SELECT %s FROM filecache WHERE fileid = ?", nodeColumns), id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying file %d: %w", id, err)
	}
	return n, nil
}

// GetByPath returns a cache entry by storage and path.
func (c *Cache) GetByPath(storageID int64, p string) (*Node, error) {
	n, err := scanNode(c.db.QueryRow(
		fmt.Sprintf("SELECT %s FROM filecache WHERE storage = ? AND path = ?", nodeColumns), storageID, p,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("path %q: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying path %q: %w", p, err)
	}
	return n, nil
}

// Exists reports whether a cache entry with the id exists.
func (c *Cache) Exists(id int64) (bool, error) {
	var count int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM filecache WHERE fileid = ?", id).Scan(&count); err != nil {
		return false, fmt.Errorf("checking file %d: %w", id, err)
	}
	return count > 0, nil
}

// Ancestors returns the node and its parents up to the storage root, nearest
// first. A missing file yields ErrNotFound.
func (c *Cache) Ancestors(id int64) ([]*Node, error) {
	var chain []*Node
	seen := make(map[int64]bool)
	for id > 0 && !seen[id] {
		seen[id] = true
		n, err := c.Get(id)
		if err != nil {
			if len(chain) > 0 && errors.Is(err, ErrNotFound) {
				break
			}
			return nil, err
		}
		chain = append(chain, n)
		id = n.ParentID
	}
	return chain, nil
}

// Children returns the direct children of a folder ordered by name.
func (c *Cache) Children(id int64) ([]*Node, error) {
	rows, err := c.db.Query(
		fmt.Sprintf("SELECT %s FROM filecache WHERE parent = ? ORDER BY name", nodeColumns), id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing children: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	var nodes []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// Remove deletes an entry and everything below it.
func (c *Cache) Remove(id int64) error {
	n, err := c.Get(id)
	if err != nil {
		return err
	}

	if n.Path == "" {
		_, err = c.db.Exec("DELETE FROM filecache WHERE storage = ?", n.StorageID)
	} else {
		prefix := n.Path + "/"
		_, err = c.db.Exec(
			"DELETE FROM filecache WHERE storage = ? AND (path = ? OR substr(path, 1, length(?)) = ?)",
			n.StorageID, n.Path, prefix, prefix,
		)
	}
	if err != nil {
		return fmt.Errorf("removing file %d: %w", id, err)
	}
	return nil
}

// AddMount makes rootID visible to uid at mountPoint.
func (c *Cache) AddMount(storageID, rootID int64, uid, mountPoint string) (*Mount, error) {
	_, err := c.db.Exec(
		`INSERT INTO mounts (storage_id, root_id, user_id, mount_point) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, root_id) DO UPDATE SET mount_point = excluded.mount_point`,
		storageID, rootID, uid, mountPoint,
	)
	if err != nil {
		return nil, fmt.Errorf("adding mount: %w", err)
	}

	var m Mount
	err = c.db.QueryRow(
		"SELECT id, storage_id, root_id, user_id, mount_point FROM mounts WHERE user_id = ? AND root_id = ?",
		uid, rootID,
	).Scan(&m.ID, &m.StorageID, &m.RootID, &m.UserID, &m.MountPoint)
	if err != nil {
		return nil, fmt.Errorf("reading back mount: %w", err)
	}
	return &m, nil
}

// Mounts returns the mounts of uid.
func (c *Cache) Mounts(uid string) ([]*Mount, error) {
	rows, err := c.db.Query(
		"SELECT id, storage_id, root_id, user_id, mount_point FROM mounts WHERE user_id = ? ORDER BY mount_point", uid,
	)
	if err != nil {
		return nil, fmt.Errorf("listing mounts: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	var mounts []*Mount
	for rows.Next() {
		var m Mount
		if err := rows.Scan(&m.ID, &m.StorageID, &m.RootID, &m.UserID, &m.MountPoint); err != nil {
			return nil, fmt.Errorf("scanning mount: %w", err)
		}
		mounts = append(mounts, &m)
	}
	return mounts, rows.Err()
}

// EnsureHome creates uid's home storage, its root entry and home mount.
func (c *Cache) EnsureHome(uid string) (*Storage, *Node, error) {
	storage, err := c.EnsureStorage(HomeStorageID(uid))
	if err != nil {
		return nil, nil, err
	}

	root, err := c.GetByPath(storage.NumericID, "")
	if errors.Is(err, ErrNotFound) {
		root, err = c.Put(storage.NumericID, "", DirectoryMimetype, 0, 0)
	}
	if err != nil {
		return nil, nil, err
	}

	if _, err := c.AddMount(storage.NumericID, root.ID, uid, HomeMountPoint(uid)); err != nil {
		return nil, nil, err
	}
	return storage, root, nil
}

// Paths returns every cache path in a storage keyed to its file id.
func (c *Cache) Paths(storageID int64) (map[string]int64, error) {
	rows, err := c.db.Query("SELECT path, fileid FROM filecache WHERE storage = ?", storageID)
	if err != nil {
		return nil, fmt.Errorf("listing paths: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	out := make(map[string]int64)
	for rows.Next() {
		var p string
		var id int64
		if err := rows.Scan(&p, &id); err != nil {
			return nil, fmt.Errorf("scanning path: %w", err)
		}
		out[p] = id
	}
	return out, rows.Err()
}

package share

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/evcraddock/sharebox/internal/files"
	"github.com/evcraddock/sharebox/internal/metrics"
)

// RemoteStoragePrefix prefixes storage ids of accepted federated shares.
const RemoteStoragePrefix = "shared::"

// RemoteShare is a federated share received from another server.
type RemoteShare struct {
	ID         int64
	Remote     string
	Token      string
	Owner      string
	User       string
	MountPoint string
	Accepted   bool
}

// StorageID returns the id of the storage backing the share.
func (r RemoteShare) StorageID() string {
	return RemoteStorageID(r.Token, r.Remote)
}

// RemoteStorageID builds a remote share storage id from the share token and
// the remote server address.
func RemoteStorageID(token, remote string) string {
	sum := md5.Sum([]byte(token + "@" + normalizeRemote(remote)))
	return RemoteStoragePrefix + hex.EncodeToString(sum[:])
}

// normalizeRemote drops the front controller path and trailing slashes so
// "https://example.com/index.php/" and "https://example.com" are one remote.
func normalizeRemote(remote string) string {
	remote = strings.TrimSpace(remote)
	if i := strings.Index(remote, "/index.php"); i >= 0 {
		remote = remote[:i]
	}
	return strings.TrimRight(remote, "/")
}

// StaleStorage is a remote storage with no federated share pointing at it.
type StaleStorage struct {
	ID        string `json:"id"`
	NumericID int64  `json:"numeric_id"`
	Files     int    `json:"files"`
}

// RemoteStorages finds and removes storages left behind by deleted
// federated shares.
type RemoteStorages struct {
	db      *sql.DB
	cache   *files.Cache
	metrics *metrics.RepairMetrics
}

// NewRemoteStorages creates a remote storage cleaner over db. m may be nil.
func NewRemoteStorages(db *sql.DB, m *metrics.RepairMetrics) *RemoteStorages {
	return &RemoteStorages{db: db, cache: files.NewCache(db), metrics: m}
}

// AddRemoteShare records a received federated share.
func (rs *RemoteStorages) AddRemoteShare(r RemoteShare) (*RemoteShare, error) {
	result, err := rs.db.Exec(
		`INSERT INTO share_external (remote, share_token, owner, user, mountpoint, accepted)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Remote, r.Token, r.Owner, r.User, r.MountPoint, r.Accepted,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting remote share: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting remote share id: %w", err)
	}
	r.ID = id
	return &r, nil
}

// RemoteShares returns every received federated share.
func (rs *RemoteStorages) RemoteShares() ([]RemoteShare, error) {
	rows, err := rs.db.Query(
		"SELECT id, remote, share_token, owner, user, mountpoint, accepted FROM share_external ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("listing remote shares: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	var out []RemoteShare
	for rows.Next() {
		var r RemoteShare
		if err := rows.Scan(&r.ID, &r.Remote, &r.Token, &r.Owner, &r.User, &r.MountPoint, &r.Accepted); err != nil {
			return nil, fmt.Errorf("scanning remote share: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FindStale returns remote storages that no federated share maps to,
// ordered by storage id.
func (rs *RemoteStorages) FindStale() ([]StaleStorage, error) {
	storages, err := rs.cache.StoragesWithPrefix(RemoteStoragePrefix)
	if err != nil {
		return nil, err
	}
	shares, err := rs.RemoteShares()
	if err != nil {
		return nil, err
	}
	for _, r := range shares {
		delete(storages, r.StorageID())
	}

	stale := make([]StaleStorage, 0, len(storages))
	for id, numeric := range storages {
		n, err := rs.cache.CountFiles(numeric)
		if err != nil {
			return nil, err
		}
		stale = append(stale, StaleStorage{ID: id, NumericID: numeric, Files: n})
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale, nil
}

// Cleanup deletes stale remote storages with their cache entries. With
// dryRun set it only reports them.
func (rs *RemoteStorages) Cleanup(dryRun bool) ([]StaleStorage, error) {
	stale, err := rs.FindStale()
	if err != nil {
		return nil, err
	}
	if dryRun {
		return stale, nil
	}

	for i, s := range stale {
		if err := rs.cache.DeleteStorage(s.NumericID); err != nil {
			rs.metrics.RecordStoragesDeleted(i)
			return stale[:i], err
		}
		slog.Info("deleted remote storage", "storage", s.ID, "files", s.Files)
	}
	rs.metrics.RecordStoragesDeleted(len(stale))
	return stale, nil
}

package files

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Share type codes that grant filesystem access to their recipients.
const (
	shareTypeUser  = 0
	shareTypeGroup = 1
)

// Access answers which users can reach a file.
//
// A user reaches a file when one of its ancestors (or the file itself) is the
// root of one of their mounts, or is the node of an unexpired user share to
// them or group share to one of their groups.
type Access struct {
	db    *sql.DB
	cache *Cache
	now   func() time.Time
}

// NewAccess creates an access resolver.
func NewAccess(db *sql.DB) *Access {
	return &Access{db: db, cache: NewCache(db), now: time.Now}
}

// FullPermissions is held by users who reach a file through one of their
// mounts: read, update, create, delete and share.
const FullPermissions = 31

// CanAccess reports whether uid can reach fileID. Unknown users and missing
// files yield false.
func (a *Access) CanAccess(uid string, fileID int64) (bool, error) {
	perms, err := a.Permissions(uid, fileID)
	if err != nil {
		return false, err
	}
	return perms != 0, nil
}

// Permissions returns the permission bits uid holds on fileID.
// A mount on the ancestor chain grants FullPermissions. Otherwise the bits
// of every unexpired user or group share received on the chain are combined.
// Zero means no access.
func (a *Access) Permissions(uid string, fileID int64) (int, error) {
	var users int
	if err := a.db.QueryRow("SELECT COUNT(*) FROM users WHERE uid = ?", uid).Scan(&users); err != nil {
		return 0, fmt.Errorf("checking user %s: %w", uid, err)
	}
	if users == 0 {
		return 0, nil
	}

	chain, err := a.cache.Ancestors(fileID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	placeholders, ids := inList(chain)

	var mounts int
	args := append([]interface{}{uid}, ids...)
	err = a.db.QueryRow(
		fmt.Sprintf("SELECT COUNT(*) FROM mounts WHERE user_id = ? AND root_id IN (%s)", placeholders),
		args...,
	).Scan(&mounts)
	if err != nil {
		return 0, fmt.Errorf("checking mounts: %w", err)
	}
	if mounts > 0 {
		return FullPermissions, nil
	}

	args = append([]interface{}{shareTypeUser, uid, shareTypeGroup, uid, a.now().UTC()}, ids...)
	rows, err := a.db.Query(
		fmt.Sprintf(`SELECT permissions FROM shares
			WHERE ((share_type = ? AND share_with = ?)
				OR (share_type = ? AND share_with IN (SELECT gid FROM group_members WHERE uid = ?)))
			AND (expiration IS NULL OR expiration > ?)
			AND file_source IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("checking received shares: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	perms := 0
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return 0, fmt.Errorf("scanning share permissions: %w", err)
		}
		perms |= p
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("reading received shares: %w", err)
	}
	return perms, nil
}

// HomeOwners returns the users, ordered by uid, whose home mount covers
// fileID. These users hold the file without going through a share.
func (a *Access) HomeOwners(fileID int64) ([]string, error) {
	chain, err := a.cache.Ancestors(fileID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	placeholders, ids := inList(chain)
	rows, err := a.db.Query(
		fmt.Sprintf(`SELECT m.user_id FROM mounts m
			JOIN users u ON u.uid = m.user_id
			WHERE m.root_id IN (%s) AND m.mount_point = '/' || m.user_id || '/'
			ORDER BY m.user_id`, placeholders),
		ids...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing home owners: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	var owners []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scanning home owner: %w", err)
		}
		owners = append(owners, uid)
	}
	return owners, rows.Err()
}

func inList(nodes []*Node) (string, []interface{}) {
	ids := make([]interface{}, len(nodes))
	marks := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
		marks[i] = "?"
	}
	return strings.Join(marks, ", "), ids
}

// Package auth manages accounts, groups and app passwords, and authenticates
// HTTP requests against them.
package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrUserNotFound is returned when a uid has no account.
var ErrUserNotFound = errors.New("user not found")

// User is an account that can own files and shares.
type User struct {
	UID         string     `json:"uid"`
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
}

// Name returns the display name, falling back to the uid.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.UID
}

// UserStore manages accounts and group membership in SQLite.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Add creates a new account. An empty password leaves the account usable
// only through app passwords.
func (s *UserStore) Add(uid, displayName, email, password string) (*User, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, fmt.Errorf("uid is required")
	}
	if strings.ContainsAny(uid, "/ ") {
		return nil, fmt.Errorf("uid %q must not contain slashes or spaces", uid)
	}

	var hash string
	if password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		hash = string(b)
	}

	_, err := s.db.Exec(
		"INSERT INTO users (uid, display_name, email, password_hash) VALUES (?, ?, ?, ?)",
		uid, strings.TrimSpace(displayName), strings.ToLower(strings.TrimSpace(email)), hash,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("user already exists: %s", uid)
		}
		return nil, fmt.Errorf("adding user: %w", err)
	}

	return s.Get(uid)
}

// Get returns an account by uid.
func (s *UserStore) Get(uid string) (*User, error) {
	var u User
	err := s.db.QueryRow(
		"SELECT uid, display_name, email, created_at, last_login FROM users WHERE uid = ?", uid,
	).Scan(&u.UID, &u.DisplayName, &u.Email, &u.CreatedAt, &u.LastLogin)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// Exists reports whether an account with the uid exists.
func (s *UserStore) Exists(uid string) (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE uid = ?", uid).Scan(&count); err != nil {
		return false, fmt.Errorf("checking user: %w", err)
	}
	return count > 0, nil
}

// List returns all accounts ordered by uid.
func (s *UserStore) List() ([]*User, error) {
	rows, err := s.db.Query(
		"SELECT uid, display_name, email, created_at, last_login FROM users ORDER BY uid",
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UID, &u.DisplayName, &u.Email, &u.CreatedAt, &u.LastLogin); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, &u)
	}

	return users, rows.Err()
}

// Delete removes an account. Group memberships and app passwords cascade.
func (s *UserStore) Delete(uid string) error {
	result, err := s.db.Exec("DELETE FROM users WHERE uid = ?", uid)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, uid)
	}

	return nil
}

// CheckPassword reports whether password matches the account's login password.
func (s *UserStore) CheckPassword(uid, password string) (bool, error) {
	var hash string
	err := s.db.QueryRow("SELECT password_hash FROM users WHERE uid = ?", uid).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying password: %w", err)
	}
	if hash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// TouchLogin records a successful authentication.
func (s *UserStore) TouchLogin(uid string) error {
	if _, err := s.db.Exec("UPDATE users SET last_login = ? WHERE uid = ?", time.Now().UTC(), uid); err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// AddToGroup adds uid to gid, creating the group if needed.
func (s *UserStore) AddToGroup(gid, uid string) error {
	gid = strings.TrimSpace(gid)
	if gid == "" {
		return fmt.Errorf("gid is required")
	}

	ok, err := s.Exists(uid)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, uid)
	}

	if _, err := s.db.Exec("INSERT OR IGNORE INTO user_groups (gid) VALUES (?)", gid); err != nil {
		return fmt.Errorf("creating group: %w", err)
	}
	if _, err := s.db.Exec("INSERT OR IGNORE INTO group_members (gid, uid) VALUES (?, ?)", gid, uid); err != nil {
		return fmt.Errorf("adding group member: %w", err)
	}
	return nil
}

// Groups returns the groups uid belongs to.
func (s *UserStore) Groups(uid string) ([]string, error) {
	return s.queryStrings("SELECT gid FROM group_members WHERE uid = ? ORDER BY gid", uid)
}

// GroupMembers returns the uids in gid.
func (s *UserStore) GroupMembers(gid string) ([]string, error) {
	return s.queryStrings("SELECT uid FROM group_members WHERE gid = ? ORDER BY uid", gid)
}

// GroupExists reports whether gid exists.
func (s *UserStore) GroupExists(gid string) (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM user_groups WHERE gid = ?", gid).Scan(&count); err != nil {
		return false, fmt.Errorf("checking group: %w", err)
	}
	return count > 0, nil
}

func (s *UserStore) queryStrings(query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DisplayName returns the display name of uid, falling back to uid itself
// for unknown users.
func (s *UserStore) DisplayName(uid string) string {
	u, err := s.Get(uid)
	if err != nil {
		return uid
	}
	return u.Name()
}

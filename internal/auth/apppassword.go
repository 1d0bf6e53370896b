package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const appPasswordBytes = 32 // 256-bit tokens

// ErrAppPasswordNotFound is returned when deleting an unknown app password.
var ErrAppPasswordNotFound = errors.New("app password not found")

// AppPassword is the stored representation of an app password (no raw token).
type AppPassword struct {
	ID         int64      `json:"id"`
	UID        string     `json:"uid"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"` // first 8 chars for identification
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// AppPasswordStore manages per-user app passwords in SQLite.
type AppPasswordStore struct {
	db *sql.DB
}

// NewAppPasswordStore creates an app password store.
func NewAppPasswordStore(db *sql.DB) *AppPasswordStore {
	return &AppPasswordStore{db: db}
}

// Create generates a new app password for uid.
// Returns the raw token (shown once) and the stored record.
func (s *AppPasswordStore) Create(uid, name string) (string, *AppPassword, error) {
	raw, err := generateAppPassword()
	if err != nil {
		return "", nil, fmt.Errorf("generating app password: %w", err)
	}

	prefix := raw[:8]
	hash := hashAppPassword(raw)

	result, err := s.db.Exec(
		"INSERT INTO app_passwords (uid, name, key_prefix, key_hash) VALUES (?, ?, ?, ?)",
		uid, name, prefix, hash,
	)
	if err != nil {
		return "", nil, fmt.Errorf("storing app password: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return "", nil, fmt.Errorf("getting app password id: %w", err)
	}

	return raw, &AppPassword{ID: id, UID: uid, Name: name, KeyPrefix: prefix}, nil
}

// List returns the app passwords of uid (without the raw token).
func (s *AppPasswordStore) List(uid string) ([]AppPassword, error) {
	rows, err := s.db.Query(
		"SELECT id, uid, name, key_prefix, created_at, last_used_at FROM app_passwords WHERE uid = ? ORDER BY id DESC",
		uid,
	)
	if err != nil {
		return nil, fmt.Errorf("querying app passwords: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("closing rows: %v\n", cerr)
		}
	}()

	var keys []AppPassword
	for rows.Next() {
		var k AppPassword
		if err := rows.Scan(&k.ID, &k.UID, &k.Name, &k.KeyPrefix, &k.CreatedAt, &k.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scanning app password: %w", err)
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// Delete removes an app password owned by uid.
func (s *AppPasswordStore) Delete(uid string, id int64) error {
	result, err := s.db.Exec("DELETE FROM app_passwords WHERE id = ? AND uid = ?", id, uid)
	if err != nil {
		return fmt.Errorf("deleting app password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrAppPasswordNotFound, id)
	}

	return nil
}

// Validate resolves a raw token to its owning uid and updates last_used_at.
// Returns an empty uid for unknown tokens.
func (s *AppPasswordStore) Validate(raw string) (string, error) {
	hash := hashAppPassword(raw)

	var uid string
	err := s.db.QueryRow("SELECT uid FROM app_passwords WHERE key_hash = ?", hash).Scan(&uid)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("validating app password: %w", err)
	}

	if _, err := s.db.Exec(
		"UPDATE app_passwords SET last_used_at = ? WHERE key_hash = ?",
		time.Now().UTC(), hash,
	); err != nil {
		return "", fmt.Errorf("touching app password: %w", err)
	}

	return uid, nil
}

func generateAppPassword() (string, error) {
	b := make([]byte, appPasswordBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "sbx_" + hex.EncodeToString(b), nil
}

func hashAppPassword(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

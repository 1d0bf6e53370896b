package share

import (
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/evcraddock/sharebox/internal/files"
)

const (
	tokenAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	tokenLength   = 15
)

// Repository provides access to the shares table.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a share repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const shareSelect = `SELECT s.id, s.share_type, s.share_with, s.uid_owner, s.uid_initiator, s.item_type,
	s.file_source, s.file_target, s.permissions, s.token, s.note, s.expiration, s.stime,
	f.fileid, f.storage, f.path, f.parent, f.name, f.mimetype, f.size, f.mtime
	FROM shares s LEFT JOIN filecache f ON f.fileid = s.file_source`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanShare(sc scanner) (*Share, error) {
	var s Share
	var shareType int
	var expiration sql.NullTime
	var (
		fileID, storage, parent, size, mtime sql.NullInt64
		fpath, name, mimetype                sql.NullString
	)
	err := sc.Scan(&s.ID, &shareType, &s.SharedWith, &s.Owner, &s.SharedBy, &s.ItemType,
		&s.NodeID, &s.Target, &s.Permissions, &s.Token, &s.Note, &expiration, &s.CreatedAt,
		&fileID, &storage, &fpath, &parent, &name, &mimetype, &size, &mtime)
	if err != nil {
		return nil, err
	}
	s.Type = Type(shareType)
	s.CreatedAt = s.CreatedAt.UTC()
	if expiration.Valid {
		t := expiration.Time.UTC()
		s.Expiration = &t
	}
	if fileID.Valid {
		s.Node = &files.Node{
			ID:        fileID.Int64,
			StorageID: storage.Int64,
			Path:      fpath.String,
			ParentID:  parent.Int64,
			Name:      name.String,
			Mimetype:  mimetype.String,
			Size:      size.Int64,
			MTime:     mtime.Int64,
		}
	}
	return &s, nil
}

// Create stores a new share. Link shares without a token get a random one
// and a zero CreatedAt is set to now.
func (r *Repository) Create(s *Share) (*Share, error) {
	if !s.Type.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShareType, int(s.Type))
	}
	if s.Owner == "" {
		return nil, fmt.Errorf("share owner is required")
	}
	if s.SharedBy == "" {
		s.SharedBy = s.Owner
	}
	if s.ItemType == "" {
		s.ItemType = "file"
	}
	if s.Permissions == 0 {
		s.Permissions = PermRead
	}
	if s.Type == TypeLink && s.Token == "" {
		token, err := gonanoid.Generate(tokenAlphabet, tokenLength)
		if err != nil {
			return nil, fmt.Errorf("generating token: %w", err)
		}
		s.Token = token
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now().UTC().Truncate(time.Second)
	}

	var expiration interface{}
	if s.Expiration != nil {
		expiration = s.Expiration.UTC()
	}

	result, err := r.db.Exec(
		`INSERT INTO shares (share_type, share_with, uid_owner, uid_initiator, item_type, file_source,
			file_target, permissions, token, note, expiration, stime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int(s.Type), s.SharedWith, s.Owner, s.SharedBy, s.ItemType, s.NodeID,
		s.Target, s.Permissions, s.Token, s.Note, expiration, s.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting share: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}
	return r.Get(id)
}

// Get returns a share by ID.
func (r *Repository) Get(id int64) (*Share, error) {
	s, err := scanShare(r.db.QueryRow(shareSelect+" WHERE s.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("share %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying share %d: %w", id, err)
	}
	return s, nil
}

// All streams every share ordered by id. Iteration stops at the first error.
func (r *Repository) All() iter.Seq2[*Share, error] {
	return r.query(shareSelect + " ORDER BY s.id")
}

// ExpiringBetween returns shares whose expiration lies in [from, to).
func (r *Repository) ExpiringBetween(from, to time.Time) ([]*Share, error) {
	return Collect(r.query(
		shareSelect+" WHERE s.expiration IS NOT NULL AND s.expiration >= ? AND s.expiration < ? ORDER BY s.expiration, s.id",
		from.UTC(), to.UTC(),
	))
}

func (r *Repository) query(query string, args ...interface{}) iter.Seq2[*Share, error] {
	return func(yield func(*Share, error) bool) {
		rows, err := r.db.Query(query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("listing shares: %w", err))
			return
		}
		defer func() {
			if cerr := rows.Close(); cerr != nil {
				fmt.Printf("warning: closing rows: %v\n", cerr)
			}
		}()

		for rows.Next() {
			s, err := scanShare(rows)
			if err != nil {
				yield(nil, fmt.Errorf("scanning share: %w", err))
				return
			}
			if !yield(s, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterating shares: %w", err))
		}
	}
}

// Collect drains seq into a slice.
func Collect(seq iter.Seq2[*Share, error]) ([]*Share, error) {
	var out []*Share
	for s, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Delete removes a share by ID.
func (r *Repository) Delete(id int64) error {
	result, err := r.db.Exec("DELETE FROM shares WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting share: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("share %d: %w", id, ErrNotFound)
	}
	return nil
}

// maxBatch bounds the number of ids bound into one statement.
const maxBatch = 500

// DeleteMany removes shares by id and returns how many were deleted.
func (r *Repository) DeleteMany(ids []int64) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += maxBatch {
		end := min(start+maxBatch, len(ids))
		batch := ids[start:end]

		marks := make([]string, len(batch))
		args := make([]interface{}, len(batch))
		for i, id := range batch {
			marks[i] = "?"
			args[i] = id
		}

		result, err := r.db.Exec(
			fmt.Sprintf("DELETE FROM shares WHERE id IN (%s)", strings.Join(marks, ", ")), args...,
		)
		if err != nil {
			return total, fmt.Errorf("deleting shares: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// Reassign sets owner, initiator and node of a share in one statement.
func (r *Repository) Reassign(id int64, owner, sharedBy string, nodeID int64) error {
	result, err := r.db.Exec(
		"UPDATE shares SET uid_owner = ?, uid_initiator = ?, file_source = ? WHERE id = ?",
		owner, sharedBy, nodeID, id,
	)
	if err != nil {
		return fmt.Errorf("reassigning share %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("share %d: %w", id, ErrNotFound)
	}
	return nil
}

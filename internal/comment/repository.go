package comment

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository provides CRUD operations for comments and read markers.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a comment repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Now returns the current time at the precision timestamps are stored with.
func (r *Repository) Now() time.Time {
	return r.now().UTC().Truncate(time.Second)
}

// ListOptions narrows ListForObject. A zero Limit means no limit; a nil
// Since keeps every comment.
type ListOptions struct {
	Limit  int
	Offset int
	Since  *time.Time
}

const commentColumns = `id, parent_id, topmost_parent_id, children_count, actor_type, actor_id,
	message, verb, creation_timestamp, latest_child_timestamp, object_type, object_id`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanComment(s scanner) (*Comment, error) {
	var c Comment
	var latest sql.NullTime
	err := s.Scan(&c.ID, &c.ParentID, &c.TopmostParentID, &c.ChildrenCount, &c.ActorType, &c.ActorID,
		&c.Message, &c.Verb, &c.CreatedAt, &latest, &c.ObjectType, &c.ObjectID)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	if latest.Valid {
		t := latest.Time.UTC()
		c.LatestChildAt = &t
	}
	return &c, nil
}

// Create stores a new comment. A zero CreatedAt is set to now and an empty
// verb becomes DefaultVerb. Replies update their parent's child bookkeeping.
func (r *Repository) Create(c *Comment) (*Comment, error) {
	if c.Verb == "" {
		c.Verb = DefaultVerb
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.Now()
	}
	c.CreatedAt = c.CreatedAt.UTC()

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	if c.ParentID != 0 {
		parent, err := scanComment(tx.QueryRow(
			fmt.Sprintf("SELECT %s FROM comments WHERE id = ?", commentColumns), c.ParentID,
		))
		if err != nil {
			rollback(tx)
			if err == sql.ErrNoRows {
				return nil, fmt.Errorf("parent %d: %w", c.ParentID, ErrNotFound)
			}
			return nil, fmt.Errorf("querying parent comment: %w", err)
		}
		c.TopmostParentID = parent.TopmostParentID
		if c.TopmostParentID == 0 {
			c.TopmostParentID = parent.ID
		}
	}

	result, err := tx.Exec(
		`INSERT INTO comments (parent_id, topmost_parent_id, actor_type, actor_id, message, verb,
			creation_timestamp, object_type, object_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ParentID, c.TopmostParentID, c.ActorType, c.ActorID, c.Message, c.Verb,
		c.CreatedAt, c.ObjectType, c.ObjectID,
	)
	if err != nil {
		rollback(tx)
		return nil, fmt.Errorf("inserting comment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		rollback(tx)
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	if c.ParentID != 0 {
		if err := updateChildren(tx, c.ParentID); err != nil {
			rollback(tx)
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing comment: %w", err)
	}

	return r.Get(id)
}

// updateChildren recomputes a comment's children count and latest child
// timestamp from its direct replies.
func updateChildren(tx *sql.Tx, parentID int64) error {
	_, err := tx.Exec(
		`UPDATE comments SET
			children_count = (SELECT COUNT(*) FROM comments WHERE parent_id = ?),
			latest_child_timestamp = (SELECT MAX(creation_timestamp) FROM comments WHERE parent_id = ?)
		WHERE id = ?`,
		parentID, parentID, parentID,
	)
	if err != nil {
		return fmt.Errorf("updating comment %d children: %w", parentID, err)
	}
	return nil
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		fmt.Printf("warning: rollback: %v\n", err)
	}
}

// Get returns a comment by ID.
func (r *Repository) Get(id int64) (*Comment, error) {
	c, err := scanComment(r.db.QueryRow(
		fmt.Sprintf("SELECT %s FROM comments WHERE id = ?", commentColumns), id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("comment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying comment %d: %w", id, err)
	}
	return c, nil
}

// ListForObject returns comments on an object, newest first.
func (r *Repository) ListForObject(objectType, objectID string, opts ListOptions) ([]*Comment, error) {
	query := fmt.Sprintf("SELECT %s FROM comments WHERE object_type = ? AND object_id = ?", commentColumns)
	args := []interface{}{objectType, objectID}

	if opts.Since != nil {
		query += " AND creation_timestamp > ?"
		args = append(args, opts.Since.UTC())
	}
	query += " ORDER BY creation_timestamp DESC, id DESC"

	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	} else if opts.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	var comments []*Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		comments = append(comments, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating comments: %w", err)
	}

	return comments, nil
}

// Update saves a comment's message and verb.
func (r *Repository) Update(c *Comment) error {
	if err := c.validate(); err != nil {
		return err
	}

	result, err := r.db.Exec("UPDATE comments SET message = ?, verb = ? WHERE id = ?", c.Message, c.Verb, c.ID)
	if err != nil {
		return fmt.Errorf("updating comment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("comment %d: %w", c.ID, ErrNotFound)
	}
	return nil
}

// Delete removes a comment by ID and refreshes its parent's bookkeeping.
func (r *Repository) Delete(id int64) error {
	c, err := r.Get(id)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM comments WHERE id = ?", id); err != nil {
		rollback(tx)
		return fmt.Errorf("deleting comment: %w", err)
	}
	if c.ParentID != 0 {
		if err := updateChildren(tx, c.ParentID); err != nil {
			rollback(tx)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

// ReadMark returns uid's read marker on an object, or nil if none is set.
func (r *Repository) ReadMark(uid, objectType, objectID string) (*time.Time, error) {
	var t time.Time
	err := r.db.QueryRow(
		"SELECT marker_datetime FROM comments_read_markers WHERE user_id = ? AND object_type = ? AND object_id = ?",
		uid, objectType, objectID,
	).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying read marker: %w", err)
	}
	t = t.UTC()
	return &t, nil
}

// SetReadMark stores uid's read marker on an object.
func (r *Repository) SetReadMark(uid, objectType, objectID string, at time.Time) error {
	if uid == "" {
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	_, err := r.db.Exec(
		`INSERT INTO comments_read_markers (user_id, object_type, object_id, marker_datetime)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, object_type, object_id) DO UPDATE SET marker_datetime = excluded.marker_datetime`,
		uid, objectType, objectID, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("setting read marker: %w", err)
	}
	return nil
}

// UnreadCount returns how many comments on an object uid has not read.
func (r *Repository) UnreadCount(uid, objectType, objectID string) (int, error) {
	marker, err := r.ReadMark(uid, objectType, objectID)
	if err != nil {
		return 0, err
	}

	query := "SELECT COUNT(*) FROM comments WHERE object_type = ? AND object_id = ?"
	args := []interface{}{objectType, objectID}
	if marker != nil {
		query += " AND creation_timestamp > ?"
		args = append(args, *marker)
	}

	var n int
	if err := r.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting unread comments: %w", err)
	}
	return n, nil
}

// Package comment provides the comment domain model and data access.
package comment

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength is the longest message, in characters, a comment may hold.
const MaxMessageLength = 1000

// DefaultVerb is the verb of plain comments.
const DefaultVerb = "comment"

// ActorTypeUsers marks comments written by local users.
const ActorTypeUsers = "users"

var (
	// ErrNotFound is returned for unknown comment ids.
	ErrNotFound = errors.New("comment not found")
	// ErrMessageTooLong is returned when a message exceeds MaxMessageLength.
	ErrMessageTooLong = fmt.Errorf("message exceeds allowed character limit of %d", MaxMessageLength)
	// ErrInvalidInput is returned for comments missing required fields.
	ErrInvalidInput = errors.New("invalid comment")
)

// Comment is a message attached to an object such as a file.
type Comment struct {
	ID              int64      `json:"id"`
	ParentID        int64      `json:"parent_id"`
	TopmostParentID int64      `json:"topmost_parent_id"`
	ChildrenCount   int        `json:"children_count"`
	ActorType       string     `json:"actor_type"`
	ActorID         string     `json:"actor_id"`
	Message         string     `json:"message"`
	Verb            string     `json:"verb"`
	CreatedAt       time.Time  `json:"creation_datetime"`
	LatestChildAt   *time.Time `json:"latest_child_datetime,omitempty"`
	ObjectType      string     `json:"object_type"`
	ObjectID        string     `json:"object_id"`
}

// SetMessage trims and stores msg, rejecting messages over MaxMessageLength.
func (c *Comment) SetMessage(msg string) error {
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return ErrMessageTooLong
	}
	c.Message = msg
	return nil
}

// IsAuthoredBy reports whether uid is the comment's actor.
func (c *Comment) IsAuthoredBy(uid string) bool {
	return uid != "" && c.ActorType == ActorTypeUsers && c.ActorID == uid
}

// IsUnread reports whether the comment is newer than marker. A missing
// marker means everything is unread.
func (c *Comment) IsUnread(marker *time.Time) bool {
	return marker == nil || c.CreatedAt.After(*marker)
}

// Mention is a reference to an actor inside a message.
type Mention struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

var mentionPattern = regexp.MustCompile(`(?:^|\s)@([A-Za-z0-9_\-@.']+)`)

// Mentions returns the distinct users mentioned with @uid, in order of
// first appearance.
func (c *Comment) Mentions() []Mention {
	var out []Mention
	seen := make(map[string]bool)
	for _, m := range mentionPattern.FindAllStringSubmatch(c.Message, -1) {
		id := strings.TrimRight(m[1], ".'")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Mention{Type: "user", ID: id})
	}
	return out
}

func (c *Comment) validate() error {
	switch {
	case c.ActorType == "" || c.ActorID == "":
		return fmt.Errorf("%w: actor is required", ErrInvalidInput)
	case c.ObjectType == "" || c.ObjectID == "":
		return fmt.Errorf("%w: object is required", ErrInvalidInput)
	case c.Message == "":
		return fmt.Errorf("%w: message is required", ErrInvalidInput)
	case utf8.RuneCountInString(c.Message) > MaxMessageLength:
		return ErrMessageTooLong
	}
	return nil
}

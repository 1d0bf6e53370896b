// Package dav exposes object comments and per-user read markers over a
// WebDAV style interface.
//
// Resources form a fixed tree: the root lists entity types, an entity type
// resolves entity ids, an entity holds comments.
package dav

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/evcraddock/sharebox/internal/comment"
)

// EntityExistsFunc reports whether uid may see entity id of a type.
type EntityExistsFunc func(uid, id string) (bool, error)

// RootCollection is the top of the comments tree.
type RootCollection struct {
	repo        *comment.Repository
	types       map[string]EntityExistsFunc
	displayName func(uid string) string
}

// NewRootCollection creates an empty comments tree. displayName resolves
// actor names and may be nil.
func NewRootCollection(repo *comment.Repository, displayName func(uid string) string) *RootCollection {
	if displayName == nil {
		displayName = func(uid string) string { return uid }
	}
	return &RootCollection{
		repo:        repo,
		types:       make(map[string]EntityExistsFunc),
		displayName: displayName,
	}
}

// RegisterEntityType makes comments on objects of name addressable.
func (r *RootCollection) RegisterEntityType(name string, exists EntityExistsFunc) {
	r.types[name] = exists
}

// EntityTypes returns the registered entity type names, sorted.
func (r *RootCollection) EntityTypes() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EntityType returns the collection for name as seen by uid.
func (r *RootCollection) EntityType(name, uid string) (*EntityTypeCollection, error) {
	if uid == "" {
		return nil, NotAuthenticated("No authenticated user")
	}
	exists, ok := r.types[name]
	if !ok {
		return nil, NotFound(fmt.Sprintf("Entity type %q not found", name))
	}
	return &EntityTypeCollection{name: name, uid: uid, exists: exists, root: r}, nil
}

// EntityTypeCollection resolves entity ids of one type.
type EntityTypeCollection struct {
	name   string
	uid    string
	exists EntityExistsFunc
	root   *RootCollection
}

// Name returns the entity type.
func (c *EntityTypeCollection) Name() string { return c.name }

// Entity returns the comments of entity id, provided the user can see it.
func (c *EntityTypeCollection) Entity(id string) (*EntityCollection, error) {
	ok, err := c.exists(c.uid, id)
	if err != nil {
		return nil, fmt.Errorf("checking entity %s/%s: %w", c.name, id, err)
	}
	if !ok {
		return nil, NotFound("Entity does not exist or user has no access")
	}
	return &EntityCollection{
		objectType: c.name,
		objectID:   id,
		uid:        c.uid,
		root:       c.root,
	}, nil
}

// Children is not supported; entity ids are not enumerable.
func (c *EntityTypeCollection) Children() error {
	return MethodNotAllowed("No permission to list folder contents")
}

// EntityCollection holds the comments of one object.
type EntityCollection struct {
	objectType string
	objectID   string
	uid        string
	root       *RootCollection

	marker       *time.Time
	markerLoaded bool
}

// ObjectType returns the entity type.
func (c *EntityCollection) ObjectType() string { return c.objectType }

// ObjectID returns the entity id.
func (c *EntityCollection) ObjectID() string { return c.objectID }

// FindChildren returns the object's comments, newest first. A zero limit
// means no limit; a non-nil since keeps only comments created after it.
func (c *EntityCollection) FindChildren(limit, offset int, since *time.Time) ([]*CommentNode, error) {
	comments, err := c.root.repo.ListForObject(c.objectType, c.objectID, comment.ListOptions{
		Limit:  limit,
		Offset: offset,
		Since:  since,
	})
	if err != nil {
		return nil, err
	}

	marker, err := c.ReadMarker()
	if err != nil {
		return nil, err
	}

	nodes := make([]*CommentNode, 0, len(comments))
	for _, cm := range comments {
		nodes = append(nodes, c.node(cm, marker))
	}
	return nodes, nil
}

// Child returns the comment named by its id.
func (c *EntityCollection) Child(name string) (*CommentNode, error) {
	id, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return nil, NotFound("Comment not found")
	}
	cm, err := c.root.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if cm.ObjectType != c.objectType || cm.ObjectID != c.objectID {
		return nil, NotFound("Comment not found")
	}

	marker, err := c.ReadMarker()
	if err != nil {
		return nil, err
	}
	return c.node(cm, marker), nil
}

func (c *EntityCollection) node(cm *comment.Comment, marker *time.Time) *CommentNode {
	return &CommentNode{Comment: cm, uid: c.uid, marker: marker, root: c.root}
}

// ReadMarker returns the current user's read marker, or nil if unset.
func (c *EntityCollection) ReadMarker() (*time.Time, error) {
	if c.markerLoaded {
		return c.marker, nil
	}
	if c.uid == "" {
		return nil, nil
	}
	marker, err := c.root.repo.ReadMark(c.uid, c.objectType, c.objectID)
	if err != nil {
		return nil, err
	}
	c.marker, c.markerLoaded = marker, true
	return marker, nil
}

// SetReadMarker marks the object read up to at, or up to now when at is nil.
func (c *EntityCollection) SetReadMarker(at *time.Time) error {
	if c.uid == "" {
		return Forbidden("No authenticated user")
	}
	t := c.root.repo.Now()
	if at != nil {
		t = at.UTC()
	}
	if err := c.root.repo.SetReadMark(c.uid, c.objectType, c.objectID, t); err != nil {
		return err
	}
	c.marker, c.markerLoaded = &t, true
	return nil
}

// CreateComment adds a comment by the current user.
func (c *EntityCollection) CreateComment(actorType, verb, message string) (*CommentNode, error) {
	if c.uid == "" {
		return nil, NotAuthenticated("No authenticated user")
	}
	if actorType != comment.ActorTypeUsers {
		return nil, BadRequest(fmt.Sprintf("Invalid actor %q", actorType))
	}

	cm := &comment.Comment{
		ActorType:  actorType,
		ActorID:    c.uid,
		Verb:       verb,
		ObjectType: c.objectType,
		ObjectID:   c.objectID,
	}
	if err := cm.SetMessage(message); err != nil {
		return nil, err
	}

	created, err := c.root.repo.Create(cm)
	if err != nil {
		return nil, err
	}

	marker, err := c.ReadMarker()
	if err != nil {
		return nil, err
	}
	return c.node(created, marker), nil
}

// UnreadCount returns how many comments the current user has not read.
func (c *EntityCollection) UnreadCount() (int, error) {
	if c.uid == "" {
		return 0, nil
	}
	n, err := c.root.repo.UnreadCount(c.uid, c.objectType, c.objectID)
	if err != nil {
		return 0, fmt.Errorf("counting unread comments: %w", err)
	}
	return n, nil
}

func (c *EntityCollection) properties() ([]prop, error) {
	marker, err := c.ReadMarker()
	if err != nil {
		return nil, err
	}
	readMarker := ""
	if marker != nil {
		readMarker = formatTime(*marker)
	}
	unread, err := c.UnreadCount()
	if err != nil {
		return nil, err
	}
	return []prop{
		collectionType(),
		textProp(propDisplayName, c.objectID),
		textProp(propReadMarker, readMarker),
		textProp(propCommentsUnread, strconv.Itoa(unread)),
	}, nil
}

// CommentNode is a single comment as seen by the current user.
type CommentNode struct {
	Comment *comment.Comment

	uid    string
	marker *time.Time
	root   *RootCollection
}

// Name returns the resource name of the comment.
func (n *CommentNode) Name() string {
	return strconv.FormatInt(n.Comment.ID, 10)
}

func (n *CommentNode) checkWriteAccess() error {
	if !n.Comment.IsAuthoredBy(n.uid) {
		return Forbidden("Only authors are allowed to edit their comment.")
	}
	return nil
}

// UpdateComment replaces the message. Only the author may do this.
func (n *CommentNode) UpdateComment(message string) error {
	if err := n.checkWriteAccess(); err != nil {
		return err
	}
	if err := n.Comment.SetMessage(message); err != nil {
		return err
	}
	return n.root.repo.Update(n.Comment)
}

// Delete removes the comment. Only the author may do this.
func (n *CommentNode) Delete() error {
	if err := n.checkWriteAccess(); err != nil {
		return err
	}
	return n.root.repo.Delete(n.Comment.ID)
}

// IsUnread reports whether the comment is newer than the user's marker.
func (n *CommentNode) IsUnread() bool {
	return n.Comment.IsUnread(n.marker)
}

func (n *CommentNode) properties() []prop {
	c := n.Comment

	latest := ""
	if c.LatestChildAt != nil {
		latest = formatTime(*c.LatestChildAt)
	}
	actorName := c.ActorID
	if c.ActorType == comment.ActorTypeUsers {
		actorName = n.root.displayName(c.ActorID)
	}

	return []prop{
		textProp(propResourceType, ""),
		textProp(propID, strconv.FormatInt(c.ID, 10)),
		textProp(propParentID, strconv.FormatInt(c.ParentID, 10)),
		textProp(propTopmostParentID, strconv.FormatInt(c.TopmostParentID, 10)),
		textProp(propChildrenCount, strconv.Itoa(c.ChildrenCount)),
		textProp(propVerb, c.Verb),
		textProp(propMessage, c.Message),
		textProp(propActorType, c.ActorType),
		textProp(propActorID, c.ActorID),
		textProp(propActorDisplayName, actorName),
		textProp(propCreationDateTime, formatTime(c.CreatedAt)),
		textProp(propLatestChildDateTime, latest),
		textProp(propObjectType, c.ObjectType),
		textProp(propObjectID, c.ObjectID),
		n.mentionsProp(),
		textProp(propIsUnread, strconv.FormatBool(n.IsUnread())),
	}
}

type mentionXML struct {
	XMLName     xml.Name `xml:"oc:mention"`
	Type        string   `xml:"oc:mentionType"`
	ID          string   `xml:"oc:mentionId"`
	DisplayName string   `xml:"oc:mentionDisplayName"`
}

func (n *CommentNode) mentionsProp() prop {
	mentions := n.Comment.Mentions()
	list := make([]mentionXML, 0, len(mentions))
	for _, m := range mentions {
		list = append(list, mentionXML{Type: m.Type, ID: m.ID, DisplayName: n.root.displayName(m.ID)})
	}
	inner, err := xml.Marshal(list)
	if err != nil {
		return prop{Name: propMentions}
	}
	return prop{Name: propMentions, Inner: inner}
}

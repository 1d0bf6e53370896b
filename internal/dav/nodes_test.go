package dav

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evcraddock/sharebox/internal/comment"
	"github.com/evcraddock/sharebox/internal/db"
)

func testRoot(t *testing.T) (*RootCollection, *comment.Repository) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if cerr := d.Close(); cerr != nil {
			t.Errorf("close db: %v", cerr)
		}
	})

	repo := comment.NewRepository(d)
	root := NewRootCollection(repo, func(uid string) string { return strings.ToUpper(uid) })
	// Everyone sees object 42; only alice sees 7.
	root.RegisterEntityType("files", func(uid, id string) (bool, error) {
		return id == "42" || (id == "7" && uid == "alice"), nil
	})
	return root, repo
}

func entityFor(t *testing.T, root *RootCollection, uid, id string) *EntityCollection {
	t.Helper()
	et, err := root.EntityType("files", uid)
	if err != nil {
		t.Fatalf("entity type: %v", err)
	}
	e, err := et.Entity(id)
	if err != nil {
		t.Fatalf("entity: %v", err)
	}
	return e
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	var de *Error
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want dav error with status %d", err, status)
	}
	if de.Status != status {
		t.Errorf("status = %d, want %d (%v)", de.Status, status, de)
	}
}

func TestEntityTypeLookup(t *testing.T) {
	root, _ := testRoot(t)

	if got := root.EntityTypes(); len(got) != 1 || got[0] != "files" {
		t.Errorf("types = %v", got)
	}

	_, err := root.EntityType("files", "")
	assertStatus(t, err, http.StatusUnauthorized)

	_, err = root.EntityType("deck", "alice")
	assertStatus(t, err, http.StatusNotFound)

	et, err := root.EntityType("files", "bob")
	if err != nil {
		t.Fatalf("entity type: %v", err)
	}
	_, err = et.Entity("7")
	assertStatus(t, err, http.StatusNotFound)
	assertStatus(t, et.Children(), http.StatusMethodNotAllowed)
}

func TestFindChildren(t *testing.T) {
	root, repo := testRoot(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, err := repo.Create(&comment.Comment{
			ActorType: comment.ActorTypeUsers, ActorID: "bob", Message: "m",
			ObjectType: "files", ObjectID: "42", CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := repo.Create(&comment.Comment{
		ActorType: comment.ActorTypeUsers, ActorID: "bob", Message: "m",
		ObjectType: "files", ObjectID: "7", CreatedAt: base,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	e := entityFor(t, root, "alice", "42")

	all, err := e.FindChildren(0, 0, nil)
	if err != nil {
		t.Fatalf("find children: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("got %d comments, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Comment.CreatedAt.After(all[i-1].Comment.CreatedAt) {
			t.Error("comments are not newest first")
		}
	}
	for _, n := range all {
		if n.Comment.ObjectID != "42" {
			t.Errorf("comment %d belongs to object %s", n.Comment.ID, n.Comment.ObjectID)
		}
		if !n.IsUnread() {
			t.Error("expected unread without a marker")
		}
	}

	page, err := e.FindChildren(2, 1, nil)
	if err != nil {
		t.Fatalf("find children: %v", err)
	}
	if len(page) != 2 || page[0].Comment.ID != all[1].Comment.ID {
		t.Errorf("unexpected page")
	}

	since := base.Add(time.Hour)
	recent, err := e.FindChildren(0, 0, &since)
	if err != nil {
		t.Fatalf("find children: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("got %d comments since %v, want 2", len(recent), since)
	}
}

func TestSetReadMarker(t *testing.T) {
	root, repo := testRoot(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := repo.Create(&comment.Comment{
			ActorType: comment.ActorTypeUsers, ActorID: "bob", Message: "m",
			ObjectType: "files", ObjectID: "42", CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	e := entityFor(t, root, "alice", "42")
	marker := base.Add(time.Hour)
	if err := e.SetReadMarker(&marker); err != nil {
		t.Fatalf("set read marker: %v", err)
	}

	got, err := e.ReadMarker()
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if got == nil || !got.Equal(marker) {
		t.Fatalf("marker = %v, want %v", got, marker)
	}

	// A fresh view sees the stored marker
	nodes, err := entityFor(t, root, "alice", "42").FindChildren(0, 0, nil)
	if err != nil {
		t.Fatalf("find children: %v", err)
	}
	unread := 0
	for _, n := range nodes {
		if n.IsUnread() {
			unread++
		}
		if !n.Comment.CreatedAt.After(marker) && n.IsUnread() {
			t.Errorf("comment at %v should be read", n.Comment.CreatedAt)
		}
	}
	if unread != 1 {
		t.Errorf("unread = %d, want 1", unread)
	}
	count, err := e.UnreadCount()
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 1 {
		t.Errorf("unread count = %d, want 1", count)
	}
	if count, _ := entityFor(t, root, "bob", "42").UnreadCount(); count != 3 {
		t.Errorf("unread count without marker = %d, want 3", count)
	}

	// nil means now
	if err := e.SetReadMarker(nil); err != nil {
		t.Fatalf("set read marker now: %v", err)
	}
	got, err = e.ReadMarker()
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if got == nil || time.Since(*got) > time.Minute {
		t.Errorf("marker = %v, want about now", got)
	}

	anonymous := &EntityCollection{objectType: "files", objectID: "42", root: root}
	assertStatus(t, anonymous.SetReadMarker(nil), http.StatusForbidden)
}

func TestUpdateComment(t *testing.T) {
	root, _ := testRoot(t)

	n, err := entityFor(t, root, "alice", "42").CreateComment(comment.ActorTypeUsers, "", "first")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n.Comment.Verb != comment.DefaultVerb {
		t.Errorf("verb = %q", n.Comment.Verb)
	}

	tests := []struct {
		name    string
		uid     string
		message string
		status  int
	}{
		{"other user", "bob", "hijack", http.StatusForbidden},
		{"too long", "alice", strings.Repeat("x", comment.MaxMessageLength+1), http.StatusBadRequest},
		{"author", "alice", "edited", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := entityFor(t, root, tt.uid, "42").Child(n.Name())
			if err != nil {
				t.Fatalf("child: %v", err)
			}
			err = node.UpdateComment(tt.message)
			if tt.status == 0 {
				if err != nil {
					t.Fatalf("update: %v", err)
				}
				return
			}
			var de *Error
			if errors.As(err, &de) {
				assertStatus(t, err, tt.status)
				return
			}
			if got := toError(err).Status; got != tt.status {
				t.Errorf("status = %d, want %d (%v)", got, tt.status, err)
			}
		})
	}

	node, err := entityFor(t, root, "bob", "42").Child(n.Name())
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	if node.Comment.Message != "edited" {
		t.Errorf("message = %q, want edited", node.Comment.Message)
	}
	assertStatus(t, node.Delete(), http.StatusForbidden)
}

func TestChildWrongObject(t *testing.T) {
	root, _ := testRoot(t)

	n, err := entityFor(t, root, "alice", "7").CreateComment(comment.ActorTypeUsers, "comment", "hidden")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = entityFor(t, root, "alice", "42").Child(n.Name())
	assertStatus(t, err, http.StatusNotFound)

	_, err = entityFor(t, root, "alice", "42").Child("abc")
	assertStatus(t, err, http.StatusNotFound)
}

func TestCreateCommentInvalidActor(t *testing.T) {
	root, _ := testRoot(t)
	_, err := entityFor(t, root, "alice", "42").CreateComment("guests", "comment", "hi")
	assertStatus(t, err, http.StatusBadRequest)
}

func TestCommentProperties(t *testing.T) {
	root, _ := testRoot(t)
	n, err := entityFor(t, root, "alice", "42").CreateComment(comment.ActorTypeUsers, "comment", "hi @bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	props := make(map[string]prop)
	for _, p := range n.properties() {
		props[p.Name] = p
	}

	checks := map[string]string{
		propMessage:          "hi @bob",
		propActorID:          "alice",
		propActorDisplayName: "ALICE",
		propObjectType:       "files",
		propObjectID:         "42",
		propIsUnread:         "true",
		propParentID:         "0",
	}
	for name, want := range checks {
		if got := props[name].Value; got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if !strings.Contains(string(props[propMentions].Inner), "<oc:mentionId>bob</oc:mentionId>") {
		t.Errorf("mentions = %s", props[propMentions].Inner)
	}
}

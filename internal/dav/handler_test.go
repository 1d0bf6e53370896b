package dav

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/evcraddock/sharebox/internal/auth"
	"github.com/evcraddock/sharebox/internal/comment"
)

const basePath = "/remote.php/dav/comments"

func testServer(t *testing.T) (http.Handler, *comment.Repository) {
	t.Helper()
	root, repo := testRoot(t)
	mux := chi.NewRouter()
	mux.Mount(basePath, NewHandler(root, basePath))
	return mux, repo
}

func do(h http.Handler, method, path, uid, contentType, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	if uid != "" {
		r = r.WithContext(auth.WithUser(r.Context(), uid))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func countComments(t *testing.T, repo *comment.Repository) int {
	t.Helper()
	list, err := repo.ListForObject("files", "42", comment.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return len(list)
}

func TestPostComment(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		uid         string
		contentType string
		body        string
		wantCode    int
		wantCreated bool
	}{
		{
			name:        "created",
			path:        basePath + "/files/42",
			uid:         "alice",
			contentType: "application/json",
			body:        `{"actorType":"users","verb":"comment","message":"hello"}`,
			wantCode:    http.StatusCreated,
			wantCreated: true,
		},
		{
			name:        "content type parameters ignored",
			path:        basePath + "/files/42/",
			uid:         "alice",
			contentType: "application/json; charset=utf-8",
			body:        `{"actorType":"users","verb":"comment","message":"hello"}`,
			wantCode:    http.StatusCreated,
			wantCreated: true,
		},
		{
			name:        "wrong content type",
			path:        basePath + "/files/42",
			uid:         "alice",
			contentType: "text/plain",
			body:        `{"actorType":"users","verb":"comment","message":"hello"}`,
			wantCode:    http.StatusUnsupportedMediaType,
		},
		{
			name:        "form body",
			path:        basePath + "/files/42",
			uid:         "alice",
			contentType: "application/x-www-form-urlencoded",
			body:        "message=hello",
			wantCode:    http.StatusUnsupportedMediaType,
		},
		{
			name:        "invalid actor",
			path:        basePath + "/files/42",
			uid:         "alice",
			contentType: "application/json",
			body:        `{"actorType":"robots","verb":"comment","message":"hello"}`,
			wantCode:    http.StatusBadRequest,
		},
		{
			name:        "message too long",
			path:        basePath + "/files/42",
			uid:         "alice",
			contentType: "application/json",
			body:        `{"actorType":"users","verb":"comment","message":"` + strings.Repeat("a", comment.MaxMessageLength+1) + `"}`,
			wantCode:    http.StatusBadRequest,
		},
		{
			name:        "no access to entity",
			path:        basePath + "/files/7",
			uid:         "bob",
			contentType: "application/json",
			body:        `{"actorType":"users","verb":"comment","message":"hello"}`,
			wantCode:    http.StatusNotFound,
		},
		{
			name:        "unknown entity type",
			path:        basePath + "/deck/42",
			uid:         "alice",
			contentType: "application/json",
			body:        `{"actorType":"users","verb":"comment","message":"hello"}`,
			wantCode:    http.StatusNotFound,
		},
		{
			name:        "anonymous",
			path:        basePath + "/files/42",
			contentType: "application/json",
			body:        `{"actorType":"users","verb":"comment","message":"hello"}`,
			wantCode:    http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, repo := testServer(t)
			w := do(h, http.MethodPost, tt.path, tt.uid, tt.contentType, tt.body)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}

			n := countComments(t, repo)
			if tt.wantCreated {
				if n != 1 {
					t.Errorf("comments = %d, want 1", n)
				}
				loc := w.Header().Get("Content-Location")
				if !strings.HasPrefix(loc, basePath+"/files/42/") {
					t.Errorf("Content-Location = %q", loc)
				}
				return
			}
			if n != 0 {
				t.Errorf("comments = %d, want none created", n)
			}
			if !strings.Contains(w.Body.String(), "<d:error") {
				t.Errorf("expected error body, got %s", w.Body.String())
			}
		})
	}
}

func TestUnsupportedMediaTypeBody(t *testing.T) {
	h, _ := testServer(t)
	w := do(h, http.MethodPost, basePath+"/files/42", "alice", "text/xml", "<x/>")

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<s:exception>UnsupportedMediaType</s:exception>") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func createVia(t *testing.T, h http.Handler, uid, message string) string {
	t.Helper()
	w := do(h, http.MethodPost, basePath+"/files/42", uid, "application/json",
		`{"actorType":"users","verb":"comment","message":"`+message+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d: %s", w.Code, w.Body.String())
	}
	return w.Header().Get("Content-Location")
}

func TestReportFilterComments(t *testing.T) {
	h, _ := testServer(t)
	for _, m := range []string{"one", "two", "three"} {
		createVia(t, h, "alice", m)
	}

	body := `<?xml version="1.0" encoding="utf-8" ?>
<oc:filter-comments xmlns:oc="http://owncloud.org/ns">
  <oc:limit>2</oc:limit>
  <oc:offset>0</oc:offset>
</oc:filter-comments>`
	w := do(h, "REPORT", basePath+"/files/42", "alice", "application/xml", body)

	if w.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	out := w.Body.String()
	if got := strings.Count(out, "<d:response>"); got != 2 {
		t.Errorf("responses = %d, want 2:\n%s", got, out)
	}
	if !strings.Contains(out, "<oc:message>three</oc:message>") || strings.Contains(out, "<oc:message>one</oc:message>") {
		t.Errorf("expected the two newest comments:\n%s", out)
	}
	if !strings.Contains(out, "<oc:isUnread>true</oc:isUnread>") {
		t.Errorf("expected unread flag:\n%s", out)
	}
}

func TestReportUnsupported(t *testing.T) {
	h, _ := testServer(t)
	body := `<d:sync-collection xmlns:d="DAV:"/>`
	w := do(h, "REPORT", basePath+"/files/42", "alice", "application/xml", body)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", w.Code)
	}
}

func TestProppatchReadMarker(t *testing.T) {
	h, _ := testServer(t)
	createVia(t, h, "bob", "hello")

	body := `<?xml version="1.0"?>
<d:propertyupdate xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns">
  <d:set><d:prop><oc:readMarker>Thu, 01 Jan 2099 00:00:00 GMT</oc:readMarker></d:prop></d:set>
</d:propertyupdate>`
	w := do(h, "PROPFIND", basePath+"/files/42", "alice", "", "")
	if !strings.Contains(w.Body.String(), "<oc:comments-unread>1</oc:comments-unread>") {
		t.Errorf("expected one unread comment:\n%s", w.Body.String())
	}

	w = do(h, "PROPPATCH", basePath+"/files/42", "alice", "application/xml", body)
	if w.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "HTTP/1.1 200 OK") {
		t.Errorf("body = %s", w.Body.String())
	}

	report := `<oc:filter-comments xmlns:oc="http://owncloud.org/ns"/>`
	w = do(h, "REPORT", basePath+"/files/42", "alice", "application/xml", report)
	if !strings.Contains(w.Body.String(), "<oc:isUnread>false</oc:isUnread>") {
		t.Errorf("expected comment to be read:\n%s", w.Body.String())
	}

	w = do(h, "PROPFIND", basePath+"/files/42", "alice", "", "")
	if !strings.Contains(w.Body.String(), "<oc:readMarker>Thu, 01 Jan 2099 00:00:00 GMT</oc:readMarker>") {
		t.Errorf("propfind = %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "<oc:comments-unread>0</oc:comments-unread>") {
		t.Errorf("expected no unread comments:\n%s", w.Body.String())
	}
}

func TestProppatchUnknownProperty(t *testing.T) {
	h, _ := testServer(t)
	body := `<d:propertyupdate xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns">
  <d:set><d:prop><oc:readMarker></oc:readMarker><oc:color>red</oc:color></d:prop></d:set>
</d:propertyupdate>`
	w := do(h, "PROPPATCH", basePath+"/files/42", "alice", "application/xml", body)
	if w.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d", w.Code)
	}
	out := w.Body.String()
	if !strings.Contains(out, "403 Forbidden") || !strings.Contains(out, "424 Failed Dependency") {
		t.Errorf("body = %s", out)
	}
}

func TestProppatchCommentMessage(t *testing.T) {
	h, _ := testServer(t)
	loc := createVia(t, h, "alice", "before")

	patch := func(uid string) *httptest.ResponseRecorder {
		body := `<d:propertyupdate xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns">
  <d:set><d:prop><oc:message>after</oc:message></d:prop></d:set>
</d:propertyupdate>`
		return do(h, "PROPPATCH", loc, uid, "application/xml", body)
	}

	w := patch("bob")
	if w.Code != http.StatusForbidden {
		t.Fatalf("bob: status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Only authors are allowed to edit their comment.") {
		t.Errorf("body = %s", w.Body.String())
	}

	w = patch("alice")
	if w.Code != http.StatusMultiStatus {
		t.Fatalf("alice: status = %d: %s", w.Code, w.Body.String())
	}

	w = do(h, "PROPFIND", loc, "bob", "", "")
	if !strings.Contains(w.Body.String(), "<oc:message>after</oc:message>") {
		t.Errorf("propfind = %s", w.Body.String())
	}
}

func TestDeleteComment(t *testing.T) {
	h, repo := testServer(t)
	loc := createVia(t, h, "alice", "bye")

	if w := do(h, http.MethodDelete, loc, "bob", "", ""); w.Code != http.StatusForbidden {
		t.Errorf("bob delete: status = %d", w.Code)
	}
	if w := do(h, http.MethodDelete, loc, "alice", "", ""); w.Code != http.StatusNoContent {
		t.Errorf("alice delete: status = %d", w.Code)
	}
	if n := countComments(t, repo); n != 0 {
		t.Errorf("comments = %d, want 0", n)
	}
	if w := do(h, "PROPFIND", loc, "alice", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("propfind deleted: status = %d", w.Code)
	}
}

func TestPropfindCollections(t *testing.T) {
	h, _ := testServer(t)
	createVia(t, h, "alice", "hello")

	tests := []struct {
		name     string
		path     string
		depth    string
		wantCode int
		contains string
	}{
		{"root lists types", basePath + "/", "1", http.StatusMultiStatus, "<d:href>" + basePath + "/files/</d:href>"},
		{"type depth 0", basePath + "/files", "0", http.StatusMultiStatus, "<d:collection/>"},
		{"type children not listable", basePath + "/files", "1", http.StatusMethodNotAllowed, "MethodNotAllowed"},
		{"entity lists comments", basePath + "/files/42", "1", http.StatusMultiStatus, "<oc:message>hello</oc:message>"},
		{"missing comment", basePath + "/files/42/999", "0", http.StatusNotFound, "NotFound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("PROPFIND", tt.path, nil)
			r.Header.Set("Depth", tt.depth)
			r = r.WithContext(auth.WithUser(r.Context(), "alice"))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body missing %q:\n%s", tt.contains, w.Body.String())
			}
		})
	}
}

func TestPropfindRequestedProps(t *testing.T) {
	h, _ := testServer(t)
	loc := createVia(t, h, "alice", "hello")

	body := `<d:propfind xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns">
  <d:prop><oc:message/><oc:nonsense/></d:prop>
</d:propfind>`
	w := do(h, "PROPFIND", loc, "alice", "application/xml", body)
	out := w.Body.String()
	if !strings.Contains(out, "<oc:message>hello</oc:message>") {
		t.Errorf("missing message:\n%s", out)
	}
	if strings.Contains(out, "<oc:actorId>") {
		t.Errorf("unrequested property returned:\n%s", out)
	}
	if !strings.Contains(out, "404 Not Found") {
		t.Errorf("missing 404 propstat:\n%s", out)
	}
}

func TestMethodNotAllowedOnCollections(t *testing.T) {
	h, _ := testServer(t)
	w := do(h, http.MethodPut, basePath+"/files/42", "alice", "text/plain", "x")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

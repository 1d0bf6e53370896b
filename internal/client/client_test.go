package client

import (
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reportResponse = `<?xml version="1.0" encoding="UTF-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns">
  <d:response>
    <d:href>/remote.php/dav/comments/files/42/7</d:href>
    <d:propstat>
      <d:prop>
        <oc:id>7</oc:id>
        <oc:parentId>0</oc:parentId>
        <oc:actorType>users</oc:actorType>
        <oc:actorId>alice</oc:actorId>
        <oc:actorDisplayName>Alice</oc:actorDisplayName>
        <oc:message>hi @bob</oc:message>
        <oc:verb>comment</oc:verb>
        <oc:creationDateTime>Mon, 02 Mar 2026 10:00:00 GMT</oc:creationDateTime>
        <oc:isUnread>true</oc:isUnread>
        <oc:mentions>
          <oc:mention>
            <oc:mentionType>user</oc:mentionType>
            <oc:mentionId>bob</oc:mentionId>
            <oc:mentionDisplayName>Bob</oc:mentionDisplayName>
          </oc:mention>
        </oc:mentions>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status.php", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"installed": true, "version": "1.2.3", "productname": "sharebox"}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer srv.Close()

	s, err := New(srv.URL, "", "").Status()
	require.NoError(t, err)
	assert.True(t, s.Installed)
	assert.Equal(t, "1.2.3", s.Version)
}

func TestListComments(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "REPORT", r.Method)
		assert.Equal(t, "/remote.php/dav/comments/files/42", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", pass)

		var report struct {
			XMLName  xml.Name `xml:"http://owncloud.org/ns filter-comments"`
			Limit    int      `xml:"http://owncloud.org/ns limit"`
			Offset   int      `xml:"http://owncloud.org/ns offset"`
			Datetime string   `xml:"http://owncloud.org/ns datetime"`
		}
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, xml.Unmarshal(body, &report))
		assert.Equal(t, 5, report.Limit)
		assert.Equal(t, 10, report.Offset)
		assert.Equal(t, "Sun, 01 Mar 2026 00:00:00 GMT", report.Datetime)

		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(reportResponse))
	}))
	defer srv.Close()

	c := New(srv.URL, "alice", "secret")
	comments, err := c.ListComments(42, ListOptions{Limit: 5, Offset: 10, Since: &since})
	require.NoError(t, err)
	require.Len(t, comments, 1)

	cm := comments[0]
	assert.Equal(t, int64(7), cm.ID)
	assert.Equal(t, "alice", cm.ActorID)
	assert.Equal(t, "Alice", cm.ActorDisplayName)
	assert.Equal(t, "hi @bob", cm.Message)
	assert.True(t, cm.IsUnread)
	assert.Equal(t, []string{"bob"}, cm.Mentions)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), cm.CreatedAt)
}

func TestListCommentsOmitsUnsetPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NotContains(t, string(body), "limit")
		assert.NotContains(t, string(body), "datetime")
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(`<d:multistatus xmlns:d="DAV:"/>`))
	}))
	defer srv.Close()

	comments, err := New(srv.URL, "alice", "secret").ListComments(1, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestAddComment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/remote.php/dav/comments/files/42", r.URL.Path)

		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "users", req["actorType"])
		assert.Equal(t, "comment", req["verb"])
		assert.Equal(t, "looks good", req["message"])

		w.Header().Set("Content-Location", "/remote.php/dav/comments/files/42/9")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	loc, err := New(srv.URL, "alice", "secret").AddComment(42, "looks good")
	require.NoError(t, err)
	assert.Equal(t, "/remote.php/dav/comments/files/42/9", loc)
}

func TestMarkRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PROPPATCH", r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<oc:readMarker>")
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(`<d:multistatus xmlns:d="DAV:"><d:response><d:propstat><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response></d:multistatus>`))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "alice", "secret").MarkRead(42))
}

func TestDAVErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<d:error xmlns:d="DAV:" xmlns:s="http://sabredav.org/ns">
  <s:exception>NotFound</s:exception>
  <s:message>Entity does not exist or is not available</s:message>
</d:error>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "alice", "secret").AddComment(1, "x")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Entity does not exist"), err.Error())
}

func TestPlainServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", "").Status()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Internal Server Error")
}

func TestCheckAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocs/v2.php/apps/files_sharing/api/v1/shares", r.URL.Path)
		user, pass, _ := r.BasicAuth()
		if user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ocs":{"meta":{"status":"ok","statuscode":200},"data":[]}}`))
	}))
	defer srv.Close()

	assert.NoError(t, New(srv.URL, "alice", "secret").CheckAuth())
	assert.ErrorIs(t, New(srv.URL, "alice", "wrong").CheckAuth(), ErrUnauthorized)
}

// Package client provides an HTTP client for a running sharebox server.
package client

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	commentsPath = "/remote.php/dav/comments/files"
	sharesPath   = "/ocs/v2.php/apps/files_sharing/api/v1/shares"
)

// ErrUnauthorized is returned when the server rejects the credentials.
var ErrUnauthorized = errors.New("invalid user or app password")

// Client talks to a sharebox server with a user's app password.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, user, password string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		user:       user,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Status is the server status document.
type Status struct {
	Installed   bool   `json:"installed"`
	Maintenance bool   `json:"maintenance"`
	Version     string `json:"version"`
	ProductName string `json:"productname"`
}

// Status fetches /status.php. It needs no credentials.
func (c *Client) Status() (*Status, error) {
	req, err := http.NewRequest("GET", c.baseURL+"/status.php", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	body, _, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var s Status
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return &s, nil
}

// CheckAuth verifies the credentials against an authenticated endpoint.
func (c *Client) CheckAuth() error {
	req, err := http.NewRequest("GET", c.baseURL+sharesPath, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	_, _, err = c.do(req)
	return err
}

// Comment is a comment as listed by the server.
type Comment struct {
	ID               int64
	ParentID         int64
	ActorType        string
	ActorID          string
	ActorDisplayName string
	Message          string
	Verb             string
	CreatedAt        time.Time
	IsUnread         bool
	Mentions         []string
}

// ListOptions controls ListComments paging.
type ListOptions struct {
	Limit  int
	Offset int
	Since  *time.Time
}

type filterComments struct {
	XMLName  xml.Name `xml:"oc:filter-comments"`
	XmlnsOC  string   `xml:"xmlns:oc,attr"`
	Limit    int      `xml:"oc:limit,omitempty"`
	Offset   int      `xml:"oc:offset,omitempty"`
	Datetime string   `xml:"oc:datetime,omitempty"`
}

type multistatus struct {
	Responses []struct {
		Href      string `xml:"DAV: href"`
		Propstats []struct {
			Status string      `xml:"DAV: status"`
			Prop   commentProp `xml:"DAV: prop"`
		} `xml:"DAV: propstat"`
	} `xml:"DAV: response"`
}

type commentProp struct {
	ID               string `xml:"http://owncloud.org/ns id"`
	ParentID         string `xml:"http://owncloud.org/ns parentId"`
	ActorType        string `xml:"http://owncloud.org/ns actorType"`
	ActorID          string `xml:"http://owncloud.org/ns actorId"`
	ActorDisplayName string `xml:"http://owncloud.org/ns actorDisplayName"`
	Message          string `xml:"http://owncloud.org/ns message"`
	Verb             string `xml:"http://owncloud.org/ns verb"`
	CreationDateTime string `xml:"http://owncloud.org/ns creationDateTime"`
	IsUnread         string `xml:"http://owncloud.org/ns isUnread"`
	Mentions         []struct {
		ID string `xml:"http://owncloud.org/ns mentionId"`
	} `xml:"http://owncloud.org/ns mentions>mention"`
}

// ListComments returns the comments on a file, newest first.
func (c *Client) ListComments(fileID int64, opts ListOptions) ([]Comment, error) {
	report := filterComments{XmlnsOC: "http://owncloud.org/ns", Limit: opts.Limit, Offset: opts.Offset}
	if opts.Since != nil {
		report.Datetime = opts.Since.UTC().Format(http.TimeFormat)
	}
	data, err := xml.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}

	req, err := http.NewRequest("REPORT", c.fileURL(fileID), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	body, _, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("decoding multistatus: %w", err)
	}

	comments := make([]Comment, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		for _, ps := range resp.Propstats {
			if !strings.Contains(ps.Status, " 200 ") {
				continue
			}
			cm, err := ps.Prop.comment()
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", resp.Href, err)
			}
			comments = append(comments, cm)
		}
	}
	return comments, nil
}

func (p commentProp) comment() (Comment, error) {
	id, err := strconv.ParseInt(p.ID, 10, 64)
	if err != nil {
		return Comment{}, fmt.Errorf("invalid id %q", p.ID)
	}
	parent, _ := strconv.ParseInt(p.ParentID, 10, 64)
	created, err := http.ParseTime(p.CreationDateTime)
	if err != nil {
		return Comment{}, fmt.Errorf("invalid creation time %q", p.CreationDateTime)
	}

	cm := Comment{
		ID:               id,
		ParentID:         parent,
		ActorType:        p.ActorType,
		ActorID:          p.ActorID,
		ActorDisplayName: p.ActorDisplayName,
		Message:          p.Message,
		Verb:             p.Verb,
		CreatedAt:        created.UTC(),
		IsUnread:         p.IsUnread == "true",
	}
	for _, m := range p.Mentions {
		cm.Mentions = append(cm.Mentions, m.ID)
	}
	return cm, nil
}

// AddComment posts a comment on a file and returns its URL.
func (c *Client) AddComment(fileID int64, message string) (string, error) {
	data, err := json.Marshal(map[string]string{
		"actorType": "users",
		"verb":      "comment",
		"message":   message,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequest("POST", c.fileURL(fileID), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, header, err := c.do(req)
	if err != nil {
		return "", err
	}
	return header.Get("Content-Location"), nil
}

// MarkRead sets the read marker of a file's comments to now.
func (c *Client) MarkRead(fileID int64) error {
	body := `<?xml version="1.0" encoding="utf-8"?>
<d:propertyupdate xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns">
  <d:set><d:prop><oc:readMarker>` + time.Now().UTC().Format(http.TimeFormat) + `</oc:readMarker></d:prop></d:set>
</d:propertyupdate>`

	req, err := http.NewRequest("PROPPATCH", c.fileURL(fileID), strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	respBody, _, err := c.do(req)
	if err != nil {
		return err
	}
	if bytes.Contains(respBody, []byte("HTTP/1.1 4")) {
		return fmt.Errorf("server rejected read marker")
	}
	return nil
}

func (c *Client) fileURL(fileID int64) string {
	return fmt.Sprintf("%s%s/%d", c.baseURL, commentsPath, fileID)
}

// davError is the body of a failed DAV request.
type davError struct {
	Exception string `xml:"http://sabredav.org/ns exception"`
	Message   string `xml:"http://sabredav.org/ns message"`
}

// do executes an HTTP request with credentials and handles errors.
func (c *Client) do(req *http.Request) ([]byte, http.Header, error) {
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			fmt.Printf("warning: closing response body: %v\n", cerr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, nil, ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		var de davError
		if xml.Unmarshal(respBody, &de) == nil && de.Message != "" {
			return nil, nil, fmt.Errorf("%s (%d)", de.Message, resp.StatusCode)
		}
		return nil, nil, fmt.Errorf("server error: %s", http.StatusText(resp.StatusCode))
	}

	return respBody, resp.Header, nil
}

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/evcraddock/sharebox/internal/auth"
	"github.com/evcraddock/sharebox/internal/files"
	"github.com/evcraddock/sharebox/internal/share"
)

var validate = validator.New()

type ocsMeta struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statuscode"`
	Message    string `json:"message"`
}

type ocsBody struct {
	Meta ocsMeta     `json:"meta"`
	Data interface{} `json:"data"`
}

type ocsEnvelope struct {
	OCS ocsBody `json:"ocs"`
}

// apiError writes an OCS failure response.
func apiError(w http.ResponseWriter, msg string, code int) {
	writeOCS(w, ocsMeta{Status: "failure", StatusCode: code, Message: msg}, []string{}, code)
}

// apiJSON writes an OCS success response with the given status code.
func apiJSON(w http.ResponseWriter, data interface{}, code int) {
	writeOCS(w, ocsMeta{Status: "ok", StatusCode: code, Message: "OK"}, data, code)
}

func writeOCS(w http.ResponseWriter, meta ocsMeta, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ocsEnvelope{OCS: ocsBody{Meta: meta, Data: data}}); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// shareResponse is the API form of a share.
type shareResponse struct {
	ID                   int64   `json:"id"`
	ShareType            int     `json:"share_type"`
	UIDOwner             string  `json:"uid_owner"`
	DisplaynameOwner     string  `json:"displayname_owner"`
	UIDFileOwner         string  `json:"uid_file_owner"`
	Permissions          int     `json:"permissions"`
	STime                int64   `json:"stime"`
	Expiration           *string `json:"expiration"`
	Token                *string `json:"token"`
	Path                 string  `json:"path"`
	ItemType             string  `json:"item_type"`
	Mimetype             string  `json:"mimetype"`
	FileSource           int64   `json:"file_source"`
	FileTarget           string  `json:"file_target"`
	ShareWith            *string `json:"share_with"`
	ShareWithDisplayname *string `json:"share_with_displayname"`
	Note                 string  `json:"note"`
}

const expirationLayout = "2006-01-02 15:04:05"

func (s *Server) toResponse(sh *share.Share) shareResponse {
	resp := shareResponse{
		ID:               sh.ID,
		ShareType:        int(sh.Type),
		UIDOwner:         sh.SharedBy,
		DisplaynameOwner: s.users.DisplayName(sh.SharedBy),
		UIDFileOwner:     sh.Owner,
		Permissions:      sh.Permissions,
		STime:            sh.CreatedAt.Unix(),
		ItemType:         sh.ItemType,
		FileSource:       sh.NodeID,
		FileTarget:       sh.Target,
		Note:             sh.Note,
	}
	if sh.Node != nil {
		resp.Path = "/" + sh.Node.Path
		resp.Mimetype = sh.Node.Mimetype
	}
	if sh.Expiration != nil {
		v := sh.Expiration.UTC().Format(expirationLayout)
		resp.Expiration = &v
	}
	if sh.Token != "" {
		resp.Token = &sh.Token
	}
	if sh.SharedWith != "" {
		with := sh.SharedWith
		display := with
		if sh.Type == share.TypeUser {
			display = s.users.DisplayName(with)
		}
		resp.ShareWith = &with
		resp.ShareWithDisplayname = &display
	}
	return resp
}

// apiListShares lists shares the user created or owns. With
// shared_with_me=true it lists shares addressed to the user instead.
// Query filters: share_type, file_id, parent (folder file id) and
// subfiles=true to include everything below parent.
func (s *Server) apiListShares(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserFromContext(r.Context())
	q := r.URL.Query()

	var f share.Filter
	if v := q.Get("share_type"); v != "" {
		t, err := parseShareType(v)
		if err != nil {
			apiError(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Type = &t
	}
	if v := q.Get("file_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			apiError(w, "invalid file_id", http.StatusBadRequest)
			return
		}
		f.FileID = id
	}
	if v := q.Get("parent"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			apiError(w, "invalid parent", http.StatusBadRequest)
			return
		}
		ok, err := s.access.CanAccess(uid, id)
		if err != nil {
			s.internalError(w, "checking access", err)
			return
		}
		if !ok {
			apiError(w, "Wrong path, file/folder does not exist", http.StatusNotFound)
			return
		}
		node, err := s.cache.Get(id)
		if err != nil {
			s.internalError(w, "loading parent", err)
			return
		}
		if !node.IsDir() {
			apiError(w, "parent is not a folder", http.StatusBadRequest)
			return
		}
		f.Parent = node
		f.Recursive = q.Get("subfiles") == "true"
	}

	visible := func(sh *share.Share) bool {
		return sh.Owner == uid || sh.SharedBy == uid
	}
	if q.Get("shared_with_me") == "true" {
		groups, err := s.users.Groups(uid)
		if err != nil {
			s.internalError(w, "listing groups", err)
			return
		}
		visible = func(sh *share.Share) bool {
			switch sh.Type {
			case share.TypeUser:
				return sh.SharedWith == uid
			case share.TypeGroup:
				for _, g := range groups {
					if sh.SharedWith == g {
						return true
					}
				}
			}
			return false
		}
	}

	now := time.Now()
	out := []shareResponse{}
	for sh, err := range f.Apply(s.shares.All()) {
		if err != nil {
			s.internalError(w, "listing shares", err)
			return
		}
		if !visible(sh) || sh.IsExpired(now) {
			continue
		}
		out = append(out, s.toResponse(sh))
	}
	apiJSON(w, out, http.StatusOK)
}

// createShareRequest is the body of a share creation.
type createShareRequest struct {
	FileID      int64           `json:"fileId" validate:"required,gt=0"`
	ShareType   json.RawMessage `json:"shareType" validate:"required"`
	ShareWith   string          `json:"shareWith"`
	ExpireDate  string          `json:"expireDate" validate:"omitempty,datetime=2006-01-02"`
	Permissions int             `json:"permissions" validate:"omitempty,min=1,max=31"`
	Note        string          `json:"note" validate:"max=4000"`
}

// parseShareType accepts a numeric code or a type name.
func parseShareType(v string) (share.Type, error) {
	v = strings.Trim(strings.TrimSpace(v), `"`)
	if n, err := strconv.Atoi(v); err == nil {
		t := share.Type(n)
		if !t.Valid() {
			return 0, fmt.Errorf("%w: %d", share.ErrInvalidShareType, n)
		}
		return t, nil
	}
	return share.ParseType(v)
}

func (s *Server) apiCreateShare(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserFromContext(r.Context())

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		apiError(w, validationMessage(err), http.StatusBadRequest)
		return
	}
	shareType, err := parseShareType(string(req.ShareType))
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	held, err := s.access.Permissions(uid, req.FileID)
	if err != nil {
		s.internalError(w, "checking access", err)
		return
	}
	if held == 0 {
		apiError(w, "Wrong path, file/folder does not exist", http.StatusNotFound)
		return
	}
	if held&share.PermShare == 0 {
		apiError(w, "You are not allowed to share this item", http.StatusForbidden)
		return
	}
	node, err := s.cache.Get(req.FileID)
	if err != nil {
		s.internalError(w, "loading node", err)
		return
	}

	if msg, err := s.checkRecipient(uid, shareType, req.ShareWith); err != nil {
		s.internalError(w, "checking recipient", err)
		return
	} else if msg != "" {
		apiError(w, msg, http.StatusBadRequest)
		return
	}

	sh := &share.Share{
		Type:        shareType,
		SharedWith:  req.ShareWith,
		SharedBy:    uid,
		ItemType:    node.ItemType(),
		NodeID:      node.ID,
		Target:      "/" + node.Name,
		Permissions: defaultPermissions(shareType, node, req.Permissions) & held,
		Note:        req.Note,
	}
	if sh.Permissions&share.PermRead == 0 {
		apiError(w, "Cannot set the requested share permissions", http.StatusBadRequest)
		return
	}
	if shareType == share.TypeLink {
		sh.SharedWith = ""
	}

	if req.ExpireDate != "" {
		exp, err := time.ParseInLocation("2006-01-02", req.ExpireDate, time.UTC)
		if err != nil {
			apiError(w, "Invalid date, date format must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		if !exp.After(time.Now().UTC()) {
			apiError(w, "Expiration date is in the past", http.StatusBadRequest)
			return
		}
		sh.Expiration = &exp
	}

	owner, err := s.orphans.FindOwner(node.ID)
	if err != nil {
		s.internalError(w, "finding file owner", err)
		return
	}
	if owner == "" {
		owner = uid
	}
	sh.Owner = owner

	created, err := s.shares.Create(sh)
	if err != nil {
		s.internalError(w, "creating share", err)
		return
	}
	slog.InfoContext(r.Context(), "created share",
		"share_id", created.ID,
		"type", created.Type.String(),
		"uid", uid,
		"file_id", created.NodeID,
	)
	apiJSON(w, s.toResponse(created), http.StatusOK)
}

// checkRecipient returns a client error message when shareWith does not fit
// the share type.
func (s *Server) checkRecipient(uid string, t share.Type, shareWith string) (string, error) {
	switch t {
	case share.TypeUser:
		if shareWith == "" {
			return "Please specify a valid user", nil
		}
		if shareWith == uid {
			return "Cannot share with yourself", nil
		}
		exists, err := s.users.Exists(shareWith)
		if err != nil {
			return "", err
		}
		if !exists {
			return "Please specify a valid user", nil
		}
	case share.TypeGroup:
		exists, err := s.users.GroupExists(shareWith)
		if err != nil {
			return "", err
		}
		if !exists {
			return "Please specify a valid group", nil
		}
	case share.TypeLink:
	case share.TypeEmail:
		if err := validate.Var(shareWith, "required,email"); err != nil {
			return "Please specify a valid email address", nil
		}
	case share.TypeRemote:
		if !strings.Contains(shareWith, "@") {
			return "Please specify a valid federated cloud ID", nil
		}
	default:
		return fmt.Sprintf("Share type %s is not supported", t), nil
	}
	return "", nil
}

// defaultPermissions applies the requested permissions, defaulting to
// everything for folders. Files cannot grant create or delete and link
// shares default to read only.
func defaultPermissions(t share.Type, node *files.Node, requested int) int {
	perms := requested
	if perms == 0 {
		perms = share.PermAll
		if t == share.TypeLink || t == share.TypeEmail {
			perms = share.PermRead
		}
	}
	if !node.IsDir() {
		perms &^= share.PermCreate | share.PermDelete
	}
	return perms
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Sprintf("invalid %s: failed '%s' check", e.Field(), e.Tag())
	}
	return err.Error()
}

// shareForRequest loads the share in the URL. Shares the user neither owns,
// created nor received are reported as missing.
func (s *Server) shareForRequest(w http.ResponseWriter, r *http.Request, allowRecipient bool) (*share.Share, bool) {
	uid := auth.UserFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apiError(w, "Wrong share ID, share does not exist", http.StatusNotFound)
		return nil, false
	}
	sh, err := s.shares.Get(id)
	if errors.Is(err, share.ErrNotFound) {
		apiError(w, "Wrong share ID, share does not exist", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.internalError(w, "loading share", err)
		return nil, false
	}

	if sh.Owner == uid || sh.SharedBy == uid {
		return sh, true
	}
	if allowRecipient && sh.Type == share.TypeUser && sh.SharedWith == uid {
		return sh, true
	}
	if allowRecipient && sh.Type == share.TypeGroup {
		groups, err := s.users.Groups(uid)
		if err != nil {
			s.internalError(w, "listing groups", err)
			return nil, false
		}
		for _, g := range groups {
			if g == sh.SharedWith {
				return sh, true
			}
		}
	}
	apiError(w, "Wrong share ID, share does not exist", http.StatusNotFound)
	return nil, false
}

func (s *Server) apiGetShare(w http.ResponseWriter, r *http.Request) {
	sh, ok := s.shareForRequest(w, r, true)
	if !ok {
		return
	}
	apiJSON(w, []shareResponse{s.toResponse(sh)}, http.StatusOK)
}

func (s *Server) apiDeleteShare(w http.ResponseWriter, r *http.Request) {
	sh, ok := s.shareForRequest(w, r, false)
	if !ok {
		return
	}
	if err := s.shares.Delete(sh.ID); err != nil {
		s.internalError(w, "deleting share", err)
		return
	}
	slog.InfoContext(r.Context(), "deleted share", "share_id", sh.ID, "uid", auth.UserFromContext(r.Context()))
	apiJSON(w, []string{}, http.StatusOK)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	apiError(w, "internal error", http.StatusInternalServerError)
}

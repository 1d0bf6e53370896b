package dav

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evcraddock/sharebox/internal/auth"
)

func init() {
	chi.RegisterMethod("PROPFIND")
	chi.RegisterMethod("PROPPATCH")
	chi.RegisterMethod("REPORT")
}

// Handler serves the comments tree under a base path.
type Handler struct {
	root *RootCollection
	base string
}

// NewHandler returns the comments router. base is the public path the
// router is mounted at and prefixes every href.
func NewHandler(root *RootCollection, base string) http.Handler {
	h := &Handler{root: root, base: strings.TrimRight(base, "/")}

	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, NotFound("Resource not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, MethodNotAllowed(r.Method+" is not allowed on this resource"))
	})

	r.Method("PROPFIND", "/", http.HandlerFunc(h.propfindRoot))
	r.Method("PROPFIND", "/{type}", http.HandlerFunc(h.propfindType))

	r.Route("/{type}/{id}", func(r chi.Router) {
		r.Method("PROPFIND", "/", http.HandlerFunc(h.propfindEntity))
		r.Method("PROPPATCH", "/", http.HandlerFunc(h.proppatchEntity))
		r.Method("REPORT", "/", http.HandlerFunc(h.report))
		r.Post("/", h.createComment)

		r.Method("PROPFIND", "/{comment}", http.HandlerFunc(h.propfindComment))
		r.Method("PROPPATCH", "/{comment}", http.HandlerFunc(h.proppatchComment))
		r.Delete("/{comment}", h.deleteComment)
	})

	return r
}

func (h *Handler) href(parts ...string) string {
	return h.base + "/" + strings.Join(parts, "/")
}

func depth(r *http.Request) int {
	if r.Header.Get("Depth") == "0" {
		return 0
	}
	return 1
}

func (h *Handler) entityType(r *http.Request) (*EntityTypeCollection, error) {
	return h.root.EntityType(chi.URLParam(r, "type"), auth.UserFromContext(r.Context()))
}

func (h *Handler) entity(r *http.Request) (*EntityCollection, error) {
	t, err := h.entityType(r)
	if err != nil {
		return nil, err
	}
	return t.Entity(chi.URLParam(r, "id"))
}

func (h *Handler) comment(r *http.Request) (*EntityCollection, *CommentNode, error) {
	e, err := h.entity(r)
	if err != nil {
		return nil, nil, err
	}
	n, err := e.Child(chi.URLParam(r, "comment"))
	if err != nil {
		return nil, nil, err
	}
	return e, n, nil
}

func (h *Handler) propfindRoot(w http.ResponseWriter, r *http.Request) {
	requested, err := parsePropfind(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if auth.UserFromContext(r.Context()) == "" {
		writeError(w, r, NotAuthenticated("No authenticated user"))
		return
	}

	responses := []response{propResponse(h.base+"/", []prop{collectionType()}, requested)}
	if depth(r) > 0 {
		for _, name := range h.root.EntityTypes() {
			props := []prop{collectionType(), textProp(propDisplayName, name)}
			responses = append(responses, propResponse(h.href(name)+"/", props, requested))
		}
	}
	writeMultistatus(w, responses)
}

func (h *Handler) propfindType(w http.ResponseWriter, r *http.Request) {
	requested, err := parsePropfind(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.entityType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if depth(r) > 0 {
		writeError(w, r, t.Children())
		return
	}

	props := []prop{collectionType(), textProp(propDisplayName, t.Name())}
	writeMultistatus(w, []response{propResponse(h.href(t.Name())+"/", props, requested)})
}

func (h *Handler) propfindEntity(w http.ResponseWriter, r *http.Request) {
	requested, err := parsePropfind(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.entity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	props, err := e.properties()
	if err != nil {
		writeError(w, r, err)
		return
	}
	responses := []response{propResponse(h.href(e.ObjectType(), e.ObjectID())+"/", props, requested)}

	if depth(r) > 0 {
		children, err := e.FindChildren(0, 0, nil)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, n := range children {
			responses = append(responses, propResponse(h.commentHref(e, n), n.properties(), requested))
		}
	}
	writeMultistatus(w, responses)
}

func (h *Handler) commentHref(e *EntityCollection, n *CommentNode) string {
	return h.href(e.ObjectType(), e.ObjectID(), n.Name())
}

func (h *Handler) propfindComment(w http.ResponseWriter, r *http.Request) {
	requested, err := parsePropfind(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, n, err := h.comment(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMultistatus(w, []response{propResponse(h.commentHref(e, n), n.properties(), requested)})
}

// createComment handles POST on an entity. The body must be JSON; any
// other content type is rejected before a comment is created.
func (h *Handler) createComment(w http.ResponseWriter, r *http.Request) {
	e, err := h.entity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	contentType := strings.TrimSpace(strings.SplitN(r.Header.Get("Content-Type"), ";", 2)[0])
	if !strings.EqualFold(contentType, "application/json") {
		writeError(w, r, UnsupportedMediaType("Comments must be posted as application/json"))
		return
	}

	var body struct {
		ActorType string `json:"actorType"`
		Verb      string `json:"verb"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, BadRequest("Invalid JSON body"))
		return
	}

	n, err := e.CreateComment(body.ActorType, body.Verb, body.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "comment created",
		"id", n.Comment.ID,
		"object_type", e.ObjectType(),
		"object_id", e.ObjectID(),
		"actor", n.Comment.ActorID,
	)

	w.Header().Set("Content-Location", h.commentHref(e, n))
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	e, err := h.entity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := parseReport(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit, err := parseCount(filter.Limit)
	if err != nil {
		writeError(w, r, BadRequest("Invalid limit"))
		return
	}
	offset, err := parseCount(filter.Offset)
	if err != nil {
		writeError(w, r, BadRequest("Invalid offset"))
		return
	}
	var since *time.Time
	if strings.TrimSpace(filter.Datetime) != "" {
		t, err := parseTime(filter.Datetime)
		if err != nil {
			writeError(w, r, BadRequest("Invalid datetime"))
			return
		}
		since = &t
	}

	children, err := e.FindChildren(limit, offset, since)
	if err != nil {
		writeError(w, r, err)
		return
	}

	responses := make([]response, 0, len(children))
	for _, n := range children {
		responses = append(responses, propResponse(h.commentHref(e, n), n.properties(), nil))
	}
	writeMultistatus(w, responses)
}

func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, BadRequest("invalid number")
	}
	return n, nil
}

// patchResult records the outcome of one property in a PROPPATCH.
type patchResult struct {
	name   string
	status int
}

func writePatchResults(w http.ResponseWriter, href string, results []patchResult) {
	byStatus := make(map[int][]propElement)
	var order []int
	for _, res := range results {
		if _, ok := byStatus[res.status]; !ok {
			order = append(order, res.status)
		}
		byStatus[res.status] = append(byStatus[res.status], prop{Name: res.name}.element())
	}

	resp := response{Href: href}
	for _, status := range order {
		resp.Propstat = append(resp.Propstat, propstat{Prop: propList{byStatus[status]}, Status: statusLine(status)})
	}
	writeMultistatus(w, []response{resp})
}

// applyPatch runs apply for every supported property. Unknown properties
// fail with 403 and the rest with 424 without being applied.
func applyPatch(changes []propChange, supported map[string]bool, apply func(propChange) error) ([]patchResult, error) {
	results := make([]patchResult, 0, len(changes))
	failed := false
	for _, ch := range changes {
		if !supported[ch.Name] {
			failed = true
			results = append(results, patchResult{name: ch.Name, status: http.StatusForbidden})
		}
	}
	if failed {
		for _, ch := range changes {
			if supported[ch.Name] {
				results = append(results, patchResult{name: ch.Name, status: http.StatusFailedDependency})
			}
		}
		return results, nil
	}

	for _, ch := range changes {
		if err := apply(ch); err != nil {
			return nil, err
		}
		results = append(results, patchResult{name: ch.Name, status: http.StatusOK})
	}
	return results, nil
}

func (h *Handler) proppatchEntity(w http.ResponseWriter, r *http.Request) {
	e, err := h.entity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	changes, err := parseProppatch(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	results, err := applyPatch(changes, map[string]bool{propReadMarker: true}, func(ch propChange) error {
		if ch.Remove || strings.TrimSpace(ch.Value) == "" {
			return e.SetReadMarker(nil)
		}
		t, err := parseTime(ch.Value)
		if err != nil {
			return BadRequest("Invalid readMarker")
		}
		return e.SetReadMarker(&t)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePatchResults(w, h.href(e.ObjectType(), e.ObjectID())+"/", results)
}

func (h *Handler) proppatchComment(w http.ResponseWriter, r *http.Request) {
	e, n, err := h.comment(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	changes, err := parseProppatch(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	results, err := applyPatch(changes, map[string]bool{propMessage: true}, func(ch propChange) error {
		if ch.Remove {
			return BadRequest("Message cannot be removed")
		}
		return n.UpdateComment(ch.Value)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePatchResults(w, h.commentHref(e, n), results)
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	e, n, err := h.comment(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := n.Delete(); err != nil {
		writeError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "comment deleted",
		"id", n.Comment.ID,
		"object_type", e.ObjectType(),
		"object_id", e.ObjectID(),
	)
	w.WriteHeader(http.StatusNoContent)
}

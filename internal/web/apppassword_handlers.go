package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evcraddock/sharebox/internal/auth"
)

type appPasswordResponse struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	KeyPrefix  string  `json:"key_prefix"`
	CreatedAt  string  `json:"created_at"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
}

type appPasswordCreateResponse struct {
	AppPassword string              `json:"apppassword"` // raw password, shown once
	Entry       appPasswordResponse `json:"entry"`
}

func toAppPasswordResponse(k auth.AppPassword) appPasswordResponse {
	resp := appPasswordResponse{
		ID:        k.ID,
		Name:      k.Name,
		KeyPrefix: k.KeyPrefix,
		CreatedAt: k.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if k.LastUsedAt != nil {
		s := k.LastUsedAt.UTC().Format("2006-01-02T15:04:05Z")
		resp.LastUsedAt = &s
	}
	return resp
}

// apiCreateAppPassword generates a new app password for the caller.
func (s *Server) apiCreateAppPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apiError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = "App password"
	}

	uid := auth.UserFromContext(r.Context())
	raw, key, err := s.appPasswords.Create(uid, name)
	if err != nil {
		s.internalError(w, "creating app password", err)
		return
	}
	slog.InfoContext(r.Context(), "created app password", "uid", uid, "id", key.ID)

	apiJSON(w, appPasswordCreateResponse{AppPassword: raw, Entry: toAppPasswordResponse(*key)}, http.StatusCreated)
}

// apiListAppPasswords returns the caller's app passwords without the raw
// values.
func (s *Server) apiListAppPasswords(w http.ResponseWriter, r *http.Request) {
	keys, err := s.appPasswords.List(auth.UserFromContext(r.Context()))
	if err != nil {
		s.internalError(w, "listing app passwords", err)
		return
	}

	resp := make([]appPasswordResponse, len(keys))
	for i, k := range keys {
		resp[i] = toAppPasswordResponse(k)
	}
	apiJSON(w, resp, http.StatusOK)
}

// apiDeleteAppPassword revokes one of the caller's app passwords.
func (s *Server) apiDeleteAppPassword(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apiError(w, "invalid app password id", http.StatusBadRequest)
		return
	}

	uid := auth.UserFromContext(r.Context())
	if err := s.appPasswords.Delete(uid, id); err != nil {
		if errors.Is(err, auth.ErrAppPasswordNotFound) {
			apiError(w, "app password not found", http.StatusNotFound)
			return
		}
		s.internalError(w, "deleting app password", err)
		return
	}
	slog.InfoContext(r.Context(), "revoked app password", "uid", uid, "id", id)
	apiJSON(w, []string{}, http.StatusOK)
}

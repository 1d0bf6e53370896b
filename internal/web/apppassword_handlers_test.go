package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/evcraddock/sharebox/internal/auth"
)

type appPasswordListResponse struct {
	OCS struct {
		Meta ocsMeta               `json:"meta"`
		Data []appPasswordResponse `json:"data"`
	} `json:"ocs"`
}

func TestCreateAppPassword(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, AppPasswordsPath, "alice", "application/json", `{"name":"Laptop"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp struct {
		OCS struct {
			Data appPasswordCreateResponse `json:"data"`
		} `json:"ocs"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OCS.Data.AppPassword == "" {
		t.Fatal("expected raw app password in response")
	}
	if resp.OCS.Data.Entry.Name != "Laptop" {
		t.Errorf("name = %q, want Laptop", resp.OCS.Data.Entry.Name)
	}

	uid, err := auth.NewAppPasswordStore(env.db).Validate(resp.OCS.Data.AppPassword)
	if err != nil || uid != "alice" {
		t.Errorf("validate = %q, %v; want alice", uid, err)
	}
}

func TestCreateAppPasswordInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, AppPasswordsPath, "alice", "application/json", `{`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestListAppPasswordsIsPerUser(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := auth.NewAppPasswordStore(env.db).Create("bob", "Phone"); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := env.do(t, http.MethodGet, AppPasswordsPath, "bob", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp appPasswordListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The fixture gives every user one "test" password.
	if len(resp.OCS.Data) != 2 {
		t.Fatalf("got %d app passwords, want 2", len(resp.OCS.Data))
	}
	if resp.OCS.Data[0].Name != "Phone" {
		t.Errorf("newest name = %q, want Phone", resp.OCS.Data[0].Name)
	}
	if resp.OCS.Data[1].LastUsedAt == nil {
		t.Error("expected last_used_at on the password used for this request")
	}
}

func TestDeleteAppPassword(t *testing.T) {
	env := newTestEnv(t)
	store := auth.NewAppPasswordStore(env.db)
	_, key, err := store.Create("alice", "To Revoke")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	path := AppPasswordsPath + "/" + strconv.FormatInt(key.ID, 10)

	if w := env.do(t, http.MethodDelete, path, "bob", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("other user delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := env.do(t, http.MethodDelete, path, "alice", "", ""); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := env.do(t, http.MethodDelete, path, "alice", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := env.do(t, http.MethodDelete, AppPasswordsPath+"/abc", "alice", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	keys, err := store.List("alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("got %d keys after delete, want 1", len(keys))
	}
}

package auth

import (
	"strings"
	"testing"
)

func testAppPasswordStore(t *testing.T) (*AppPasswordStore, *UserStore) {
	t.Helper()
	d := testDB(t)
	users := NewUserStore(d)
	for _, uid := range []string{"alice", "bob"} {
		if _, err := users.Add(uid, "", "", ""); err != nil {
			t.Fatalf("add %s: %v", uid, err)
		}
	}
	return NewAppPasswordStore(d), users
}

func TestAppPasswordCreateAndValidate(t *testing.T) {
	store, _ := testAppPasswordStore(t)

	raw, key, err := store.Create("alice", "laptop")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(raw, "sbx_") {
		t.Errorf("raw = %q, want sbx_ prefix", raw)
	}
	if key.Name != "laptop" {
		t.Errorf("name = %q, want laptop", key.Name)
	}
	if key.KeyPrefix != raw[:8] {
		t.Errorf("prefix = %q, want %q", key.KeyPrefix, raw[:8])
	}

	uid, err := store.Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if uid != "alice" {
		t.Errorf("uid = %q, want alice", uid)
	}

	keys, err := store.List("alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0].LastUsedAt == nil {
		t.Errorf("expected one key with last_used_at set, got %+v", keys)
	}
}

func TestAppPasswordValidateInvalid(t *testing.T) {
	store, _ := testAppPasswordStore(t)

	uid, err := store.Validate("sbx_bogus")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if uid != "" {
		t.Errorf("uid = %q, want empty", uid)
	}
}

func TestAppPasswordListPerUser(t *testing.T) {
	store, _ := testAppPasswordStore(t)

	if _, _, err := store.Create("alice", "one"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := store.Create("alice", "two"); err != nil {
		t.Fatalf("create: %v", err)
	}

	keys, err := store.List("alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(keys))
	}

	other, err := store.List("bob")
	if err != nil {
		t.Fatalf("list bob: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("got %d keys for bob, want 0", len(other))
	}
}

func TestAppPasswordDelete(t *testing.T) {
	store, _ := testAppPasswordStore(t)

	raw, key, err := store.Create("alice", "laptop")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Delete("bob", key.ID); err == nil {
		t.Fatal("expected error deleting another user's key")
	}
	if err := store.Delete("alice", key.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	uid, err := store.Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if uid != "" {
		t.Error("deleted key should not validate")
	}
}

func TestAppPasswordRemovedWithUser(t *testing.T) {
	store, users := testAppPasswordStore(t)

	raw, _, err := store.Create("bob", "phone")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := users.Delete("bob"); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	uid, err := store.Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if uid != "" {
		t.Error("key of deleted user should not validate")
	}
}

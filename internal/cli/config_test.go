package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigSaveAndLoad(t *testing.T) {
	testEnv(t)

	cfg := CLIConfig{
		ServerURL:   "http://myhost:9090",
		User:        "alice",
		AppPassword: "sbx_testpassword123",
	}

	if err := saveClientConfig(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Verify file exists next to the server config
	if _, err := os.Stat(filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "sharebox", "client.yaml")); err != nil {
		t.Fatalf("config file not found: %v", err)
	}

	loaded, err := loadClientConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != cfg {
		t.Errorf("loaded = %+v, want %+v", loaded, cfg)
	}
}

func TestConfigLoadMissing(t *testing.T) {
	testEnv(t)

	cfg, err := loadClientConfig()
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if cfg != (CLIConfig{}) {
		t.Error("expected zero-value config for missing file")
	}
}

func TestGetServerURL(t *testing.T) {
	testEnv(t)
	if url := getServerURL(); url != "http://localhost:8080" {
		t.Errorf("default url = %q", url)
	}

	if err := saveClientConfig(CLIConfig{ServerURL: "http://saved:1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if url := getServerURL(); url != "http://saved:1" {
		t.Errorf("config url = %q", url)
	}

	t.Setenv("SHAREBOX_SERVER_URL", "http://custom:1234")
	if url := getServerURL(); url != "http://custom:1234" {
		t.Errorf("env url = %q", url)
	}
}

func TestGetCredentials(t *testing.T) {
	testEnv(t)
	if err := saveClientConfig(CLIConfig{User: "alice", AppPassword: "sbx_fromconfig"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	user, pass := getCredentials()
	if user != "alice" || pass != "sbx_fromconfig" {
		t.Errorf("config credentials = %q, %q", user, pass)
	}

	t.Setenv("SHAREBOX_APP_PASSWORD", "sbx_fromenv")
	user, pass = getCredentials()
	if user != "alice" || pass != "sbx_fromenv" {
		t.Errorf("mixed credentials = %q, %q", user, pass)
	}
}

func TestLogin(t *testing.T) {
	testEnv(t)

	out, err := executeCommandWithInput(strings.NewReader("sbx_abc123\n"), "login", "--user", "alice", "--server", "http://host:8080/")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "saved for alice") {
		t.Errorf("output = %q", out)
	}

	cfg, err := loadClientConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := CLIConfig{ServerURL: "http://host:8080", User: "alice", AppPassword: "sbx_abc123"}
	if cfg != want {
		t.Errorf("config = %+v, want %+v", cfg, want)
	}
}

func TestValidateAppPassword(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "sbx_abc123def456", false},
		{"empty", "", true},
		{"missing prefix", "abc123def456", true},
		{"wrong prefix", "hf_abc123", true},
		{"just prefix", "sbx_", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAppPassword(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAppPassword(%q) err = %v, wantErr = %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestLogoutClearsPassword(t *testing.T) {
	testEnv(t)

	cfg := CLIConfig{User: "alice", AppPassword: "sbx_testkey123", ServerURL: "http://myhost:9090"}
	if err := saveClientConfig(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := executeCommand("logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}

	loaded, err := loadClientConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.AppPassword != "" {
		t.Errorf("app_password = %q, want empty after logout", loaded.AppPassword)
	}
	// Server URL and user should be preserved
	if loaded.ServerURL != "http://myhost:9090" || loaded.User != "alice" {
		t.Errorf("config = %+v, want server and user preserved", loaded)
	}
}

func TestLogoutWhenNotLoggedIn(t *testing.T) {
	testEnv(t)

	out, err := executeCommand("logout")
	if err != nil {
		t.Fatalf("logout with no config: %v", err)
	}
	if !strings.Contains(out, "Not logged in.") {
		t.Errorf("output = %q", out)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.Server.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, filepath.Join(Dir(), "sharebox.db"), cfg.Database.Path)
	assert.Equal(t, filepath.Join(Dir(), "data"), cfg.DataDir)
	assert.Equal(t, "587", cfg.SMTP.Port)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFile(t *testing.T) {
	p := writeConfig(t, `
logging:
  level: debug
  format: json
database:
  path: /var/lib/sharebox/db.sqlite
server:
  listen: 0.0.0.0:9000
  base_url: https://files.example.com/
  shutdown_timeout: 3s
data_dir: /srv/sharebox
smtp:
  host: smtp.example.com
  port: "465"
  from: noreply@example.com
metrics:
  enabled: true
  textfile_path: /var/lib/node_exporter/sharebox.prom
`)

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/sharebox/db.sqlite", cfg.Database.Path)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	assert.Equal(t, "https://files.example.com", cfg.Server.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/srv/sharebox", cfg.DataDir)
	assert.Equal(t, "465", cfg.SMTP.Port)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/var/lib/node_exporter/sharebox.prom", cfg.Metrics.TextfilePath)

	mail := cfg.SMTP.Email()
	assert.True(t, mail.IsConfigured())
	assert.Equal(t, "smtp.example.com", mail.Host)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	p := writeConfig(t, "server:\n  listen: 127.0.0.1:8080\n")
	t.Setenv("SHAREBOX_SERVER_LISTEN", "127.0.0.1:9999")
	t.Setenv("SHAREBOX_DATA_DIR", "/tmp/sharebox-data")
	t.Setenv("SHAREBOX_METRICS_ENABLED", "true")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Listen)
	assert.Equal(t, "/tmp/sharebox-data", cfg.DataDir)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad level", "logging:\n  level: loud\n", "Config.Logging.Level"},
		{"bad format", "logging:\n  format: xml\n", "Config.Logging.Format"},
		{"bad listen", "server:\n  listen: nope\n", "Config.Server.Listen"},
		{"bad from", "smtp:\n  host: smtp.example.com\n  from: not-an-address\n", "Config.SMTP.From"},
		{"host without from", "smtp:\n  host: smtp.example.com\n", "from is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

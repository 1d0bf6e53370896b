package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/evcraddock/sharebox/internal/config"
)

// CLIConfig holds the client credentials persisted to disk.
type CLIConfig struct {
	ServerURL   string `yaml:"server_url,omitempty"`
	User        string `yaml:"user,omitempty"`
	AppPassword string `yaml:"app_password,omitempty"`
}

// clientConfigPath returns the path to the CLI client config file. It sits
// next to the server config.
func clientConfigPath() string {
	return filepath.Join(config.Dir(), "client.yaml")
}

// loadClientConfig reads the CLI config from disk.
// Returns a zero-value config if the file doesn't exist.
func loadClientConfig() (CLIConfig, error) {
	data, err := os.ReadFile(clientConfigPath())
	if os.IsNotExist(err) {
		return CLIConfig{}, nil
	}
	if err != nil {
		return CLIConfig{}, fmt.Errorf("reading config: %w", err)
	}

	var cfg CLIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// saveClientConfig writes the CLI config to disk.
func saveClientConfig(cfg CLIConfig) error {
	path := clientConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// getServerURL returns the server URL from env var, config, or default.
func getServerURL() string {
	if v := os.Getenv("SHAREBOX_SERVER_URL"); v != "" {
		return v
	}
	cfg, err := loadClientConfig()
	if err == nil && cfg.ServerURL != "" {
		return cfg.ServerURL
	}
	return "http://localhost:8080"
}

// getCredentials returns the user and app password from env vars or config.
func getCredentials() (string, string) {
	user := os.Getenv("SHAREBOX_USER")
	password := os.Getenv("SHAREBOX_APP_PASSWORD")
	if user != "" && password != "" {
		return user, password
	}
	cfg, err := loadClientConfig()
	if err != nil {
		return user, password
	}
	if user == "" {
		user = cfg.User
	}
	if password == "" {
		password = cfg.AppPassword
	}
	return user, password
}

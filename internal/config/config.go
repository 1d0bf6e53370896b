// Package config loads sharebox server configuration.
//
// Sources, from highest to lowest precedence:
//  1. Environment variables (SHAREBOX_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/evcraddock/sharebox/internal/email"
)

// Config is the complete sharebox configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`

	// DataDir holds one <uid>/files tree per user, indexed by files:scan.
	DataDir string `mapstructure:"data_dir" validate:"required"`

	SMTP    SMTPConfig    `mapstructure:"smtp"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN or ERROR, normalized to uppercase.
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen" validate:"required,hostname_port"`
	BaseURL         string        `mapstructure:"base_url" validate:"required,url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// SMTPConfig holds mail settings. With DevMode set, or without a host,
// mail is printed instead of sent.
type SMTPConfig struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port" validate:"omitempty,numeric"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	From    string `mapstructure:"from" validate:"omitempty,email"`
	DevMode bool   `mapstructure:"dev_mode"`
}

// Email returns the settings in the form the mailer takes.
func (c SMTPConfig) Email() email.SMTPConfig {
	return email.SMTPConfig{Host: c.Host, Port: c.Port, User: c.User, Pass: c.Pass, From: c.From}
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// TextfilePath, when set, receives repair command metrics in the
	// node exporter textfile format.
	TextfilePath string `mapstructure:"textfile_path"`
}

// keys lists every setting so environment variables are seen by Unmarshal
// even when the config file omits them.
var keys = []string{
	"logging.level", "logging.format",
	"database.path",
	"server.listen", "server.base_url", "server.shutdown_timeout",
	"data_dir",
	"smtp.host", "smtp.port", "smtp.user", "smtp.pass", "smtp.from", "smtp.dev_mode",
	"metrics.enabled", "metrics.textfile_path",
}

// Load reads configuration from configPath (or the default location when
// empty), the environment and defaults, then validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if err := setupViper(v, configPath); err != nil {
		return nil, err
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) error {
	v.SetEnvPrefix("SHAREBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return fmt.Errorf("binding env for %s: %w", k, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return nil
	}
	v.AddConfigPath(Dir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	return nil
}

// readConfigFile reads the config file. A missing default file is fine.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("reading config file: %w", err)
}

// Dir returns the sharebox configuration directory:
// $XDG_CONFIG_HOME/sharebox, falling back to ~/.config/sharebox.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sharebox")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "sharebox")
}

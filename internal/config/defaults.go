package config

import (
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults fills unset fields. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(Dir(), "sharebox.db")
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = "127.0.0.1:8080"
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://" + cfg.Server.Listen
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(Dir(), "data")
	}

	if cfg.SMTP.Port == "" {
		cfg.SMTP.Port = "587"
	}
}

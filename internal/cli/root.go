// Package cli defines the cobra command tree for sharebox.
package cli

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/sharebox/internal/client"
	"github.com/evcraddock/sharebox/internal/config"
	"github.com/evcraddock/sharebox/internal/db"
	"github.com/evcraddock/sharebox/internal/logging"
	"github.com/evcraddock/sharebox/internal/metrics"
)

var (
	flagFormat string
	flagDB     string
	flagConfig string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sharebox",
		Short:         "Self-hosted file shares with comments",
		Long:          "sharebox serves file comments over DAV and a share API, and provides the administrative commands to list, validate and repair shares.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (default: from config)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ~/.config/sharebox/config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newSharingListCmd(),
		newDeleteOrphanSharesCmd(),
		newFixShareOwnersCmd(),
		newSetOwnerCmd(),
		newCleanupRemoteStoragesCmd(),
		newExpirationNotificationCmd(),
		newUserAddCmd(),
		newAppPasswordCmd(),
		newGroupAddUserCmd(),
		newFilesScanCmd(),
		newCommentsListCmd(),
		newCommentsAddCmd(),
		newCommentsMarkReadCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// loadServerConfig loads the server configuration, applies the --db flag
// and sets up logging and metrics.
func loadServerConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.Database.Path = flagDB
	}

	if err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	return cfg, nil
}

// openDB loads the configuration and opens the database it names.
func openDB() (*config.Config, *sql.DB, error) {
	cfg, err := loadServerConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, database, nil
}

// writeMetrics exports repair metrics to the configured textfile.
func writeMetrics(cfg *config.Config) {
	if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: writing metrics: %v\n", err)
	}
}

// newAPIClient creates an HTTP client for a running sharebox server.
func newAPIClient() (*client.Client, error) {
	user, password := getCredentials()
	if user == "" || password == "" {
		return nil, fmt.Errorf("not logged in, run 'sharebox login' first")
	}
	return client.New(getServerURL(), user, password), nil
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}

// closeDB closes the database, logging any error to stderr.
func closeDB(database *sql.DB) {
	if err := database.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing database: %v\n", err)
	}
}

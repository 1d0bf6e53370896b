package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evcraddock/sharebox/internal/metrics"
	"github.com/evcraddock/sharebox/internal/web"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  "Serve the comments DAV tree, the share API, /status.php and /metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default: from config)")

	return cmd
}

func runServe(ctx context.Context, listen string) error {
	cfg, database, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	if listen == "" {
		listen = cfg.Server.Listen
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(database, web.Options{
		Version: Version,
		Metrics: metrics.NewHTTPMetrics(),
	})
	return srv.ListenAndServe(ctx, listen, cfg.Server.ShutdownTimeout)
}
